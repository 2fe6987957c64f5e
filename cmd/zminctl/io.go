package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"golang.org/x/term"
)

var errTerminalInput = errors.New("no input: pass files or pipe JSON on stdin")

// output opens path for writing, or stdout when path is empty.
func output(path string) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// checkStdin refuses to block on an interactive terminal.
func checkStdin() error {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return errTerminalInput
	}
	return nil
}

func readAllStdin() ([]byte, error) { return io.ReadAll(stdin) }

func printJSONTo(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
