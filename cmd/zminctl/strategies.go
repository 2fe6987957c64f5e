package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/zmin/minify"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "strategies",
		Short: "List strategies and detected CPU capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategies()
		},
	})
}

type strategiesJSON struct {
	Mode        string   `json:"mode"`
	Arch        string   `json:"arch"`
	VectorWidth int      `json:"vector_width"`
	Registered  []string `json:"registered"`
	Usable      []string `json:"usable"`
}

func runStrategies() error {
	m, err := openMinifier()
	if err != nil {
		return err
	}
	defer m.Close()

	eng := m.Engine()
	caps := eng.Registry().Capabilities()
	registered := eng.Registry().Available()
	usable := eng.Available()

	if jsonOut {
		return printJSON(strategiesJSON{
			Mode:        eng.Mode().String(),
			Arch:        caps.Arch,
			VectorWidth: caps.VectorWidth(),
			Registered:  strategyNames(registered),
			Usable:      strategyNames(usable),
		})
	}

	var flags []string
	for name, on := range map[string]bool{"sse4.2": caps.SSE42, "avx2": caps.AVX2, "avx512": caps.AVX512, "asimd": caps.ASIMD} {
		if on {
			flags = append(flags, name)
		}
	}
	slices.Sort(flags)
	if len(flags) == 0 {
		flags = []string{"none"}
	}
	fmt.Fprintf(stdout, "arch: %s, vector width %d bytes, simd: %s\n", caps.Arch, caps.VectorWidth(), strings.Join(flags, " "))
	fmt.Fprintf(stdout, "mode: %s\n\n", eng.Mode())
	for _, id := range minify.IDs() {
		state := "unavailable"
		switch {
		case slices.Contains(usable, id):
			state = "usable"
		case slices.Contains(registered, id):
			state = "excluded by mode"
		}
		fmt.Fprintf(stdout, "  %-18s %s\n", id, state)
	}
	return nil
}
