package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/zmin/internal/human"
	"github.com/joshuapare/zmin/minify"
	"github.com/joshuapare/zmin/pkg/zmin"
)

var (
	minifyOut      string
	minifyOutDir   string
	minifyWorkers  int
	minifyStrategy string
	minifyReport   bool
)

func init() {
	cmd := newMinifyCmd()
	cmd.Flags().StringVarP(&minifyOut, "output", "o", "", "Write the result to this file")
	cmd.Flags().StringVar(&minifyOutDir, "out-dir", "", "Write one result per input into this directory")
	cmd.Flags().IntVarP(&minifyWorkers, "workers", "w", 0, "Parallel inputs (default: unlimited)")
	cmd.Flags().StringVar(&minifyStrategy, "strategy", "", "Force a strategy instead of routing")
	cmd.Flags().BoolVar(&minifyReport, "report", false, "Print a throughput report to stderr")
	rootCmd.AddCommand(cmd)
}

func newMinifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "minify [file...]",
		Short: "Minify JSON files or stdin",
		Long: `The minify command strips insignificant whitespace from JSON. With no
files it reads stdin. Several files are processed in parallel; use --out-dir
to keep them apart.

Example:
  zminctl minify data.json -o data.min.json
  cat data.json | zminctl minify --mode turbo
  zminctl minify logs/*.json --out-dir min/ --report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMinify(cmd.Context(), args)
		},
	}
}

type minifyReportJSON struct {
	Mode       string             `json:"mode"`
	Inputs     int                `json:"inputs"`
	BytesIn    int64              `json:"bytes_in"`
	BytesOut   int64              `json:"bytes_out"`
	Elapsed    time.Duration      `json:"elapsed_ns"`
	Throughput float64            `json:"throughput_mbps"`
	CacheHits  uint64             `json:"cache_hits"`
	Rollbacks  uint64             `json:"rollbacks"`
	Scores     map[string]float64 `json:"scores"`
}

func runMinify(ctx context.Context, args []string) error {
	if len(args) > 1 && minifyOut != "" {
		return fmt.Errorf("--output takes a single input; use --out-dir for %d files", len(args))
	}
	var forced *minify.ID
	if minifyStrategy != "" {
		id, err := minify.ParseID(minifyStrategy)
		if err != nil {
			return err
		}
		forced = &id
	}

	m, err := openMinifier()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			printInfo("warning: %v\n", cerr)
		}
	}()

	start := time.Now()
	var in, out int64
	switch {
	case len(args) == 0:
		n, err := minifyStdin(m, forced)
		if err != nil {
			return err
		}
		out = n
	default:
		in, out, err = minifyFiles(ctx, m, args, forced)
		if err != nil {
			return err
		}
	}
	if minifyReport {
		return report(m, max(len(args), 1), in, out, time.Since(start))
	}
	return nil
}

func minifyStdin(m *zmin.Minifier, forced *minify.ID) (int64, error) {
	if err := checkStdin(); err != nil {
		return 0, err
	}
	w, closeOut, err := output(minifyOut)
	if err != nil {
		return 0, err
	}
	defer closeOut()
	if forced == nil {
		return m.MinifyReader(stdin, w)
	}
	data, err := readAllStdin()
	if err != nil {
		return 0, err
	}
	res, err := m.MinifyWith(data, *forced)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(res)
	return int64(n), err
}

func minifyFiles(ctx context.Context, m *zmin.Minifier, paths []string, forced *minify.ID) (int64, int64, error) {
	var in int64
	inputs := make([][]byte, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return 0, 0, err
		}
		inputs[i] = data
		in += int64(len(data))
		printVerbose("read %s (%s)\n", p, human.Bytes(int64(len(data))))
	}

	var results [][]byte
	if forced != nil {
		results = make([][]byte, len(inputs))
		for i, data := range inputs {
			res, err := m.MinifyWith(data, *forced)
			if err != nil {
				return 0, 0, fmt.Errorf("%s: %w", paths[i], err)
			}
			results[i] = res
		}
	} else {
		var err error
		if results, err = m.MinifyBatch(ctx, inputs, minifyWorkers); err != nil {
			return 0, 0, err
		}
	}

	var out int64
	for i, res := range results {
		target := minifyOut
		if minifyOutDir != "" {
			target = filepath.Join(minifyOutDir, filepath.Base(paths[i]))
		}
		if err := writeResult(target, res); err != nil {
			return 0, 0, err
		}
		out += int64(len(res))
	}
	return in, out, nil
}

func writeResult(path string, res []byte) error {
	w, closeOut, err := output(path)
	if err != nil {
		return err
	}
	defer closeOut()
	if _, err := w.Write(res); err != nil {
		return err
	}
	if path == "" {
		_, err = w.Write([]byte{'\n'})
	}
	return err
}

func report(m *zmin.Minifier, inputs int, in, out int64, elapsed time.Duration) error {
	st := m.Stats()
	scores := make(map[string]float64, len(st.Scores))
	for id, v := range st.Scores {
		scores[id.String()] = v
	}
	if jsonOut {
		enc := minifyReportJSON{
			Mode:       m.Mode().String(),
			Inputs:     inputs,
			BytesIn:    in,
			BytesOut:   out,
			Elapsed:    elapsed,
			Throughput: st.OverallThroughput,
			CacheHits:  st.Cache.Hits,
			Rollbacks:  st.Speculation.Rollbacks,
			Scores:     scores,
		}
		return printJSONTo(stderr, enc)
	}
	printInfo("mode:       %s\n", m.Mode())
	printInfo("inputs:     %s\n", human.Count(inputs))
	if in > 0 {
		printInfo("size:       %s -> %s (%s)\n", human.Bytes(in), human.Bytes(out), human.Ratio(out, in))
	}
	printInfo("elapsed:    %s\n", human.Duration(elapsed))
	printInfo("throughput: %s\n", human.Rate(st.OverallThroughput))
	printInfo("cache hits: %s\n", human.Count(st.Cache.Hits))
	printInfo("rollbacks:  %s\n", human.Count(st.Speculation.Rollbacks))
	return nil
}
