package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/zmin/internal/human"
	"github.com/joshuapare/zmin/minify"
)

func init() {
	rootCmd.AddCommand(newRouteCmd())
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <file>",
		Short: "Show how an input would be classified and routed",
		Long: `The route command analyzes a file and prints the category, confidence
and strategy the engine would use, without minifying it.

Example:
  zminctl route data.json
  zminctl route data.json --mode eco --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(args[0])
		},
	}
}

type routeJSON struct {
	File            string  `json:"file"`
	Size            uint64  `json:"size"`
	Strategy        string  `json:"strategy"`
	Category        string  `json:"category"`
	Confidence      float64 `json:"confidence"`
	Cached          bool    `json:"cached"`
	WhitespaceRatio float64 `json:"whitespace_ratio"`
	StringRatio     float64 `json:"string_ratio"`
	MaxNestingDepth uint8   `json:"max_nesting_depth"`
	Complexity      float64 `json:"complexity"`
}

func runRoute(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := openMinifier()
	if err != nil {
		return err
	}
	defer m.Close()

	d, err := m.Engine().Route(data, nil)
	if err != nil {
		return err
	}
	c := d.Characteristics
	if jsonOut {
		return printJSON(routeJSON{
			File:            path,
			Size:            uint64(len(data)),
			Strategy:        d.Strategy.String(),
			Category:        d.Category.String(),
			Confidence:      d.Confidence,
			Cached:          d.Cached,
			WhitespaceRatio: c.WhitespaceRatio,
			StringRatio:     c.StringRatio,
			MaxNestingDepth: c.MaxNestingDepth,
			Complexity:      c.ComplexityScore,
		})
	}
	fmt.Fprintf(stdout, "file:       %s (%s)\n", path, human.Bytes(int64(len(data))))
	fmt.Fprintf(stdout, "strategy:   %s\n", d.Strategy)
	fmt.Fprintf(stdout, "category:   %s (confidence %.2f)\n", d.Category, d.Confidence)
	if d.Cached {
		fmt.Fprintln(stdout, "source:     pattern cache")
		return nil
	}
	fmt.Fprintf(stdout, "whitespace: %.1f%%\n", 100*c.WhitespaceRatio)
	fmt.Fprintf(stdout, "strings:    %.1f%%\n", 100*c.StringRatio)
	fmt.Fprintf(stdout, "depth:      %d\n", c.MaxNestingDepth)
	fmt.Fprintf(stdout, "complexity: %.2f\n", c.ComplexityScore)
	return nil
}

// strategyNames renders ids for listings.
func strategyNames(ids []minify.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
