// Command goose-report renders a previously-saved goose-go JSON report as
// text or HTML, optionally diffing it against a baseline report (spec
// §4.6's baseline comparison, exposed here as a standalone tool rather than
// only a live attack flag).
//
// Grounded on the teacher's cmd/healthcheck/main.go for a small, single-
// purpose main, generalized to a cobra command since this tool takes more
// than one flag.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tag1consulting/goose-go/report"
)

func main() {
	var (
		inputPath    string
		baselinePath string
		format       string
	)

	root := &cobra.Command{
		Use:   "goose-report",
		Short: "Render or diff a saved goose-go report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(inputPath, baselinePath, format)
		},
	}
	root.Flags().StringVar(&inputPath, "input", "", "path to a goose-go JSON report (required)")
	root.Flags().StringVar(&baselinePath, "baseline", "", "path to a prior goose-go JSON report to diff against")
	root.Flags().StringVar(&format, "format", "text", "text|html|json")
	root.MarkFlagRequired("input")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(inputPath, baselinePath, format string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("goose-report: reading %s: %w", inputPath, err)
	}
	rep, err := report.LoadBaseline(data)
	if err != nil {
		return fmt.Errorf("goose-report: parsing %s: %w", inputPath, err)
	}

	if baselinePath != "" {
		return diff(rep, baselinePath)
	}

	switch format {
	case "html":
		html, err := rep.HTML()
		if err != nil {
			return fmt.Errorf("goose-report: rendering HTML: %w", err)
		}
		fmt.Println(html)
	case "json":
		j, err := rep.JSON()
		if err != nil {
			return fmt.Errorf("goose-report: rendering JSON: %w", err)
		}
		fmt.Println(string(j))
	default:
		fmt.Println(rep.Text())
	}
	return nil
}

func diff(current *report.Report, baselinePath string) error {
	data, err := os.ReadFile(baselinePath)
	if err != nil {
		return fmt.Errorf("goose-report: reading baseline %s: %w", baselinePath, err)
	}
	baseline, err := report.LoadBaseline(data)
	if err != nil {
		return fmt.Errorf("goose-report: parsing baseline %s: %w", baselinePath, err)
	}

	d, err := report.Diff(current, baseline)
	if err != nil {
		return fmt.Errorf("goose-report: diffing against baseline: %w", err)
	}

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("goose-report: marshaling diff: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
