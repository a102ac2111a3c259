package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/pipeline"
)

var (
	reportPath string
	runTimeout time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <input> <output>",
	Short: "De-identify a single table",
	Long: `Run reads a table, replaces detected personal data and writes a table of
the same shape:
- Input: .csv, .tsv or .html (first <table>), or an http(s) URL
- Output: .csv, .tsv or .json (chosen by extension)
- Columns listed with --skip are copied through unchanged

Example:
  deidentify run patients.csv patients.anon.csv
  deidentify run people.tsv out.json --entities PERSON,LOCATION --ner
  deidentify run export.html out.csv --lower-case --skip id,created_at --report report.json`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addEngineFlags(runCmd, true)
	runCmd.Flags().StringVar(&reportPath, "report", "", "write a JSON run report to this path")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "overall timeout")
}

func runRun(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyEngineFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "Input:    %s\n", input)
		fmt.Fprintf(os.Stderr, "Output:   %s\n", output)
		fmt.Fprintf(os.Stderr, "Language: %s\n", cfg.TargetLanguage)
		fmt.Fprintf(os.Stderr, "Cache:    %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	report, err := p.Run(ctx, input, output)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if reportPath != "" {
		if err := pipeline.WriteReport(reportPath, report); err != nil {
			return err
		}
	}

	printRunSummary(report)
	return nil
}

func printRunSummary(report *model.RunReport) {
	for _, w := range report.Warnings {
		fmt.Fprintf(os.Stderr, "⚠️  %s\n", w)
	}
	fmt.Fprintf(os.Stderr, "✓ %s → %s: %d rows, %d columns, %d spans replaced in %d cells (%dms)\n",
		report.Input, report.Output, report.Rows, report.Columns, report.Replaced, report.ChangedCells, report.DurationMS)

	if len(report.Detections) == 0 {
		return
	}
	types := make([]string, 0, len(report.Detections))
	for entity := range report.Detections {
		types = append(types, entity)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, entity := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", entity, report.Detections[entity]))
	}
	fmt.Fprintf(os.Stderr, "  %s\n", strings.Join(parts, " "))
}
