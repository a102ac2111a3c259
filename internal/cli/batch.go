package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/deidentify/internal/pipeline"
	"github.com/ppiankov/deidentify/internal/worker"
)

var (
	fileConcurrency int
	outputDir       string
	batchTimeout    time.Duration
	writeReports    bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <list-file>",
	Short: "De-identify many tables in parallel",
	Long: `Batch processes the tables listed in a file concurrently:
- One input path or URL per line; blank lines and # comments are ignored
- Each output keeps the input's base name inside --output-dir
- Each file is its own run; a failure does not stop the others

Example:
  deidentify batch tables.txt --output-dir ./anon
  deidentify batch tables.txt --output-dir ./anon --concurrency 8 --reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	addEngineFlags(batchCmd, false)
	batchCmd.Flags().IntVar(&fileConcurrency, "concurrency", runtime.NumCPU(), "number of files processed concurrently")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./deidentified", "output directory")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&writeReports, "reports", false, "write a <name>.report.json next to each output")
}

func runBatch(cmd *cobra.Command, args []string) error {
	listFile := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyEngineFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  deidentify batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  List file:    %s\n", listFile)
	fmt.Fprintf(os.Stderr, "  Files:        %d at a time\n", fileConcurrency)
	fmt.Fprintf(os.Stderr, "  Columns:      %d at a time\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	processor := worker.NewBatchProcessor(p, fileConcurrency)
	results, err := processor.ProcessFile(ctx, listFile, outputDir)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount, failureCount := summarizeBatch(results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d tables\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 {
		return fmt.Errorf("%d of %d tables failed", failureCount, len(results))
	}
	return nil
}

func summarizeBatch(results []*worker.FileResult) (int, int) {
	successCount, failureCount := 0, 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Input, result.Error)
			continue
		}
		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (%d spans replaced)\n", result.Input, result.Report.Replaced)

		if writeReports {
			if err := pipeline.WriteReport(reportPathFor(result.Output), result.Report); err != nil {
				fmt.Fprintf(os.Stderr, "  failed to write report: %v\n", err)
			}
		}
	}
	return successCount, failureCount
}

func reportPathFor(output string) string {
	return output[:len(output)-len(filepath.Ext(output))] + ".report.json"
}
