package worker

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/table"
)

// Runner de-identifies one table file into another
type Runner interface {
	Run(ctx context.Context, inputPath, outputPath string) (*model.RunReport, error)
}

// FileJob de-identifies one input file
type FileJob struct {
	Index  int
	Input  string
	Output string
	Runner Runner
}

// Execute executes the file job
func (j *FileJob) Execute(ctx context.Context) Result {
	report, err := j.Runner.Run(ctx, j.Input, j.Output)
	return &FileResult{
		Index:  j.Index,
		Input:  j.Input,
		Output: j.Output,
		Report: report,
		Error:  err,
	}
}

// FileResult represents the result of a file job
type FileResult struct {
	Index  int
	Input  string
	Output string
	Report *model.RunReport
	Error  error
}

// GetError returns the error from the file result
func (r *FileResult) GetError() error {
	return r.Error
}

// BatchProcessor de-identifies multiple files concurrently
type BatchProcessor struct {
	runner      Runner
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner Runner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// ProcessFiles de-identifies each input into outputDir, keeping the input base
// name. Results are returned in input order. Inputs skipped because ctx was
// cancelled carry ctx's error.
func (b *BatchProcessor) ProcessFiles(ctx context.Context, inputs []string, outputDir string) ([]*FileResult, error) {
	if len(inputs) == 0 {
		return []*FileResult{}, nil
	}

	outputs := make(map[string]string, len(inputs))
	for _, in := range inputs {
		out := filepath.Join(outputDir, OutputName(in))
		if prev, dup := outputs[out]; dup {
			return nil, fmt.Errorf("inputs %s and %s would both write %s", prev, in, out)
		}
		outputs[out] = in
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	pool.Start()

	for i, in := range inputs {
		pool.Submit(&FileJob{
			Index:  i,
			Input:  in,
			Output: filepath.Join(outputDir, OutputName(in)),
			Runner: b.runner,
		})
	}

	results := make([]*FileResult, len(inputs))
	for _, result := range pool.Wait() {
		fr := result.(*FileResult)
		results[fr.Index] = fr
	}

	for i, in := range inputs {
		if results[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("not processed")
			}
			results[i] = &FileResult{Index: i, Input: in, Error: err}
		}
	}

	return results, nil
}

// OutputName derives the output file name for input, a path or an http(s)
// URL. Inputs in a format that cannot be written (HTML) get a .csv name.
func OutputName(input string) string {
	name := filepath.Base(input)
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		name = "table"
		if u, err := url.Parse(input); err == nil {
			if base := path.Base(u.Path); base != "/" && base != "." && base != "" {
				name = base
			}
		}
	}

	if !table.Writable(table.FormatFromPath(name)) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".csv"
	}
	return name
}

// ProcessFile reads input paths from a list file and processes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, listPath, outputDir string) ([]*FileResult, error) {
	inputs, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read paths: %w", err)
	}

	return b.ProcessFiles(ctx, inputs, outputDir)
}

// ReadPathsFromFile reads file paths from a list file (one per line).
// Blank lines and # comments are skipped and duplicates removed.
func ReadPathsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
