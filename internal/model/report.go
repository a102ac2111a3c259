package model

import "time"

// RunReport summarizes one de-identification run.
// It never contains original cell values.
type RunReport struct {
	ID             string         `json:"id"`                        // Run identifier (UUID)
	Input          string         `json:"input,omitempty"`           // Input path, empty for API calls
	Output         string         `json:"output,omitempty"`          // Output path
	Language       string         `json:"language"`                  // Target language
	Rows           int            `json:"rows"`                      // Data rows (header excluded)
	Columns        int            `json:"columns"`                   // Column count
	SkippedColumns []string       `json:"skipped_columns,omitempty"` // Columns passed through verbatim
	Recognizers    []string       `json:"recognizers"`               // Recognizers that ran
	Detections     map[string]int `json:"detections"`                // Accepted detections per entity type
	Replaced       int            `json:"replaced"`                  // Spans replaced after overlap resolution
	ChangedCells   int            `json:"changed_cells"`             // Cells whose value changed
	Warnings       []string       `json:"warnings,omitempty"`        // Configuration warnings
	StartedAt      time.Time      `json:"started_at"`
	DurationMS     int64          `json:"duration_ms"`
}
