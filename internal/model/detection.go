package model

// Detection is a single recognizer's claim that a span of a cell is an entity.
type Detection struct {
	EntityType  string  `json:"entity_type"`           // Target category after reconciliation (e.g. "PERSON")
	Label       string  `json:"label,omitempty"`       // Recognizer-native label (e.g. "PER")
	Start       int     `json:"start"`                 // Byte offset into the source cell, inclusive
	End         int     `json:"end"`                   // Byte offset into the source cell, exclusive
	Score       float64 `json:"score"`                 // Confidence in [0,1]
	Recognizer  string  `json:"recognizer"`            // Name of the recognizer that produced it
	Explanation string  `json:"explanation,omitempty"` // Optional free-text reason
}

// RawLabel returns the label to reconcile: the native label if the recognizer
// set one, otherwise the entity type.
func (d Detection) RawLabel() string {
	if d.Label != "" {
		return d.Label
	}
	return d.EntityType
}

// Overlaps reports whether two detections share at least one byte
func (d Detection) Overlaps(other Detection) bool {
	return d.Start < other.End && other.Start < d.End
}

// RowDetections holds the detections for one data row of a column
type RowDetections struct {
	Row        int         `json:"row"` // 0-based data row index (header excluded)
	Detections []Detection `json:"detections"`
}

// ColumnDetections maps column name to one RowDetections per data row, in row order.
// Skipped columns are absent.
type ColumnDetections map[string][]RowDetections

// Count returns the number of detections per entity type
func (c ColumnDetections) Count() map[string]int {
	counts := make(map[string]int)
	for _, rows := range c {
		for _, row := range rows {
			for _, d := range row.Detections {
				counts[d.EntityType]++
			}
		}
	}
	return counts
}

// EquivalenceGroup ties a set of target entity categories to the native labels
// recognizers use for them.
type EquivalenceGroup struct {
	Targets []string `json:"targets" yaml:"targets" mapstructure:"targets"`
	Labels  []string `json:"labels" yaml:"labels" mapstructure:"labels"`
}
