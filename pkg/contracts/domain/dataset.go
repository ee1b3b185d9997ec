package domain

import (
	"time"
)

// DatasetSource tells which path produced a dataset
type DatasetSource string

const (
	SourceSimulated DatasetSource = "simulated"
	SourceUploaded  DatasetSource = "uploaded"
)

// Dataset is the working table for one session. A dataset is created
// fresh per simulation run or upload and replaced wholesale by the next
// one; records from different sources are never merged.
type Dataset struct {
	ID        string          `json:"id"`
	Source    DatasetSource   `json:"source"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Records   []PatientRecord `json:"records"`

	// DroppedRows counts uploaded rows discarded during decoding
	// (for example rows without a parseable diagnosis date).
	DroppedRows int `json:"dropped_rows,omitempty"`
}

// Len returns the number of records in the dataset.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}
