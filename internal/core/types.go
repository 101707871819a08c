package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/zetlen/csvstream/internal/validate"
)

// Dataset describes one ingestable data shape.
type Dataset struct {
	// Key is the unique identifier used in URLs and storage: "customers".
	Key string `json:"key"`
	// Label is the display name: "Customers".
	Label string `json:"label"`
	// Columns is the expected header. With NoHeader false a non-empty list
	// means the first CSV row must match it; an empty list captures whatever
	// header the file carries. With NoHeader true a non-empty list is applied
	// as the fixed header and an empty list keys rows by column position.
	Columns []string `json:"columns,omitempty"`
	// NoHeader marks files whose first row is already data.
	NoHeader bool `json:"noHeader,omitempty"`
	// Specs holds per-column validation rules, applied to every data row.
	Specs []validate.FieldSpec `json:"-"`
}

// IngestPhase indicates the current stage of an ingest.
type IngestPhase string

const (
	PhaseStarting  IngestPhase = "starting"
	PhaseParsing   IngestPhase = "parsing"
	PhaseComplete  IngestPhase = "complete"
	PhaseFailed    IngestPhase = "failed"
	PhaseCancelled IngestPhase = "cancelled"
)

// Terminal reports whether the phase is final.
func (p IngestPhase) Terminal() bool {
	switch p {
	case PhaseComplete, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// IngestProgress is a snapshot of a running (or finished) ingest.
type IngestProgress struct {
	ID         uuid.UUID   `json:"id"`
	DatasetKey string      `json:"datasetKey"`
	FileName   string      `json:"fileName,omitempty"`
	Phase      IngestPhase `json:"phase"`
	Headers    []string    `json:"headers,omitempty"`
	Rows       int         `json:"rows"`
	Lines      int         `json:"lines"`
	Invalid    int         `json:"invalid"`
	BytesRead  int64       `json:"bytesRead"`
	BytesTotal int64       `json:"bytesTotal"`
	Error      string      `json:"error,omitempty"`
}

// Percent returns progress as 0-100, 0 when the input size is unknown.
func (p IngestProgress) Percent() int {
	if p.BytesTotal <= 0 {
		return 0
	}
	pct := int(p.BytesRead * 100 / p.BytesTotal)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// IngestResult is the final outcome of an ingest.
type IngestResult struct {
	ID         uuid.UUID     `json:"id"`
	DatasetKey string        `json:"datasetKey"`
	FileName   string        `json:"fileName,omitempty"`
	Rows       int           `json:"rows"`
	Lines      int           `json:"lines"`
	Stored     int           `json:"stored"`
	Invalid    int           `json:"invalid"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// StoredRow is one accepted data row headed for persistent storage.
type StoredRow struct {
	Line   int
	Values map[string]string
}

// FailedRow records a data row rejected by validation, with the raw fields
// preserved for export.
type FailedRow struct {
	Line    int      `json:"line"`
	Reasons []string `json:"reasons"`
	Fields  []string `json:"fields"`
}

// IngestOptions carries per-request parsing knobs.
type IngestOptions struct {
	// Delimiter overrides the field separator; zero means ','.
	Delimiter byte
	// StrictColumns rejects rows with non-blank fields past the header width.
	StrictColumns bool
	// TotalBytes is the declared input size for progress ratios, 0 if unknown.
	TotalBytes int64
}
