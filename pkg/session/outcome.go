package session

import (
	"time"
)

// Kind classifies a record by the downstream capability it targets
type Kind string

const (
	KindUnknown      Kind = ""
	KindChat         Kind = "chat"
	KindEmbedding    Kind = "embedding"
	KindIgnorable    Kind = "ignorable"
	KindUnclassified Kind = "unclassified"
)

// Status is the result of attempting one record
type Status string

const (
	StatusReplayed     Status = "replayed"
	StatusSkipped      Status = "skipped"
	StatusUnclassified Status = "unclassified"
	StatusFailed       Status = "failed"
	StatusNotAttempted Status = "not_attempted"
	StatusPlanned      Status = "planned"
)

// Outcome describes what happened to a single record during a run
type Outcome struct {
	Index         int       `json:"index" yaml:"index"`
	RecordID      string    `json:"record_id" yaml:"record_id"`
	HierarchyPath string    `json:"hierarchy_path" yaml:"hierarchy_path"`
	RequestPath   string    `json:"request_path" yaml:"request_path"`
	Depth         int       `json:"depth" yaml:"depth"`
	Kind          Kind      `json:"kind,omitempty" yaml:"kind,omitempty"`
	Status        Status    `json:"status" yaml:"status"`
	Model         string    `json:"model,omitempty" yaml:"model,omitempty"`
	Mutated       bool      `json:"mutated,omitempty" yaml:"mutated,omitempty"`
	StatusCode    int       `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	ResponseBytes int64     `json:"response_bytes,omitempty" yaml:"response_bytes,omitempty"`
	Usage         Usage     `json:"usage" yaml:"usage"`
	SourceUsage   Usage     `json:"source_usage" yaml:"source_usage"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	DurationMs    int64     `json:"duration_ms" yaml:"duration_ms"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the outcome is a contained per-record failure.
func (o *Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Report aggregates the outcomes of one replay run
type Report struct {
	Context         Context   `json:"context" yaml:"context"`
	SourceSessionID string    `json:"source_session_id" yaml:"source_session_id"`
	Mode            string    `json:"mode" yaml:"mode"`
	DryRun          bool      `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Records         int       `json:"records" yaml:"records"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
	Outcomes        []Outcome `json:"outcomes" yaml:"outcomes"`
}

// Summary holds per-status counters of a report
type Summary struct {
	Replayed     int `json:"replayed" yaml:"replayed"`
	Skipped      int `json:"skipped" yaml:"skipped"`
	Unclassified int `json:"unclassified" yaml:"unclassified"`
	Failed       int `json:"failed" yaml:"failed"`
	NotAttempted int `json:"not_attempted" yaml:"not_attempted"`
	Planned      int `json:"planned,omitempty" yaml:"planned,omitempty"`
}

// Summary counts outcomes by status.
func (r *Report) Summary() Summary {
	var s Summary
	for i := range r.Outcomes {
		switch r.Outcomes[i].Status {
		case StatusReplayed:
			s.Replayed++
		case StatusSkipped:
			s.Skipped++
		case StatusUnclassified:
			s.Unclassified++
		case StatusFailed:
			s.Failed++
		case StatusNotAttempted:
			s.NotAttempted++
		case StatusPlanned:
			s.Planned++
		}
	}
	return s
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
