package journal

import (
	"context"
	"errors"
	"time"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/pkg/session"
)

// ErrUnsupportedDriver indicates the configured driver is not available.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Run status values
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusAborted  = "aborted"
)

// Run is the persisted summary of one replay run.
type Run struct {
	ID              string          `json:"id" yaml:"id"`
	SourceSessionID string          `json:"source_session_id" yaml:"source_session_id"`
	Name            string          `json:"name" yaml:"name"`
	Mode            string          `json:"mode" yaml:"mode"`
	DryRun          bool            `json:"dry_run" yaml:"dry_run"`
	Records         int             `json:"records" yaml:"records"`
	Status          string          `json:"status" yaml:"status"`
	Error           string          `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time       `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Summary         session.Summary `json:"summary" yaml:"summary"`
}

// Journal records replay runs and their per-record outcomes. It is written
// by the engine and read by the history command; it never drives a replay.
type Journal interface {
	BeginRun(ctx context.Context, report *session.Report) error
	RecordOutcome(ctx context.Context, runID string, outcome session.Outcome) error
	FinishRun(ctx context.Context, report *session.Report, runErr error) error

	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	Outcomes(ctx context.Context, runID string) ([]session.Outcome, error)

	Close() error
}

// New instantiates a Journal based on configuration.
func New(cfg *config.StorageConfig, log logger.Logger) (Journal, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	switch driver := cfg.Driver; driver {
	case "", "sqlite", "sqlite3":
		return newSQLiteJournal(cfg, log)
	default:
		return nil, ErrUnsupportedDriver
	}
}
