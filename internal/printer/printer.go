package printer

import (
	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/journal"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/plan"
	"github.com/funnyzak/replaytap/pkg/session"
)

// Printer output interface
type Printer interface {
	// PrintStart announces a run before its first record.
	PrintStart(report *session.Report) error
	// PrintOutcome prints one line per attempted record.
	PrintOutcome(outcome session.Outcome) error
	// PrintSummary prints the final counters of a run.
	PrintSummary(report *session.Report) error
	// PrintPlan renders the traversal structure. kinds may be nil or keyed
	// by node sequence number.
	PrintPlan(forest plan.Forest, kinds map[int]session.Kind) error
	// PrintRuns lists journal runs.
	PrintRuns(runs []*journal.Run) error
}

// New creates a Printer for the configured output mode
func New(log logger.Logger, cfg *config.OutputConfig) Printer {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	switch cfg.Mode {
	case "json":
		return NewJSONPrinter(log)
	default:
		p := NewConsolePrinter(log)
		p.silence = cfg.Silence
		return p
	}
}
