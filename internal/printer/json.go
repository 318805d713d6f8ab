package printer

import (
	"encoding/json"
	"io"
	"os"

	"github.com/funnyzak/replaytap/internal/journal"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/plan"
	"github.com/funnyzak/replaytap/pkg/session"
)

// JSONPrinter writes one JSON document per line
type JSONPrinter struct {
	encoder *json.Encoder
	logger  logger.Logger
	out     io.Writer
}

// NewJSONPrinter creates a JSON lines printer
func NewJSONPrinter(log logger.Logger) *JSONPrinter {
	p := &JSONPrinter{logger: log}
	p.SetOutput(os.Stdout)
	return p
}

// SetOutput replaces the output target, mainly for tests
func (p *JSONPrinter) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	p.out = w
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	p.encoder = encoder
}

type jsonEnvelope struct {
	Type    string           `json:"type"`
	Run     *session.Report  `json:"run,omitempty"`
	Outcome *session.Outcome `json:"outcome,omitempty"`
	Summary *session.Summary `json:"summary,omitempty"`
	Nodes   []jsonPlanNode   `json:"nodes,omitempty"`
	Runs    []*journal.Run   `json:"runs,omitempty"`
}

type jsonPlanNode struct {
	Seq           int          `json:"seq"`
	Depth         int          `json:"depth"`
	Parent        *int         `json:"parent,omitempty"`
	RecordID      string       `json:"record_id"`
	HierarchyPath string       `json:"hierarchy_path"`
	RequestPath   string       `json:"request_path"`
	CreatedAt     string       `json:"created_at"`
	Kind          session.Kind `json:"kind,omitempty"`
}

func (p *JSONPrinter) emit(env jsonEnvelope) error {
	if err := p.encoder.Encode(env); err != nil {
		if p.logger != nil {
			p.logger.Error("Failed to encode output JSON", "type", env.Type, "error", err)
		}
		return err
	}
	return nil
}

// PrintStart implements Printer
func (p *JSONPrinter) PrintStart(report *session.Report) error {
	header := *report
	header.Outcomes = nil
	return p.emit(jsonEnvelope{Type: "start", Run: &header})
}

// PrintOutcome implements Printer
func (p *JSONPrinter) PrintOutcome(o session.Outcome) error {
	return p.emit(jsonEnvelope{Type: "outcome", Outcome: &o})
}

// PrintSummary implements Printer
func (p *JSONPrinter) PrintSummary(report *session.Report) error {
	header := *report
	header.Outcomes = nil
	s := report.Summary()
	return p.emit(jsonEnvelope{Type: "summary", Run: &header, Summary: &s})
}

// PrintPlan implements Printer
func (p *JSONPrinter) PrintPlan(forest plan.Forest, kinds map[int]session.Kind) error {
	nodes := forest.Flatten()
	out := make([]jsonPlanNode, 0, len(nodes))
	for _, n := range nodes {
		item := jsonPlanNode{
			Seq:           n.Seq,
			Depth:         n.Depth,
			RecordID:      n.Record.ID,
			HierarchyPath: n.Record.HierarchyPath,
			RequestPath:   n.Record.RequestPath,
			CreatedAt:     n.Record.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			Kind:          kinds[n.Seq],
		}
		if n.Parent != nil {
			parent := n.Parent.Seq
			item.Parent = &parent
		}
		out = append(out, item)
	}
	return p.emit(jsonEnvelope{Type: "plan", Nodes: out})
}

// PrintRuns implements Printer
func (p *JSONPrinter) PrintRuns(runs []*journal.Run) error {
	return p.emit(jsonEnvelope{Type: "runs", Runs: runs})
}
