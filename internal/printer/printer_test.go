package printer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/journal"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/plan"
	"github.com/funnyzak/replaytap/pkg/session"
	"gopkg.in/yaml.v3"
)

func init() {
	color.NoColor = true
}

var started = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleReport() *session.Report {
	return &session.Report{
		Context:         session.Context{SessionID: "new-id", Name: "Session Replay"},
		SourceSessionID: "src-id",
		Mode:            "tree",
		Records:         3,
		StartedAt:       started,
		FinishedAt:      started.Add(1500 * time.Millisecond),
		Outcomes: []session.Outcome{
			{Index: 0, RecordID: "a", HierarchyPath: "/", Kind: session.KindChat, Status: session.StatusReplayed, Model: "gpt-4o", Mutated: true, StatusCode: 200, DurationMs: 1200, Usage: session.Usage{TotalTokens: 1234}, SourceUsage: session.Usage{Cost: 0.25, TotalTokens: 1100}},
			{Index: 1, RecordID: "b", HierarchyPath: "/vec", Depth: 1, Kind: session.KindIgnorable, Status: session.StatusSkipped},
			{Index: 2, RecordID: "c", HierarchyPath: "/emb", Depth: 1, Status: session.StatusFailed, Error: "fetch body of c: status 403"},
		},
	}
}

func newTestConsole(t *testing.T) (*ConsolePrinter, *bytes.Buffer) {
	t.Helper()
	t.Setenv("REPLAYTAP_TEST_WIDTH", "100")
	p := NewConsolePrinter(logger.Nop())
	buf := &bytes.Buffer{}
	p.SetOutput(buf)
	return p, buf
}

func TestConsolePrinter_RunOutput(t *testing.T) {
	p, buf := newTestConsole(t)
	report := sampleReport()

	if err := p.PrintStart(report); err != nil {
		t.Fatal(err)
	}
	for _, o := range report.Outcomes {
		if err := p.PrintOutcome(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.PrintSummary(report); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"Replay new-id",
		"Source: src-id",
		"[1/3] replayed",
		"gpt-4o mutated 200 1.2s",
		"1,234 tok",
		"[2/3] skipped",
		"[3/3] failed",
		"fetch body of c: status 403",
		"replayed 1  skipped 1  unclassified 0  failed 1  not attempted 0",
		"finished in 1.5s",
		"Source session cost $0.2500",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestConsolePrinter_Silence(t *testing.T) {
	t.Setenv("REPLAYTAP_TEST_WIDTH", "100")
	p := New(logger.Nop(), &config.OutputConfig{Mode: "console", Silence: true}).(*ConsolePrinter)
	buf := &bytes.Buffer{}
	p.SetOutput(buf)

	_ = p.PrintOutcome(sampleReport().Outcomes[0])
	if buf.Len() != 0 {
		t.Fatalf("silenced printer wrote %q", buf.String())
	}
	_ = p.PrintSummary(sampleReport())
	if !strings.Contains(buf.String(), "replayed 1") {
		t.Fatalf("summary must still be printed")
	}
}

func TestConsolePrinter_PrintPlan(t *testing.T) {
	p, buf := newTestConsole(t)
	records := []session.Record{
		{ID: "root", HierarchyPath: "/", CreatedAt: started},
		{ID: "a", HierarchyPath: "/a", CreatedAt: started.Add(time.Second)},
		{ID: "a1", HierarchyPath: "/a/1", CreatedAt: started.Add(2 * time.Second)},
		{ID: "b", HierarchyPath: "/b", CreatedAt: started.Add(3 * time.Second)},
		{ID: "orphan", HierarchyPath: "/x/y", CreatedAt: started.Add(4 * time.Second)},
	}
	forest := plan.BuildTree(records, false, false)
	if err := p.PrintPlan(forest, map[int]session.Kind{0: session.KindChat}); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "├── /a") || !strings.HasPrefix(lines[2], "│   └── /a/1") || !strings.HasPrefix(lines[3], "└── /b") {
		t.Fatalf("unexpected tree layout:\n%s", out)
	}
	if !strings.HasPrefix(lines[4], "/x/y") {
		t.Fatalf("orphan should print as a root:\n%s", out)
	}
	if !strings.Contains(lines[0], "chat") {
		t.Fatalf("kind column missing:\n%s", out)
	}
	if !strings.Contains(lines[5], "5 records, 2 roots") {
		t.Fatalf("unexpected footer %q", lines[5])
	}
}

func TestConsolePrinter_PrintRuns(t *testing.T) {
	p, buf := newTestConsole(t)
	if err := p.PrintRuns(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No replay runs") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}

	buf.Reset()
	_ = p.PrintRuns([]*journal.Run{
		{ID: "run-1", SourceSessionID: "src", Mode: "tree", Status: journal.RunStatusAborted, Error: "upstream down", StartedAt: time.Now()},
	})
	if !strings.Contains(buf.String(), "aborted") || !strings.Contains(buf.String(), "upstream down") {
		t.Fatalf("unexpected runs output %q", buf.String())
	}
}

func TestJSONPrinter(t *testing.T) {
	p := NewJSONPrinter(logger.Nop())
	buf := &bytes.Buffer{}
	p.SetOutput(buf)

	report := sampleReport()
	_ = p.PrintStart(report)
	_ = p.PrintOutcome(report.Outcomes[0])
	_ = p.PrintSummary(report)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 JSON lines, got %d", len(lines))
	}
	var types []string
	for _, line := range lines {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Fatalf("invalid json %q: %v", line, err)
		}
		types = append(types, decoded["type"].(string))
	}
	if strings.Join(types, ",") != "start,outcome,summary" {
		t.Fatalf("unexpected types %v", types)
	}

	var summary struct {
		Summary session.Summary `json:"summary"`
	}
	_ = json.Unmarshal([]byte(lines[2]), &summary)
	if summary.Summary.Replayed != 1 || summary.Summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary.Summary)
	}
}

func TestJSONPrinter_PrintPlan(t *testing.T) {
	p := NewJSONPrinter(logger.Nop())
	buf := &bytes.Buffer{}
	p.SetOutput(buf)

	forest := plan.BuildTree([]session.Record{
		{ID: "root", HierarchyPath: "/"},
		{ID: "kid", HierarchyPath: "/k"},
	}, false, false)
	_ = p.PrintPlan(forest, nil)

	var env struct {
		Nodes []struct {
			Seq    int  `json:"seq"`
			Parent *int `json:"parent"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if len(env.Nodes) != 2 || env.Nodes[0].Parent != nil || env.Nodes[1].Parent == nil || *env.Nodes[1].Parent != 0 {
		t.Fatalf("unexpected plan nodes %+v", env.Nodes)
	}
}

func TestExportReport(t *testing.T) {
	report := sampleReport()

	data, err := ExportReport(report, "json")
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json export: %v", err)
	}
	if decoded["source_session_id"] != "src-id" || decoded["summary"] == nil {
		t.Fatalf("unexpected json export %s", data)
	}

	data, err = ExportReport(report, "yaml")
	if err != nil {
		t.Fatal(err)
	}
	var ydoc map[string]interface{}
	if err := yaml.Unmarshal(data, &ydoc); err != nil {
		t.Fatalf("invalid yaml export: %v", err)
	}
	if ydoc["mode"] != "tree" {
		t.Fatalf("unexpected yaml export %s", data)
	}

	data, err = ExportReport(report, "csv")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv export: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "index" || rows[3][6] != "failed" {
		t.Fatalf("unexpected csv rows %v", rows)
	}
	if rows[0][14] != "source_cost" || rows[1][14] != "0.25" || rows[1][15] != "1100" {
		t.Fatalf("source usage missing from csv: %v", rows[:2])
	}

	if _, err := ExportReport(report, "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.yml")
	if err := WriteReport(path, sampleReport()); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "source_session_id: src-id") {
		t.Fatalf("unexpected report file:\n%s", data)
	}
}
