package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/pkg/session"
)

func newTestJournal(t *testing.T, maxRuns int) Journal {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.StorageConfig{
		Driver:  "sqlite",
		Path:    filepath.Join(dir, "nested", "replaytap.db"),
		MaxRuns: maxRuns,
	}
	j, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

func fakeReport(id string, started time.Time) *session.Report {
	return &session.Report{
		Context:         session.Context{SessionID: id, Name: "Session Replay"},
		SourceSessionID: "source-1",
		Mode:            "tree",
		Records:         3,
		StartedAt:       started,
	}
}

func TestSQLiteJournal_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, 10)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	report := fakeReport("run-1", started)
	if err := j.BeginRun(ctx, report); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	run, err := j.GetRun(ctx, "run-1")
	if err != nil || run == nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != RunStatusRunning || !run.StartedAt.Equal(started) {
		t.Fatalf("unexpected running run %+v", run)
	}

	outcomes := []session.Outcome{
		{Index: 0, RecordID: "a", HierarchyPath: "/", Kind: session.KindChat, Status: session.StatusReplayed, Mutated: true, StatusCode: 200, Usage: session.Usage{TotalTokens: 12}, SourceUsage: session.Usage{Cost: 0.42, TotalTokens: 99}, StartedAt: started, DurationMs: 40},
		{Index: 1, RecordID: "b", HierarchyPath: "/x", Depth: 1, Kind: session.KindIgnorable, Status: session.StatusSkipped},
		{Index: 2, RecordID: "c", HierarchyPath: "/y", Depth: 1, Status: session.StatusFailed, Error: "fetch body: status 403"},
	}
	// insert out of order, reads come back by sequence
	for _, i := range []int{2, 0, 1} {
		if err := j.RecordOutcome(ctx, "run-1", outcomes[i]); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	report.Outcomes = outcomes
	report.FinishedAt = started.Add(time.Second)
	if err := j.FinishRun(ctx, report, nil); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, _ = j.GetRun(ctx, "run-1")
	if run.Status != RunStatusFinished || run.Summary.Replayed != 1 || run.Summary.Skipped != 1 || run.Summary.Failed != 1 {
		t.Fatalf("unexpected finished run %+v", run)
	}
	if !run.FinishedAt.Equal(started.Add(time.Second)) {
		t.Fatalf("unexpected finish time %v", run.FinishedAt)
	}

	got, err := j.Outcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("Outcomes failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	for i := range got {
		if got[i].RecordID != outcomes[i].RecordID || got[i].Status != outcomes[i].Status {
			t.Fatalf("outcome %d mismatch: %+v", i, got[i])
		}
	}
	if !got[0].Mutated || got[0].Usage.TotalTokens != 12 || !got[0].StartedAt.Equal(started) {
		t.Fatalf("outcome fields not persisted: %+v", got[0])
	}
	if got[0].SourceUsage.Cost != 0.42 || got[0].SourceUsage.TotalTokens != 99 {
		t.Fatalf("source usage not persisted: %+v", got[0].SourceUsage)
	}
	if got[2].Error == "" {
		t.Fatalf("error text not persisted")
	}
}

func TestSQLiteJournal_AbortedRun(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, 10)

	report := fakeReport("run-x", time.Now())
	if err := j.BeginRun(ctx, report); err != nil {
		t.Fatal(err)
	}
	if err := j.FinishRun(ctx, report, errors.New("upstream down")); err != nil {
		t.Fatal(err)
	}
	run, _ := j.GetRun(ctx, "run-x")
	if run.Status != RunStatusAborted || run.Error != "upstream down" {
		t.Fatalf("unexpected aborted run %+v", run)
	}

	if err := j.FinishRun(ctx, fakeReport("missing", time.Now()), nil); err == nil {
		t.Fatal("expected error when finishing unknown run")
	}
}

func TestSQLiteJournal_ListAndPrune(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t, 3)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("run-%d", i)
		if err := j.BeginRun(ctx, fakeReport(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("BeginRun %d failed: %v", i, err)
		}
		if err := j.RecordOutcome(ctx, id, session.Outcome{RecordID: "r", Status: session.StatusReplayed}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := j.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs after pruning, got %d", len(runs))
	}
	if runs[0].ID != "run-4" || runs[2].ID != "run-2" {
		t.Fatalf("unexpected order %s..%s", runs[0].ID, runs[2].ID)
	}

	limited, _ := j.ListRuns(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("limit not applied")
	}

	if run, err := j.GetRun(ctx, "run-0"); err != nil || run != nil {
		t.Fatalf("pruned run still present: %+v %v", run, err)
	}
	if outs, _ := j.Outcomes(ctx, "run-0"); len(outs) != 0 {
		t.Fatalf("outcomes of pruned run still present")
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(&config.StorageConfig{Driver: "postgres", Path: "x"}, nil)
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
