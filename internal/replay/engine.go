package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/dispatch"
	"github.com/funnyzak/replaytap/internal/journal"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/plan"
	"github.com/funnyzak/replaytap/internal/printer"
	"github.com/funnyzak/replaytap/internal/telemetry"
	"github.com/funnyzak/replaytap/pkg/session"
	"go.opentelemetry.io/otel/trace"
)

// State is the engine lifecycle stage
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateStructuring State = "structuring"
	StateReplaying   State = "replaying"
	StateDone        State = "done"
)

// SessionFetcher retrieves the records of a logged session
type SessionFetcher interface {
	FetchSession(ctx context.Context, sessionID string) ([]session.Record, error)
}

// BodyLoader retrieves the request body of one record
type BodyLoader interface {
	Load(ctx context.Context, rec session.Record) (session.Body, error)
}

// BodyMutator rewrites chat bodies before they are sent
type BodyMutator interface {
	Enabled() bool
	Apply(b session.Body) (session.Body, bool, error)
}

// Classifier decides which downstream capability a record targets
type Classifier interface {
	Classify(requestPath string, b session.Body) session.Kind
}

// Dispatcher sends one replayed call downstream
type Dispatcher interface {
	Dispatch(ctx context.Context, call dispatch.Call) (dispatch.Result, error)
}

// Options controls a single replay run
type Options struct {
	SourceSessionID string
	Name            string
	Plan            plan.Options
	OnFailure       string
	CallTimeout     time.Duration
	RunTimeout      time.Duration
	DryRun          bool
}

// OptionsFromConfig maps the loaded configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SourceSessionID: cfg.Session.SourceID,
		Name:            cfg.Session.Name,
		Plan: plan.Options{
			Mode:            cfg.Replay.Mode,
			DuplicateAnchor: cfg.Replay.DuplicateAnchor,
			SortSiblings:    cfg.Replay.SortSiblings,
		},
		OnFailure:   cfg.Replay.OnFailure,
		CallTimeout: cfg.Replay.CallTimeout,
		RunTimeout:  cfg.Replay.RunTimeout,
		DryRun:      cfg.Replay.DryRun,
	}
}

// Dependencies are the collaborators of an Engine. Journal, Printer and
// Tracer are optional.
type Dependencies struct {
	Fetcher    SessionFetcher
	Loader     BodyLoader
	Mutator    BodyMutator
	Classifier Classifier
	Dispatcher Dispatcher
	Printer    printer.Printer
	Journal    journal.Journal
	Tracer     trace.Tracer
}

// Engine replays one recorded session against the downstream API.
//
// Records are replayed strictly one at a time in plan order: the next
// record starts only after the previous downstream call has completed.
// An Engine performs a single run.
type Engine struct {
	opts   Options
	deps   Dependencies
	logger logger.Logger
	tracer trace.Tracer
	state  State
}

// New creates a replay engine
func New(log logger.Logger, opts Options, deps Dependencies) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	if opts.OnFailure == "" {
		opts.OnFailure = config.OnFailureContinue
	}
	if opts.Plan.Mode == "" {
		opts.Plan.Mode = plan.ModeTree
	}
	return &Engine{
		opts:   opts,
		deps:   deps,
		logger: log,
		tracer: tracer,
		state:  StateIdle,
	}
}

// State returns the current lifecycle stage.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) setState(s State, fields ...interface{}) {
	e.state = s
	e.logger.Debug("Replay state changed", append([]interface{}{"state", string(s)}, fields...)...)
}

// Run fetches, structures and replays the configured session.
//
// The returned report is never nil once the source session id is present,
// even when err is non-nil. A non-nil error is fatal: a missing or invalid
// configuration, a failed session query or an interrupted run. Per-record
// failures are recorded in the report and do not produce an error.
func (e *Engine) Run(ctx context.Context) (report *session.Report, err error) {
	if e.opts.SourceSessionID == "" {
		return nil, &config.ConfigError{Field: "session.source_id", Reason: "is required"}
	}
	if e.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunTimeout)
		defer cancel()
	}

	report = &session.Report{
		Context:         session.NewContext(e.opts.Name),
		SourceSessionID: e.opts.SourceSessionID,
		Mode:            e.opts.Plan.Mode,
		DryRun:          e.opts.DryRun,
		StartedAt:       time.Now(),
	}
	e.logger = e.logger.With("replay_session", report.Context.SessionID)

	ctx, span := e.tracer.Start(ctx, telemetry.SpanRun, trace.WithAttributes(telemetry.RunAttributes(report)...))
	e.beginJournal(ctx, report)
	defer func() {
		report.FinishedAt = time.Now()
		e.finishJournal(ctx, report, err)
		telemetry.EndRun(span, report, err)
		e.setState(StateDone, "elapsed", report.Duration())
	}()

	e.setState(StateFetching, "source_session", e.opts.SourceSessionID)
	records, err := e.deps.Fetcher.FetchSession(ctx, e.opts.SourceSessionID)
	if err != nil {
		return report, err
	}

	e.setState(StateStructuring, "records", len(records), "mode", e.opts.Plan.Mode)
	forest, err := plan.Build(records, e.opts.Plan)
	if err != nil {
		return report, &config.ConfigError{Field: "replay", Reason: err.Error()}
	}
	report.Records = forest.Len()
	e.logger.Info("Session structured",
		"records", report.Records,
		"roots", len(forest),
		"mode", e.opts.Plan.Mode,
	)
	e.printStart(report)

	outcomes := make([]session.Outcome, report.Records)
	done := make([]bool, report.Records)
	settle := func(o session.Outcome) {
		outcomes[o.Index] = o
		done[o.Index] = true
		e.recordOutcome(ctx, report, o)
	}

	e.setState(StateReplaying)
	walkErr := plan.Walk(ctx, forest, func(n *plan.Node) plan.Action {
		o := e.replayNode(ctx, report.Context, n)
		settle(o)
		if o.Failed() && e.opts.OnFailure == config.OnFailureSkipSubtree && len(n.Children) > 0 {
			for _, d := range n.Subtree()[1:] {
				settle(notAttempted(d, "ancestor "+n.Record.Label()+" failed"))
			}
			return plan.SkipChildren
		}
		return plan.Continue
	})

	if walkErr != nil {
		for _, n := range forest.Flatten() {
			if !done[n.Seq] {
				settle(notAttempted(n, "run interrupted"))
			}
		}
		err = fmt.Errorf("replay interrupted: %w", walkErr)
	}
	report.Outcomes = outcomes
	report.FinishedAt = time.Now()

	s := report.Summary()
	e.logger.Info("Replay finished",
		"replayed", s.Replayed,
		"skipped", s.Skipped,
		"unclassified", s.Unclassified,
		"failed", s.Failed,
		"not_attempted", s.NotAttempted,
		"elapsed", report.Duration(),
	)
	e.printSummary(report)
	return report, err
}

// replayNode runs the load, classify, mutate and dispatch sequence of one
// record. Every error is contained in the returned outcome.
func (e *Engine) replayNode(ctx context.Context, sc session.Context, n *plan.Node) (o session.Outcome) {
	rec := n.Record
	o = outcomeFor(n)
	o.StartedAt = time.Now()
	log := e.logger.With("seq", n.Seq, "record", rec.Label(), "path", rec.HierarchyPath)

	ctx, span := e.tracer.Start(ctx, telemetry.SpanRecord)
	defer func() {
		o.DurationMs = time.Since(o.StartedAt).Milliseconds()
		telemetry.EndRecord(span, o)
	}()

	if e.opts.DryRun {
		o.Status = session.StatusPlanned
		return o
	}

	fail := func(err error) session.Outcome {
		o.Status = session.StatusFailed
		o.Error = err.Error()
		log.Warn("Record failed", "kind", string(o.Kind), "error", err)
		return o
	}

	loadCtx, cancel := e.callContext(ctx)
	b, err := e.deps.Loader.Load(loadCtx, rec)
	cancel()
	if err != nil {
		return fail(err)
	}

	o.Kind = e.deps.Classifier.Classify(rec.RequestPath, b)
	o.Model = b.Model()
	switch o.Kind {
	case session.KindIgnorable:
		o.Status = session.StatusSkipped
		log.Debug("Record skipped", "type", b.Type())
		return o
	case session.KindChat, session.KindEmbedding:
	default:
		uerr := &dispatch.UnclassifiedRequestError{RecordID: rec.Label(), RequestPath: rec.RequestPath, BodyType: b.Type()}
		o.Status = session.StatusUnclassified
		o.Error = uerr.Error()
		log.Warn("Record unclassified", "request_path", rec.RequestPath)
		return o
	}

	if o.Kind == session.KindChat && e.deps.Mutator != nil && e.deps.Mutator.Enabled() {
		mutated, changed, err := e.deps.Mutator.Apply(b)
		if err != nil {
			return fail(fmt.Errorf("mutate body of %s: %w", rec.Label(), err))
		}
		b, o.Mutated = mutated, changed
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	res, err := e.deps.Dispatcher.Dispatch(callCtx, dispatch.Call{Record: rec, Kind: o.Kind, Body: b, Context: sc})
	o.StatusCode = res.StatusCode
	o.ResponseBytes = res.ResponseBytes
	o.Usage = res.Usage
	if err != nil {
		return fail(err)
	}

	o.Status = session.StatusReplayed
	log.Info("Record replayed",
		"kind", string(o.Kind),
		"model", o.Model,
		"status", o.StatusCode,
		"elapsed", time.Since(o.StartedAt),
	)
	return o
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func outcomeFor(n *plan.Node) session.Outcome {
	return session.Outcome{
		Index:         n.Seq,
		RecordID:      n.Record.ID,
		HierarchyPath: n.Record.HierarchyPath,
		RequestPath:   n.Record.RequestPath,
		Depth:         n.Depth,
		SourceUsage:   n.Record.Usage,
	}
}

func notAttempted(n *plan.Node, reason string) session.Outcome {
	o := outcomeFor(n)
	o.Status = session.StatusNotAttempted
	o.Error = reason
	return o
}

func (e *Engine) printStart(report *session.Report) {
	if e.deps.Printer == nil {
		return
	}
	if err := e.deps.Printer.PrintStart(report); err != nil {
		e.logger.Warn("Failed to print run header", "error", err)
	}
}

func (e *Engine) printSummary(report *session.Report) {
	if e.deps.Printer == nil {
		return
	}
	if err := e.deps.Printer.PrintSummary(report); err != nil {
		e.logger.Warn("Failed to print summary", "error", err)
	}
}

// Journal writes must survive run cancellation so that interrupted runs
// are still recorded.
func (e *Engine) beginJournal(ctx context.Context, report *session.Report) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.BeginRun(context.WithoutCancel(ctx), report); err != nil {
		e.logger.Warn("Failed to journal run start", "error", err)
	}
}

func (e *Engine) recordOutcome(ctx context.Context, report *session.Report, o session.Outcome) {
	if e.deps.Printer != nil {
		if err := e.deps.Printer.PrintOutcome(o); err != nil {
			e.logger.Warn("Failed to print outcome", "error", err)
		}
	}
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.RecordOutcome(context.WithoutCancel(ctx), report.Context.SessionID, o); err != nil {
		e.logger.Warn("Failed to journal outcome", "record", o.RecordID, "error", err)
	}
}

func (e *Engine) finishJournal(ctx context.Context, report *session.Report, runErr error) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.FinishRun(context.WithoutCancel(ctx), report, runErr); err != nil {
		e.logger.Warn("Failed to journal run finish", "error", err)
	}
}
