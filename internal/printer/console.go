package printer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/funnyzak/replaytap/internal/journal"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/plan"
	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// ColorScheme color scheme
type ColorScheme struct {
	Replayed     *color.Color
	Skipped      *color.Color
	Unclassified *color.Color
	Failed       *color.Color
	NotAttempted *color.Color
	Planned      *color.Color
	Path         *color.Color
	Kind         *color.Color
	Separator    *color.Color
	Timestamp    *color.Color
	Detail       *color.Color
}

// NewColorScheme creates a new color scheme
func NewColorScheme() *ColorScheme {
	return &ColorScheme{
		Replayed:     color.New(color.FgGreen, color.Bold),
		Skipped:      color.New(color.FgBlue),
		Unclassified: color.New(color.FgMagenta, color.Bold),
		Failed:       color.New(color.FgRed, color.Bold),
		NotAttempted: color.New(color.FgHiBlack),
		Planned:      color.New(color.FgCyan),
		Path:         color.New(color.FgWhite, color.Bold),
		Kind:         color.New(color.FgCyan),
		Separator:    color.New(color.FgYellow, color.Bold),
		Timestamp:    color.New(color.FgHiBlack),
		Detail:       color.New(color.FgHiBlack),
	}
}

// ConsolePrinter console printer
type ConsolePrinter struct {
	colorScheme *ColorScheme
	logger      logger.Logger
	out         io.Writer
	silence     bool
	total       int
}

// NewConsolePrinter creates a new console printer
func NewConsolePrinter(log logger.Logger) *ConsolePrinter {
	return &ConsolePrinter{
		colorScheme: NewColorScheme(),
		logger:      log,
		out:         os.Stdout,
	}
}

// SetOutput replaces the output target, mainly for tests
func (p *ConsolePrinter) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	p.out = w
}

// getTerminalWidth gets the current terminal width with fallback
func (p *ConsolePrinter) getTerminalWidth() int {
	width := 0
	if testWidth := os.Getenv("REPLAYTAP_TEST_WIDTH"); testWidth != "" {
		if w, err := strconv.Atoi(testWidth); err == nil {
			width = w
		}
	}
	if width == 0 {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			w = 100
		}
		width = w
	}

	if width < 60 {
		return 60
	}
	if width > 160 {
		return 160
	}
	return width
}

func (p *ConsolePrinter) separator() string {
	return strings.Repeat("-", p.getTerminalWidth())
}

// PrintStart prints the run header
func (p *ConsolePrinter) PrintStart(report *session.Report) error {
	p.total = report.Records
	sep := p.separator()
	p.colorScheme.Separator.Fprintln(p.out, sep)
	p.colorScheme.Separator.Fprintf(p.out, "Replay %s  %s\n", report.Context.SessionID, report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(p.out, "Source: %s | Name: %s | Mode: %s | Records: %s",
		report.SourceSessionID,
		report.Context.Name,
		report.Mode,
		humanize.Comma(int64(report.Records)),
	)
	if report.DryRun {
		p.colorScheme.Planned.Fprint(p.out, " | DRY RUN")
	}
	fmt.Fprintln(p.out)
	p.colorScheme.Separator.Fprintln(p.out, sep)
	return nil
}

// PrintOutcome prints one record line
func (p *ConsolePrinter) PrintOutcome(o session.Outcome) error {
	if p.silence {
		return nil
	}
	width := p.getTerminalWidth()

	counter := fmt.Sprintf("[%*d/%d]", len(strconv.Itoa(p.total)), o.Index+1, p.total)
	status := fmt.Sprintf("%-13s", string(o.Status))
	detail := p.outcomeDetail(o)

	// path column takes whatever the fixed columns leave
	pathWidth := width - runewidth.StringWidth(counter) - 13 - runewidth.StringWidth(detail) - 4
	if pathWidth < 16 {
		pathWidth = 16
	}
	label := strings.Repeat("  ", o.Depth) + o.HierarchyPath
	label = runewidth.FillRight(runewidth.Truncate(label, pathWidth, "…"), pathWidth)

	p.colorScheme.Timestamp.Fprint(p.out, counter)
	fmt.Fprint(p.out, " ")
	p.statusColor(o.Status).Fprint(p.out, status)
	fmt.Fprint(p.out, " ")
	p.colorScheme.Path.Fprint(p.out, label)
	fmt.Fprint(p.out, " ")
	p.colorScheme.Detail.Fprintln(p.out, detail)

	if o.Error != "" {
		p.statusColor(o.Status).Fprintf(p.out, "    %s\n", o.Error)
	}
	return nil
}

func (p *ConsolePrinter) outcomeDetail(o session.Outcome) string {
	var parts []string
	if o.Kind != session.KindUnknown {
		parts = append(parts, string(o.Kind))
	}
	if o.Model != "" {
		parts = append(parts, o.Model)
	}
	if o.Mutated {
		parts = append(parts, "mutated")
	}
	if o.StatusCode != 0 {
		parts = append(parts, strconv.Itoa(o.StatusCode))
	}
	if o.DurationMs > 0 {
		parts = append(parts, (time.Duration(o.DurationMs) * time.Millisecond).String())
	}
	if o.ResponseBytes > 0 {
		parts = append(parts, humanize.Bytes(uint64(o.ResponseBytes)))
	}
	if o.Usage.TotalTokens > 0 {
		parts = append(parts, humanize.Comma(o.Usage.TotalTokens)+" tok")
	}
	return strings.Join(parts, " ")
}

// PrintSummary prints run counters
func (p *ConsolePrinter) PrintSummary(report *session.Report) error {
	s := report.Summary()
	var tokens int64
	var sourceCost float64
	for i := range report.Outcomes {
		tokens += report.Outcomes[i].Usage.TotalTokens
		sourceCost += report.Outcomes[i].SourceUsage.Cost
	}

	p.colorScheme.Separator.Fprintln(p.out, p.separator())
	p.colorScheme.Replayed.Fprintf(p.out, "replayed %s", humanize.Comma(int64(s.Replayed)))
	fmt.Fprint(p.out, "  ")
	p.colorScheme.Skipped.Fprintf(p.out, "skipped %s", humanize.Comma(int64(s.Skipped)))
	fmt.Fprint(p.out, "  ")
	p.colorScheme.Unclassified.Fprintf(p.out, "unclassified %s", humanize.Comma(int64(s.Unclassified)))
	fmt.Fprint(p.out, "  ")
	p.colorScheme.Failed.Fprintf(p.out, "failed %s", humanize.Comma(int64(s.Failed)))
	fmt.Fprint(p.out, "  ")
	p.colorScheme.NotAttempted.Fprintf(p.out, "not attempted %s", humanize.Comma(int64(s.NotAttempted)))
	if s.Planned > 0 {
		fmt.Fprint(p.out, "  ")
		p.colorScheme.Planned.Fprintf(p.out, "planned %s", humanize.Comma(int64(s.Planned)))
	}
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "Session %s (%s) finished in %s, %s tokens\n",
		report.Context.SessionID,
		report.Context.Name,
		report.Duration().Round(time.Millisecond),
		humanize.Comma(tokens),
	)
	if sourceCost > 0 {
		fmt.Fprintf(p.out, "Source session cost $%s\n", humanize.FormatFloat("#,###.####", sourceCost))
	}
	return nil
}

// PrintPlan renders the forest as an indented tree
func (p *ConsolePrinter) PrintPlan(forest plan.Forest, kinds map[int]session.Kind) error {
	type frame struct {
		node   *plan.Node
		prefix string
		last   bool
		root   bool
	}

	width := p.getTerminalWidth()
	stack := make([]frame, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: forest[i], last: i == len(forest)-1, root: true})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		branch, childPrefix := "", ""
		if !f.root {
			branch = "├── "
			childPrefix = f.prefix + "│   "
			if f.last {
				branch = "└── "
				childPrefix = f.prefix + "    "
			}
		}

		rec := f.node.Record
		line := f.prefix + branch + rec.HierarchyPath
		meta := rec.CreatedAt.Format("15:04:05.000") + " " + rec.Label()
		kind := ""
		if k, ok := kinds[f.node.Seq]; ok && k != session.KindUnknown {
			kind = string(k)
		}

		room := width - runewidth.StringWidth(meta) - 16
		if room < 20 {
			room = 20
		}
		p.colorScheme.Path.Fprint(p.out, runewidth.FillRight(runewidth.Truncate(line, room, "…"), room))
		fmt.Fprint(p.out, " ")
		p.colorScheme.Kind.Fprint(p.out, runewidth.FillRight(kind, 13))
		fmt.Fprint(p.out, " ")
		p.colorScheme.Timestamp.Fprintln(p.out, meta)

		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				node:   f.node.Children[i],
				prefix: childPrefix,
				last:   i == len(f.node.Children)-1,
			})
		}
	}
	fmt.Fprintf(p.out, "%s records, %s roots\n", humanize.Comma(int64(forest.Len())), humanize.Comma(int64(len(forest))))
	return nil
}

// PrintRuns lists journal runs
func (p *ConsolePrinter) PrintRuns(runs []*journal.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(p.out, "No replay runs recorded.")
		return nil
	}
	for _, run := range runs {
		statusColor := p.colorScheme.Replayed
		switch run.Status {
		case journal.RunStatusAborted:
			statusColor = p.colorScheme.Failed
		case journal.RunStatusRunning:
			statusColor = p.colorScheme.Planned
		}
		statusColor.Fprintf(p.out, "%-9s", run.Status)
		fmt.Fprintf(p.out, " %s  ", run.ID)
		p.colorScheme.Timestamp.Fprintf(p.out, "%s", humanize.Time(run.StartedAt))
		fmt.Fprintf(p.out, "  source=%s mode=%s records=%d replayed=%d failed=%d",
			run.SourceSessionID, run.Mode, run.Records, run.Summary.Replayed, run.Summary.Failed)
		if run.DryRun {
			fmt.Fprint(p.out, " dry-run")
		}
		fmt.Fprintln(p.out)
		if run.Error != "" {
			p.colorScheme.Failed.Fprintf(p.out, "          %s\n", run.Error)
		}
	}
	return nil
}

func (p *ConsolePrinter) statusColor(s session.Status) *color.Color {
	switch s {
	case session.StatusReplayed:
		return p.colorScheme.Replayed
	case session.StatusSkipped:
		return p.colorScheme.Skipped
	case session.StatusUnclassified:
		return p.colorScheme.Unclassified
	case session.StatusFailed:
		return p.colorScheme.Failed
	case session.StatusPlanned:
		return p.colorScheme.Planned
	default:
		return p.colorScheme.NotAttempted
	}
}
