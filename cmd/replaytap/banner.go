package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/mattn/go-runewidth"
)

func printStartupBanner(w io.Writer, cfg *config.Config, log logger.Logger) {
	titleLine := fmt.Sprintf("ReplayTap v%s", version)
	subtitleLine := "Helicone Session Replay"

	var lines []string
	lines = append(lines, fmt.Sprintf("🎬 Source Session:  %s", cfg.Session.SourceID))
	lines = append(lines, fmt.Sprintf("📝 Replay Name:     %s", cfg.Session.Name))
	lines = append(lines, fmt.Sprintf("🌳 Order:           %s (duplicates: %s)", cfg.Replay.Mode, cfg.Replay.DuplicateAnchor))
	lines = append(lines, fmt.Sprintf("🧯 On Failure:      %s", cfg.Replay.OnFailure))
	if cfg.Replay.DryRun {
		lines = append(lines, "🧪 Dry Run:         Enabled (no downstream calls)")
	}

	lines = append(lines, "")
	if cfg.Mutation.Enable {
		lines = append(lines, "🔧 Mutation:        Enabled")
		lines = append(lines, fmt.Sprintf("   └─ Suffix:       %q", cfg.Mutation.SystemSuffix))
	} else {
		lines = append(lines, "🔧 Mutation:        Disabled")
	}
	if cfg.Downstream.URLStrategy.Mode == "rewrite" {
		lines = append(lines, fmt.Sprintf("🔀 URL Rewrite:     %d Rule(s)", len(cfg.Downstream.URLStrategy.Rules)))
		for _, rule := range cfg.Downstream.URLStrategy.Rules {
			lines = append(lines, fmt.Sprintf("   └─ %s -> %s", rule.Match, rule.Replace))
		}
	} else {
		lines = append(lines, "🔀 URL Rewrite:     None")
	}

	lines = append(lines, "")
	if cfg.Storage.Enable {
		lines = append(lines, fmt.Sprintf("💾 Journal:         %s (keep %d runs)", cfg.Storage.Path, cfg.Storage.MaxRuns))
	} else {
		lines = append(lines, "💾 Journal:         Disabled")
	}
	if cfg.Telemetry.Enable {
		lines = append(lines, fmt.Sprintf("📡 Tracing:         %s", cfg.Telemetry.Endpoint))
	}
	lines = append(lines, fmt.Sprintf("📊 Log Level:       %s", cfg.Log.Level))
	lines = append(lines, "", "(Press Ctrl+C to stop)")

	maxLength := runewidth.StringWidth(titleLine)
	for _, line := range append(lines, subtitleLine) {
		if l := runewidth.StringWidth(line); l > maxLength {
			maxLength = l
		}
	}
	// 2 characters margin on left and right
	boxWidth := maxLength + 4
	if boxWidth < 50 {
		boxWidth = 50
	}

	fmt.Fprintln(w)
	printBoxLine(w, "┌", "┐", boxWidth)
	printBoxContent(w, titleLine, boxWidth, true)
	printBoxContent(w, subtitleLine, boxWidth, true)
	printBoxLine(w, "├", "┤", boxWidth)
	for _, line := range lines {
		printBoxContent(w, line, boxWidth, false)
	}
	printBoxLine(w, "└", "┘", boxWidth)
	fmt.Fprintln(w)

	log.Info("ReplayTap starting",
		"version", version,
		"source_session", cfg.Session.SourceID,
		"mode", cfg.Replay.Mode,
		"on_failure", cfg.Replay.OnFailure,
		"dry_run", cfg.Replay.DryRun,
		"mutation", cfg.Mutation.Enable,
		"url_strategy", cfg.Downstream.URLStrategy.Mode,
		"journal", cfg.Storage.Enable,
		"config_file", cfg.File,
	)
}

func printBoxLine(w io.Writer, left, right string, width int) {
	fmt.Fprintf(w, "%s%s%s\n", left, strings.Repeat("─", width-2), right)
}

// printBoxContent pads content to the inner box width by display width.
func printBoxContent(w io.Writer, content string, boxWidth int, center bool) {
	padding := boxWidth - 2 - runewidth.StringWidth(content)
	if padding < 0 {
		padding = 0
	}

	var leftPad, rightPad string
	if center {
		leftPad = strings.Repeat(" ", padding/2)
		rightPad = strings.Repeat(" ", padding-padding/2)
	} else {
		leftPad = "  "
		rightPad = strings.Repeat(" ", max(padding-2, 0))
	}

	fmt.Fprintf(w, "│%s%s%s│\n", leftPad, content, rightPad)
}
