package printer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/funnyzak/replaytap/pkg/session"
	"gopkg.in/yaml.v3"
)

// ExportReport serializes a run report into the desired format.
func ExportReport(report *session.Report, format string) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("report is nil")
	}
	switch strings.ToLower(format) {
	case "json":
		return json.MarshalIndent(reportDocument(report), "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(reportDocument(report))
	case "csv":
		return exportCSV(report)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// WriteReport writes report to path, choosing the format from the extension.
func WriteReport(path string, report *session.Report) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	data, err := ExportReport(report, format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prepare report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

type exportDocument struct {
	session.Report `yaml:",inline"`
	Summary        session.Summary `json:"summary" yaml:"summary"`
}

func reportDocument(report *session.Report) exportDocument {
	return exportDocument{Report: *report, Summary: report.Summary()}
}

func exportCSV(report *session.Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{
		"index", "record_id", "hierarchy_path", "request_path", "depth", "kind",
		"status", "model", "mutated", "status_code", "response_bytes",
		"prompt_tokens", "completion_tokens", "total_tokens", "source_cost",
		"source_total_tokens", "started_at",
		"duration_ms", "error",
	}
	if err := writer.Write(headers); err != nil {
		return nil, err
	}

	for _, o := range report.Outcomes {
		started := ""
		if !o.StartedAt.IsZero() {
			started = o.StartedAt.Format(time.RFC3339Nano)
		}
		line := []string{
			strconv.Itoa(o.Index),
			o.RecordID,
			o.HierarchyPath,
			o.RequestPath,
			strconv.Itoa(o.Depth),
			string(o.Kind),
			string(o.Status),
			o.Model,
			strconv.FormatBool(o.Mutated),
			strconv.Itoa(o.StatusCode),
			strconv.FormatInt(o.ResponseBytes, 10),
			strconv.FormatInt(o.Usage.PromptTokens, 10),
			strconv.FormatInt(o.Usage.CompletionTokens, 10),
			strconv.FormatInt(o.Usage.TotalTokens, 10),
			strconv.FormatFloat(o.SourceUsage.Cost, 'f', -1, 64),
			strconv.FormatInt(o.SourceUsage.TotalTokens, 10),
			started,
			strconv.FormatInt(o.DurationMs, 10),
			o.Error,
		}
		if err := writer.Write(line); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
