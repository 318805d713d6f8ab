package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Options configures the log store query client
type Options struct {
	QueryURL         string
	APIKey           string
	Timeout          time.Duration
	Limit            int
	MaxResponseBytes int64
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Fetcher queries the log store for all records of one session
type Fetcher struct {
	client   *http.Client
	logger   logger.Logger
	queryURL string
	apiKey   string
	limit    int
	maxBytes int64
}

// UpstreamQueryError is returned when the log store cannot be queried or
// answers with something that is not a record list. It is fatal for a run.
type UpstreamQueryError struct {
	SessionID  string
	StatusCode int
	Err        error
}

func (e *UpstreamQueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("query session %s: upstream returned status %d: %v", e.SessionID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("query session %s: %v", e.SessionID, e.Err)
}

func (e *UpstreamQueryError) Unwrap() error {
	return e.Err
}

// timestamp layouts observed in log store exports
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// New creates a fetcher
func New(log logger.Logger, opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{
		client:   client,
		logger:   log,
		queryURL: opts.QueryURL,
		apiKey:   opts.APIKey,
		limit:    opts.Limit,
		maxBytes: opts.MaxResponseBytes,
	}
}

// FetchSession returns every record tagged with sessionID, in the order the
// log store returned them. It issues exactly one POST.
func (f *Fetcher) FetchSession(ctx context.Context, sessionID string) ([]session.Record, error) {
	payload, err := QueryBody(sessionID, f.limit)
	if err != nil {
		return nil, &UpstreamQueryError{SessionID: sessionID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.queryURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &UpstreamQueryError{SessionID: sessionID, Err: fmt.Errorf("create request failed: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &UpstreamQueryError{SessionID: sessionID, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Warn("Failed to close query response body", "error", cerr)
		}
	}()

	data, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		return nil, &UpstreamQueryError{SessionID: sessionID, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamQueryError{
			SessionID:  sessionID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", snippet(data)),
		}
	}

	records, err := ParseRecords(data)
	if err != nil {
		return nil, &UpstreamQueryError{SessionID: sessionID, StatusCode: resp.StatusCode, Err: err}
	}

	f.logger.Debug("Session query completed",
		"session", sessionID,
		"records", len(records),
		"bytes", len(data),
		"elapsed", time.Since(start),
	)
	return records, nil
}

// QueryBody builds the filter document selecting one session.
func QueryBody(sessionID string, limit int) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "filter.properties."+session.HeaderSessionID+".equals", sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		body, err = sjson.SetBytes(body, "limit", limit)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// ParseRecords decodes a query response document of the form {"data": [...]}.
func ParseRecords(data []byte) ([]session.Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if errField := doc.Get("error"); errField.Exists() && errField.Type != gjson.Null && errField.String() != "" {
		return nil, fmt.Errorf("log store error: %s", errField.String())
	}
	list := doc.Get("data")
	if !list.IsArray() {
		return nil, fmt.Errorf("response has no data array")
	}

	var (
		records  []session.Record
		parseErr error
	)
	list.ForEach(func(_, raw gjson.Result) bool {
		rec, err := parseRecord(raw)
		if err != nil {
			parseErr = fmt.Errorf("record %d: %w", len(records), err)
			return false
		}
		records = append(records, rec)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}

func parseRecord(raw gjson.Result) (session.Record, error) {
	if !raw.IsObject() {
		return session.Record{}, fmt.Errorf("not an object")
	}

	props := raw.Get("request_properties")
	rec := session.Record{
		ID:            raw.Get("request_id").String(),
		SessionID:     props.Get(session.HeaderSessionID).String(),
		SignedBodyURL: raw.Get("signed_body_url").String(),
		RequestPath:   raw.Get("request_path").String(),
		HierarchyPath: props.Get(session.HeaderSessionPath).String(),
		Usage: session.Usage{
			Cost:             firstFloat(raw, "cost", "costUSD"),
			PromptTokens:     raw.Get("prompt_tokens").Int(),
			CompletionTokens: raw.Get("completion_tokens").Int(),
			TotalTokens:      raw.Get("total_tokens").Int(),
		},
	}

	createdAt, err := parseCreatedAt(raw.Get("request_created_at"))
	if err != nil {
		return session.Record{}, err
	}
	rec.CreatedAt = createdAt

	if rec.HierarchyPath == "" {
		rec.HierarchyPath = session.RootPath
	}
	return rec, nil
}

func parseCreatedAt(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC(), nil
	case gjson.String:
		s := strings.TrimSpace(v.String())
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised request_created_at %q", s)
	default:
		return time.Time{}, fmt.Errorf("missing request_created_at")
	}
}

func firstFloat(raw gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := raw.Get(key); v.Exists() && v.Type != gjson.Null {
			return v.Float()
		}
	}
	return 0
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read response failed: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return data, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
