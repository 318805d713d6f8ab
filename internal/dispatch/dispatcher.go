package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
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

// maxResponseRead bounds how much of a downstream response is inspected
// for usage counters; the rest is drained.
const maxResponseRead = 8 << 20

// Options dispatcher configuration
type Options struct {
	APIKey                string
	LogAPIKey             string
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
	TLSHandshakeTimeout   time.Duration
	TLSInsecureSkipVerify bool
	URLStrategy           URLStrategyOptions
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Dispatcher re-issues captured calls against the downstream API
type Dispatcher struct {
	client      *http.Client
	logger      logger.Logger
	apiKey      string
	logAPIKey   string
	urlStrategy *urlStrategy
}

// Call is one record ready to be replayed
type Call struct {
	Record  session.Record
	Kind    session.Kind
	Body    session.Body
	Context session.Context
}

// Result describes a completed downstream call
type Result struct {
	URL           string
	StatusCode    int
	ResponseBytes int64
	Usage         session.Usage
}

// CallError is a contained per-record downstream failure: transport error
// or non-2xx answer. Replays are never retried.
type CallError struct {
	RecordID   string
	URL        string
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("replay %s to %s: status %d: %v", e.RecordID, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("replay %s to %s: %v", e.RecordID, e.URL, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NewDispatcher creates new dispatcher
func NewDispatcher(log logger.Logger, opts Options) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	client := opts.Client
	if client == nil {
		transport := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          positiveOrDefault(opts.MaxIdleConns, 20),
			MaxIdleConnsPerHost:   positiveOrDefault(opts.MaxIdleConnsPerHost, 4),
			IdleConnTimeout:       durationOrDefault(opts.IdleConnTimeout, 90*time.Second),
			ResponseHeaderTimeout: durationOrDefault(opts.ResponseHeaderTimeout, 120*time.Second),
			TLSHandshakeTimeout:   durationOrDefault(opts.TLSHandshakeTimeout, 10*time.Second),
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: opts.TLSInsecureSkipVerify,
			},
		}
		client = &http.Client{Transport: transport}
	}

	return &Dispatcher{
		client:      client,
		logger:      log,
		apiKey:      opts.APIKey,
		logAPIKey:   opts.LogAPIKey,
		urlStrategy: newURLStrategy(opts.URLStrategy, log),
	}
}

// Dispatch sends one call and waits for the complete response.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (Result, error) {
	targetURL, appliedRule := d.urlStrategy.resolve(call.Record.RequestPath)
	result := Result{URL: targetURL}
	fail := func(status int, err error) error {
		return &CallError{RecordID: call.Record.Label(), URL: targetURL, StatusCode: status, Err: err}
	}

	if appliedRule != "" {
		d.logger.Debug("URL strategy applied",
			"rule", appliedRule,
			"original_url", call.Record.RequestPath,
			"url", targetURL,
		)
	}

	payload, err := Payload(call.Kind, call.Body)
	if err != nil {
		return result, fail(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return result, fail(0, fmt.Errorf("create request failed: %w", err))
	}
	SetHeaders(req.Header, d.apiKey, d.logAPIKey, call.Context, call.Record.HierarchyPath)

	resp, err := d.client.Do(req)
	if err != nil {
		return result, fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			d.logger.Warn("Failed to close response body", "error", cerr)
		}
	}()
	result.StatusCode = resp.StatusCode

	// Read response fully so the next call starts after this one completed
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseRead))
	if err != nil {
		return result, fail(resp.StatusCode, fmt.Errorf("read response failed: %w", err))
	}
	drained, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		d.logger.Warn("Failed to drain response body", "error", err)
	}
	result.ResponseBytes = int64(len(data)) + drained

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fail(resp.StatusCode, fmt.Errorf("%s", errorMessage(data)))
	}

	result.Usage = responseUsage(data)
	return result, nil
}

// Payload builds the request document for a call kind: {model, messages}
// for chat and {model, input} for embeddings.
func Payload(kind session.Kind, b session.Body) ([]byte, error) {
	var field string
	switch kind {
	case session.KindChat:
		field = "messages"
	case session.KindEmbedding:
		field = "input"
	default:
		return nil, fmt.Errorf("no payload for %q calls", kind)
	}

	value := gjson.GetBytes(b, field)
	if !value.Exists() {
		return nil, fmt.Errorf("%s body has no %s", kind, field)
	}

	out, err := sjson.SetBytes([]byte(`{}`), "model", b.Model())
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetRawBytes(out, field, []byte(value.Raw))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetHeaders applies credentials and the replay session provenance.
func SetHeaders(h http.Header, apiKey, logAPIKey string, sc session.Context, hierarchyPath string) {
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+apiKey)
	h.Set(session.HeaderAuth, "Bearer "+logAPIKey)
	h.Set(session.HeaderSessionID, sc.SessionID)
	h.Set(session.HeaderSessionName, sc.Name)
	h.Set(session.HeaderSessionPath, session.NormalizePath(hierarchyPath))
}

// Close releases idle connections
func (d *Dispatcher) Close() {
	d.client.CloseIdleConnections()
}

func responseUsage(data []byte) session.Usage {
	usage := gjson.GetBytes(data, "usage")
	if !usage.IsObject() {
		return session.Usage{}
	}
	return session.Usage{
		PromptTokens:     usage.Get("prompt_tokens").Int(),
		CompletionTokens: usage.Get("completion_tokens").Int(),
		TotalTokens:      usage.Get("total_tokens").Int(),
	}
}

func errorMessage(data []byte) string {
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return msg.String()
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}

func positiveOrDefault(value, def int) int {
	if value > 0 {
		return value
	}
	return def
}

func durationOrDefault(value, def time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return def
}
