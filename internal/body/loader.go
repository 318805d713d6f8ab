package body

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// LoaderOptions configures the body loader
type LoaderOptions struct {
	MaxBytes int64
	Client   *http.Client
}

// Loader downloads captured request bodies from their signed URLs
type Loader struct {
	client   *http.Client
	logger   logger.Logger
	maxBytes int64
}

// FetchError is a contained per-record failure to obtain a request body.
type FetchError struct {
	RecordID   string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch body of %s from %s: status %d: %v", e.RecordID, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch body of %s from %s: %v", e.RecordID, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewLoader creates a loader
func NewLoader(log logger.Logger, opts LoaderOptions) *Loader {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{client: client, logger: log, maxBytes: opts.MaxBytes}
}

// Load fetches the body of rec. The signed URL answers with a document of
// the form {"request": <body>}; the inner object is returned.
func (l *Loader) Load(ctx context.Context, rec session.Record) (session.Body, error) {
	fail := func(status int, err error) error {
		return &FetchError{RecordID: rec.Label(), URL: redact(rec.SignedBodyURL), StatusCode: status, Err: err}
	}
	if rec.SignedBodyURL == "" {
		return nil, fail(0, fmt.Errorf("record has no signed body url"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.SignedBodyURL, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("create request failed: %w", err))
	}

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			l.logger.Warn("Failed to close body response", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	reader := io.Reader(resp.Body)
	if l.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, l.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read body failed: %w", err))
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fail(resp.StatusCode, fmt.Errorf("body exceeds %d bytes", l.maxBytes))
	}

	if !gjson.ValidBytes(data) {
		return nil, fail(resp.StatusCode, fmt.Errorf("body document is not valid JSON"))
	}
	b := session.Body(gjson.GetBytes(data, "request").Raw)
	if !b.Valid() {
		return nil, fail(resp.StatusCode, fmt.Errorf("body document has no request object"))
	}

	l.logger.Debug("Body loaded",
		"record", rec.Label(),
		"bytes", len(b),
		"elapsed", time.Since(start),
	)
	return b, nil
}

// Prefetched is the result of loading one body during Prefetch
type Prefetched struct {
	Record session.Record
	Body   session.Body
	Err    error
}

// Prefetch loads the bodies of records concurrently with at most limit
// requests in flight. Results keep the input order. Per-record failures are
// reported in the result and never abort the other loads.
func (l *Loader) Prefetch(ctx context.Context, records []session.Record, limit int) []Prefetched {
	results := make([]Prefetched, len(records))
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range records {
		g.Go(func() error {
			b, err := l.Load(gctx, records[i])
			results[i] = Prefetched{Record: records[i], Body: b, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// redact drops query strings, which carry the URL signature.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
