package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/tidwall/gjson"
)

const sampleResponse = `{
  "data": [
    {
      "request_id": "req-1",
      "request_created_at": "2024-05-01T10:00:00.000Z",
      "request_properties": {"Helicone-Session-Id": "src", "Helicone-Session-Path": "/"},
      "signed_body_url": "https://bucket.example/1",
      "request_path": "https://api.openai.com/v1/chat/completions",
      "costUSD": 0.0012,
      "prompt_tokens": 10,
      "completion_tokens": "5",
      "total_tokens": 15
    },
    {
      "request_id": "req-2",
      "request_created_at": "2024-05-01 10:00:01.5+00",
      "request_properties": {"Helicone-Session-Id": "src"},
      "signed_body_url": "https://bucket.example/2",
      "request_path": "https://api.openai.com/v1/embeddings",
      "cost": null
    }
  ],
  "error": null
}`

func TestFetchSession(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer log-key" {
			t.Errorf("unexpected Authorization %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if got := gjson.GetBytes(body, `filter.properties.Helicone-Session-Id.equals`).String(); got != "src" {
			t.Errorf("filter session = %q, body %s", got, body)
		}
		if gjson.GetBytes(body, "limit").Exists() {
			t.Errorf("limit must be omitted when unset")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	f := New(logger.Nop(), Options{QueryURL: srv.URL, APIKey: "log-key", Timeout: 5 * time.Second})
	records, err := f.FetchSession(context.Background(), "src")
	if err != nil {
		t.Fatalf("FetchSession failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one query, got %d", calls)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.ID != "req-1" || first.SessionID != "src" || first.HierarchyPath != "/" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.Usage.Cost != 0.0012 || first.Usage.CompletionTokens != 5 || first.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", first.Usage)
	}
	if !first.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected created_at %v", first.CreatedAt)
	}

	second := records[1]
	if second.HierarchyPath != "/" {
		t.Errorf("missing path must default to /, got %q", second.HierarchyPath)
	}
	if !second.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 1, 500_000_000, time.UTC)) {
		t.Errorf("unexpected created_at %v", second.CreatedAt)
	}
	if !second.Usage.IsZero() {
		t.Errorf("expected zero usage, got %+v", second.Usage)
	}
}

func TestFetchSessionLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if got := gjson.GetBytes(body, "limit").Int(); got != 250 {
			t.Errorf("limit = %d", got)
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	f := New(logger.Nop(), Options{QueryURL: srv.URL, Limit: 250})
	records, err := f.FetchSession(context.Background(), "src")
	if err != nil {
		t.Fatalf("FetchSession failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestFetchSessionErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		maxBytes   int64
		wantStatus int
		wantSubstr string
	}{
		{name: "non 2xx", status: http.StatusUnauthorized, body: `{"error":"bad key"}`, wantStatus: 401, wantSubstr: "bad key"},
		{name: "invalid json", status: http.StatusOK, body: `{"data": [`, wantStatus: 200, wantSubstr: "not valid JSON"},
		{name: "missing data", status: http.StatusOK, body: `{"items": []}`, wantStatus: 200, wantSubstr: "no data array"},
		{name: "error field", status: http.StatusOK, body: `{"data": null, "error": "quota"}`, wantStatus: 200, wantSubstr: "quota"},
		{name: "bad timestamp", status: http.StatusOK, body: `{"data": [{"request_created_at": "yesterday"}]}`, wantStatus: 200, wantSubstr: "request_created_at"},
		{name: "oversize", status: http.StatusOK, body: sampleResponse, maxBytes: 16, wantStatus: 200, wantSubstr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			f := New(logger.Nop(), Options{QueryURL: srv.URL, MaxResponseBytes: tt.maxBytes})
			_, err := f.FetchSession(context.Background(), "src")
			var qerr *UpstreamQueryError
			if !errors.As(err, &qerr) {
				t.Fatalf("expected UpstreamQueryError, got %v", err)
			}
			if qerr.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", qerr.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q does not mention %q", err, tt.wantSubstr)
			}
		})
	}
}

func TestFetchSessionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := New(logger.Nop(), Options{QueryURL: url, Timeout: time.Second})
	_, err := f.FetchSession(context.Background(), "src")
	var qerr *UpstreamQueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected UpstreamQueryError, got %v", err)
	}
	if qerr.StatusCode != 0 {
		t.Errorf("transport failures carry no status, got %d", qerr.StatusCode)
	}
}

func TestParseCreatedAtEpochMillis(t *testing.T) {
	records, err := ParseRecords([]byte(`{"data":[{"request_created_at": 1714557600000}]}`))
	if err != nil {
		t.Fatalf("ParseRecords failed: %v", err)
	}
	if !records[0].CreatedAt.Equal(time.UnixMilli(1714557600000)) {
		t.Fatalf("unexpected created_at %v", records[0].CreatedAt)
	}
}
