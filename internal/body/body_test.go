package body

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/tidwall/gjson"
)

func newMutator() *Mutator {
	return NewMutator(MutatorOptions{
		Enable:        true,
		SystemSuffix:  " Always answer in French.",
		SystemContent: "Always answer in French.",
	})
}

func TestMutatorAppendsToExistingSystem(t *testing.T) {
	in := session.Body(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"},{"role":"system","content":"Be brief."},{"role":"system","content":"second"}]}`)

	out, changed, err := newMutator().Apply(in)
	if err != nil || !changed {
		t.Fatalf("Apply changed=%v err=%v", changed, err)
	}
	if got := gjson.GetBytes(out, "messages.1.content").String(); got != "Be brief. Always answer in French." {
		t.Fatalf("unexpected system content %q", got)
	}
	if got := gjson.GetBytes(out, "messages.2.content").String(); got != "second" {
		t.Fatalf("only the first system message may change, got %q", got)
	}
	if n := len(gjson.GetBytes(out, "messages").Array()); n != 3 {
		t.Fatalf("message count changed to %d", n)
	}
	if got := gjson.GetBytes(in, "messages.1.content").String(); got != "Be brief." {
		t.Fatalf("input body was modified: %q", got)
	}
}

func TestMutatorPrependsSystem(t *testing.T) {
	in := session.Body(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"temperature":0.2}`)

	out, changed, err := newMutator().Apply(in)
	if err != nil || !changed {
		t.Fatalf("Apply changed=%v err=%v", changed, err)
	}
	msgs := gjson.GetBytes(out, "messages").Array()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Get("role").String() != "system" || msgs[0].Get("content").String() != "Always answer in French." {
		t.Fatalf("unexpected first message %s", msgs[0].Raw)
	}
	if msgs[1].Get("content").String() != "hi" {
		t.Fatalf("user message lost: %s", msgs[1].Raw)
	}
	if gjson.GetBytes(out, "temperature").Float() != 0.2 {
		t.Fatalf("other fields must survive")
	}
}

func TestMutatorMultipartContent(t *testing.T) {
	in := session.Body(`{"messages":[{"role":"system","content":[{"type":"text","text":"Be brief."}]}]}`)

	out, changed, err := newMutator().Apply(in)
	if err != nil || !changed {
		t.Fatalf("Apply changed=%v err=%v", changed, err)
	}
	parts := gjson.GetBytes(out, "messages.0.content").Array()
	if len(parts) != 2 || parts[1].Get("text").String() != " Always answer in French." {
		t.Fatalf("unexpected parts %s", gjson.GetBytes(out, "messages.0.content").Raw)
	}
}

func TestMutatorNotIdempotent(t *testing.T) {
	m := newMutator()
	in := session.Body(`{"messages":[{"role":"system","content":"Be brief."}]}`)

	once, _, err := m.Apply(in)
	if err != nil {
		t.Fatal(err)
	}
	twice, _, err := m.Apply(once)
	if err != nil {
		t.Fatal(err)
	}

	want := "Be brief. Always answer in French. Always answer in French."
	if got := gjson.GetBytes(twice, "messages.0.content").String(); got != want {
		t.Fatalf("second application should append again, got %q", got)
	}

	// without a system message the second pass appends to the prepended one
	in = session.Body(`{"messages":[{"role":"user","content":"hi"}]}`)
	once, _, _ = m.Apply(in)
	twice, _, _ = m.Apply(once)
	if n := len(gjson.GetBytes(twice, "messages").Array()); n != 2 {
		t.Fatalf("expected 2 messages after two passes, got %d", n)
	}
	if got := gjson.GetBytes(twice, "messages.0.content").String(); got != "Always answer in French. Always answer in French." {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestMutatorSkips(t *testing.T) {
	tests := []struct {
		name string
		m    *Mutator
		in   string
	}{
		{name: "disabled", m: NewMutator(MutatorOptions{Enable: false, SystemSuffix: "x"}), in: `{"messages":[]}`},
		{name: "nil mutator", m: nil, in: `{"messages":[]}`},
		{name: "embedding body", m: newMutator(), in: `{"model":"e","input":"hello"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, changed, err := tt.m.Apply(session.Body(tt.in))
			if err != nil || changed {
				t.Fatalf("expected untouched body, changed=%v err=%v", changed, err)
			}
			if string(out) != tt.in {
				t.Fatalf("body changed to %s", out)
			}
		})
	}
}

func TestLoaderLoad(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"request":{"model":"gpt-4o","messages":[]},"response":{}}`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	})
	mux.HandleFunc("/norequest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":{}}`)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"request":{"model":"`+strings.Repeat("x", 256)+`"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l := NewLoader(logger.Nop(), LoaderOptions{MaxBytes: 128})

	b, err := l.Load(context.Background(), session.Record{ID: "r1", SignedBodyURL: srv.URL + "/ok?X-Amz-Signature=secret"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b.Model() != "gpt-4o" || !b.Messages().IsArray() {
		t.Fatalf("unexpected body %s", b)
	}

	tests := []struct {
		path       string
		wantStatus int
	}{
		{path: "/missing", wantStatus: http.StatusForbidden},
		{path: "/garbage", wantStatus: http.StatusOK},
		{path: "/norequest", wantStatus: http.StatusOK},
		{path: "/big", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := l.Load(context.Background(), session.Record{ID: "r", SignedBodyURL: srv.URL + tt.path + "?sig=secret"})
			var ferr *FetchError
			if !errors.As(err, &ferr) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if ferr.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", ferr.StatusCode, tt.wantStatus)
			}
			if strings.Contains(err.Error(), "secret") {
				t.Errorf("error leaks url signature: %v", err)
			}
		})
	}

	_, err = l.Load(context.Background(), session.Record{ID: "empty"})
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError for empty url, got %v", err)
	}
}

func TestPrefetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"request":{"model":"`+strings.TrimPrefix(r.URL.Path, "/")+`"}}`)
	}))
	defer srv.Close()

	records := []session.Record{
		{ID: "1", SignedBodyURL: srv.URL + "/m1"},
		{ID: "2", SignedBodyURL: srv.URL + "/fail"},
		{ID: "3", SignedBodyURL: srv.URL + "/m3"},
		{ID: "4", SignedBodyURL: srv.URL + "/m4"},
	}
	results := NewLoader(logger.Nop(), LoaderOptions{}).Prefetch(context.Background(), records, 2)
	if len(results) != len(records) {
		t.Fatalf("expected %d results, got %d", len(records), len(results))
	}
	for i, res := range results {
		if res.Record.ID != records[i].ID {
			t.Fatalf("result %d out of order: %s", i, res.Record.ID)
		}
	}
	if results[1].Err == nil {
		t.Fatal("expected failure for record 2")
	}
	if results[3].Err != nil || results[3].Body.Model() != "m4" {
		t.Fatalf("record 4 should load despite record 2 failing: %+v", results[3])
	}
}
