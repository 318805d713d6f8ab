package session

import (
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: "/"},
		{name: "root", input: "/", expected: "/"},
		{name: "all separators", input: "////", expected: "/"},
		{name: "single segment", input: "/agent", expected: "/agent"},
		{name: "trailing separator", input: "/agent/", expected: "/agent"},
		{name: "repeated separators", input: "//agent///tool//", expected: "/agent/tool"},
		{name: "missing leading separator", input: "agent/tool", expected: "/agent/tool"},
		{name: "nested", input: "/a/b/c", expected: "/a/b/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePath(tt.input); got != tt.expected {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizePathIdempotent(t *testing.T) {
	inputs := []string{
		"", "/", "//", "a", "a/", "/a//b/", "///x///y///z///", " ", "/ /", "a//b//c", "/日本/語/",
	}
	for _, in := range inputs {
		once := NormalizePath(in)
		twice := NormalizePath(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
		if once == "" || !strings.HasPrefix(once, "/") {
			t.Errorf("normalized %q to %q, expected non-empty path starting with '/'", in, once)
		}
	}
}

func FuzzNormalizePath(f *testing.F) {
	for _, seed := range []string{"", "/", "//a//", "a/b/c/", "/x"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, p string) {
		once := NormalizePath(p)
		if NormalizePath(once) != once {
			t.Fatalf("not idempotent for %q", p)
		}
		if !strings.HasPrefix(once, "/") {
			t.Fatalf("normalized %q to %q without leading separator", p, once)
		}
		if strings.Contains(once, "//") {
			t.Fatalf("normalized %q to %q with repeated separators", p, once)
		}
	})
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/", ""},
		{"", ""},
		{"/a", "/"},
		{"/a/b", "/a"},
		{"/a/b/c/", "/a/b"},
		{"a//b", "/a"},
	}

	for _, tt := range tests {
		if got := ParentPath(tt.input); got != tt.expected {
			t.Errorf("ParentPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
