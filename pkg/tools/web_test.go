package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearch_NoAPIKey(t *testing.T) {
	e := newTestExecutor(t)
	result := e.Run(context.Background(), Call{Name: "web_search", Args: map[string]any{"query": "golang"}})
	if result.Text != "Error: Brave Search API key not configured." {
		t.Errorf("result = %q", result.Text)
	}
}

func TestWebFetch_StripsHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><style>body{color:red}</style></head>
<body><script>alert(1)</script><h1>Title</h1><p>Some &amp; text</p></body></html>`)
	}))
	defer server.Close()

	e := newTestExecutor(t)
	result := e.Run(context.Background(), Call{Name: "web_fetch", Args: map[string]any{"url": server.URL}})

	if strings.Contains(result.Text, "<") || strings.Contains(result.Text, "alert") || strings.Contains(result.Text, "color:red") {
		t.Errorf("markup leaked into result: %q", result.Text)
	}
	if !strings.Contains(result.Text, "Title") || !strings.Contains(result.Text, "Some & text") {
		t.Errorf("text content lost: %q", result.Text)
	}
}

func TestWebFetch_Truncates(t *testing.T) {
	body := strings.Repeat("a", 500)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	e := newTestExecutor(t)
	result := e.Run(context.Background(), Call{Name: "web_fetch", Args: map[string]any{
		"url":       server.URL,
		"max_chars": 100,
	}})

	if !strings.Contains(result.Text, "[truncated, 500 chars total]") {
		t.Errorf("missing truncation trailer: %q", result.Text)
	}
	if !strings.HasPrefix(result.Text, strings.Repeat("a", 100)) {
		t.Errorf("unexpected prefix: %q", result.Text[:20])
	}
}

func TestWebFetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := newTestExecutor(t)
	result := e.Run(context.Background(), Call{Name: "web_fetch", Args: map[string]any{"url": server.URL}})

	want := fmt.Sprintf("Error: HTTP 404 for %s", server.URL)
	if result.Text != want {
		t.Errorf("result = %q, want %q", result.Text, want)
	}
}

func TestStripHTML_CollapsesWhitespace(t *testing.T) {
	in := "<p>one</p>\n\n\n\n<p>two   three</p>"
	got := stripHTML(in)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank lines not collapsed: %q", got)
	}
	if strings.Contains(got, "two   three") {
		t.Errorf("spaces not collapsed: %q", got)
	}
}
