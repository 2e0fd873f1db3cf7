package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	webUserAgent       = "Mozilla/5.0 (compatible; larkclaw/1.0)"
	webSearchTimeout   = 10 * time.Second
	webFetchTimeout    = 20 * time.Second
	defaultFetchChars  = 8000
	defaultSearchCount = 5
)

var (
	scriptRe     = regexp.MustCompile(`(?i)<script[\s\S]*?</script>`)
	styleRe      = regexp.MustCompile(`(?i)<style[\s\S]*?</style>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	spaceRe      = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

type webSearchArgs struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

func (e *Executor) webSearch(ctx context.Context, args webSearchArgs) Result {
	if e.braveKey == "" {
		return Result{Text: "Error: Brave Search API key not configured."}
	}

	count := args.Count
	if count < 1 {
		count = defaultSearchCount
	}
	if count > 10 {
		count = 10
	}

	reqCtx, cancel := context.WithTimeout(ctx, webSearchTimeout)
	defer cancel()

	searchURL := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(args.Query), count)
	req, err := http.NewRequestWithContext(reqCtx, "GET", searchURL, nil)
	if err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", e.braveKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{Text: fmt.Sprintf("Error: search API returned %d", resp.StatusCode)}
	}

	var searchResp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}

	results := searchResp.Web.Results
	if len(results) == 0 {
		return Result{Text: fmt.Sprintf("No results for: %s", args.Query)}
	}

	lines := []string{fmt.Sprintf("Search results for: %s\n", args.Query)}
	for i, item := range results {
		if i >= count {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s\n   %s", i+1, item.Title, item.URL))
		if item.Description != "" {
			lines = append(lines, fmt.Sprintf("   %s", item.Description))
		}
	}
	return Result{Text: strings.Join(lines, "\n")}
}

type webFetchArgs struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars"`
}

func (e *Executor) webFetch(ctx context.Context, args webFetchArgs) Result {
	maxChars := args.MaxChars
	if maxChars <= 0 {
		maxChars = defaultFetchChars
	}

	reqCtx, cancel := context.WithTimeout(ctx, webFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", args.URL, nil)
	if err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	if resp.StatusCode >= 400 {
		return Result{Text: fmt.Sprintf("Error: HTTP %d for %s", resp.StatusCode, args.URL)}
	}

	text := stripHTML(string(body))
	if len(text) > maxChars {
		text = text[:maxChars] + fmt.Sprintf("\n\n[truncated, %d chars total]", len(body))
	}
	return Result{Text: text}
}

// stripHTML reduces an HTML document to readable text: scripts, styles and
// tags removed, entities unescaped, whitespace collapsed.
func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = styleRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(html.UnescapeString(s), " ")
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(s, "\n\n"))
}
