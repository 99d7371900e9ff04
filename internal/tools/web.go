package tools

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	webTimeout      = 30 * time.Second
	webCacheTTL     = 15 * time.Minute
	webCacheEntries = 100
	crawlMaxChars   = 50000
	searchMaxCount  = 10
	searchDefCount  = 5
	webUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// --- shared cache ---

type webCacheEntry struct {
	value    string
	expires  time.Time
	inserted time.Time
}

type webCache struct {
	mu      sync.Mutex
	entries map[string]*webCacheEntry
}

func newWebCache() *webCache {
	return &webCache{entries: make(map[string]*webCacheEntry)}
}

func (c *webCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *webCache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= webCacheEntries {
		var oldest string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldest == "" || e.inserted.Before(oldestAt) {
				oldest, oldestAt = k, e.inserted
			}
		}
		delete(c.entries, oldest)
	}
	now := time.Now()
	c.entries[key] = &webCacheEntry{value: value, expires: now.Add(webCacheTTL), inserted: now}
}

// --- SSRF guard ---

// checkSSRF rejects URLs that target loopback, link-local, or private
// address space, including hostnames that resolve there.
func checkSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("missing hostname")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("blocked hostname: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("private address not allowed: %s", host)
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if ip := net.ParseIP(addr); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%s resolves to private address %s", host, addr)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// --- web.search ---

// WebSearchTool queries the DuckDuckGo HTML endpoint and returns
// title/URL/snippet triples. Results are cached per normalized query.
type WebSearchTool struct {
	client *http.Client
	cache  *webCache
}

func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		client: &http.Client{Timeout: webTimeout},
		cache:  newWebCache(),
	}
}

func (t *WebSearchTool) Name() string { return "web.search" }

func (t *WebSearchTool) Description() string {
	return "Search the web. Returns titles, URLs, and snippets."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query string.",
			},
			"count": map[string]interface{}{
				"type":        "number",
				"description": "Number of results to return (1-10).",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	count := searchDefCount
	if c, ok := args["count"].(float64); ok && int(c) >= 1 && int(c) <= searchMaxCount {
		count = int(c)
	}

	key := fmt.Sprintf("search:%s:%d", strings.ToLower(strings.TrimSpace(query)), count)
	if cached, ok := t.cache.get(key); ok {
		return NewResult(cached)
	}

	searchURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult("search failed: " + err.Error()).WithError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ErrorResult("read search response: " + err.Error()).WithError(err)
	}

	out := formatSearchResults(query, extractSearchResults(string(body), count))
	t.cache.set(key, out)
	return NewResult(out)
}

var (
	resultLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	resultSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	anyTagRe        = regexp.MustCompile(`<[^>]+>`)
)

type webSearchHit struct {
	title, url, snippet string
}

func extractSearchResults(html string, count int) []webSearchHit {
	links := resultLinkRe.FindAllStringSubmatch(html, count+5)
	snippets := resultSnippetRe.FindAllStringSubmatch(html, count+5)

	var hits []webSearchHit
	for i := 0; i < len(links) && i < count; i++ {
		rawURL := links[i][1]
		// Unwrap the redirect indirection around result URLs.
		if strings.Contains(rawURL, "uddg=") {
			if u, err := url.QueryUnescape(rawURL); err == nil {
				if idx := strings.Index(u, "uddg="); idx != -1 {
					target := u[idx+5:]
					if amp := strings.Index(target, "&"); amp != -1 {
						target = target[:amp]
					}
					rawURL = target
				}
			}
		}
		hit := webSearchHit{
			title: strings.TrimSpace(anyTagRe.ReplaceAllString(links[i][2], "")),
			url:   rawURL,
		}
		if i < len(snippets) {
			hit.snippet = strings.TrimSpace(anyTagRe.ReplaceAllString(snippets[i][1], ""))
		}
		hits = append(hits, hit)
	}
	return hits
}

func formatSearchResults(query string, hits []webSearchHit) string {
	if len(hits) == 0 {
		return "No results found for: " + query
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, h.title, h.url)
		if h.snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", h.snippet)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// --- web.crawl ---

// WebCrawlTool fetches a URL and extracts readable text. Redirects
// are re-checked against the SSRF guard.
type WebCrawlTool struct {
	cache *webCache
}

func NewWebCrawlTool() *WebCrawlTool {
	return &WebCrawlTool{cache: newWebCache()}
}

func (t *WebCrawlTool) Name() string { return "web.crawl" }

func (t *WebCrawlTool) Description() string {
	return "Fetch a URL and extract its text content."
}

func (t *WebCrawlTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebCrawlTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrorResult("invalid URL: " + err.Error()).WithError(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult("only http and https URLs are supported")
	}
	if err := checkSSRF(rawURL); err != nil {
		return ErrorResult("blocked: " + err.Error()).WithError(err)
	}

	if cached, ok := t.cache.get("crawl:" + rawURL); ok {
		return NewResult(cached)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	client := &http.Client{
		Timeout: webTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return checkSSRF(req.URL.String())
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return ErrorResult("fetch failed: " + err.Error()).WithError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, crawlMaxChars*4))
	if err != nil {
		return ErrorResult("read body: " + err.Error()).WithError(err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text = htmlToText(text)
	}
	if len(text) > crawlMaxChars {
		text = text[:crawlMaxChars]
	}

	out := fmt.Sprintf("URL: %s\nStatus: %d\n\n%s", resp.Request.URL, resp.StatusCode, text)
	t.cache.set("crawl:"+rawURL, out)
	return NewResult(out)
}

var (
	scriptRe  = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	commentRe = regexp.MustCompile(`<!--[\s\S]*?-->`)
	paraRe    = regexp.MustCompile(`(?i)<(?:p|br|li|h[1-6]|tr|div)[^>]*>`)
	multiNLRe = regexp.MustCompile(`\n{3,}`)
)

// htmlToText strips markup and collapses whitespace. Not a
// readability implementation, just enough for summarization input.
func htmlToText(html string) string {
	s := scriptRe.ReplaceAllString(html, "")
	s = styleRe.ReplaceAllString(s, "")
	s = commentRe.ReplaceAllString(s, "")
	s = paraRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = decodeHTMLEntities(s)

	lines := strings.Split(s, "\n")
	var clean []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	return multiNLRe.ReplaceAllString(strings.Join(clean, "\n"), "\n\n")
}

func decodeHTMLEntities(s string) string {
	return strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
		"&nbsp;", " ",
	).Replace(s)
}
