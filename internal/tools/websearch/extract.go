package websearch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	extractorUserAgent = "Mozilla/5.0 (compatible; shai-agent/1.0)"
	maxFetchBytes      = 10 << 20
	maxExtractChars    = 10000
)

// ContentExtractor fetches a page and reduces it to readable text: title,
// meta description, and the main content block with markup stripped.
type ContentExtractor struct {
	client *http.Client
	// allowLocal disables the SSRF guard so tests can target httptest
	// servers on loopback.
	allowLocal bool
}

// NewContentExtractor returns an extractor with the SSRF guard enabled.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{client: &http.Client{Timeout: 15 * time.Second}}
}

// NewContentExtractorForTesting returns an extractor that accepts loopback
// URLs. Tests only.
func NewContentExtractorForTesting() *ContentExtractor {
	e := NewContentExtractor()
	e.allowLocal = true
	return e
}

// Extract fetches targetURL and returns its readable text, capped at
// maxExtractChars.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	if !e.allowLocal {
		if err := checkPublicURL(targetURL); err != nil {
			return "", fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", extractorUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	ctype := resp.Header.Get("Content-Type")
	if !strings.Contains(ctype, "text/html") && !strings.Contains(ctype, "text/plain") {
		return "", fmt.Errorf("unsupported content type: %s", ctype)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	text := readableText(string(body))
	if len(text) > maxExtractChars {
		text = text[:maxExtractChars] + "..."
	}
	return text, nil
}

// checkPublicURL rejects URLs that could reach internal services: bad
// schemes, localhost names, and hostnames resolving into private or
// reserved address space (including the cloud metadata endpoint, which
// IsLinkLocalUnicast already covers).
func checkPublicURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable here may still resolve behind a proxy; let the
		// fetch itself fail if not.
		return nil
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP address")
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip != nil && (ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast())
}

// Patterns are compiled once; extraction runs per search result and the
// per-call compile cost adds up fast under the parallel enrichment path.
var (
	reTitle = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reOGT   = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`)
	reH1    = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	reDesc  = regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`)
	reOGD   = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`)
	reBody  = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	reBlock = regexp.MustCompile(`(?i)</?(?:p|div|h[1-6]|li|br)[^>]*>`)
	reTags  = regexp.MustCompile(`<[^>]*>`)
	reBlank = regexp.MustCompile(`\n{3,}`)
	reSpace = regexp.MustCompile(`[^\S\n]+`)

	// One pattern per noise tag: a single alternation cannot pair the
	// opening tag with its own closer, and would strip everything between
	// a <script> and an unrelated </footer>.
	reNoise = func() []*regexp.Regexp {
		tags := []string{"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside"}
		out := make([]*regexp.Regexp, len(tags))
		for i, tag := range tags {
			out[i] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		}
		return out
	}()

	reContainers = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<main[^>]*>(.*?)</main>`),
		regexp.MustCompile(`(?is)<article[^>]*>(.*?)</article>`),
		regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*content[^"']*["'][^>]*>(.*?)</div>`),
		regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*article[^"']*["'][^>]*>(.*?)</div>`),
		regexp.MustCompile(`(?is)<div[^>]*id=["'](?:content|main)["'][^>]*>(.*?)</div>`),
		regexp.MustCompile(`(?is)<div[^>]*role=["']main["'][^>]*>(.*?)</div>`),
	}
)

// readableText is a simplified readability pass over raw HTML.
func readableText(html string) string {
	for _, re := range reNoise {
		html = re.ReplaceAllString(html, "")
	}

	title := firstMatch(html, reTitle, reOGT, reH1)
	desc := firstMatch(html, reDesc, reOGD)

	var content string
	for _, re := range reContainers {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			if text := stripMarkup(m[1]); len(strings.TrimSpace(text)) > 200 {
				content = text
				break
			}
		}
	}
	if content == "" {
		if m := reBody.FindStringSubmatch(html); len(m) > 1 {
			content = stripMarkup(m[1])
		}
	}
	content = tidyText(content)

	var b strings.Builder
	if title != "" {
		b.WriteString("Title: " + title + "\n\n")
	}
	if desc != "" {
		b.WriteString("Description: " + desc + "\n\n")
	}
	b.WriteString(content)
	return b.String()
}

func firstMatch(html string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			return tidyText(m[1])
		}
	}
	return ""
}

// stripMarkup drops tags, keeping block-element boundaries as newlines so
// paragraph structure survives.
func stripMarkup(html string) string {
	html = reBlock.ReplaceAllString(html, "\n")
	return reTags.ReplaceAllString(html, "")
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">",
	"&quot;", `"`, "&#39;", "'", "&apos;", "'",
)

func tidyText(text string) string {
	text = entityReplacer.Replace(text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = reBlank.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
