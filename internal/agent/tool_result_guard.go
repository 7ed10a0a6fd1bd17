package agent

import (
	"regexp"
	"strings"
)

// DefaultMaxToolResultSize caps a tool result's textual projection at 64KB
// when no explicit limit is configured; an unbounded shell or fetch result
// would otherwise bloat the trace and every LLM request built from it.
const DefaultMaxToolResultSize = 64 * 1024

// secretPattern pairs a detector with a stable name so detection reports
// and redaction share one table.
type secretPattern struct {
	name string
	re   *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[\w-\.]+`)},
	{"aws_key", regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`)},
	{"generic_secret", regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`)},
	{"private_key", regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
}

// ToolResultGuard redacts and truncates tool result text before the
// scheduler appends it to the trace, so neither a persisted RunTrace nor
// any Adapter ever observes the raw text. A zero guard is a no-op.
type ToolResultGuard struct {
	Enabled         bool
	MaxChars        int
	Denylist        []string // tool-name patterns whose results are fully redacted
	RedactPatterns  []string // extra regexes replaced with RedactionText
	RedactionText   string
	TruncateSuffix  string
	SanitizeSecrets bool // apply the built-in secret detectors
}

func (g ToolResultGuard) active() bool {
	return g.Enabled || g.MaxChars > 0 || len(g.Denylist) > 0 ||
		len(g.RedactPatterns) > 0 || g.RedactionText != "" ||
		g.TruncateSuffix != "" || g.SanitizeSecrets
}

// matchesAnyPattern reports whether toolName matches a denylist entry:
// exact name, "*", or a "prefix.*" namespace wildcard.
func matchesAnyPattern(patterns []string, toolName string) bool {
	for _, pattern := range patterns {
		switch {
		case pattern == "*":
			return true
		case strings.HasSuffix(pattern, ".*"):
			if strings.HasPrefix(toolName, strings.TrimSuffix(pattern, "*")) {
				return true
			}
		case pattern == toolName:
			return true
		}
	}
	return false
}

// Apply runs the guard over result's textual projection (Output for
// Success, Message for Error). Denied results carry no text and pass
// through unchanged.
func (g ToolResultGuard) Apply(toolName string, result ToolResult) ToolResult {
	if !g.active() || result.kind == toolResultDenied {
		return result
	}

	redaction := strings.TrimSpace(g.RedactionText)
	if redaction == "" {
		redaction = "[REDACTED]"
	}
	suffix := strings.TrimSpace(g.TruncateSuffix)
	if suffix == "" {
		suffix = "...[truncated]"
	}

	if matchesAnyPattern(g.Denylist, toolName) {
		return g.setText(result, redaction)
	}

	content := g.text(result)
	if g.SanitizeSecrets {
		for _, p := range secretPatterns {
			content = p.re.ReplaceAllString(content, redaction)
		}
	}
	for _, pattern := range g.RedactPatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		// An invalid user-supplied pattern is skipped, not fatal.
		if re, err := regexp.Compile(pattern); err == nil {
			content = re.ReplaceAllString(content, redaction)
		}
	}
	if g.MaxChars > 0 && len(content) > g.MaxChars {
		content = content[:g.MaxChars] + suffix
	}
	return g.setText(result, content)
}

func (g ToolResultGuard) text(result ToolResult) string {
	if result.kind == toolResultError {
		return result.Message
	}
	return result.Output
}

func (g ToolResultGuard) setText(result ToolResult, text string) ToolResult {
	if result.kind == toolResultError {
		result.Message = text
	} else {
		result.Output = text
	}
	return result
}

// DetectSecrets reports which built-in detectors fire on content, by
// name, for logging or alerting without altering the text.
func DetectSecrets(content string) []string {
	if content == "" {
		return nil
	}
	var hits []string
	for _, p := range secretPatterns {
		if p.re.MatchString(content) {
			hits = append(hits, p.name)
		}
	}
	return hits
}
