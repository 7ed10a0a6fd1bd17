// Package policy provides configuration-driven pre-population of tool
// permission claims, layered above but never bypassing the core's
// ClaimManager.is_permitted check.
package policy

import (
	"encoding/json"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// Normalize canonicalizes a tool name to lowercase, trimmed form so
// pattern matching and alias resolution are insensitive to surface
// spelling differences between what a brain emits and what a policy rule
// names.
func Normalize(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := Aliases[normalized]; ok {
		return canonical
	}
	return normalized
}

// Aliases maps alternative tool spellings to their canonical registered
// name, so a policy rule written against one spelling still matches a
// brain that emits the other.
var Aliases = map[string]string{
	"bash":  "exec",
	"shell": "exec",
}

// MatchPattern reports whether pattern matches toolName. Supports "*"
// (match everything) and a "prefix.*" namespace wildcard in addition to
// exact matches.
func MatchPattern(pattern, toolName string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(toolName, prefix)
	}
	return pattern == toolName
}

// matchAny reports whether toolName matches any of patterns.
func matchAny(patterns []string, toolName string) bool {
	for _, p := range patterns {
		if MatchPattern(Normalize(p), toolName) {
			return true
		}
	}
	return false
}

// ApprovalPolicy is configuration-driven pre-population of permission
// claims: "always allow read-only tools", "always allow bash in CI mode".
// It composes with agent.ClaimManager by granting claims up front;
// ClaimManager.IsPermitted remains the single source of truth the tool
// scheduler consults, so a policy can only ever widen what is already a
// grant, never short-circuit the gate itself.
type ApprovalPolicy struct {
	// AlwaysAllow lists tool-name patterns (exact, "*", or "prefix.*")
	// that never require a permission prompt, regardless of capability.
	AlwaysAllow []string

	// AlwaysAllowReadOnly grants every tool whose Capabilities() is empty
	// or exactly {Read} — the same rule the core's gate already applies
	// for free, expressed here so it is also visible in an exported
	// policy a caller can introspect or serialize.
	AlwaysAllowReadOnly bool

	// AlwaysDeny lists tool-name patterns that ApplyTo will never grant,
	// even if they also match AlwaysAllow. Deny takes precedence.
	AlwaysDeny []string
}

// DefaultApprovalPolicy grants nothing beyond the core's own read-only
// exemption; every write/network call still prompts unless a caller
// opts in explicitly.
func DefaultApprovalPolicy() *ApprovalPolicy {
	return &ApprovalPolicy{AlwaysAllowReadOnly: true}
}

// ApplyTo pre-populates claims on every tool currently registered that
// this policy allows, so the first call to a qualifying tool in a new
// session is never prompted. registry and claims must be non-nil.
func (p *ApprovalPolicy) ApplyTo(registry *agent.ToolRegistry, claims *agent.ClaimManager) {
	if p == nil || registry == nil || claims == nil {
		return
	}
	for _, tool := range registry.List() {
		name := tool.Name()
		if matchAny(p.AlwaysDeny, name) {
			continue
		}
		if matchAny(p.AlwaysAllow, name) || (p.AlwaysAllowReadOnly && isReadOnly(tool.Capabilities())) {
			claims.GrantAlways(name, json.RawMessage(nil))
		}
	}
}

func isReadOnly(caps []agent.ToolCapability) bool {
	for _, c := range caps {
		if c != agent.CapabilityRead {
			return false
		}
	}
	return true
}
