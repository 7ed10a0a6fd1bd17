package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
)

// claimScope distinguishes a grant for one exact fingerprint (covers every
// call with those same parameters) from an always grant (covers every call
// to the tool, whatever its parameters).
type claimScope int

const (
	scopeOnce claimScope = iota
	scopeAlways
)

type claimKey struct {
	tool        string
	fingerprint string
}

// ClaimManager records permission grants and answers is_permitted checks.
// A sudo flag globally bypasses checks. Reads (permission checks) and
// writes (grants) may run concurrently across tool tasks, so all state is
// guarded by a single mutex kept intentionally cheap to hold.
type ClaimManager struct {
	mu     sync.RWMutex
	sudo   bool
	claims map[claimKey]claimScope
}

// NewClaimManager returns an empty manager with sudo disabled.
func NewClaimManager() *ClaimManager {
	return &ClaimManager{claims: make(map[claimKey]claimScope)}
}

// Sudo enables the global permission bypass.
func (c *ClaimManager) Sudo() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sudo = true
}

// NoSudo disables the global permission bypass.
func (c *ClaimManager) NoSudo() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sudo = false
}

// IsSudo reports whether the global bypass is enabled.
func (c *ClaimManager) IsSudo() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sudo
}

// alwaysFingerprint is the sentinel fingerprint GrantAlways also records
// under, letting IsPermitted match an always(tool) grant irrespective of
// the fingerprint of the specific call being checked.
const alwaysFingerprint = "*"

// IsPermitted reports whether tool/params may execute without a prompt:
// sudo is set, or an exact (tool, fingerprint) grant exists, or an
// always(tool) grant exists irrespective of fingerprint.
func (c *ClaimManager) IsPermitted(toolName string, params json.RawMessage) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sudo {
		return true
	}
	if _, ok := c.claims[claimKey{tool: toolName, fingerprint: fingerprint(params)}]; ok {
		return true
	}
	_, ok := c.claims[claimKey{tool: toolName, fingerprint: alwaysFingerprint}]
	return ok
}

// GrantOne records a grant for this exact tool call's fingerprint. The
// grant is not consumed: later calls with the same parameters are also
// permitted, while calls with other parameters are not.
func (c *ClaimManager) GrantOne(toolName string, params json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := claimKey{tool: toolName, fingerprint: fingerprint(params)}
	if _, exists := c.claims[key]; !exists {
		c.claims[key] = scopeOnce
	}
}

// GrantAlways records a persistent grant covering every future call to
// toolName regardless of parameters, per spec.md's always(tool) semantics.
func (c *ClaimManager) GrantAlways(toolName string, params json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims[claimKey{tool: toolName, fingerprint: alwaysFingerprint}] = scopeAlways
}

// fingerprint produces a deterministic, canonical-JSON hash of params so
// that key-order differences in equivalent JSON objects never cause a
// spurious cache miss. Canonicalization is done by unmarshaling into a
// generic value and re-marshaling map keys in sorted order.
func fingerprint(params json.RawMessage) string {
	canon := canonicalize(params)
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

func canonicalize(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not valid JSON; fall back to the raw bytes so fingerprinting
		// still succeeds deterministically for whatever was passed.
		return raw
	}
	out, err := json.Marshal(canonicalValue(v))
	if err != nil {
		return raw
	}
	return out
}

// canonicalValue rewrites maps into sorted key-value pair slices so that
// json.Marshal's (already-sorted, but explicit here for clarity and to
// cover nested maps) output is stable regardless of input key order.
func canonicalValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]canonicalPair, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, canonicalPair{Key: k, Value: canonicalValue(t[k])})
		}
		return pairs
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalValue(e)
		}
		return out
	default:
		return t
	}
}

type canonicalPair struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}
