package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// LoadRaw reads a config file into a merged key tree. Files may name
// other files under an "include" key; included files are loaded first
// and the including file's keys win on conflict. Environment variables
// in the file body are expanded before parsing.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	return loadMerged(path, map[string]bool{})
}

func loadMerged(path string, visiting map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visiting[abs] {
		return nil, fmt.Errorf("config include cycle through %s", abs)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	body, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	tree, err := parseTree([]byte(os.ExpandEnv(string(body))), abs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	includes, err := popIncludes(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := loadMerged(inc, visiting)
		if err != nil {
			return nil, err
		}
		out = deepMerge(out, sub)
	}
	return deepMerge(out, tree), nil
}

func parseTree(body []byte, pathHint string) (map[string]any, error) {
	tree := map[string]any{}
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(body, &tree); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(body))
		if err := dec.Decode(&tree); err != nil && err != io.EOF {
			return nil, err
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, errors.New("expected a single document")
		}
	}
	return tree, nil
}

func popIncludes(tree map[string]any) ([]string, error) {
	val, ok := tree["include"]
	if !ok {
		return nil, nil
	}
	delete(tree, "include")
	switch v := val.(type) {
	case string:
		return []string{v}, nil
	case []any:
		paths := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, errors.New("include entries must be strings")
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, errors.New("include must be a string or list of strings")
	}
}

// deepMerge overlays src on dst, recursing into nested maps so an
// including file can override a single leaf without clobbering whole
// sections.
func deepMerge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				dst[k] = deepMerge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// decodeRaw funnels the merged tree through a strict YAML decode so
// unknown keys are reported instead of silently ignored.
func decodeRaw(tree map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
