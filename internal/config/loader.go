package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey is the map key a config file uses to pull in other files
// before its own keys are applied, child values overriding parent ones.
const includeKey = "$include"

// Load reads path, resolves $include chains, applies env-var expansion, and
// strictly decodes the merged document into a Config seeded from Defaults().
func Load(path string) (Config, error) {
	raw, err := loadRawRecursive(path, make(map[string]bool))
	if err != nil {
		return Config{}, err
	}
	return decodeRawConfig(raw)
}

// loadRawRecursive reads path and recursively merges any $include targets,
// detecting cycles via seen (keyed by absolute path).
func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path %s: %w", path, err)
	}
	if seen[abs] {
		return nil, fmt.Errorf("config: include cycle at %s", abs)
	}
	seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", abs, err)
	}
	expanded := os.ExpandEnv(string(data))

	raw, err := parseRawBytes(abs, []byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", abs, err)
	}

	includes := extractIncludes(raw)
	merged := make(map[string]any)
	for _, includePath := range includes {
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(filepath.Dir(abs), includePath)
		}
		included, err := loadRawRecursive(includePath, seen)
		if err != nil {
			return nil, err
		}
		mergeMaps(merged, included)
	}
	mergeMaps(merged, raw)
	return merged, nil
}

// parseRawBytes dispatches by file extension: .json/.json5 via json5,
// anything else via a single-document YAML decode.
func parseRawBytes(path string, data []byte) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(path))
	raw := make(map[string]any)

	if ext == ".json" || ext == ".json5" {
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("json5 decode: %w", err)
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return raw, nil
		}
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	var extra struct{}
	if err := decoder.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("multiple YAML documents not supported")
	}
	return raw, nil
}

// extractIncludes pulls $include (string or []string/[]any) out of raw and
// deletes the key so it never reaches the typed decode step.
func extractIncludes(raw map[string]any) []string {
	v, ok := raw[includeKey]
	if !ok {
		return nil
	}
	delete(raw, includeKey)

	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// mergeMaps recursively merges src into dst; nested maps merge key by key,
// any other value in src overrides dst outright.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if srcChild, ok := v.(map[string]any); ok {
			if dstChild, ok := dst[k].(map[string]any); ok {
				mergeMaps(dstChild, srcChild)
				continue
			}
		}
		dst[k] = v
	}
}

// decodeRawConfig re-marshals merged to YAML and strictly decodes it onto a
// Defaults()-seeded Config, rejecting unknown fields.
func decodeRawConfig(merged map[string]any) (Config, error) {
	cfg := Defaults()

	yamlBytes, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, fmt.Errorf("config: re-marshal merged document: %w", err)
	}

	decoder := yaml.NewDecoder(strings.NewReader(string(yamlBytes)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: strict decode: %w", err)
	}
	return cfg, nil
}
