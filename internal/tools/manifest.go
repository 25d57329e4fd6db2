package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hyperifyio/optspipe/internal/opts"
)

// Spec describes one capability from the manifest. Exactly one of Command
// (an external program, argv entries are templates) and Script (JavaScript
// run in process) is set.
type Spec struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Command     []string `json:"command,omitempty"`
	Script      string   `json:"script,omitempty"`
	Inputs      []string `json:"inputs,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
	// Options are the tool's own defaults, stored in the options tree under
	// the tool name and the active version key on first use.
	Options *opts.Ordered `json:"options,omitempty"`
	// EnvPassthrough is an allowlist of environment variable names passed
	// from the parent process. Names are upper-cased, trimmed, validated
	// against [A-Z_][A-Z0-9_]* and de-duplicated keeping first occurrence.
	EnvPassthrough []string `json:"envPassthrough,omitempty"`
}

// Defaults returns the option defaults as a Node named after the tool.
func (s Spec) Defaults() *opts.Node {
	return opts.FromOrdered(s.Name, s.Options)
}

// Manifest is the parsed capability list.
type Manifest struct {
	Tools []Spec `json:"tools"`

	byName map[string]int
}

// Lookup returns the spec for name.
func (m *Manifest) Lookup(name string) (Spec, bool) {
	if m == nil {
		return Spec{}, false
	}
	i, ok := m.byName[name]
	if !ok {
		return Spec{}, false
	}
	return m.Tools[i], true
}

// Names lists the capability names in manifest order.
func (m *Manifest) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Tools))
	for _, t := range m.Tools {
		out = append(out, t.Name)
	}
	return out
}

// LoadManifest reads a JSON capability manifest. Relative program paths are
// validated and resolved against the manifest's directory so they do not
// depend on the process working directory; bare program names are left for
// PATH lookup.
func LoadManifest(manifestPath string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	man.byName = make(map[string]int, len(man.Tools))
	manifestDir := filepath.Dir(manifestPath)
	for i := range man.Tools {
		t := &man.Tools[i]
		if t.Name == "" {
			return nil, fmt.Errorf("tool[%d]: name is required", i)
		}
		if _, ok := man.byName[t.Name]; ok {
			return nil, fmt.Errorf("tool[%d] %q: duplicate name", i, t.Name)
		}
		man.byName[t.Name] = i
		switch {
		case len(t.Command) == 0 && t.Script == "":
			return nil, fmt.Errorf("tool[%d] %q: one of command or script is required", i, t.Name)
		case len(t.Command) > 0 && t.Script != "":
			return nil, fmt.Errorf("tool[%d] %q: command and script are exclusive", i, t.Name)
		}
		if len(t.EnvPassthrough) > 0 {
			norm, err := normalizeEnvAllowlist(t.EnvPassthrough)
			if err != nil {
				return nil, fmt.Errorf("tool[%d] %q: %v", i, t.Name, err)
			}
			t.EnvPassthrough = norm
		}
		if t.Options == nil {
			t.Options = opts.NewOrdered()
		}
		for pair := t.Options.Oldest(); pair != nil; pair = pair.Next() {
			pair.Value = normalizeJSON(pair.Value)
		}
		if len(t.Command) > 0 {
			resolved, err := resolveProgram(manifestDir, t.Command[0])
			if err != nil {
				return nil, fmt.Errorf("tool[%d] %q: %v", i, t.Name, err)
			}
			t.Command[0] = resolved
		}
	}
	return &man, nil
}

// resolveProgram validates command[0]. Absolute paths and bare names are
// kept; other relative paths must stay inside the manifest directory and
// are made absolute.
func resolveProgram(manifestDir, cmd0 string) (string, error) {
	if cmd0 == "" {
		return "", fmt.Errorf("command[0] is empty")
	}
	if filepath.IsAbs(cmd0) {
		return cmd0, nil
	}
	raw := strings.ReplaceAll(cmd0, "\\", "/")
	if !strings.Contains(raw, "/") {
		return cmd0, nil
	}
	norm := path.Clean(raw)
	if norm == ".." || strings.HasPrefix(norm, "../") {
		return "", fmt.Errorf("command[0] must not escape the manifest directory (got %q)", cmd0)
	}
	abs, err := filepath.Abs(filepath.Join(manifestDir, filepath.FromSlash(norm)))
	if err != nil {
		return "", fmt.Errorf("resolve command[0]: %v", err)
	}
	return abs, nil
}

// normalizeJSON turns integral JSON numbers into ints so manifest defaults
// type-check against integer overrides.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	}
	return v
}

// normalizeEnvAllowlist normalizes, validates, and de-duplicates environment
// variable names. Order of first occurrence is preserved.
func normalizeEnvAllowlist(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for idx, k := range keys {
		trimmed := strings.TrimSpace(k)
		if trimmed == "" {
			return nil, fmt.Errorf("envPassthrough[%d]: empty name", idx)
		}
		upper := strings.ToUpper(trimmed)
		if !isValidEnvName(upper) {
			return nil, fmt.Errorf("envPassthrough[%d]: invalid name %q (must match [A-Z_][A-Z0-9_]*)", idx, k)
		}
		if _, ok := seen[upper]; ok {
			continue
		}
		seen[upper] = struct{}{}
		out = append(out, upper)
	}
	return out, nil
}

func isValidEnvName(s string) bool {
	if len(s) == 0 {
		return false
	}
	c := s[0]
	if !((c >= 'A' && c <= 'Z') || c == '_') {
		return false
	}
	for i := 1; i < len(s); i++ {
		c = s[i]
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}
