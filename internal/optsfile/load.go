// Package optsfile reads and writes option files. TOML and YAML documents
// are parsed into insertion-ordered nested maps so that field order survives
// a round trip through the options tree.
package optsfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hyperifyio/optspipe/internal/opts"
	"gopkg.in/yaml.v3"
)

// DefaultSection holds entries that apply globally. Its keys are hoisted to
// the top level of the loaded document.
const DefaultSection = "DEFAULT"

// ErrUnsupportedFormat is returned for file extensions with no codec.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

func init() {
	opts.RegisterFileLoader(Load)
}

// Load parses the file at path, choosing the codec from its extension.
// Errors are reported as *opts.ConfigFileError; a missing file wraps
// fs.ErrNotExist.
func Load(path string) (*opts.Ordered, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &opts.ConfigFileError{Path: path, Err: err}
	}
	var doc *opts.Ordered
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		doc, err = parseTOML(data)
	case ".yaml", ".yml":
		doc, err = parseYAML(data)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &opts.ConfigFileError{Path: path, Err: err}
	}
	return hoistDefault(doc), nil
}

// hoistDefault moves DEFAULT entries to the top level. Explicit top-level
// keys win over DEFAULT ones.
func hoistDefault(doc *opts.Ordered) *opts.Ordered {
	raw, ok := doc.Get(DefaultSection)
	if !ok {
		return doc
	}
	section, ok := raw.(*opts.Ordered)
	if !ok {
		return doc
	}
	out := opts.NewOrdered()
	for pair := section.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == DefaultSection {
			continue
		}
		out.Set(pair.Key, pair.Value)
	}
	return out
}

func parseTOML(data []byte) (*opts.Ordered, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}
	doc := opts.NewOrdered()
	for _, key := range md.Keys() {
		val, ok := lookup(raw, key)
		if !ok {
			continue
		}
		parent := ensureTable(doc, key[:len(key)-1])
		if parent == nil {
			continue
		}
		leaf := key[len(key)-1]
		if _, isTable := val.(map[string]any); isTable {
			if ensureTable(parent, []string{leaf}) == nil {
				return nil, fmt.Errorf("key %s redefined as a table", key.String())
			}
			continue
		}
		parent.Set(leaf, normalize(val))
	}
	return doc, nil
}

// lookup follows path through nested decoded tables.
func lookup(raw map[string]any, path []string) (any, bool) {
	var cur any = raw
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ensureTable walks path from doc, creating ordered tables as needed. It
// returns nil when a non-table value is in the way.
func ensureTable(doc *opts.Ordered, path []string) *opts.Ordered {
	cur := doc
	for _, k := range path {
		next, ok := cur.Get(k)
		if !ok {
			child := opts.NewOrdered()
			cur.Set(k, child)
			cur = child
			continue
		}
		child, ok := next.(*opts.Ordered)
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

// normalize converts decoder-specific scalar types into the ones used by
// option defaults.
func normalize(v any) any {
	switch t := v.(type) {
	case int64:
		return int(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case map[string]any:
		om, _ := opts.ToOrdered(t)
		for pair := om.Oldest(); pair != nil; pair = pair.Next() {
			pair.Value = normalize(pair.Value)
		}
		return om
	}
	return v
}

func parseYAML(data []byte) (*opts.Ordered, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return opts.NewOrdered(), nil
	}
	v, err := fromYAMLNode(root.Content[0])
	if err != nil {
		return nil, err
	}
	if v == nil {
		return opts.NewOrdered(), nil
	}
	doc, ok := v.(*opts.Ordered)
	if !ok {
		return nil, fmt.Errorf("top level must be a mapping, got %s", opts.TypeName(v))
	}
	return doc, nil
}

func fromYAMLNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	case yaml.MappingNode:
		om := opts.NewOrdered()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			v, err := fromYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			om.Set(k, v)
		}
		return om, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromYAMLNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
