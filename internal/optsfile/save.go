package optsfile

import (
	"bytes"
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Save writes doc to path in the format implied by the extension. Values
// that cannot be represented in an option file are dropped first (see
// Strip). The write is atomic and the file is created with 0600 perms.
func Save(path string, doc *opts.Ordered) error {
	data, err := Encode(filepath.Ext(path), doc)
	if err != nil {
		return &opts.ConfigFileError{Path: path, Err: err}
	}
	if err := replaceFile(path, data); err != nil {
		return &opts.ConfigFileError{Path: path, Err: err}
	}
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("options saved")
	return nil
}

// Encode renders doc, stripped, as TOML or YAML. format is a file
// extension with or without the dot.
func Encode(format string, doc *opts.Ordered) ([]byte, error) {
	clean := Strip(doc)
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "toml":
		return encodeTOML(clean)
	case "yaml", "yml":
		return encodeYAML(clean)
	}
	return nil, ErrUnsupportedFormat
}

// Strip returns a copy of doc holding only values an option file can carry:
// bools, strings, numbers, lists of those, and nested tables. Nodes become
// tables. Tuples, nil placeholders and anything else are removed, as are
// tables left empty.
func Strip(doc *opts.Ordered) *opts.Ordered {
	out := opts.NewOrdered()
	if doc == nil {
		return out
	}
	for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
		if v, ok := serializable(pair.Value); ok {
			out.Set(pair.Key, v)
		}
	}
	return out
}

func serializable(v any) (any, bool) {
	switch t := v.(type) {
	case nil, opts.Tuple:
		return nil, false
	case bool, string:
		return t, true
	case opts.File:
		return string(t), true
	case *opts.Node:
		if t == nil {
			return nil, false
		}
		return table(t.Ordered())
	case *opts.Ordered:
		if t == nil {
			return nil, false
		}
		return table(t)
	case map[string]any:
		om, _ := opts.ToOrdered(t)
		return table(om)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return rv.String(), true
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, ok := serializable(rv.Index(i).Interface())
			if !ok {
				return nil, false
			}
			if _, isTable := e.(*opts.Ordered); isTable {
				return nil, false
			}
			out = append(out, e)
		}
		return out, true
	}
	return nil, false
}

func table(om *opts.Ordered) (any, bool) {
	clean := Strip(om)
	if clean.Len() == 0 {
		return nil, false
	}
	return clean, true
}

var bareKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func tomlKey(k string) string {
	if bareKey.MatchString(k) {
		return k
	}
	return strconv.Quote(k)
}

// encodeTOML emits tables in document order. Each value is rendered by the
// TOML encoder; only the layout of headers and keys is done here.
func encodeTOML(doc *opts.Ordered) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeTOMLTable(&buf, nil, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTOMLTable(buf *bytes.Buffer, path []string, t *opts.Ordered) error {
	var subs []string
	leaves := 0
	for pair := t.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := pair.Value.(*opts.Ordered); ok {
			subs = append(subs, pair.Key)
			continue
		}
		if leaves == 0 && len(path) > 0 {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			fmt.Fprintf(buf, "[%s]\n", tomlPath(path))
		}
		leaves++
		line, err := toml.Marshal(map[string]any{pair.Key: pair.Value})
		if err != nil {
			return fmt.Errorf("encode %s: %w", pair.Key, err)
		}
		buf.Write(line)
	}
	for _, k := range subs {
		v, _ := t.Get(k)
		if err := writeTOMLTable(buf, append(append([]string(nil), path...), k), v.(*opts.Ordered)); err != nil {
			return err
		}
	}
	return nil
}

func tomlPath(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = tomlKey(p)
	}
	return strings.Join(parts, ".")
}

func encodeYAML(doc *opts.Ordered) ([]byte, error) {
	root := toYAMLNode(doc)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toYAMLNode(v any) *yaml.Node {
	switch t := v.(type) {
	case *opts.Ordered:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: pair.Key},
				toYAMLNode(pair.Value))
		}
		return n
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range t {
			n.Content = append(n.Content, toYAMLNode(e))
		}
		return n
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(v)}
	}
	return n
}
