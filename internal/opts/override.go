package opts

import (
	"errors"
	"reflect"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
)

// File is a fragment naming a configuration file to be parsed and applied.
type File string

// FileLoader parses a configuration file into a nested, ordered map.
type FileLoader func(path string) (*Ordered, error)

var (
	fileLoaderMu sync.RWMutex
	fileLoader   FileLoader
)

// RegisterFileLoader installs the parser used for File fragments.
func RegisterFileLoader(fn FileLoader) {
	fileLoaderMu.Lock()
	defer fileLoaderMu.Unlock()
	fileLoader = fn
}

// LoadFile parses path with the registered FileLoader.
func LoadFile(path string) (*Ordered, error) {
	fileLoaderMu.RLock()
	fn := fileLoader
	fileLoaderMu.RUnlock()
	if fn == nil {
		return nil, ErrNoFileLoader
	}
	return fn(path)
}

type entry struct {
	key   string
	value any
}

// Override returns a new Node built from lesser with the values of fragment
// applied on top. The fragment may be nil, a map[string]any, an *Ordered, a
// *Node, a File, or a []any of fragments applied left to right. Fragments
// that carry nothing return lesser itself.
func Override(lesser *Node, fragment any, policy Policy) (*Node, error) {
	return override(lesser, fragment, policy, false)
}

// OverrideFile is Override for values that were read from an option file:
// Tuple fields are left alone.
func OverrideFile(lesser *Node, fragment any, policy Policy) (*Node, error) {
	return override(lesser, fragment, policy, true)
}

// OverrideAll applies fragments in order; later fragments win.
func OverrideAll(lesser *Node, fragments []any, policy Policy) (*Node, error) {
	return overrideAll(lesser, fragments, policy, false)
}

func overrideAll(lesser *Node, fragments []any, policy Policy, fromFile bool) (*Node, error) {
	node := lesser
	for _, f := range fragments {
		next, err := override(node, f, policy, fromFile)
		if err != nil {
			return node, err
		}
		node = next
	}
	return node, nil
}

func override(lesser *Node, fragment any, policy Policy, fromFile bool) (*Node, error) {
	if lesser == nil {
		return nil, errors.New("opts: override of nil node")
	}
	switch f := fragment.(type) {
	case nil:
		return lesser, nil
	case []any:
		return overrideAll(lesser, f, policy, fromFile)
	case map[string]any:
		return overrideEntries(lesser, mapEntries(f), policy, fromFile)
	case *Ordered:
		if f == nil {
			return lesser, nil
		}
		return overrideEntries(lesser, orderedEntries(f), policy, fromFile)
	case *Node:
		if f == nil {
			return lesser, nil
		}
		if policy.Strict && !lesser.SameShape(f) {
			log.Debug().Str("node", lesser.Name()).Str("fragment", f.Name()).Msg("strict override skipped node of another shape")
			return lesser, nil
		}
		return overrideEntries(lesser, f.entries(), policy, fromFile)
	case File:
		if f == "" {
			return lesser, nil
		}
		om, err := LoadFile(string(f))
		if err != nil {
			return lesser, err
		}
		return overrideEntries(lesser, orderedEntries(om), policy, true)
	}
	if policy.Strict {
		log.Debug().Str("node", lesser.Name()).Type("fragment", fragment).Msg("strict override skipped fragment of unknown kind")
		return lesser, nil
	}
	m, ok := decodeStruct(fragment)
	if !ok {
		return lesser, nil
	}
	return overrideEntries(lesser, mapEntries(m), policy, fromFile)
}

func overrideEntries(lesser *Node, entries []entry, policy Policy, fromFile bool) (*Node, error) {
	if len(entries) == 0 {
		return lesser, nil
	}
	staged := make([]entry, 0, len(entries))
	for _, e := range entries {
		if IsReserved(e.key) {
			continue
		}
		old, exists := lesser.Get(e.key)
		if !exists && !policy.AddNewFields {
			continue
		}
		val := e.value
		if exists {
			if _, isTuple := old.(Tuple); isTuple && fromFile {
				log.Debug().Str("node", lesser.Name()).Str("field", e.key).Msg("tuple field is read-only for file sources")
				continue
			}
			if sub, ok := old.(*Node); ok && IsMapLike(val) {
				merged, err := override(sub, val, policy, fromFile)
				if err != nil {
					return lesser, err
				}
				staged = append(staged, entry{key: e.key, value: merged})
				continue
			}
			if policy.Delistify {
				val = delistify(old, val)
			}
			if policy.CheckTypes && !compatible(old, val) {
				err := &TypeMismatchError{Node: lesser.Name(), Field: e.key, Expected: TypeName(old), Value: val}
				if policy.Hush {
					log.Warn().Err(err).Msg("skipping mistyped override")
					continue
				}
				return lesser, err
			}
		}
		staged = append(staged, entry{key: e.key, value: val})
	}
	if len(staged) == 0 {
		return lesser, nil
	}
	return lesser.with(staged), nil
}

// IsMapLike reports whether v is one of the nested fragment kinds.
func IsMapLike(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return true
	case *Ordered:
		return t != nil
	case *Node:
		return t != nil
	}
	return false
}

func mapEntries(m map[string]any) []entry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, entry{key: k, value: m[k]})
	}
	return out
}

func orderedEntries(om *Ordered) []entry {
	out := make([]entry, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, entry{key: pair.Key, value: pair.Value})
	}
	return out
}

// decodeStruct turns a struct (or pointer to one) into a field map using
// mapstructure tags.
func decodeStruct(v any) (map[string]any, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	out := map[string]any{}
	if err := mapstructure.Decode(rv.Interface(), &out); err != nil {
		log.Debug().Err(err).Msg("fragment struct decode failed")
		return nil, false
	}
	return out, true
}

// ToOrdered normalises any map-like fragment into an *Ordered. Plain maps
// are ordered by key. ok is false for other kinds.
func ToOrdered(v any) (*Ordered, bool) {
	switch t := v.(type) {
	case *Ordered:
		if t == nil {
			return nil, false
		}
		return t, true
	case map[string]any:
		om := NewOrdered()
		for _, e := range mapEntries(t) {
			om.Set(e.key, e.value)
		}
		return om, true
	case *Node:
		if t == nil {
			return nil, false
		}
		return t.Ordered(), true
	}
	return nil, false
}
