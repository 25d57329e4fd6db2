package opts

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Ordered is the insertion-ordered string-keyed map used for nested
// fragments and for the internal storage of a Node.
type Ordered = orderedmap.OrderedMap[string, any]

// NewOrdered returns an empty Ordered map.
func NewOrdered() *Ordered {
	return orderedmap.New[string, any]()
}

// Field is a single named value of a Node, used when declaring schemas.
type Field struct {
	Name  string
	Value any
}

// Schema declares a fixed, ordered field set together with default values.
// A Schema is declared once and turned into Nodes with Node.
type Schema []Field

// Node returns a new Node with the schema's fields and defaults.
func (s Schema) Node(name string) *Node {
	return New(name, s...)
}

// Tuple is a fixed multi-value field. File sources never override it.
type Tuple []any

// Node is an immutable record with a fixed, ordered set of named fields.
// Changing a Node always produces a new Node; the field set only changes
// when a new Node is built from a merged field map.
type Node struct {
	name string
	data *Ordered
}

// New builds a Node from fields in the given order. A repeated field name
// keeps its first position and its last value.
func New(name string, fields ...Field) *Node {
	data := NewOrdered()
	for _, f := range fields {
		data.Set(f.Name, f.Value)
	}
	return &Node{name: name, data: data}
}

// FromMap builds a Node from a plain map. Field order is the sorted key order
// since Go maps carry none.
func FromMap(name string, m map[string]any) *Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := NewOrdered()
	for _, k := range keys {
		data.Set(k, m[k])
	}
	return &Node{name: name, data: data}
}

// FromOrdered builds a Node whose field order follows om.
func FromOrdered(name string, om *Ordered) *Node {
	data := NewOrdered()
	if om != nil {
		for pair := om.Oldest(); pair != nil; pair = pair.Next() {
			data.Set(pair.Key, pair.Value)
		}
	}
	return &Node{name: name, data: data}
}

// Name returns the record type name used in error messages.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	return n.name
}

// Fields returns the field names in declaration order.
func (n *Node) Fields() []string {
	if n == nil || n.data == nil {
		return nil
	}
	out := make([]string, 0, n.data.Len())
	for pair := n.data.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Len returns the number of fields.
func (n *Node) Len() int {
	if n == nil || n.data == nil {
		return 0
	}
	return n.data.Len()
}

// Has reports whether key is one of the node's fields.
func (n *Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Get returns the value stored for key.
func (n *Node) Get(key string) (any, bool) {
	if n == nil || n.data == nil {
		return nil, false
	}
	return n.data.Get(key)
}

// Value returns the value stored for key or nil.
func (n *Node) Value(key string) any {
	v, _ := n.Get(key)
	return v
}

// SameShape reports whether both nodes have the same field-name set,
// ignoring order.
func (n *Node) SameShape(other *Node) bool {
	if n.Len() != other.Len() {
		return false
	}
	for _, k := range n.Fields() {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// Map returns a shallow copy of the fields as a plain map.
func (n *Node) Map() map[string]any {
	out := make(map[string]any, n.Len())
	if n == nil || n.data == nil {
		return out
	}
	for pair := n.data.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// Ordered returns a shallow, order-preserving copy of the fields.
func (n *Node) Ordered() *Ordered {
	out := NewOrdered()
	if n == nil || n.data == nil {
		return out
	}
	for pair := n.data.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

// Equal reports whether both nodes hold the same fields in the same order
// with deeply equal values.
func (n *Node) Equal(other *Node) bool {
	if n == other {
		return true
	}
	if n.Len() != other.Len() {
		return false
	}
	a, b := n.Fields(), other.Fields()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
		av, bv := n.Value(a[i]), other.Value(b[i])
		if an, ok := av.(*Node); ok {
			bn, ok := bv.(*Node)
			if !ok || !an.Equal(bn) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	parts := make([]string, 0, n.Len())
	for pair := n.data.Oldest(); pair != nil; pair = pair.Next() {
		parts = append(parts, fmt.Sprintf("%s=%v", pair.Key, pair.Value))
	}
	return n.name + "(" + strings.Join(parts, ", ") + ")"
}

// with returns a new Node holding n's fields overlaid with staged values.
// Staged keys unknown to n are appended in staged order.
func (n *Node) with(staged []entry) *Node {
	data := n.Ordered()
	for _, e := range staged {
		data.Set(e.key, e.value)
	}
	return &Node{name: n.name, data: data}
}

func (n *Node) entries() []entry {
	out := make([]entry, 0, n.Len())
	for pair := n.data.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, entry{key: pair.Key, value: pair.Value})
	}
	return out
}

// Bool returns the boolean stored under key, or false.
func (n *Node) Bool(key string) bool {
	b, _ := n.Value(key).(bool)
	return b
}

// Str returns the string stored under key, or "".
func (n *Node) Str(key string) string {
	switch v := n.Value(key).(type) {
	case string:
		return v
	case File:
		return string(v)
	}
	return ""
}

// Int returns the integer stored under key, or 0. Floats are truncated.
func (n *Node) Int(key string) int {
	rv := reflect.ValueOf(n.Value(key))
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return int(rv.Float())
	}
	return 0
}

// Float returns the number stored under key as float64, or 0.
func (n *Node) Float(key string) float64 {
	rv := reflect.ValueOf(n.Value(key))
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	}
	return 0
}

// Strings returns the list stored under key as strings. A lone string is
// returned as a one-element list.
func (n *Node) Strings(key string) []string {
	return toStrings(n.Value(key))
}

// Sub returns the nested Node stored under key.
func (n *Node) Sub(key string) (*Node, bool) {
	sub, ok := n.Value(key).(*Node)
	return sub, ok
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, fmt.Sprint(rv.Index(i).Interface()))
	}
	return out
}
