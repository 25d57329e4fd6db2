package optstree

import (
	"fmt"

	"github.com/hyperifyio/optspipe/internal/opts"
)

// DefaultMaxDepth is the nesting depth of tool name -> version key.
const DefaultMaxDepth = 2

// UpdateConfig controls how a fragment is walked across a Tree.
type UpdateConfig struct {
	Policy opts.Policy
	// MaxDepth is the deepest branch level. Keys whose contents would sit
	// below it are data keys.
	MaxDepth int
	// IsVersionKey recognises capability-version keys. Nil matches nothing.
	IsVersionKey func(string) bool
}

// Update applies one fragment across the tree in place. Flat entries of the
// fragment form a background layer that reaches every data node below; map
// valued entries are routed to the matching branch or node.
//
// A data node that already exists and is named in the fragment is
// overridden with the fragment's value for it only. The background is
// merged only into nodes that the fragment does not name, and into nodes
// created by this update.
func Update(t *Tree, fragment any, cfg UpdateConfig) error {
	switch f := fragment.(type) {
	case nil:
		return nil
	case []any:
		for _, each := range f {
			if err := Update(t, each, cfg); err != nil {
				return err
			}
		}
		return nil
	case opts.File:
		if f == "" {
			return nil
		}
		doc, err := opts.LoadFile(string(f))
		if err != nil {
			return err
		}
		u := updater{cfg: cfg, fromFile: true}
		return u.branch(t.data, doc, nil, 1)
	case *Tree:
		if f == nil {
			return nil
		}
		fragment = f.Ordered()
	}
	doc, ok := opts.ToOrdered(fragment)
	if !ok {
		if cfg.Policy.Strict {
			return nil
		}
		return fmt.Errorf("optstree: unsupported fragment %T", fragment)
	}
	u := updater{cfg: cfg}
	return u.branch(t.data, doc, nil, 1)
}

// ApplyAll applies fragments left to right. The update settings are read
// from the tree's metas before each fragment, so a fragment may change how
// later ones are merged.
func ApplyAll(t *Tree, fragments []any) error {
	for _, f := range fragments {
		if err := Update(t, f, t.UpdateConfig()); err != nil {
			return err
		}
	}
	return nil
}

type field struct {
	key   string
	value any
}

type updater struct {
	cfg      UpdateConfig
	fromFile bool
}

func (u updater) override(n *opts.Node, fragment any) (*opts.Node, error) {
	if u.fromFile {
		return opts.OverrideFile(n, fragment, u.cfg.Policy)
	}
	return opts.Override(n, fragment, u.cfg.Policy)
}

func (u updater) isData(key string, depth int, existing, value any) bool {
	if key == KeyMetas || key == KeyOptions {
		return true
	}
	if depth+1 > u.cfg.MaxDepth {
		return true
	}
	if u.cfg.IsVersionKey != nil && u.cfg.IsVersionKey(key) {
		return true
	}
	if _, ok := existing.(*opts.Node); ok {
		return true
	}
	_, ok := value.(*opts.Node)
	return ok
}

// branch walks one level. inherited is the background collected above.
func (u updater) branch(dst, frag *opts.Ordered, inherited []field, depth int) error {
	background := append([]field(nil), inherited...)
	nested := opts.NewOrdered()
	for pair := frag.Oldest(); pair != nil; pair = pair.Next() {
		if opts.IsMapLike(pair.Value) {
			nested.Set(pair.Key, pair.Value)
			continue
		}
		background = overlay(background, pair.Key, pair.Value)
	}

	for _, key := range walkOrder(dst, nested) {
		existing, exists := dst.Get(key)
		value, named := nested.Get(key)
		if u.isData(key, depth, existing, value) {
			if err := u.leaf(dst, key, existing, value, named, background); err != nil {
				return err
			}
			continue
		}
		child, isBranch := existing.(*opts.Ordered)
		if exists && !isBranch {
			// scalar parked at branch level; nothing to descend into
			continue
		}
		created := !exists
		if created {
			child = opts.NewOrdered()
		}
		sub := opts.NewOrdered()
		if named {
			sub, _ = opts.ToOrdered(value)
		}
		if err := u.branch(child, sub, background, depth+1); err != nil {
			return err
		}
		if created && child.Len() > 0 {
			dst.Set(key, child)
		}
	}
	return nil
}

func (u updater) leaf(dst *opts.Ordered, key string, existing, value any, named bool, background []field) error {
	if node, ok := existing.(*opts.Node); ok {
		var (
			next *opts.Node
			err  error
		)
		if named {
			next, err = u.override(node, value)
		} else if len(background) > 0 {
			next, err = u.override(node, fieldsOrdered(background))
		} else {
			return nil
		}
		if err != nil {
			return fmt.Errorf("optstree: %s: %w", key, err)
		}
		if next != node {
			dst.Set(key, next)
		}
		return nil
	}
	if !named {
		return nil
	}
	om, ok := opts.ToOrdered(value)
	if !ok {
		return nil
	}
	fields := opts.NewOrdered()
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		if !opts.IsReserved(pair.Key) {
			fields.Set(pair.Key, pair.Value)
		}
	}
	for _, f := range background {
		if _, ok := fields.Get(f.key); !ok {
			fields.Set(f.key, f.value)
		}
	}
	name := key
	if n, ok := value.(*opts.Node); ok {
		name = n.Name()
	}
	dst.Set(key, opts.FromOrdered(name, fields))
	return nil
}

// walkOrder lists the keys present in dst, then keys only the fragment has.
func walkOrder(dst, nested *opts.Ordered) []string {
	keys := make([]string, 0, dst.Len()+nested.Len())
	for pair := dst.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	for pair := nested.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := dst.Get(pair.Key); !ok {
			keys = append(keys, pair.Key)
		}
	}
	return keys
}

func overlay(fields []field, key string, value any) []field {
	for i := range fields {
		if fields[i].key == key {
			fields[i].value = value
			return fields
		}
	}
	return append(fields, field{key: key, value: value})
}

func fieldsOrdered(fields []field) *opts.Ordered {
	om := opts.NewOrdered()
	for _, f := range fields {
		om.Set(f.key, f.value)
	}
	return om
}
