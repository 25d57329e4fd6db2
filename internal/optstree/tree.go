// Package optstree holds the options tree: the metas and options nodes plus
// per tool, per capability-version leaves. It applies override fragments
// across the whole tree and decides, per call site, whether the process-wide
// tree is shared or copied.
package optstree

import (
	"fmt"

	"github.com/hyperifyio/optspipe/internal/opts"
)

// Tree is an ordered mapping whose "metas" and "options" keys always hold
// Nodes. Other keys hold a branch (tool name -> version key -> Node) or a
// pass-through Node. A Tree is not safe for concurrent use; see Shared.
type Tree struct {
	data *opts.Ordered
}

// New returns a tree holding only metas and options.
func New(metas, options *opts.Node) *Tree {
	data := opts.NewOrdered()
	data.Set(KeyMetas, metas)
	data.Set(KeyOptions, options)
	return &Tree{data: data}
}

// Default returns a tree built from the hardcoded schemas.
func Default() *Tree {
	return New(DefaultMetas(), DefaultOptions())
}

func (t *Tree) Metas() *opts.Node {
	v, _ := t.data.Get(KeyMetas)
	n, _ := v.(*opts.Node)
	return n
}

func (t *Tree) Options() *opts.Node {
	v, _ := t.data.Get(KeyOptions)
	n, _ := v.(*opts.Node)
	return n
}

// Keys lists the top-level keys in order.
func (t *Tree) Keys() []string {
	out := make([]string, 0, t.data.Len())
	for pair := t.data.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Get returns the raw value under a top-level key: a *opts.Node or a
// branch (*opts.Ordered).
func (t *Tree) Get(key string) (any, bool) {
	return t.data.Get(key)
}

// SetNode binds a pass-through Node at a top-level key.
func (t *Tree) SetNode(key string, n *opts.Node) {
	t.data.Set(key, n)
}

// Leaf returns the Node stored for tool under version.
func (t *Tree) Leaf(tool, version string) (*opts.Node, bool) {
	raw, _ := t.data.Get(tool)
	branch, ok := raw.(*opts.Ordered)
	if !ok {
		return nil, false
	}
	leaf, _ := branch.Get(version)
	n, ok := leaf.(*opts.Node)
	return n, ok
}

// SetLeaf stores n for tool under version, creating the tool branch when
// needed. It fails when the tool key already holds something other than a
// branch.
func (t *Tree) SetLeaf(tool, version string, n *opts.Node) error {
	if IsReservedName(tool) {
		return fmt.Errorf("optstree: %q is reserved", tool)
	}
	raw, ok := t.data.Get(tool)
	if !ok {
		branch := opts.NewOrdered()
		branch.Set(version, n)
		t.data.Set(tool, branch)
		return nil
	}
	branch, ok := raw.(*opts.Ordered)
	if !ok {
		return fmt.Errorf("optstree: %q is not a tool branch", tool)
	}
	branch.Set(version, n)
	return nil
}

// EnsureLeaf returns the leaf for tool/version with defaults underneath it.
// With no leaf yet, defaults are stored as is. A leaf that a fragment
// created before the tool first ran is completed from defaults, its values
// checked against theirs under policy, and stored back.
func (t *Tree) EnsureLeaf(tool, version string, defaults *opts.Node, policy opts.Policy) (*opts.Node, error) {
	n, ok := t.Leaf(tool, version)
	if !ok {
		if err := t.SetLeaf(tool, version, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	policy.AddNewFields = true
	merged, err := opts.Override(defaults, n.Ordered(), policy)
	if err != nil {
		return nil, fmt.Errorf("optstree: leaf %s/%s: %w", tool, version, err)
	}
	if merged.Equal(n) {
		return n, nil
	}
	if err := t.SetLeaf(tool, version, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Clone copies the branch structure. Nodes are immutable and shared.
func (t *Tree) Clone() *Tree {
	return &Tree{data: cloneBranch(t.data)}
}

// Ordered returns a copy of the tree as nested ordered maps with Nodes at
// the leaves, suitable as a fragment or for saving.
func (t *Tree) Ordered() *opts.Ordered {
	return cloneBranch(t.data)
}

// UpdateConfig derives the update settings from the tree's current metas.
func (t *Tree) UpdateConfig() UpdateConfig {
	metas := t.Metas()
	depth := metas.Int("max_depth")
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return UpdateConfig{
		Policy:       opts.PolicyFromMetas(metas),
		MaxDepth:     depth,
		IsVersionKey: VersionKeyMatcher(metas),
	}
}

func cloneBranch(src *opts.Ordered) *opts.Ordered {
	out := opts.NewOrdered()
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		if child, ok := pair.Value.(*opts.Ordered); ok {
			out.Set(pair.Key, cloneBranch(child))
			continue
		}
		out.Set(pair.Key, pair.Value)
	}
	return out
}
