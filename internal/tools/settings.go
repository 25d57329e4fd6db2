package tools

import (
	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/hyperifyio/optspipe/internal/optstree"
	"github.com/rs/zerolog/log"
)

// Settings is the slice of the options tree one tool runs with.
type Settings struct {
	Metas   *opts.Node
	Options *opts.Node
	// Tool is the tool's own leaf for the active version key.
	Tool *opts.Node
}

// SettingsFor reads the tree passed under ArgOpts. The first time a tool
// runs against a tree its defaults are stored there, under the tool name and
// the active version key, so later fragments can override them. A leaf that
// a fragment wrote earlier keeps its values over the defaults and must match
// their types. Without a tree the hardcoded defaults are used.
func SettingsFor(args map[string]any, name string, defaults *opts.Node) (Settings, error) {
	if defaults == nil {
		defaults = opts.New(name)
	}
	tree, ok := args[ArgOpts].(*optstree.Tree)
	if !ok || tree == nil {
		return Settings{
			Metas:   optstree.DefaultMetas(),
			Options: optstree.DefaultOptions(),
			Tool:    defaults,
		}, nil
	}
	s := Settings{Metas: tree.Metas(), Options: tree.Options(), Tool: defaults}
	if defaults.Len() == 0 {
		return s, nil
	}
	version := optstree.VersionKeyOf(s.Metas)
	if _, seen := tree.Leaf(name, version); !seen {
		log.Debug().Str("tool", name).Str("version", version).Msg("storing tool defaults in options tree")
	}
	leaf, err := tree.EnsureLeaf(name, version, defaults, opts.PolicyFromMetas(s.Metas))
	if err != nil {
		return s, err
	}
	s.Tool = leaf
	return s, nil
}

// Values merges options and the tool leaf; tool values win.
func (s Settings) Values() map[string]any {
	out := s.Options.Map()
	for k, v := range s.Tool.Map() {
		out[k] = v
	}
	return out
}
