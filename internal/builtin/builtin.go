// Package builtin provides the meta-tools every host registers: listing the
// known tools and persisting or reloading the options tree.
package builtin

import (
	"errors"
	"fmt"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/hyperifyio/optspipe/internal/optsfile"
	"github.com/hyperifyio/optspipe/internal/optstree"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/rs/zerolog/log"
)

const (
	ListTools  = "List_Tools"
	SaveConfig = "Save_Config"
	LoadConfig = "Load_Config"
)

// Argument and output names.
const (
	ArgSaveTo   = "save_to"
	ArgLoadFrom = "load_from"
	OutTools    = "tools"
	OutConfig   = "config_file"
)

// ErrNoTree is returned when a meta-tool that needs the options tree runs
// without one.
var ErrNoTree = errors.New("builtin: no options tree in arguments")

// ErrNoPath is returned when no file was given and metas names none.
var ErrNoPath = errors.New("builtin: no options file given")

// All returns the meta-tools. list reports the names a host can run.
func All(list func() []string) []tools.Tool {
	return []tools.Tool{NewListTools(list), NewSaveConfig(), NewLoadConfig()}
}

func NewListTools(list func() []string) tools.Tool {
	return &tools.Func{
		ToolName: ListTools,
		Out:      []string{OutTools},
		Fn: func(map[string]any) (int, map[string]any, error) {
			var names []string
			if list != nil {
				names = list()
			}
			return 0, map[string]any{OutTools: names}, nil
		},
	}
}

// NewSaveConfig writes the tree to save_to, falling back to the options
// save_to and then to the metas config file.
func NewSaveConfig() tools.Tool {
	return &tools.Func{
		ToolName: SaveConfig,
		In:       []string{tools.ArgOpts, ArgSaveTo},
		Out:      []string{OutConfig},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			tree, err := treeOf(args)
			if err != nil {
				return 1, nil, err
			}
			path := firstNonEmpty(str(args[ArgSaveTo]), tree.Options().Str("save_to"), tree.Metas().Str("config"))
			if path == "" {
				return 1, nil, ErrNoPath
			}
			if err := optsfile.Save(path, tree.Ordered()); err != nil {
				return 1, nil, err
			}
			log.Info().Str("path", path).Msg("options tree saved")
			return 0, map[string]any{OutConfig: path}, nil
		},
	}
}

// NewLoadConfig applies an option file to the tree, falling back to the
// metas config file.
func NewLoadConfig() tools.Tool {
	return &tools.Func{
		ToolName: LoadConfig,
		In:       []string{tools.ArgOpts, ArgLoadFrom},
		Out:      []string{OutConfig},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			tree, err := treeOf(args)
			if err != nil {
				return 1, nil, err
			}
			path := firstNonEmpty(str(args[ArgLoadFrom]), tree.Metas().Str("config"))
			if path == "" {
				return 1, nil, ErrNoPath
			}
			if err := optstree.Update(tree, opts.File(path), tree.UpdateConfig()); err != nil {
				return 1, nil, err
			}
			log.Info().Str("path", path).Msg("options file applied")
			return 0, map[string]any{OutConfig: path}, nil
		},
	}
}

func treeOf(args map[string]any) (*optstree.Tree, error) {
	tree, ok := args[tools.ArgOpts].(*optstree.Tree)
	if !ok || tree == nil {
		return nil, ErrNoTree
	}
	return tree, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
