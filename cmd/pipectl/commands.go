package main

import (
	"encoding/json"

	"github.com/hyperifyio/optspipe/internal/optsfile"
	"github.com/hyperifyio/optspipe/internal/optstree"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/spf13/cobra"
)

func (a *app) newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run NICKNAME [key=value...]",
		Short: "Run the pipeline a nickname resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			h, err := a.newHost()
			if err != nil {
				return err
			}
			args, err := parseAssignments(argv[1:], h.Shared().Snapshot().Options())
			if err != nil {
				return err
			}
			site, err := a.callSite(h)
			if err != nil {
				return err
			}
			out, runErr := site.Run(argv[0], args, a.fragments()...)
			if out != nil {
				if err := a.printJSON(visible(out)); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}

func (a *app) newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve NICKNAME",
		Short: "Print the tools a nickname resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			h, err := a.newHost()
			if err != nil {
				return err
			}
			ts, err := h.Resolve(argv[0])
			if err != nil {
				return err
			}
			for _, n := range tools.Names(ts) {
				safeFprintln(a.stdout, n)
			}
			return nil
		},
	}
}

func (a *app) newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List built-in and manifest tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.newHost()
			if err != nil {
				return err
			}
			for _, n := range h.ToolNames() {
				safeFprintln(a.stdout, n)
			}
			return nil
		},
	}
}

func (a *app) newConfigCommand() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or persist the effective options tree",
	}

	var format string
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective options tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tree, err := a.effectiveTree()
			if err != nil {
				return err
			}
			if format == "json" {
				return a.printJSON(optsfile.Strip(tree.Ordered()))
			}
			data, err := optsfile.Encode(format, tree.Ordered())
			if err != nil {
				return usagef("unknown format %q", format)
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
	printCmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml|toml|json")

	save := &cobra.Command{
		Use:   "save PATH",
		Short: "Save the effective options tree to an option file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			tree, err := a.effectiveTree()
			if err != nil {
				return err
			}
			if err := optsfile.Save(argv[0], tree.Ordered()); err != nil {
				return err
			}
			safeFprintln(a.stdout, argv[0])
			return nil
		},
	}

	cfg.AddCommand(printCmd, save)
	return cfg
}

func (a *app) effectiveTree() (*optstree.Tree, error) {
	h, err := a.newHost()
	if err != nil {
		return nil, err
	}
	site, err := a.callSite(h)
	if err != nil {
		return nil, err
	}
	return site.Tree(a.fragments()...)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// visible drops the options tree from a result map.
func visible(shared map[string]any) map[string]any {
	out := make(map[string]any, len(shared))
	for k, v := range shared {
		if k != tools.ArgOpts {
			out[k] = v
		}
	}
	return out
}
