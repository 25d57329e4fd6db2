package main

import (
	"io"
	"strings"
	"time"

	"github.com/hyperifyio/optspipe/internal/host"
	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "PIPECTL"

	flagConfig   = "config"
	flagProject  = "project"
	flagManifest = "manifest"
	flagAlias    = "alias"
	flagLogLevel = "log-level"
	flagPrivate  = "private"
)

// app carries what every subcommand needs: resolved settings and the
// output streams.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "pipectl",
		Short:         "Resolve and run tool pipelines",
		Long:          "pipectl layers option files and call arguments into an options tree, resolves a nickname through the alias table and runs the resulting tools in order.",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupLogging()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.String(flagConfig, "", "installation-wide option file (.toml or .yaml)")
	pf.String(flagProject, "", "project option file applied on top of the installation file")
	pf.String(flagManifest, "", "capability manifest (JSON)")
	pf.StringArray(flagAlias, nil, "alias as name=tool[,tool...]; repeatable")
	pf.String(flagLogLevel, "info", "log level: trace|debug|info|warn|error")
	pf.Bool(flagPrivate, false, "run on a private copy of the options tree")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.newRunCommand(),
		a.newResolveCommand(),
		a.newToolsCommand(),
		a.newConfigCommand(),
	)
	return root
}

// setupLogging sends zerolog output to stderr through a console writer.
func (a *app) setupLogging() error {
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(a.v.GetString(flagLogLevel)); raw != "" {
		lv, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return usagef("unknown log level %q", raw)
		}
		level = lv
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: a.stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	return nil
}

func (a *app) newHost() (*host.Host, error) {
	aliases, err := parseAliases(a.v.GetStringSlice(flagAlias))
	if err != nil {
		return nil, err
	}
	return host.New(host.Config{
		InstallFile: a.v.GetString(flagConfig),
		Manifest:    a.v.GetString(flagManifest),
		Aliases:     aliases,
		Registerer:  prometheus.NewRegistry(),
	})
}

// callSite returns a call site honouring --private.
func (a *app) callSite(h *host.Host) (*host.CallSite, error) {
	site := h.NewCallSite(nil)
	if a.v.GetBool(flagPrivate) {
		if err := site.SetLocalMetas(map[string]any{"sync": false, "read_only": true}); err != nil {
			return nil, err
		}
	}
	return site, nil
}

// fragments are the layers above the installation file.
func (a *app) fragments() []any {
	if p := a.v.GetString(flagProject); p != "" {
		return []any{opts.File(p)}
	}
	return nil
}
