// Package host wires the options tree, the resolver and the runner together
// for an embedding application. A Host is process-wide; each component
// instance that runs pipelines gets its own CallSite.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperifyio/optspipe/internal/builtin"
	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/hyperifyio/optspipe/internal/optstree"
	"github.com/hyperifyio/optspipe/internal/pipeline"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// ArgGeometry is the shared map key carrying geometry handles and their
// per-handle data.
const ArgGeometry = "geometry"

// GeometryProvider supplies the geometry a pipeline starts from and accepts
// the geometry it ends with.
type GeometryProvider interface {
	Geometry() (any, error)
	Accept(geometry any) error
}

// PathResolver returns the path of the current working document, or
// fallback when there is none.
type PathResolver interface {
	DocumentPath(fallback string) string
}

// Config configures a Host. Zero values fall back to the metas of the
// seeded tree.
type Config struct {
	// InstallFile is the installation-wide option file.
	InstallFile string
	// Manifest is the capability manifest path.
	Manifest string
	// Aliases extend the alias table from metas; entries here win.
	Aliases map[string][]string
	// Registerer receives pipeline metrics. Nil disables them.
	Registerer prometheus.Registerer

	Topology pipeline.Topology
	Geometry GeometryProvider
	Paths    PathResolver
}

// Host owns the shared options tree and the tool resolver.
type Host struct {
	cfg      Config
	shared   *optstree.Shared
	resolver *pipeline.Resolver
	runner   *pipeline.Runner
	manifest *tools.Manifest

	// runs serialises pipelines; tools may write to the shared tree.
	runs sync.Mutex
}

// New seeds the shared tree from the defaults and the installation file,
// loads the manifest and validates the alias table.
func New(cfg Config) (*Host, error) {
	h := &Host{cfg: cfg, runner: &pipeline.Runner{}}
	if cfg.Registerer != nil {
		h.runner.Metrics = pipeline.MustNewMetrics(cfg.Registerer)
	}

	tree, err := h.defaults()
	if err != nil {
		return nil, err
	}
	h.shared = optstree.NewShared(tree)

	manifestPath := cfg.Manifest
	if manifestPath == "" {
		manifestPath = tree.Metas().Str("manifest")
	}
	if manifestPath != "" {
		m, err := tools.LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		h.manifest = m
	}

	aliases, err := pipeline.AliasesFrom(tree.Metas().Value("aliases"))
	if err != nil {
		return nil, err
	}
	for k, v := range cfg.Aliases {
		aliases[k] = v
	}
	h.resolver = pipeline.NewResolver(aliases)
	h.resolver.NotFound = pipeline.ManifestDiscovery(h.manifest, nil)
	for _, t := range builtin.All(h.ToolNames) {
		h.resolver.Register(t)
	}
	if err := pipeline.ValidateAliasTable(aliases, h.ToolNames()); err != nil {
		return nil, err
	}
	log.Debug().Int("aliases", len(aliases)).Strs("tools", h.ToolNames()).Msg("host ready")
	return h, nil
}

// defaults builds the hardcoded tree with the installation file applied.
// It also serves call sites that ask for no_state.
func (h *Host) defaults() (*optstree.Tree, error) {
	tree := optstree.Default()
	if h.cfg.InstallFile == "" {
		return tree, nil
	}
	err := optstree.Update(tree, map[string]any{
		optstree.KeyMetas: map[string]any{"config": h.cfg.InstallFile},
	}, tree.UpdateConfig())
	if err != nil {
		return nil, err
	}
	err = optstree.Update(tree, opts.File(h.cfg.InstallFile), tree.UpdateConfig())
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", h.cfg.InstallFile).Msg("installation options file not found")
		return tree, nil
	}
	return tree, err
}

func (h *Host) Shared() *optstree.Shared     { return h.shared }
func (h *Host) Resolver() *pipeline.Resolver { return h.resolver }

// ToolNames lists registered and manifest tools, sorted.
func (h *Host) ToolNames() []string {
	seen := map[string]bool{}
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	if h.resolver != nil {
		add(h.resolver.Known())
	}
	if h.manifest != nil {
		add(h.manifest.Names())
	}
	sort.Strings(out)
	return out
}

// Resolve maps a nickname to its tools.
func (h *Host) Resolve(nickname string) ([]tools.Tool, error) {
	return h.resolver.Resolve(nickname)
}

// CallSite is one component instance running pipelines.
type CallSite struct {
	host       *Host
	controller *optstree.Controller
	local      *opts.Node
}

// NewCallSite returns a call site with the given LocalMetas. Nil uses the
// defaults: synchronised with the shared tree.
func (h *Host) NewCallSite(local *opts.Node) *CallSite {
	if local == nil {
		local = optstree.DefaultLocalMetas()
	}
	return &CallSite{
		host: h,
		controller: optstree.NewController(h.shared, func() *optstree.Tree {
			t, err := h.defaults()
			if err != nil {
				log.Warn().Err(err).Msg("rebuilding options tree from defaults")
				return optstree.Default()
			}
			return t
		}),
		local: local,
	}
}

// SetLocalMetas replaces the call site's synchronisation policy. Fragments
// are applied to it the way they are applied to any node.
func (c *CallSite) SetLocalMetas(fragment any) error {
	n, err := opts.Override(c.local, fragment, opts.DefaultPolicy())
	if err != nil {
		return err
	}
	c.local = n
	return nil
}

func (c *CallSite) LocalMetas() *opts.Node { return c.local }
func (c *CallSite) State() optstree.State  { return c.controller.State() }

// Tree resolves the call site's effective tree without running anything.
func (c *CallSite) Tree(fragments ...any) (*optstree.Tree, error) {
	c.host.runs.Lock()
	defer c.host.runs.Unlock()
	return c.controller.Resolve(c.local, fragments)
}

// Run resolves nickname, applies fragments and then args to the call
// site's tree, adds implicit tools and runs the pipeline. args seed the
// shared map.
func (c *CallSite) Run(nickname string, args map[string]any, fragments ...any) (map[string]any, error) {
	h := c.host
	h.runs.Lock()
	defer h.runs.Unlock()

	if nickname == "" {
		nickname = c.local.Str("nick_name")
	}
	ts, err := h.resolver.Resolve(nickname)
	if err != nil {
		return nil, err
	}

	layers := make([]any, 0, len(fragments)+2)
	if f := c.documentFolder(); f != nil {
		layers = append(layers, f)
	}
	layers = append(layers, fragments...)
	if len(args) > 0 {
		layers = append(layers, args)
	}
	tree, err := c.controller.Resolve(c.local, layers)
	if err != nil {
		return nil, fmt.Errorf("resolve options for %q: %w", nickname, err)
	}

	shared := make(map[string]any, len(args)+2)
	for k, v := range args {
		shared[k] = v
	}
	if _, ok := shared[ArgGeometry]; !ok && h.cfg.Geometry != nil {
		g, err := h.cfg.Geometry.Geometry()
		if err != nil {
			return nil, fmt.Errorf("read geometry: %w", err)
		}
		shared[ArgGeometry] = g
	}
	shared[tools.ArgOpts] = tree

	ts, err = pipeline.AutoInsert(ts, tree.Options(), h.resolver, h.cfg.Topology, shared)
	if err != nil {
		return nil, err
	}
	log.Info().Str("nickname", nickname).Strs("tools", tools.Names(ts)).Str("state", c.controller.State().String()).Msg("running pipeline")

	out, err := h.runner.Run(ts, shared)
	if err != nil {
		return out, err
	}
	if g, ok := out[ArgGeometry]; ok && h.cfg.Geometry != nil {
		if err := h.cfg.Geometry.Accept(g); err != nil {
			return out, fmt.Errorf("hand back geometry: %w", err)
		}
	}
	return out, nil
}

// documentFolder is the lowest layer of a call: the working document's
// folder as working_folder when none is configured.
func (c *CallSite) documentFolder() any {
	if c.host.cfg.Paths == nil {
		return nil
	}
	configured := ""
	_ = c.host.shared.With(func(t *optstree.Tree) error {
		configured = t.Options().Str("working_folder")
		return nil
	})
	if configured != "" {
		return nil
	}
	doc := c.host.cfg.Paths.DocumentPath("")
	if doc == "" {
		return nil
	}
	return map[string]any{
		optstree.KeyOptions: map[string]any{"working_folder": filepath.Dir(doc)},
	}
}
