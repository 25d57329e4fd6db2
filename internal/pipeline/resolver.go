// Package pipeline turns a nickname into an ordered list of tools and runs
// them over a shared argument map.
package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/hyperifyio/optspipe/internal/tools/jsrun"
	"github.com/rs/zerolog/log"
)

// NotFoundFunc is consulted when resolution reaches a name that is neither
// an alias nor a known tool. It may synthesize the tools; the result is
// memoized under name. It must not call back into the Resolver.
type NotFoundFunc func(nickname, name string) ([]tools.Tool, error)

// Factory builds a tool from a manifest entry.
type Factory func(spec tools.Spec) (tools.Tool, error)

// Resolver maps nicknames through an alias table to tools.
type Resolver struct {
	mu        sync.Mutex
	aliases   map[string][]string
	canonical map[string][]tools.Tool
	cache     map[string][]tools.Tool

	// NotFound handles unknown names. Nil reports *NotFoundError.
	NotFound NotFoundFunc
}

func NewResolver(aliases map[string][]string) *Resolver {
	r := &Resolver{canonical: map[string][]tools.Tool{}}
	r.SetAliases(aliases)
	return r
}

// Register binds t under its own name.
func (r *Resolver) Register(t tools.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bound := []tools.Tool{t}
	r.canonical[t.Name()] = bound
	r.cache[t.Name()] = bound
}

// SetAliases replaces the alias table and forgets earlier resolutions.
// Registered tools stay bound.
func (r *Resolver) SetAliases(aliases map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases = make(map[string][]string, len(aliases))
	for k, v := range aliases {
		r.aliases[k] = append([]string(nil), v...)
	}
	r.cache = make(map[string][]tools.Tool, len(r.canonical))
	for k, v := range r.canonical {
		r.cache[k] = v
	}
}

// Aliases returns a copy of the alias table.
func (r *Resolver) Aliases() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Known lists the names bound so far, sorted.
func (r *Resolver) Known() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.canonical))
	for k := range r.canonical {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the tools nickname stands for. Repeated calls return the
// same slice. Callers must not modify it.
func (r *Resolver) Resolve(nickname string) ([]tools.Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(nickname, nickname, nil)
}

func (r *Resolver) resolve(nickname, name string, chain []string) ([]tools.Tool, error) {
	if ts, ok := r.cache[name]; ok {
		return ts, nil
	}
	for _, seen := range chain {
		if seen == name {
			cycle := append(append([]string(nil), chain...), name)
			return nil, &AliasCycleError{Chain: cycle}
		}
	}
	chain = append(chain, name)

	targets, ok := r.aliases[name]
	if !ok {
		ts, err := r.notFound(nickname, name)
		if err != nil {
			return nil, err
		}
		r.cache[name] = ts
		return ts, nil
	}

	var out []tools.Tool
	for _, target := range targets {
		ts, err := r.resolve(nickname, target, chain)
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	r.cache[name] = out
	log.Debug().Str("nickname", nickname).Str("alias", name).Strs("tools", tools.Names(out)).Msg("alias resolved")
	return out, nil
}

func (r *Resolver) notFound(nickname, name string) ([]tools.Tool, error) {
	if r.NotFound == nil {
		return nil, &NotFoundError{Nickname: nickname, Name: name}
	}
	return r.NotFound(nickname, name)
}

// ManifestDiscovery synthesizes tools from manifest entries on demand.
// Names the manifest does not list are reported as *NotFoundError.
func ManifestDiscovery(m *tools.Manifest, factory Factory) NotFoundFunc {
	if factory == nil {
		factory = BuildTool
	}
	return func(nickname, name string) ([]tools.Tool, error) {
		if m == nil {
			return nil, &NotFoundError{Nickname: nickname, Name: name}
		}
		spec, ok := m.Lookup(name)
		if !ok {
			return nil, &NotFoundError{Nickname: nickname, Name: name}
		}
		t, err := factory(spec)
		if err != nil {
			return nil, fmt.Errorf("discover %q: %w", name, err)
		}
		log.Debug().Str("tool", name).Msg("tool discovered from manifest")
		return []tools.Tool{t}, nil
	}
}

// BuildTool builds a script tool for entries with a script and an external
// process tool otherwise.
func BuildTool(spec tools.Spec) (tools.Tool, error) {
	if spec.Script != "" {
		return jsrun.New(spec)
	}
	return tools.NewExecTool(spec)
}

// AliasesFrom reads an alias table from a metas value. Targets may be a
// single name or a list of names.
func AliasesFrom(v any) (map[string][]string, error) {
	out := map[string][]string{}
	if v == nil {
		return out, nil
	}
	var err error
	add := func(k string, target any) {
		if err != nil {
			return
		}
		switch t := target.(type) {
		case string:
			out[k] = []string{t}
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			names := make([]string, 0, len(t))
			for _, e := range t {
				s, ok := e.(string)
				if !ok {
					err = &AliasError{Alias: k, Reason: fmt.Sprintf("target %v is not a name", e)}
					return
				}
				names = append(names, s)
			}
			out[k] = names
		default:
			err = &AliasError{Alias: k, Reason: fmt.Sprintf("unsupported target type %T", target)}
		}
	}
	switch m := v.(type) {
	case map[string][]string:
		for k, t := range m {
			add(k, t)
		}
	case map[string]any:
		for k, t := range m {
			add(k, t)
		}
	case *opts.Ordered:
		for p := m.Oldest(); p != nil; p = p.Next() {
			add(p.Key, p.Value)
		}
	case *opts.Node:
		return AliasesFrom(m.Ordered())
	default:
		return nil, fmt.Errorf("pipeline: alias table has unsupported type %T", v)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
