package optstree

import (
	"errors"
	"io/fs"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/rs/zerolog/log"
)

// State is where a call site's tree lives.
type State int

const (
	StateUnset State = iota
	// StateShared uses the process-wide tree directly.
	StateShared
	// StatePrivateWritable owns an independent copy.
	StatePrivateWritable
	// StatePrivateReadOnly owns a copy that takes the shared tree as its
	// lowest layer on every call.
	StatePrivateReadOnly
)

func (s State) String() string {
	switch s {
	case StateShared:
		return "shared"
	case StatePrivateWritable:
		return "private"
	case StatePrivateReadOnly:
		return "private-read-only"
	}
	return "unset"
}

// Controller resolves the effective tree for one call site according to
// its LocalMetas.
type Controller struct {
	shared   *Shared
	defaults func() *Tree
	state    State
	private  *Tree
}

// NewController returns a controller bound to shared. defaults builds the
// hardcoded tree used when a call site asks for no_state; nil means
// Default.
func NewController(shared *Shared, defaults func() *Tree) *Controller {
	if defaults == nil {
		defaults = Default
	}
	return &Controller{shared: shared, defaults: defaults}
}

func (c *Controller) State() State { return c.state }

// Resolve applies fragments to the call site's tree and returns it. With
// sync the returned tree is the shared one; callers that touch it
// afterwards from several goroutines must go through Shared.With.
func (c *Controller) Resolve(local *opts.Node, fragments []any) (*Tree, error) {
	if local == nil {
		local = DefaultLocalMetas()
	}
	prev := c.state

	if local.Bool("sync") {
		if prev != StateShared {
			log.Debug().Str("from", prev.String()).Msg("call site adopts shared options tree")
		}
		c.state = StateShared
		c.private = nil
		var out *Tree
		err := c.shared.With(func(t *Tree) error {
			out = t
			return ApplyAll(t, fragments)
		})
		return out, err
	}

	switch {
	case local.Bool("no_state"):
		t, err := c.fresh()
		if err != nil {
			return nil, err
		}
		c.private = t
	case prev == StateShared || c.private == nil:
		c.private = c.shared.Snapshot()
	}

	layers := fragments
	if local.Bool("read_only") {
		c.state = StatePrivateReadOnly
		layers = append([]any{c.shared.Snapshot()}, fragments...)
	} else {
		c.state = StatePrivateWritable
	}
	if err := ApplyAll(c.private, layers); err != nil {
		return c.private, err
	}

	if local.Bool("write_to_shared") {
		src := c.private.Ordered()
		err := c.shared.With(func(t *Tree) error {
			return Update(t, src, t.UpdateConfig())
		})
		if err != nil {
			return c.private, err
		}
	}
	return c.private, nil
}

// fresh rebuilds from defaults and re-applies the installation file named
// in metas config. A missing installation file is not an error.
func (c *Controller) fresh() (*Tree, error) {
	t := c.defaults()
	path := t.Metas().Str("config")
	if path == "" {
		return t, nil
	}
	err := Update(t, opts.File(path), t.UpdateConfig())
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("installation options file not found")
		return t, nil
	}
	return t, err
}
