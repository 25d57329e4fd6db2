package optstree

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localMetas(t *testing.T, values map[string]any) *opts.Node {
	t.Helper()
	n, err := opts.Override(DefaultLocalMetas(), values, opts.DefaultPolicy())
	require.NoError(t, err)
	return n
}

func sharedOverwrite(s *Shared) bool {
	var v bool
	_ = s.With(func(t *Tree) error {
		v = t.Options().Bool("overwrite")
		return nil
	})
	return v
}

func TestController_SyncAdoptsSharedTree(t *testing.T) {
	shared := NewShared(nil)
	a := NewController(shared, nil)
	b := NewController(shared, nil)
	sync := localMetas(t, map[string]any{"sync": true})

	ta, err := a.Resolve(sync, []any{map[string]any{"overwrite": true}})
	require.NoError(t, err)
	tb, err := b.Resolve(sync, nil)
	require.NoError(t, err)

	assert.Same(t, ta, tb)
	assert.Equal(t, StateShared, a.State())
	assert.True(t, tb.Options().Bool("overwrite"))
	assert.True(t, sharedOverwrite(shared))
}

func TestController_DesyncSnapshotsShared(t *testing.T) {
	shared := NewShared(nil)
	c := NewController(shared, nil)

	_, err := c.Resolve(localMetas(t, map[string]any{"sync": true}), []any{map[string]any{"working_folder": "/shared"}})
	require.NoError(t, err)

	private := localMetas(t, map[string]any{"sync": false, "read_only": false})
	tree, err := c.Resolve(private, []any{map[string]any{"overwrite": true}})
	require.NoError(t, err)
	assert.Equal(t, StatePrivateWritable, c.State())
	assert.Equal(t, "/shared", tree.Options().Str("working_folder"), "seeded from the shared tree")
	assert.True(t, tree.Options().Bool("overwrite"))
	assert.False(t, sharedOverwrite(shared), "private writes stay private")

	again, err := c.Resolve(private, nil)
	require.NoError(t, err)
	assert.Same(t, tree, again, "an existing private tree is kept")
	assert.True(t, again.Options().Bool("overwrite"))
}

func TestController_ReadOnlyLayersSharedBeneath(t *testing.T) {
	shared := NewShared(nil)
	c := NewController(shared, nil)
	ro := localMetas(t, map[string]any{"sync": false, "read_only": true})

	_, err := c.Resolve(ro, nil)
	require.NoError(t, err)
	assert.Equal(t, StatePrivateReadOnly, c.State())

	require.NoError(t, shared.With(func(tr *Tree) error {
		return Update(tr, map[string]any{"working_folder": "/later"}, tr.UpdateConfig())
	}))

	tree, err := c.Resolve(ro, []any{map[string]any{"overwrite": true}})
	require.NoError(t, err)
	assert.Equal(t, "/later", tree.Options().Str("working_folder"), "shared changes show through")
	assert.True(t, tree.Options().Bool("overwrite"))
	assert.False(t, sharedOverwrite(shared))
}

func TestController_WriteToShared(t *testing.T) {
	shared := NewShared(nil)
	c := NewController(shared, nil)
	wts := localMetas(t, map[string]any{"sync": false, "read_only": false, "write_to_shared": true})

	_, err := c.Resolve(wts, []any{map[string]any{"overwrite": true}})
	require.NoError(t, err)
	assert.True(t, sharedOverwrite(shared))
}

func TestController_NoStateRebuildsFromDefaultsAndInstallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.toml")
	require.NoError(t, os.WriteFile(path, []byte("[options]\nworking_folder = \"/install\"\n"), 0o600))

	defaults := func() *Tree {
		tr := Default()
		require.NoError(t, Update(tr, map[string]any{"metas": map[string]any{"config": path}}, tr.UpdateConfig()))
		return tr
	}
	c := NewController(NewShared(nil), defaults)
	noState := localMetas(t, map[string]any{"sync": false, "read_only": false, "no_state": true})

	first, err := c.Resolve(noState, []any{map[string]any{"overwrite": true}})
	require.NoError(t, err)
	assert.True(t, first.Options().Bool("overwrite"))
	assert.Equal(t, "/install", first.Options().Str("working_folder"))

	second, err := c.Resolve(noState, nil)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.False(t, second.Options().Bool("overwrite"), "state from the previous call is discarded")
	assert.Equal(t, "/install", second.Options().Str("working_folder"))
}

func TestController_NoStateMissingInstallFile(t *testing.T) {
	defaults := func() *Tree {
		tr := Default()
		require.NoError(t, Update(tr, map[string]any{"metas": map[string]any{"config": filepath.Join(t.TempDir(), "none.toml")}}, tr.UpdateConfig()))
		return tr
	}
	c := NewController(NewShared(nil), defaults)
	tree, err := c.Resolve(localMetas(t, map[string]any{"sync": false, "no_state": true}), nil)
	require.NoError(t, err)
	assert.NotNil(t, tree)
}

func TestShared_SerialisesConcurrentUpdates(t *testing.T) {
	shared := NewShared(nil)
	require.NoError(t, shared.With(func(tr *Tree) error {
		return Update(tr, map[string]any{"options": map[string]any{"script_wall_ms": 0}}, tr.UpdateConfig())
	}))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = shared.With(func(tr *Tree) error {
				n := tr.Options().Int("script_wall_ms")
				return Update(tr, map[string]any{"options": map[string]any{"script_wall_ms": n + 1}}, tr.UpdateConfig())
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 32, shared.Snapshot().Options().Int("script_wall_ms"))
}
