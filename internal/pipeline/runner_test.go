package pipeline

import (
	"errors"
	"testing"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/hyperifyio/optspipe/internal/optstree"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emitting(name string, code int, out map[string]any) *tools.Func {
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	return &tools.Func{
		ToolName: name,
		Out:      keys,
		Fn: func(map[string]any) (int, map[string]any, error) {
			return code, out, nil
		},
	}
}

func TestRunTools_FailFast(t *testing.T) {
	ts := []tools.Tool{
		emitting("one", 0, map[string]any{"a": 1}),
		emitting("two", 1, map[string]any{"b": 2}),
		emitting("three", 0, map[string]any{"c": 3}),
	}
	shared, err := RunTools(ts, map[string]any{})
	var failed *ToolFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "two", failed.Tool)
	assert.Equal(t, 1, failed.Code)

	assert.Equal(t, 1, shared["a"])
	assert.Equal(t, 2, shared["b"], "outputs of the failing tool are kept")
	assert.NotContains(t, shared, "c")
	assert.Equal(t, 1, shared[tools.ArgRetcode])
}

func TestRunTools_ToolErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	ts := []tools.Tool{&tools.Func{ToolName: "x", Fn: func(map[string]any) (int, map[string]any, error) {
		return 0, nil, boom
	}}}
	shared, err := RunTools(ts, nil)
	require.ErrorIs(t, err, boom)
	var failed *ToolFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, -1, failed.Code)
	assert.Equal(t, -1, shared[tools.ArgRetcode])
}

func TestRunTools_ValidatesBeforeRunning(t *testing.T) {
	ran := false
	first := &tools.Func{ToolName: "first", Fn: func(map[string]any) (int, map[string]any, error) {
		ran = true
		return 0, nil, nil
	}}
	var typedNil *tools.Func
	for name, ts := range map[string][]tools.Tool{
		"nil":       {first, nil},
		"typed nil": {first, typedNil},
		"nameless":  {first, &tools.Func{}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := RunTools(ts, nil)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, 1, ve.Index)
		})
	}
	assert.False(t, ran)
}

func TestRunTools_InputsAreSelectedAndLastWriterWins(t *testing.T) {
	var seen map[string]any
	ts := []tools.Tool{
		&tools.Func{ToolName: "first", Out: []string{"file"},
			Fn: func(map[string]any) (int, map[string]any, error) {
				return 0, map[string]any{"file": "a.shp", "undeclared": true}, nil
			}},
		&tools.Func{ToolName: "second", In: []string{"file", "missing"}, Out: []string{"file"},
			Fn: func(args map[string]any) (int, map[string]any, error) {
				seen = args
				return 0, map[string]any{"file": "b.shp", "extra": 1}, nil
			}},
	}
	shared, err := RunTools(ts, map[string]any{"geometry": []int{1}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"file": "a.shp"}, seen)
	assert.Equal(t, "b.shp", shared["file"])
	assert.NotContains(t, shared, "undeclared")
	assert.NotContains(t, shared, "extra")
	assert.Equal(t, 0, shared[tools.ArgRetcode])
	assert.NotEmpty(t, shared[tools.ArgRunID])
}

func TestRunTools_KeepsCallerRunID(t *testing.T) {
	shared, err := RunTools(nil, map[string]any{tools.ArgRunID: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", shared[tools.ArgRunID])
}

func TestRunTools_ToolsMayExtendTheTree(t *testing.T) {
	tree := optstree.Default()
	ts := []tools.Tool{&tools.Func{ToolName: "Probe", In: []string{tools.ArgOpts},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			_, err := tools.SettingsFor(args, "Probe", opts.New("Probe", opts.Field{Name: "depth", Value: 3}))
			return 0, nil, err
		}}}
	_, err := RunTools(ts, map[string]any{tools.ArgOpts: tree})
	require.NoError(t, err)
	leaf, ok := tree.Leaf("Probe", optstree.VersionKeyOf(tree.Metas()))
	require.True(t, ok)
	assert.Equal(t, 3, leaf.Int("depth"))
}

func TestSaveNicknamePassesFileThroughSharedMap(t *testing.T) {
	var readerGot any
	writer := &tools.Func{ToolName: "Write_Shp", In: []string{"geometry"}, Out: []string{"file"},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			require.Contains(t, args, "geometry")
			return 0, map[string]any{"file": "x.shp"}, nil
		}}
	reader := &tools.Func{ToolName: "Read_Shp", In: []string{"file"}, Out: []string{"geometry"},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			readerGot = args["file"]
			return 0, map[string]any{"geometry": []string{"read"}}, nil
		}}

	r := NewResolver(map[string][]string{"Save": {"Write_Shp", "Read_Shp"}})
	r.Register(writer)
	r.Register(reader)
	ts, err := r.Resolve("Save")
	require.NoError(t, err)

	shared, err := RunTools(ts, map[string]any{"geometry": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "x.shp", readerGot)
	assert.Equal(t, []string{"read"}, shared["geometry"])
}

func TestRunner_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	again := MustNewMetrics(reg)
	assert.Same(t, m.toolFailures, again.toolFailures, "collectors are reused")

	r := &Runner{Metrics: m}
	_, err := r.Run([]tools.Tool{emitting("ok", 0, nil), emitting("bad", 3, nil)}, nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.toolFailures.WithLabelValues("bad", "exit")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.runsActive))
	assert.Equal(t, 2, promtest.CollectAndCount(m.toolDuration))

	var nilMetrics *Metrics
	_, err = (&Runner{Metrics: nilMetrics}).Run([]tools.Tool{emitting("ok", 0, nil)}, nil)
	assert.NoError(t, err)
}
