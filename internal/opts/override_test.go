package opts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseOptions() *Node {
	return Schema{
		{Name: "working_folder", Value: "/tmp/work"},
		{Name: "overwrite", Value: false},
		{Name: "threshold", Value: 1.5},
		{Name: "max_runs", Value: 3},
		{Name: "layers", Value: []string{"roads"}},
		{Name: "engine", Value: Tuple{"parser", "runner"}},
	}.Node("Options")
}

func TestOverride_EmptyFragmentsReturnSameNode(t *testing.T) {
	base := baseOptions()
	empties := map[string]any{
		"nil":         nil,
		"empty map":   map[string]any{},
		"empty list":  []any{},
		"empty order": NewOrdered(),
		"nil node":    (*Node)(nil),
		"empty file":  File(""),
		"nested nils": []any{nil, map[string]any{}},
	}
	for name, frag := range empties {
		t.Run(name, func(t *testing.T) {
			got, err := Override(base, frag, DefaultPolicy())
			require.NoError(t, err)
			assert.Same(t, base, got)
		})
	}
}

func TestOverride_LastAppliedWins(t *testing.T) {
	base := baseOptions()
	p := DefaultPolicy()

	t.Run("map", func(t *testing.T) {
		got, err := OverrideAll(base, []any{
			map[string]any{"max_runs": 5},
			map[string]any{"max_runs": 7},
		}, p)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Int("max_runs"))
		assert.Equal(t, 3, base.Int("max_runs"), "base must be untouched")
	})

	t.Run("ordered", func(t *testing.T) {
		f1 := NewOrdered()
		f1.Set("working_folder", "/a")
		f2 := NewOrdered()
		f2.Set("working_folder", "/b")
		got, err := Override(base, f1, p)
		require.NoError(t, err)
		got, err = Override(got, f2, p)
		require.NoError(t, err)
		assert.Equal(t, "/b", got.Str("working_folder"))
	})

	t.Run("node", func(t *testing.T) {
		first, err := Override(base, map[string]any{"overwrite": true}, p)
		require.NoError(t, err)
		second, err := Override(base, map[string]any{"overwrite": false, "max_runs": 9}, p)
		require.NoError(t, err)

		got, err := Override(base, first, p)
		require.NoError(t, err)
		got, err = Override(got, second, p)
		require.NoError(t, err)
		assert.False(t, got.Bool("overwrite"))
		assert.Equal(t, 9, got.Int("max_runs"))
	})
}

func TestOverride_TypeMismatchLeavesNodeUnchanged(t *testing.T) {
	base := baseOptions()
	got, err := Override(base, map[string]any{"max_runs": "many"}, DefaultPolicy())
	require.Error(t, err)

	var tm *TypeMismatchError
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, "max_runs", tm.Field)
	assert.Equal(t, "int", tm.Expected)
	assert.Equal(t, "many", tm.Value)
	assert.Same(t, base, got)
	assert.Equal(t, 3, base.Int("max_runs"))
}

func TestOverride_HushSkipsOnlyTheBadField(t *testing.T) {
	p := DefaultPolicy()
	p.Hush = true
	got, err := Override(baseOptions(), map[string]any{
		"max_runs":  "many",
		"overwrite": true,
	}, p)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Int("max_runs"))
	assert.True(t, got.Bool("overwrite"))
}

func TestOverride_TypeCheckPermissiveForms(t *testing.T) {
	base := baseOptions()
	p := DefaultPolicy()
	p.Delistify = false

	cases := []struct {
		name string
		frag map[string]any
		ok   bool
	}{
		{"scalar of list element type", map[string]any{"layers": "rivers"}, true},
		{"list for list", map[string]any{"layers": []any{"a", "b"}}, true},
		{"homogeneous list for scalar", map[string]any{"working_folder": []any{"a", "b"}}, true},
		{"mixed list for scalar", map[string]any{"working_folder": []any{"a", 1}}, false},
		{"empty list for scalar", map[string]any{"working_folder": []any{}}, false},
		{"int for float", map[string]any{"threshold": 2}, true},
		{"float for int", map[string]any{"max_runs": 2.5}, false},
		{"wrong scalar for list", map[string]any{"layers": 4}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Override(base, tc.frag, p)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestOverride_Delistify(t *testing.T) {
	got, err := Override(baseOptions(), map[string]any{"max_runs": []any{8}}, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 8, got.Value("max_runs"))

	got, err = Override(baseOptions(), map[string]any{"layers": []any{"x"}}, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, got.Value("layers"), "list fields keep their list")
}

func TestOverride_AddNewFieldsGate(t *testing.T) {
	base := baseOptions()
	frag := map[string]any{"colour": "red"}

	got, err := Override(base, frag, DefaultPolicy())
	require.NoError(t, err)
	assert.False(t, got.Has("colour"))
	assert.True(t, got.SameShape(base))

	p := DefaultPolicy()
	p.AddNewFields = true
	got, err = Override(base, frag, p)
	require.NoError(t, err)
	assert.Equal(t, "red", got.Str("colour"))
	assert.False(t, got.SameShape(base))
	assert.Equal(t, append(base.Fields(), "colour"), got.Fields())
}

func TestOverride_ReservedKeysSkipped(t *testing.T) {
	p := DefaultPolicy()
	p.AddNewFields = true
	got, err := Override(baseOptions(), map[string]any{"DEFAULT": "x", "MAX_RUNS": 1, "Overwrite": true}, p)
	require.NoError(t, err)
	assert.False(t, got.Has("DEFAULT"))
	assert.False(t, got.Has("MAX_RUNS"))
	assert.True(t, got.Has("Overwrite"), "mixed case is not reserved")
}

func TestOverride_NodeFragmentShape(t *testing.T) {
	base := baseOptions()
	other := New("Other", Field{Name: "max_runs", Value: 10})

	got, err := Override(base, other, DefaultPolicy())
	require.NoError(t, err)
	assert.Same(t, base, got, "strict rejects nodes of another shape")

	p := DefaultPolicy()
	p.Strict = false
	got, err = Override(base, other, p)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Int("max_runs"))
}

func TestOverride_NestedMapRecursesIntoSubNode(t *testing.T) {
	inner := New("Inner", Field{Name: "x", Value: 1}, Field{Name: "y", Value: "a"})
	base := New("Outer", Field{Name: "inner", Value: inner}, Field{Name: "z", Value: true})

	got, err := Override(base, map[string]any{"inner": map[string]any{"x": 2}}, DefaultPolicy())
	require.NoError(t, err)
	sub, ok := got.Sub("inner")
	require.True(t, ok)
	assert.Equal(t, 2, sub.Int("x"))
	assert.Equal(t, "a", sub.Str("y"))
	assert.Equal(t, 1, inner.Int("x"))
}

func TestOverride_FileSkipsTupleFields(t *testing.T) {
	RegisterFileLoader(func(path string) (*Ordered, error) {
		require.Equal(t, "install.toml", path)
		om := NewOrdered()
		om.Set("engine", []any{"other", "thing"})
		om.Set("overwrite", true)
		return om, nil
	})
	t.Cleanup(func() { RegisterFileLoader(nil) })

	got, err := Override(baseOptions(), File("install.toml"), DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, got.Bool("overwrite"))
	assert.Equal(t, Tuple{"parser", "runner"}, got.Value("engine"))

	// the same values as a plain map do reach the tuple
	got, err = Override(baseOptions(), map[string]any{"engine": Tuple{"a", "b"}}, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, Tuple{"a", "b"}, got.Value("engine"))
}

func TestOverride_FileWithoutLoader(t *testing.T) {
	RegisterFileLoader(nil)
	base := baseOptions()
	got, err := Override(base, File("x.toml"), DefaultPolicy())
	require.ErrorIs(t, err, ErrNoFileLoader)
	assert.Same(t, base, got)
}

func TestOverride_StructFragments(t *testing.T) {
	type overrides struct {
		MaxRuns   int  `mapstructure:"max_runs"`
		Overwrite bool `mapstructure:"overwrite"`
	}
	base := baseOptions()
	frag := overrides{MaxRuns: 11, Overwrite: true}

	got, err := Override(base, frag, DefaultPolicy())
	require.NoError(t, err)
	assert.Same(t, base, got, "strict ignores unknown kinds")

	p := DefaultPolicy()
	p.Strict = false
	got, err = Override(base, &frag, p)
	require.NoError(t, err)
	assert.Equal(t, 11, got.Int("max_runs"))
	assert.True(t, got.Bool("overwrite"))

	got, err = Override(base, 42, p)
	require.NoError(t, err)
	assert.Same(t, base, got)
}

func TestPolicyFromMetas(t *testing.T) {
	metas := New("Metas",
		Field{Name: "strict", Value: false},
		Field{Name: "add_new_opts", Value: true},
		Field{Name: "hush", Value: true},
	)
	p := PolicyFromMetas(metas)
	assert.Equal(t, Policy{Strict: false, CheckTypes: true, AddNewFields: true, Delistify: true, Hush: true}, p)
	assert.Equal(t, DefaultPolicy(), PolicyFromMetas(nil))
}
