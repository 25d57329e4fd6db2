package host

import (
	"path/filepath"
	"testing"

	"github.com/hyperifyio/optspipe/internal/builtin"
	"github.com/hyperifyio/optspipe/internal/optstree"
	"github.com/hyperifyio/optspipe/internal/pipeline"
	"github.com/hyperifyio/optspipe/internal/testutil"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probe records the overwrite option it ran with.
func probe(seen *[]bool) tools.Tool {
	return &tools.Func{
		ToolName: "Probe",
		In:       []string{tools.ArgOpts},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			tree := args[tools.ArgOpts].(*optstree.Tree)
			*seen = append(*seen, tree.Options().Bool("overwrite"))
			return 0, nil, nil
		},
	}
}

func installFile(t *testing.T, body string) string {
	t.Helper()
	return testutil.WriteFile(t, "install.toml", body)
}

func TestRun_CallArgsOverrideInstallFile(t *testing.T) {
	h, err := New(Config{InstallFile: installFile(t, "[options]\noverwrite = true\n")})
	require.NoError(t, err)
	var seen []bool
	h.Resolver().Register(probe(&seen))

	site := h.NewCallSite(nil)
	_, err = site.Run("Probe", nil)
	require.NoError(t, err)
	_, err = site.Run("Probe", map[string]any{"overwrite": false})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, seen)
	assert.Equal(t, optstree.StateShared, site.State())
}

func TestRun_MissingInstallFileIsIgnored(t *testing.T) {
	h, err := New(Config{InstallFile: filepath.Join(t.TempDir(), "absent.toml")})
	require.NoError(t, err)
	site := h.NewCallSite(nil)
	tree, err := site.Tree()
	require.NoError(t, err)
	assert.False(t, tree.Options().Bool("overwrite"))
}

func TestRun_PrivateCallSiteKeepsSharedTreeClean(t *testing.T) {
	h, err := New(Config{})
	require.NoError(t, err)
	var seen []bool
	h.Resolver().Register(probe(&seen))

	private := h.NewCallSite(nil)
	require.NoError(t, private.SetLocalMetas(map[string]any{"sync": false, "read_only": false}))
	_, err = private.Run("Probe", map[string]any{"overwrite": true})
	require.NoError(t, err)
	assert.Equal(t, optstree.StatePrivateWritable, private.State())

	require.NoError(t, h.Shared().With(func(tree *optstree.Tree) error {
		assert.False(t, tree.Options().Bool("overwrite"))
		return nil
	}))

	synced := h.NewCallSite(nil)
	_, err = synced.Run("Probe", nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, seen)
}

func TestRun_SaveAliasThroughManifestScripts(t *testing.T) {
	manifest := testutil.WriteFile(t, "capabilities.json", `{"tools":[
		{"name":"Write_Shp","script":"({file: args.geometry.length + \".shp\"})",
		 "inputs":["geometry"],"outputs":["file"]},
		{"name":"Read_Shp","script":"({geometry: [args.file]})",
		 "inputs":["file"],"outputs":["geometry"]}
	]}`)
	geo := &memGeometry{in: []any{"a", "b"}}
	reg := prometheus.NewRegistry()
	h, err := New(Config{
		Manifest:   manifest,
		Aliases:    map[string][]string{"Save": {"Write_Shp", "Read_Shp"}},
		Registerer: reg,
		Geometry:   geo,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{builtin.ListTools, builtin.LoadConfig, "Read_Shp", builtin.SaveConfig, "Write_Shp"}, h.ToolNames())

	out, err := h.NewCallSite(nil).Run("Save", nil)
	require.NoError(t, err)
	assert.Equal(t, "2.shp", out["file"])
	assert.Equal(t, []any{"2.shp"}, geo.out)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_RejectsBadAliases(t *testing.T) {
	_, err := New(Config{Aliases: map[string][]string{"options": {"List_Tools"}}})
	assert.Error(t, err)
	_, err = New(Config{Aliases: map[string][]string{"X": {"Nowhere"}}})
	assert.Error(t, err)
}

func TestRun_UnknownNickname(t *testing.T) {
	h, err := New(Config{})
	require.NoError(t, err)
	_, err = h.NewCallSite(nil).Run("Nope", nil)
	assert.True(t, pipeline.IsNotFound(err))
}

func TestRun_AutoWriteAndDocumentFolder(t *testing.T) {
	h, err := New(Config{Paths: docPath("/work/project/drawing.3dm")})
	require.NoError(t, err)
	var folder string
	h.Resolver().Register(&tools.Func{ToolName: "Write_Shp", In: []string{tools.ArgOpts}, Out: []string{"file"},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			folder = args[tools.ArgOpts].(*optstree.Tree).Options().Str("working_folder")
			return 0, map[string]any{"file": "auto.shp"}, nil
		}})
	var got any
	h.Resolver().Register(&tools.Func{ToolName: "Analyse", In: []string{"file"},
		Fn: func(args map[string]any) (int, map[string]any, error) {
			got = args["file"]
			return 0, nil, nil
		}})

	out, err := h.NewCallSite(nil).Run("Analyse", nil, map[string]any{
		"options": map[string]any{"auto_write": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "auto.shp", got)
	assert.Equal(t, "auto.shp", out["file"])
	assert.Equal(t, filepath.Dir("/work/project/drawing.3dm"), folder)
}

func TestRun_ListTools(t *testing.T) {
	h, err := New(Config{})
	require.NoError(t, err)
	out, err := h.NewCallSite(nil).Run(builtin.ListTools, nil)
	require.NoError(t, err)
	assert.Equal(t, h.ToolNames(), out[builtin.OutTools])
}

type memGeometry struct {
	in, out any
}

func (m *memGeometry) Geometry() (any, error) { return m.in, nil }
func (m *memGeometry) Accept(g any) error     { m.out = g; return nil }

type docPath string

func (d docPath) DocumentPath(string) string { return string(d) }
