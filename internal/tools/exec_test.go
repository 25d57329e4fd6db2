package tools

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/hyperifyio/optspipe/internal/optstree"
	"github.com/hyperifyio/optspipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const writerSource = `package main

import (
	"fmt"
	"os"
	"strconv"
)

func main() {
	fmt.Printf("{\"file\": %q}\n", os.Args[1])
	fmt.Fprintln(os.Stderr, "warn line")
	code, _ := strconv.Atoi(os.Args[2])
	os.Exit(code)
}
`

const envSource = `package main

import (
	"fmt"
	"os"
)

func main() { fmt.Print(os.Getenv("SHP_TOKEN")) }
`

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("helper binaries assume a POSIX environment")
	}
}

func writerTool(t *testing.T) *ExecTool {
	t.Helper()
	bin := testutil.BuildHelper(t, "writer", writerSource)
	defaults, _ := opts.ToOrdered(map[string]any{"exit_code": 0})
	tool, err := NewExecTool(Spec{
		Name:    "Write_Shp",
		Command: []string{bin, `{{arg "name"}}.shp`, `{{opt "exit_code"}}`, `{{arg "optional_flag"}}`},
		Inputs:  []string{"name"},
		Outputs: []string{"file", OutputStderr},
		Options: defaults,
	})
	require.NoError(t, err)
	return tool
}

func TestExecTool_RunsAndCollectsOutputs(t *testing.T) {
	skipOnWindows(t)
	tool := writerTool(t)
	assert.Equal(t, []string{"name", ArgOpts, ArgRunID}, tool.Inputs())

	tree := optstree.Default()
	code, out, err := tool.Invoke(map[string]any{"name": "roads", ArgOpts: tree, ArgRunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "roads.shp", out["file"])
	assert.Equal(t, "warn line\n", out[OutputStderr])

	leaf, ok := tree.Leaf("Write_Shp", optstree.VersionKeyOf(tree.Metas()))
	require.True(t, ok, "defaults are stored in the tree on first use")
	assert.Equal(t, 0, leaf.Int("exit_code"))
}

func TestExecTool_ExitCodeFollowsTreeOverride(t *testing.T) {
	skipOnWindows(t)
	tool := writerTool(t)
	tree := optstree.Default()
	_, _, err := tool.Invoke(map[string]any{"name": "a", ArgOpts: tree})
	require.NoError(t, err)

	version := optstree.VersionKeyOf(tree.Metas())
	require.NoError(t, optstree.Update(tree, map[string]any{
		"Write_Shp": map[string]any{version: map[string]any{"exit_code": 4}},
	}, tree.UpdateConfig()))

	code, out, err := tool.Invoke(map[string]any{"name": "b", ArgOpts: tree})
	require.NoError(t, err, "a non-zero exit is a result code, not an error")
	assert.Equal(t, 4, code)
	assert.Equal(t, "b.shp", out["file"])
}

func TestExecTool_LaunchFailure(t *testing.T) {
	tool, err := NewExecTool(Spec{Name: "Missing", Command: []string{filepath.Join(t.TempDir(), "does-not-exist")}})
	require.NoError(t, err)
	code, _, err := tool.Invoke(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestExecTool_BadTemplate(t *testing.T) {
	_, err := NewExecTool(Spec{Name: "Bad", Command: []string{"echo", "{{arg"}})
	assert.Error(t, err)
	_, err = NewExecTool(Spec{Name: "Empty"})
	assert.Error(t, err)
}

func TestExecTool_EnvPassthroughAndAudit(t *testing.T) {
	skipOnWindows(t)
	bin := testutil.BuildHelper(t, "env", envSource)
	auditDir := filepath.Join(t.TempDir(), "audit")
	t.Setenv("SHP_TOKEN", "s3cr3t")
	t.Setenv(RedactEnv, "hunter2")

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = time.Now })

	tool, err := NewExecTool(Spec{
		Name:           "Env",
		Command:        []string{bin, "--password=hunter2", "token-s3cr3t"},
		Outputs:        []string{OutputStdout},
		EnvPassthrough: []string{"shp_token"},
	})
	require.NoError(t, err)

	tree := optstree.Default()
	require.NoError(t, optstree.Update(tree, map[string]any{
		"metas": map[string]any{"audit_dir": auditDir},
	}, tree.UpdateConfig()))

	code, out, err := tool.Invoke(map[string]any{ArgOpts: tree, ArgRunID: "run-7"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "s3cr3t", out[OutputStdout])

	f, err := os.Open(filepath.Join(auditDir, "20260301.log"))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var entry auditEntry
	require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
	assert.Equal(t, "Env", entry.Tool)
	assert.Equal(t, "run-7", entry.RunID)
	assert.Equal(t, []string{"SHP_TOKEN"}, entry.EnvKeys)
	assert.Equal(t, "--password="+redactedMark, entry.Argv[1])
	assert.Equal(t, "token-"+redactedMark, entry.Argv[2])
}

func TestFunc(t *testing.T) {
	f := &Func{ToolName: "noop", In: []string{"a"}, Out: []string{"b"}}
	code, out, err := f.Invoke(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Nil(t, out)
	assert.Equal(t, []string{"noop", ""}, Names([]Tool{f, nil}))
}
