package tools

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hyperifyio/optspipe/internal/limits"
	"github.com/rs/zerolog/log"
)

// Output names an ExecTool fills from the process streams when the tool
// declares them and stdout carries no JSON value for them.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// ExecTool runs an external capability binary. Its argv is rendered from
// templates against the call's arguments and resolved options, the process
// runs to completion, and its exit status becomes the result code. A JSON
// object printed on stdout supplies the declared outputs.
//
// There is no timeout: a hung capability blocks the pipeline.
type ExecTool struct {
	spec Spec
}

// NewExecTool validates spec and parses its argv templates.
func NewExecTool(spec Spec) (*ExecTool, error) {
	if spec.Name == "" {
		return nil, errors.New("exec tool: name is required")
	}
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("exec tool %q: command is required", spec.Name)
	}
	if err := parseArgv(spec.Name, spec.Command); err != nil {
		return nil, fmt.Errorf("exec tool %q: %w", spec.Name, err)
	}
	return &ExecTool{spec: spec}, nil
}

func (e *ExecTool) Name() string      { return e.spec.Name }
func (e *ExecTool) Outputs() []string { return e.spec.Outputs }
func (e *ExecTool) Spec() Spec        { return e.spec }

// Inputs are the declared inputs plus the options tree and run id.
func (e *ExecTool) Inputs() []string {
	in := append([]string(nil), e.spec.Inputs...)
	for _, k := range []string{ArgOpts, ArgRunID} {
		if !Declares(in, k) {
			in = append(in, k)
		}
	}
	return in
}

func (e *ExecTool) Invoke(args map[string]any) (int, map[string]any, error) {
	start := time.Now()
	settings, err := SettingsFor(args, e.spec.Name, e.spec.Defaults())
	if err != nil {
		return -1, nil, err
	}
	runID, _ := args[ArgRunID].(string)
	values := settings.Values()
	argv, err := renderArgv(e.spec.Name, e.spec.Command, &argvData{
		Name:    e.spec.Name,
		RunID:   runID,
		Args:    args,
		Options: values,
	})
	if err != nil {
		return -1, nil, fmt.Errorf("%s: %w", e.spec.Name, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	allow, err := normalizeEnvAllowlist(append(append([]string(nil), e.spec.EnvPassthrough...), settings.Options.Strings("env_passthrough")...))
	if err != nil {
		return -1, nil, fmt.Errorf("%s: %w", e.spec.Name, err)
	}
	env, passedKeys := buildToolEnvironment(allow)
	cmd.Env = env
	if wf := settings.Options.Str("working_folder"); wf != "" {
		cmd.Dir = wf
	}
	stdout := limits.NewBuffer(settings.Options.Int("max_output_kb"))
	stderr := limits.NewBuffer(settings.Options.Int("max_output_kb"))
	cmd.Stdout = stdout.Quiet()
	cmd.Stderr = stderr.Quiet()

	runErr := cmd.Run()
	code := 0
	if runErr != nil {
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			e.audit(settings, runID, argv, cmd.Dir, -1, start, 0, 0, passedKeys)
			return -1, nil, fmt.Errorf("launch %s: %w", e.spec.Name, runErr)
		}
		code = ee.ExitCode()
	}
	e.audit(settings, runID, argv, cmd.Dir, code, start, stdout.Len(), stderr.Len(), passedKeys)
	if stdout.Truncated() || stderr.Truncated() {
		log.Warn().Str("tool", e.spec.Name).Str("run_id", runID).Msg("capability output truncated")
	}

	if settings.Options.Bool("log_subprocess_output") {
		forwardLines(e.spec.Name, runID, "stdout", stdout.Bytes())
		forwardLines(e.spec.Name, runID, "stderr", stderr.Bytes())
	}
	log.Debug().Str("tool", e.spec.Name).Str("run_id", runID).Int("exit", code).Dur("took", time.Since(start)).Msg("capability finished")
	return code, e.collect(stdout.Bytes(), stderr.Bytes()), nil
}

func (e *ExecTool) audit(s Settings, runID string, argv []string, dir string, code int, start time.Time, outN, errN int, envKeys []string) {
	cwd := dir
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}
	entry := newAuditEntry(runID, e.spec.Name, argv, cwd, code, start, outN, errN, envKeys)
	if err := appendAuditLog(s.Metas.Str("audit_dir"), entry); err != nil {
		log.Warn().Err(err).Str("tool", e.spec.Name).Msg("audit write failed")
	}
}

// collect maps process output to the declared outputs.
func (e *ExecTool) collect(stdout, stderr []byte) map[string]any {
	out := map[string]any{}
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			for _, k := range e.spec.Outputs {
				if v, ok := obj[k]; ok {
					out[k] = normalizeJSON(v)
				}
			}
		}
	}
	if _, ok := out[OutputStdout]; !ok && Declares(e.spec.Outputs, OutputStdout) {
		out[OutputStdout] = string(stdout)
	}
	if _, ok := out[OutputStderr]; !ok && Declares(e.spec.Outputs, OutputStderr) {
		out[OutputStderr] = string(stderr)
	}
	return out
}

// buildToolEnvironment constructs a minimal environment for the process and
// returns the allowlisted keys that were actually passed.
func buildToolEnvironment(allow []string) (env []string, passedKeys []string) {
	if v := os.Getenv("PATH"); v != "" {
		env = append(env, "PATH="+v)
	}
	if v := os.Getenv("HOME"); v != "" {
		env = append(env, "HOME="+v)
	}
	for _, key := range allow {
		if key == "PATH" || key == "HOME" {
			continue
		}
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
			passedKeys = append(passedKeys, key)
		}
	}
	return env, passedKeys
}

func forwardLines(tool, runID, stream string, b []byte) {
	if len(b) == 0 {
		return
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		ev := log.Info()
		if stream == "stderr" {
			ev = log.Warn()
		}
		ev.Str("tool", tool).Str("run_id", runID).Str("stream", stream).Msg(sc.Text())
	}
}
