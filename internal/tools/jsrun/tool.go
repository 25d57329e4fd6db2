package jsrun

import (
	"errors"
	"fmt"

	"github.com/hyperifyio/optspipe/internal/tools"
)

// Tool is a pure-local capability backed by a script.
type Tool struct {
	spec tools.Spec
}

// New builds a script tool from a manifest entry.
func New(spec tools.Spec) (*Tool, error) {
	if spec.Name == "" {
		return nil, errors.New("script tool: name is required")
	}
	if spec.Script == "" {
		return nil, fmt.Errorf("script tool %q: script is required", spec.Name)
	}
	return &Tool{spec: spec}, nil
}

func (t *Tool) Name() string      { return t.spec.Name }
func (t *Tool) Outputs() []string { return t.spec.Outputs }

func (t *Tool) Inputs() []string {
	in := append([]string(nil), t.spec.Inputs...)
	if !tools.Declares(in, tools.ArgOpts) {
		in = append(in, tools.ArgOpts)
	}
	return in
}

// Invoke runs the script. A script error is reported with code 1; the
// script may also return a non-zero retcode itself.
func (t *Tool) Invoke(args map[string]any) (int, map[string]any, error) {
	settings, err := tools.SettingsFor(args, t.spec.Name, t.spec.Defaults())
	if err != nil {
		return -1, nil, err
	}
	visible := make(map[string]any, len(args))
	for k, v := range args {
		if k != tools.ArgOpts {
			visible[k] = v
		}
	}
	res, err := Run(t.spec.Script, visible, settings.Values(), Limits{
		WallMS:   settings.Options.Int("script_wall_ms"),
		OutputKB: settings.Options.Int("max_output_kb"),
	})
	out := map[string]any{}
	for _, k := range t.spec.Outputs {
		if v, ok := res.Value[k]; ok {
			out[k] = v
		}
	}
	if tools.Declares(t.spec.Outputs, tools.OutputStdout) {
		if _, ok := out[tools.OutputStdout]; !ok {
			out[tools.OutputStdout] = res.Emitted
		}
	}
	if err != nil {
		return 1, out, fmt.Errorf("%s: %w", t.spec.Name, err)
	}
	return res.Code, out, nil
}
