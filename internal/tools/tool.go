// Package tools defines pipeline tools: pure in-process functions, external
// capability binaries described by a manifest, and their audit trail.
package tools

// Well-known keys of the shared argument map.
const (
	// ArgOpts carries the *optstree.Tree of the run. Tools that declare it as
	// an input may read and extend it.
	ArgOpts = "opts"
	// ArgRetcode holds the result code of the tool that ran last.
	ArgRetcode = "retcode"
	// ArgRunID identifies one pipeline run in logs and audit lines.
	ArgRunID = "run_id"
)

// Tool is one pipeline stage. Invoke receives only the declared inputs that
// were present in the shared map; any outputs it returns that are declared
// are merged back. A non-zero code stops the pipeline.
type Tool interface {
	Name() string
	Inputs() []string
	Outputs() []string
	Invoke(args map[string]any) (code int, out map[string]any, err error)
}

// Func adapts a Go function into a Tool.
type Func struct {
	ToolName string
	In       []string
	Out      []string
	Fn       func(args map[string]any) (int, map[string]any, error)
}

func (f *Func) Name() string      { return f.ToolName }
func (f *Func) Inputs() []string  { return f.In }
func (f *Func) Outputs() []string { return f.Out }

func (f *Func) Invoke(args map[string]any) (int, map[string]any, error) {
	if f.Fn == nil {
		return 0, nil, nil
	}
	return f.Fn(args)
}

// Names lists the tool names in order.
func Names(ts []Tool) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		if t == nil {
			out = append(out, "")
			continue
		}
		out = append(out, t.Name())
	}
	return out
}

// Declares reports whether names contains key.
func Declares(names []string, key string) bool {
	for _, n := range names {
		if n == key {
			return true
		}
	}
	return false
}
