package pipeline

import (
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/rs/zerolog/log"
)

// Runner executes resolved pipelines. The zero value is ready to use.
type Runner struct {
	Metrics *Metrics
}

// RunTools runs ts in order with a Runner that records no metrics.
func RunTools(ts []tools.Tool, shared map[string]any) (map[string]any, error) {
	return (&Runner{}).Run(ts, shared)
}

// Run validates every tool, then invokes them one after another. Each tool
// sees only its declared inputs taken from shared, and its declared outputs
// are written back, later tools overwriting earlier values. The result code
// of each tool is stored under retcode; a non-zero code stops the run with
// *ToolFailedError. shared keeps whatever was written before the failure.
func (r *Runner) Run(ts []tools.Tool, shared map[string]any) (map[string]any, error) {
	if shared == nil {
		shared = map[string]any{}
	}
	if err := validate(ts); err != nil {
		return shared, err
	}
	runID, _ := shared[tools.ArgRunID].(string)
	if runID == "" {
		runID = uuid.NewString()
		shared[tools.ArgRunID] = runID
	}

	r.Metrics.runStarted()
	defer r.Metrics.runFinished()

	logger := log.With().Str("run_id", runID).Logger()
	logger.Debug().Strs("tools", tools.Names(ts)).Msg("pipeline start")

	for _, t := range ts {
		name := t.Name()
		args := make(map[string]any, len(t.Inputs()))
		for _, k := range t.Inputs() {
			if v, ok := shared[k]; ok {
				args[k] = v
			}
		}

		start := time.Now()
		code, out, err := t.Invoke(args)
		elapsed := time.Since(start)

		for _, k := range t.Outputs() {
			if v, ok := out[k]; ok {
				shared[k] = v
			}
		}
		shared[tools.ArgRetcode] = code

		if err != nil || code != 0 {
			reason := "exit"
			if err != nil {
				reason = "error"
			}
			if err != nil && code == 0 {
				code = -1
				shared[tools.ArgRetcode] = code
			}
			r.Metrics.observeTool(name, "failed", elapsed)
			r.Metrics.incFailure(name, reason)
			logger.Warn().Str("tool", name).Int("code", code).Err(err).Dur("elapsed", elapsed).Msg("tool failed")
			return shared, &ToolFailedError{Tool: name, Code: code, Err: err}
		}
		r.Metrics.observeTool(name, "ok", elapsed)
		logger.Debug().Str("tool", name).Dur("elapsed", elapsed).Msg("tool done")
	}
	return shared, nil
}

func validate(ts []tools.Tool) error {
	for i, t := range ts {
		if isNil(t) {
			return &ValidationError{Index: i, Reason: "not a tool"}
		}
		if t.Name() == "" {
			return &ValidationError{Index: i, Reason: "tool has no name"}
		}
	}
	return nil
}

func isNil(t tools.Tool) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}
