// Package jsrun runs capability scripts in an embedded JavaScript VM. A
// script sees the call's arguments as `args` and its resolved options as
// `options`; the value of its last expression, when an object, supplies the
// tool's outputs.
package jsrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/hyperifyio/optspipe/internal/limits"
	"github.com/hyperifyio/optspipe/internal/tools"
	"github.com/rs/zerolog/log"
)

// Limits bounds a script run.
type Limits struct {
	WallMS   int
	OutputKB int
}

// Result is what a finished script produced.
type Result struct {
	// Value is the exported object the script evaluated to, if any.
	Value map[string]any
	// Emitted collects emit() calls.
	Emitted string
	// Code is Value's retcode field, 0 when absent.
	Code int
}

var (
	ErrOutputLimit = limits.ErrOutputLimit
	ErrTimeout     = limits.ErrTimeout
)

// Run executes source with minimal host bindings: args, options, emit(s)
// and log(s). On ErrOutputLimit the truncated output is still returned.
//
// lim.WallMS interrupts the VM once the budget is spent and Run reports
// ErrTimeout. The wall limit applies to in-process scripts only, since a
// runaway script blocks the pipeline goroutine. External process tools get
// no wall clock and are bounded by output size alone.
func Run(source string, args, options map[string]any, lim Limits) (Result, error) {
	var res Result
	if source == "" {
		return res, errors.New("missing source")
	}
	outBuf := limits.NewBuffer(lim.OutputKB)

	vm := goja.New()
	if err := vm.Set("args", args); err != nil {
		return res, fmt.Errorf("bind args: %w", err)
	}
	if err := vm.Set("options", options); err != nil {
		return res, fmt.Errorf("bind options: %w", err)
	}
	if err := vm.Set("emit", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			if _, err := outBuf.WriteString(call.Arguments[0].String()); err != nil {
				panic(err)
			}
		}
		return goja.Undefined()
	}); err != nil {
		return res, fmt.Errorf("bind emit: %w", err)
	}
	if err := vm.Set("log", func(s string) {
		log.Info().Str("stream", "script").Msg(s)
	}); err != nil {
		return res, fmt.Errorf("bind log: %w", err)
	}

	wall := lim.WallMS
	if wall <= 0 {
		wall = limits.DefaultWallMS
	}
	ctx, cancel := limits.WithWall(context.Background(), wall)
	defer cancel()

	done := make(chan struct{})
	var (
		value  goja.Value
		runErr error
	)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				if errVal, ok := r.(error); ok {
					runErr = errVal
				} else {
					runErr = fmt.Errorf("panic: %v", r)
				}
			}
		}()
		value, runErr = vm.RunString(source)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		vm.Interrupt("timeout")
		<-done
		runErr = ErrTimeout
	}

	res.Emitted = outBuf.String()
	if runErr != nil {
		switch {
		case errors.Is(runErr, ErrOutputLimit):
			return res, ErrOutputLimit
		case errors.Is(runErr, ErrTimeout):
			return res, fmt.Errorf("%w: execution exceeded %d ms", ErrTimeout, wall)
		}
		return res, runErr
	}

	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		if m, ok := value.Export().(map[string]any); ok {
			res.Value = m
			res.Code = codeOf(m[tools.ArgRetcode])
		}
	}
	return res, nil
}

func codeOf(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
