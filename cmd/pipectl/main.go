// Command pipectl resolves and runs tool pipelines against a layered
// options tree.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hyperifyio/optspipe/internal/pipeline"
)

func main() {
	os.Exit(cliMain(os.Args[1:], os.Stdout, os.Stderr))
}

// cliMain is the testable entrypoint. It takes argv without the program
// name and returns the process exit code.
func cliMain(args []string, stdout io.Writer, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	safeFprintln(stderr, "error:", err)
	return exitCode(err)
}

// exitCode maps a failed pipeline to the failing tool's code. Usage and
// configuration errors exit with 2, anything else with 1.
func exitCode(err error) int {
	var failed *pipeline.ToolFailedError
	if errors.As(err, &failed) && failed.Code > 0 {
		return failed.Code
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

// safeFprintln writes a line to w and intentionally ignores write errors.
func safeFprintln(w io.Writer, a ...any) {
	if _, err := fmt.Fprintln(w, a...); err != nil {
		return
	}
}
