// Command archgate evaluates architecture governance gates and manages
// Architecture Change Requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes.
const (
	exitPass  = 0
	exitFail  = 1
	exitError = 2
)

// failure is a governance outcome (gate failed, drift found) rather than an
// infrastructure problem; it maps to exit code 1.
type failure struct{ msg string }

func (f *failure) Error() string { return f.msg }

func failf(format string, args ...any) error {
	return &failure{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. args includes the program name.
func Run(args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	defer a.close()
	root := newRootCmd(a)
	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return exitPass
	}
	var f *failure
	if errors.As(err, &f) {
		if f.msg != "" {
			_, _ = fmt.Fprintln(stderr, f.msg)
		}
		return exitFail
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}
