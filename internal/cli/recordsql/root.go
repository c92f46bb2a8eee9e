package recordsql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recordsql/recordsql/internal/runner"
)

type Options struct {
	// Build creates the runner once a command has parsed its flags.
	Build func(ctx context.Context) (*runner.Runner, error)
	// OutputPath is the default of the run command's --output flag.
	OutputPath string
	Stdout     io.Writer
	Stderr     io.Writer
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

// Run executes the command line and returns the process exit code: 0 on
// success, 1 on failure and 2 on usage errors.
func Run(ctx context.Context, args []string, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

func NewRootCommand(opts Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "recordsql",
		Short:         "Turn sport record statements into verified SQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})
	root.AddCommand(newRunCmd(opts), newBuildIndexCmd(opts))
	return root
}

func buildRunner(ctx context.Context, opts Options) (*runner.Runner, error) {
	if opts.Build == nil {
		return nil, fmt.Errorf("runner is not configured")
	}
	return opts.Build(ctx)
}
