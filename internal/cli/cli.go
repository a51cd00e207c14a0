// Package cli implements the todoctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-todo/pkg/sdk"
)

// Exit codes.
const (
	Success      = 0
	UserError    = 1
	AuthError    = 2
	BackendError = 3
)

// App carries what every command needs.
type App struct {
	Client *sdk.Client
	Creds  sdk.Credentials
	Out    io.Writer
	Err    io.Writer
	Quiet  bool
}

// Run executes todoctl with args and returns the process exit code.
func Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	creds := sdk.Credentials{Dir: sdk.DefaultConfigDir()}
	client, err := sdk.FromEnv(creds)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return AuthError
	}
	app := &App{Client: client, Creds: creds, Out: out, Err: errOut}

	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if _, _, err := root.Find(args); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return UserError
	}

	err = root.ExecuteContext(ctx)
	if err == nil {
		return Success
	}
	fmt.Fprintf(errOut, "error: %s\n", describe(err))
	return ExitCode(err)
}

// usageError marks bad arguments or flags.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// ExitCode classifies err.
func ExitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return Success
	case errors.As(err, &ue):
		return UserError
	case errors.Is(err, sdk.ErrNoToken), errors.Is(err, sdk.ErrUnauthorized):
		return AuthError
	}
	if apiErr, ok := sdk.AsAPIError(err); ok && apiErr.Status < 500 {
		return UserError
	}
	return BackendError
}

func describe(err error) string {
	if errors.Is(err, sdk.ErrNoToken) {
		return "not logged in, run: todoctl login <email>"
	}
	apiErr, ok := sdk.AsAPIError(err)
	if !ok {
		return err.Error()
	}
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Code
	}
	for _, d := range apiErr.Details {
		msg += fmt.Sprintf("\n  %s: %s", d.Field, d.Message)
	}
	return msg
}

func (a *App) done(format string, args ...any) {
	if !a.Quiet {
		fmt.Fprintf(a.Out, format+"\n", args...)
	}
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
