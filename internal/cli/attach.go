package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/oakvm/internal/attach"
	"github.com/roach88/oakvm/internal/config"
)

// AttachOptions holds flags shared by the attach and console commands.
type AttachOptions struct {
	*RootOptions
	Socket  string        // gateway socket; defaults to the configured one
	Timeout time.Duration // per operation
}

// AttachResult is a completed attach operation.
type AttachResult struct {
	Command string      `json:"command"`
	Args    []string    `json:"args,omitempty"`
	Code    attach.Code `json:"code"`
	Status  string      `json:"status"`
	Output  string      `json:"output"`
}

// WriteText implements TextWriter.
func (r AttachResult) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, r.Output)
	return err
}

// NewAttachCommand creates the attach command.
func NewAttachCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttachOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "attach <command> [arg...]",
		Short: "Send one operation to a running VM",
		Long: `Send an operation to the attach listener of a running "oakvm serve"
and print its output. At most three arguments are passed.

Built-in commands: help, properties, classes, resolve <name> [rank]
[nullfree], print <name>, verify, reload, journal.

Exit codes:
  0 - Operation completed with status 0
  1 - Operation completed with a non-zero status
  2 - The VM could not be reached or refused the operation

Examples:
  oakvm attach classes
  oakvm attach resolve app/Circle 2
  oakvm attach properties --format json`,
		Args:          cobra.RangeArgs(1, 1+attach.ArgCountMax),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(opts, args[0], args[1:], cmd)
		},
	}

	addAttachFlags(cmd, opts)
	return cmd
}

func addAttachFlags(cmd *cobra.Command, opts *AttachOptions) {
	cmd.Flags().StringVar(&opts.Socket, "socket", "", "gateway socket (default <pipe_dir>/attach.sock)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "operation timeout")
}

// newClient returns a client for the configured or given gateway.
func (o *AttachOptions) newClient(cfg *config.Config) *attach.Client {
	socket := o.Socket
	if socket == "" {
		socket = cfg.GatewayPath()
	}
	enq := attach.RemoteEnqueuer{Path: socket, Timeout: o.Timeout}
	return attach.NewClient(enq, cfg.Attach.PipeDir)
}

// execute runs one operation with the configured timeout.
func (o *AttachOptions) execute(ctx context.Context, client *attach.Client, name string, args []string) (AttachResult, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	resp, err := client.Execute(ctx, name, args...)
	if err != nil {
		return AttachResult{}, err
	}
	return AttachResult{
		Command: name,
		Args:    args,
		Code:    resp.Code,
		Status:  resp.Code.String(),
		Output:  string(resp.Output),
	}, nil
}

func runAttach(opts *AttachOptions, name string, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := opts.execute(ctx, opts.newClient(cfg), name, args)
	if err != nil {
		_ = formatter.Error(ErrCodeAttach, err.Error(), nil)
		return WrapExitError(ExitCommandError, "attach failed", err)
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if result.Code != attach.CodeOK {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: status %d (%s)", name, int(result.Code), result.Status))
	}
	return nil
}
