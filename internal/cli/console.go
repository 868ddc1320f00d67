package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/oakvm/internal/attach"
)

// consoleCommands are completed at the prompt.
var consoleCommands = []string{
	"classes", "exit", "help", "journal", "print", "properties",
	"quit", "reload", "resolve", "verify",
}

const consolePrompt = "oakvm> "

// errConsoleEOF ends the console loop.
var errConsoleEOF = errors.New("end of input")

// lineReader reads one command line at a time.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// termReader reads from an interactive terminal with history and completion.
type termReader struct {
	state   *liner.State
	history string
}

func newTermReader(history string) *termReader {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	st.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range consoleCommands {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	})
	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = st.ReadHistory(f)
			f.Close()
		}
	}
	return &termReader{state: st, history: history}
}

func (r *termReader) ReadLine(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	switch {
	case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
		return "", errConsoleEOF
	case err != nil:
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

func (r *termReader) Close() error {
	if r.history != "" {
		if f, err := os.Create(r.history); err == nil {
			_, _ = r.state.WriteHistory(f)
			f.Close()
		}
	}
	return r.state.Close()
}

// scanReader reads newline-separated commands from a pipe or file.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) ReadLine(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", errConsoleEOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// NewConsoleCommand creates the console command.
func NewConsoleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttachOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive attach session with a running VM",
		Long: `Read attach operations line by line and print their output. Each
line is a command name followed by up to three arguments. "quit" or
"exit" ends the session.

On a terminal the console keeps a history in <pipe_dir>/console_history
and completes command names with Tab. Otherwise commands are read from
standard input, so scripts can be piped in:

  printf 'classes\nresolve app/Circle 2\n' | oakvm console`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(opts, cmd)
		},
	}

	addAttachFlags(cmd, opts)
	return cmd
}

func runConsole(opts *AttachOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	client := opts.newClient(cfg)

	var in lineReader
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) && liner.TerminalSupported() {
		in = newTermReader(filepath.Join(cfg.Attach.PipeDir, "console_history"))
	} else {
		in = &scanReader{sc: bufio.NewScanner(cmd.InOrStdin())}
	}
	defer in.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return consoleLoop(ctx, opts, client, in, cmd.OutOrStdout())
}

// consoleLoop executes lines from in until quit or end of input. Failed
// operations are reported and the loop continues.
func consoleLoop(ctx context.Context, opts *AttachOptions, client *attach.Client, in lineReader, out io.Writer) error {
	failed := 0
	for {
		line, err := in.ReadLine(consolePrompt)
		if errors.Is(err, errConsoleEOF) {
			break
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "read input", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			break
		}
		if len(fields) > 1+attach.ArgCountMax {
			fmt.Fprintf(out, "error: at most %d arguments\n", attach.ArgCountMax)
			failed++
			continue
		}

		result, err := opts.execute(ctx, client, fields[0], fields[1:])
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			failed++
			if ctx.Err() != nil {
				return WrapExitError(ExitCommandError, "console interrupted", ctx.Err())
			}
			continue
		}
		if err := result.WriteText(out); err != nil {
			return err
		}
		if result.Code != attach.CodeOK {
			fmt.Fprintf(out, "status %d (%s)\n", int(result.Code), result.Status)
			failed++
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d operation(s) failed", failed))
	}
	return nil
}
