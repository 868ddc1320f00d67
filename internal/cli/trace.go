package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Class    string // filter class events by name
	Loader   string // filter class events by loader name
	Kind     string // filter class events by kind
	Command  string // filter attach operations by command
}

// TraceEntry is one journal event in the timeline.
type TraceEntry struct {
	Seq    int64            `json:"seq"`
	Type   string           `json:"type"` // "class" or "attach"
	Class  *ir.ClassEvent   `json:"class,omitempty"`
	Attach *ir.AttachRecord `json:"attach,omitempty"`
}

// TraceStats holds summary statistics for the journal.
type TraceStats struct {
	Classes    int `json:"classes"`
	Operations int `json:"operations"`
	Failed     int `json:"failed_operations"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Database string       `json:"database"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// WriteText implements TextWriter.
func (r TraceResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Journal: %s\n\n", r.Database)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(r.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range r.Timeline {
		formatTraceEntry(w, e)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Classes:    %d\n", r.Stats.Classes)
	fmt.Fprintf(w, "  Operations: %d\n", r.Stats.Operations)
	fmt.Fprintf(w, "  Failed:     %d\n", r.Stats.Failed)
	return nil
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the event journal",
		Long: `Show the journal written by "oakvm serve": every published class
and every completed attach operation, ordered by sequence number.

Examples:
  oakvm trace --db ./oakvm.db
  oakvm trace --db ./oakvm.db --kind objArray --loader app
  oakvm trace --db ./oakvm.db --command resolve --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Class, "class", "", "only class events with this name")
	cmd.Flags().StringVar(&opts.Loader, "loader", "", "only class events of this loader")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only class events of this kind (instance|typeArray|objArray|flatArray)")
	cmd.Flags().StringVar(&opts.Command, "command", "", "only attach operations of this command")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	result.Database = opts.Database
	return formatter.Success(result)
}

// buildTrace merges class events and attach records by sequence number.
// Attach records are left out when only class filters are given, and
// class events when only a command filter is given.
func buildTrace(ctx context.Context, st *store.Store, opts *TraceOptions) (TraceResult, error) {
	classFilter := opts.Class != "" || opts.Loader != "" || opts.Kind != ""
	var (
		classes []ir.ClassEvent
		ops     []ir.AttachRecord
		err     error
	)
	if opts.Command == "" || classFilter {
		classes, err = st.ReadClassEvents(ctx, store.ClassFilter{Name: opts.Class, Loader: opts.Loader, Kind: opts.Kind})
		if err != nil {
			return TraceResult{}, err
		}
	}
	if !classFilter || opts.Command != "" {
		ops, err = st.ReadAttachRecords(ctx, opts.Command)
		if err != nil {
			return TraceResult{}, err
		}
	}

	result := TraceResult{
		Timeline: make([]TraceEntry, 0, len(classes)+len(ops)),
		Stats:    TraceStats{Classes: len(classes), Operations: len(ops)},
	}
	i, j := 0, 0
	for i < len(classes) || j < len(ops) {
		if j == len(ops) || (i < len(classes) && classes[i].Seq < ops[j].Seq) {
			ev := classes[i]
			result.Timeline = append(result.Timeline, TraceEntry{Seq: ev.Seq, Type: "class", Class: &ev})
			i++
			continue
		}
		rec := ops[j]
		if rec.Code != 0 {
			result.Stats.Failed++
		}
		result.Timeline = append(result.Timeline, TraceEntry{Seq: rec.Seq, Type: "attach", Attach: &rec})
		j++
	}
	return result, nil
}

func formatTraceEntry(w io.Writer, e TraceEntry) {
	switch {
	case e.Class != nil:
		c := e.Class
		fmt.Fprintf(w, "  [%d] CLASS %s (%s, loader %s", e.Seq, c.Name, c.Kind, c.Loader)
		if c.Dimension > 0 {
			fmt.Fprintf(w, ", dim %d", c.Dimension)
		}
		if c.NullFree {
			fmt.Fprint(w, ", null-free")
		}
		fmt.Fprintln(w, ")")
	case e.Attach != nil:
		a := e.Attach
		args := strings.TrimRight(strings.Join(a.Args, " "), " ")
		d := time.Duration(a.DurationMicros) * time.Microsecond
		fmt.Fprintf(w, "  [%d] ATTACH %s %s -> %d (%d bytes, %s)\n", e.Seq, a.Command, args, a.Code, a.OutputBytes, d)
	}
}
