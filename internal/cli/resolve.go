package cli

import (
	"bytes"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/oakvm/internal/oops"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Rank     int
	NullFree bool
}

// KlassInfo describes a resolved class.
type KlassInfo struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Loader      string   `json:"loader"`
	Module      string   `json:"module"`
	Modifiers   uint16   `json:"modifiers"`
	Super       string   `json:"super,omitempty"`
	Secondaries []string `json:"secondaries"`
	Dimension   int      `json:"dimension,omitempty"`
	Layout      string   `json:"layout,omitempty"`
	NullFree    bool     `json:"null_free,omitempty"`
	Published   []string `json:"published"`

	text []byte
}

// WriteText implements TextWriter.
func (i KlassInfo) WriteText(w io.Writer) error {
	if _, err := w.Write(i.text); err != nil {
		return err
	}
	for _, name := range i.Published {
		if _, err := io.WriteString(w, "published "+name+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// publishLog records the names of published classes.
type publishLog struct {
	mu    sync.Mutex
	names []string
}

func (p *publishLog) ClassDefined(k *oops.Klass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, k.Name())
}

func (p *publishLog) list() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.names...)
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <specs-dir> <class>",
		Short: "Resolve a class or one of its array classes",
		Long: `Define the classes of a specs directory and resolve a class by name.

The name may be an instance class ("app/Circle"), a primitive array
("[I") or a reference array ("[[Lapp/Circle;"). With --rank the array
of that rank over the resolved class is created, along with every
missing super array. The classes published by the resolution are listed
in creation order.

Examples:
  oakvm resolve ./specs app/Circle --rank 2
  oakvm resolve ./specs app/Point --null-free
  oakvm resolve ./specs "[Lapp/Circle;" --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Rank, "rank", 0, "array rank to create over the class")
	cmd.Flags().BoolVar(&opts.NullFree, "null-free", false, "create the null-free array (rank 1, flattenable class)")

	return cmd
}

func runResolve(opts *ResolveOptions, specsDir, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Rank < 0 {
		_ = formatter.Error(ErrCodeInvalidArgs, "rank must not be negative", nil)
		return NewExitError(ExitCommandError, "rank must not be negative")
	}
	rank := opts.Rank
	if opts.NullFree && rank == 0 {
		rank = 1
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	h, err := loadSpecs(specsDir)
	if err != nil {
		_ = formatter.Error(specErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load specs", err)
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	u, err := newUniverse(cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create universe", err)
	}
	loader, err := defineSpecs(u, h)
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to define classes", err)
	}

	published := &publishLog{}
	u.AddObserver(published)

	k, err := u.ResolveName(loader, name)
	if err == nil && rank > 0 {
		if opts.NullFree && (rank != 1 || !k.IsFlattenable()) {
			msg := "null-free arrays need rank 1 and a flattenable element: " + k.ExternalName()
			_ = formatter.Error(ErrCodeInvalidArgs, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		k, err = u.ArrayOf(k, rank, opts.NullFree)
	}
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "resolve failed", err)
	}

	return formatter.Success(describeKlass(u, k, published.list()))
}

// describeKlass builds the report of k.
func describeKlass(u *oops.Universe, k *oops.Klass, published []string) KlassInfo {
	info := KlassInfo{
		Name:        k.Name(),
		Kind:        k.Kind().String(),
		Loader:      k.Loader().Name(),
		Module:      k.Module(),
		Modifiers:   uint16(k.ModifierFlags()),
		Secondaries: make([]string, 0, len(k.SecondarySupers())),
		Published:   published,
	}
	if s := k.Super(); s != nil {
		info.Super = s.Name()
	}
	for _, s := range k.SecondarySupers() {
		info.Secondaries = append(info.Secondaries, s.Name())
	}
	if k.IsArray() {
		info.Dimension = k.Dimension()
		info.Layout = k.LayoutHelper().String()
		info.NullFree = k.IsNullFreeArray()
	}

	var buf bytes.Buffer
	u.PrintOn(&buf, k)
	info.text = buf.Bytes()
	return info
}
