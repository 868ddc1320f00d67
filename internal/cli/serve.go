package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/oakvm/internal/attach"
	"github.com/roach88/oakvm/internal/journal"
	"github.com/roach88/oakvm/internal/oops"
	"github.com/roach88/oakvm/internal/store"
)

// reloadDelay coalesces bursts of file events into one reload.
const reloadDelay = 200 * time.Millisecond

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string // overrides journal.path
	NoWatch  bool

	// Ready, if set, is called with the gateway socket path once the
	// attach listener accepts operations.
	Ready func(gatewayPath string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <specs-dir>",
		Short: "Run the VM with its attach listener",
		Long: `Define the classes of a specs directory and serve attach operations
until interrupted.

Other processes reach the listener through the gateway socket in the
configured pipe directory ("oakvm attach", "oakvm console"). Every
published class and every completed operation is written to the SQLite
journal. Changes to the specs directory are compiled into a fresh
application loader; a failed reload keeps the previous one.

Example:
  oakvm serve ./specs
  oakvm serve ./specs --db /tmp/oakvm.db --config oakvm.toml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default from config)")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not reload when specs change")

	return cmd
}

// vmState is the reloadable part of a served VM.
type vmState struct {
	universe *oops.Universe
	specsDir string
	logger   *slog.Logger

	mu      sync.Mutex // serializes reloads
	loader  atomic.Pointer[oops.Loader]
	reloads atomic.Int64
}

// reload compiles the specs directory into a new loader. On failure the
// current loader stays in place.
func (s *vmState) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := loadSpecs(s.specsDir)
	if err != nil {
		s.logger.Warn("specs reload failed", "dir", s.specsDir, "error", err)
		return err
	}
	loader, err := defineSpecs(s.universe, h)
	if err != nil {
		s.logger.Warn("specs reload failed", "dir", s.specsDir, "error", err)
		return err
	}
	s.loader.Store(loader)
	n := s.reloads.Add(1)
	s.logger.Info("specs reloaded", "classes", len(h.Classes), "loader", loader.ID(), "reloads", n)
	return nil
}

func runServe(opts *ServeOptions, specsDir string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Journal.Path = opts.Database
	}
	logger := opts.newLogger(cmd.ErrOrStderr())

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("compiling specs", "dir", specsDir)
	h, err := loadSpecs(specsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile specs", err)
	}

	logger.Info("opening journal", "path", cfg.Journal.Path)
	st, err := store.Open(cfg.Journal.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing journal", "error", closeErr)
		}
	}()

	j, err := journal.Resume(ctx, st, journal.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resume journal", err)
	}
	journalDone := make(chan error, 1)
	go func() { journalDone <- j.Run(context.Background()) }()
	defer func() {
		j.Stop()
		if err := <-journalDone; err != nil {
			logger.Error("journal stopped with error", "error", err)
		}
		logger.Info("journal closed", "written", j.Written(), "failed", j.Failed())
	}()

	u, err := newUniverse(cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create universe", err)
	}
	u.AddObserver(j)

	state := &vmState{universe: u, specsDir: specsDir, logger: logger}
	loader, err := defineSpecs(u, h)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to define classes", err)
	}
	state.loader.Store(loader)
	logger.Info("classes defined", "count", len(h.Classes), "loader", loader.ID())

	if err := os.MkdirAll(cfg.Attach.PipeDir, 0o700); err != nil {
		return WrapExitError(ExitCommandError, "failed to create pipe directory", err)
	}
	gatewayPath := cfg.GatewayPath()
	if err := os.Remove(gatewayPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to remove stale gateway socket", err)
	}

	listener := attach.NewListener(attach.UnixOpener{Dir: cfg.Attach.PipeDir}, cfg.ListenerOptions(logger)...)
	dispatcher := attach.NewDispatcher(logger)
	cmds := &attach.VMCommands{
		Universe: u,
		Loader:   state.loader.Load,
		Properties: map[string]string{
			"oakvm.specs":   specsDir,
			"oakvm.journal": cfg.Journal.Path,
		},
	}
	cmds.Register(dispatcher)
	registerServeCommands(dispatcher, state, j)

	server := attach.NewServer(listener, dispatcher,
		attach.WithRecorder(j),
		attach.WithServerLogger(logger),
	)
	gateway := attach.NewGateway(listener, gatewayPath, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return gateway.Serve(gctx) })
	if !opts.NoWatch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to watch specs", err)
		}
		defer watcher.Close()
		if err := watcher.Add(specsDir); err != nil {
			return WrapExitError(ExitFailure, "failed to watch specs", err)
		}
		g.Go(func() error { return watchSpecs(gctx, watcher, state.reload, logger) })
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VM started. Attach gateway: %s\n", gatewayPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		go waitReady(gctx, listener, gatewayPath, opts.Ready)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "serve error", err)
	}
	logger.Info("VM stopped gracefully")
	return nil
}

// registerServeCommands adds the commands that need the serve state.
func registerServeCommands(d *attach.Dispatcher, state *vmState, j *journal.Journal) {
	d.Register("reload", func(_ context.Context, _ [attach.ArgCountMax]string, out io.Writer) error {
		if err := state.reload(); err != nil {
			return &attach.Error{Code: attach.CodeIllegalArgument, Message: err.Error()}
		}
		fmt.Fprintf(out, "reloaded %s\n", state.specsDir)
		return nil
	})
	d.Register("journal", func(_ context.Context, _ [attach.ArgCountMax]string, out io.Writer) error {
		fmt.Fprintf(out, "written=%d failed=%d dropped=%d pending=%d\n",
			j.Written(), j.Failed(), j.Dropped(), j.Pending())
		return nil
	})
}

// watchSpecs calls reload after .cue files in the watched directory change.
func watchSpecs(ctx context.Context, w *fsnotify.Watcher, reload func() error, logger *slog.Logger) error {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".cue" || ev.Op == fsnotify.Chmod {
				continue
			}
			logger.Debug("specs changed", "file", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			_ = reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("specs watcher error", "error", err)
		}
	}
}

// waitReady calls ready once the listener is initialized and the gateway
// socket exists.
func waitReady(ctx context.Context, l *attach.Listener, path string, ready func(string)) {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for !l.IsInitialized() || !socketExists(path) {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
	ready(path)
}

func socketExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
