package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/oakvm/internal/attach"
	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
	"github.com/roach88/oakvm/internal/store"
)

// Journal is the single-writer event loop that persists runtime events.
//
// Thread-safety model:
//   - ClassDefined, OperationCompleted: safe from any goroutine, never block
//   - Run: must be called from exactly one goroutine
type Journal struct {
	store  *store.Store
	clock  *Clock
	queue  *eventQueue
	logger *slog.Logger

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

var (
	_ oops.ClassObserver = (*Journal)(nil)
	_ attach.Recorder    = (*Journal)(nil)
)

// Option configures a Journal.
type Option func(*Journal)

// WithClock replaces the default clock.
func WithClock(c *Clock) Option {
	return func(j *Journal) {
		if c != nil {
			j.clock = c
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// New creates a journal writing to s with a clock starting at 0.
func New(s *store.Store, opts ...Option) *Journal {
	j := &Journal{
		store:  s,
		clock:  NewClock(),
		queue:  newEventQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Resume creates a journal whose clock continues after the highest seq
// already in s.
func Resume(ctx context.Context, s *store.Store, opts ...Option) (*Journal, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume journal: %w", err)
	}
	return New(s, append([]Option{WithClock(NewClockAt(last))}, opts...)...), nil
}

// ClassDefined enqueues a class publication.
func (j *Journal) ClassDefined(k *oops.Klass) {
	ev := ClassEventFor(k)
	j.enqueue(Event{Type: EventTypeClass, Class: &ev})
}

// OperationCompleted enqueues a completed attach operation.
func (j *Journal) OperationCompleted(c attach.Completion) {
	args := append([]string(nil), c.Args[:]...)
	rec := ir.AttachRecord{
		ID:             c.ID.String(),
		Command:        c.Name,
		Args:           args,
		Pipe:           c.Pipe,
		Code:           int(c.Code),
		OutputBytes:    c.OutputBytes,
		DurationMicros: c.Duration.Microseconds(),
	}
	j.enqueue(Event{Type: EventTypeAttach, Attach: &rec})
}

func (j *Journal) enqueue(e Event) {
	if !j.queue.Enqueue(e) {
		j.dropped.Add(1)
		j.logger.Debug("journal closed, event dropped", "type", e.Type)
	}
}

// ClassEventFor converts a published klass into its journal record. Seq is
// left zero; Run assigns it.
func ClassEventFor(k *oops.Klass) ir.ClassEvent {
	ev := ir.ClassEvent{
		KlassID:   k.ID(),
		Name:      k.Name(),
		Kind:      k.Kind().String(),
		Dimension: k.Dimension(),
		NullFree:  k.IsNullFreeArray(),
		Layout:    int32(k.LayoutHelper()),
	}
	if l := k.Loader(); l != nil {
		ev.Loader = l.Name()
		ev.LoaderID = l.ID().String()
	}
	if s := k.Super(); s != nil {
		ev.Super = s.Name()
	}
	return ev
}

// Run drains the queue into the store until ctx is cancelled or Stop is
// called. Events already queued when Stop is called are still written.
//
// A failed write is logged and skipped; the seq it consumed stays unused.
func (j *Journal) Run(ctx context.Context) error {
	j.logger.Info("journal starting", "seq", j.clock.Current())

	for {
		ev, ok := j.queue.TryDequeue()
		if ok {
			if err := j.write(ctx, ev); err != nil {
				j.failed.Add(1)
				j.logger.Error("journal write failed", "type", ev.Type, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			j.logger.Info("journal stopping: context cancelled")
			j.queue.Close()
			return ctx.Err()

		case <-j.queue.Wait():
			// The signal channel is closed together with the queue.
			if j.queue.Drained() {
				j.logger.Info("journal stopping: queue closed", "written", j.written.Load())
				return nil
			}
		}
	}
}

func (j *Journal) write(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTypeClass:
		if ev.Class == nil {
			return fmt.Errorf("class event missing record")
		}
		ev.Class.Seq = j.clock.Next()
		if err := j.store.WriteClassEvent(ctx, *ev.Class); err != nil {
			return err
		}
		j.logger.Debug("class event written", "seq", ev.Class.Seq, "name", ev.Class.Name)

	case EventTypeAttach:
		if ev.Attach == nil {
			return fmt.Errorf("attach event missing record")
		}
		ev.Attach.Seq = j.clock.Next()
		if err := j.store.WriteAttachRecord(ctx, *ev.Attach); err != nil {
			return err
		}
		j.logger.Debug("attach record written", "seq", ev.Attach.Seq, "command", ev.Attach.Command)

	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
	j.written.Add(1)
	return nil
}

// Stop closes the queue. Run returns after writing what is already queued.
func (j *Journal) Stop() {
	j.queue.Close()
}

// Pending returns the number of queued, unwritten events.
func (j *Journal) Pending() int { return j.queue.Len() }

// Written returns the number of events written to the store.
func (j *Journal) Written() int64 { return j.written.Load() }

// Failed returns the number of events whose write failed.
func (j *Journal) Failed() int64 { return j.failed.Load() }

// Dropped returns the number of events offered after Stop.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }
