package attach

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxEnqueuedOperations is the size of the record pool.
	MaxEnqueuedOperations = 4

	// NameLengthMax, ArgLengthMax and ArgCountMax are shared with clients.
	NameLengthMax = 16
	ArgLengthMax  = 1024
	ArgCountMax   = 3

	// PipeNameMax bounds the channel identifier, prefix included.
	PipeNameMax = 256

	// PipePrefix starts every channel identifier.
	PipePrefix = `\\.\pipe\`

	// DefaultInitRetries and DefaultInitInterval bound how long Enqueue
	// waits for the server to start.
	DefaultInitRetries  = 10
	DefaultInitInterval = time.Second
)

const none = -1

type opState int

const (
	stateFree opState = iota
	statePending
	stateInService
	stateCompleting
)

// Operation is one pooled request record.
type Operation struct {
	index int
	next  int
	state opState

	name string
	args [ArgCountMax]string
	pipe string
}

// Name returns the command name.
func (op *Operation) Name() string { return op.name }

// Arg returns argument i, or "" when absent.
func (op *Operation) Arg(i int) string { return op.args[i] }

// Args returns the three arguments.
func (op *Operation) Args() [ArgCountMax]string { return op.args }

// Pipe returns the channel identifier the response is written to.
func (op *Operation) Pipe() string { return op.pipe }

// ChannelOpener opens the response channel named by an operation.
type ChannelOpener interface {
	Open(pipe string) (io.WriteCloser, error)
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithInitRetries sets how many times Enqueue polls for readiness and the
// sleep between polls.
func WithInitRetries(n int, interval time.Duration) ListenerOption {
	return func(l *Listener) {
		l.initRetries = n
		l.initInterval = interval
	}
}

// WithListenerLogger sets the logger used by Complete.
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Listener is the attach queue. One goroutine services it; any number may
// enqueue.
type Listener struct {
	ops [MaxEnqueuedOperations]Operation

	// mu guards the free and pending lists and each record's links.
	mu       sync.Mutex
	freeHead int
	head     int
	tail     int

	// sem holds one token per pending record.
	sem chan struct{}

	initialized  atomic.Bool
	initRetries  int
	initInterval time.Duration

	opener ChannelOpener
	logger *slog.Logger
}

// NewListener creates a listener with every record free. Enqueue fails
// with ErrDisabled until SetInitialized is called.
func NewListener(opener ChannelOpener, opts ...ListenerOption) *Listener {
	l := &Listener{
		freeHead:     0,
		head:         none,
		tail:         none,
		sem:          make(chan struct{}, MaxEnqueuedOperations),
		initRetries:  DefaultInitRetries,
		initInterval: DefaultInitInterval,
		opener:       opener,
		logger:       slog.Default(),
	}
	for i := range l.ops {
		l.ops[i].index = i
		l.ops[i].next = i + 1
	}
	l.ops[MaxEnqueuedOperations-1].next = none
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetInitialized marks the servicing side as started.
func (l *Listener) SetInitialized() { l.initialized.Store(true) }

// IsInitialized reports whether SetInitialized was called.
func (l *Listener) IsInitialized() bool { return l.initialized.Load() }

// Enqueue submits an operation. It returns once the record is pending;
// servicing happens later. Errors carry a status code (see Status).
func (l *Listener) Enqueue(cmd string, args [ArgCountMax]string, pipe string) error {
	if len(cmd) > NameLengthMax {
		return ErrNameTooLong
	}
	for i := range args {
		if len(args[i]) > ArgLengthMax {
			return ErrArgTooLong
		}
	}
	if len(pipe) > PipeNameMax {
		return ErrPipeTooLong
	}
	if !strings.HasPrefix(pipe, PipePrefix) || len(pipe) == len(PipePrefix) {
		return ErrPipeName
	}

	if !l.awaitInitialized() {
		return ErrDisabled
	}

	l.mu.Lock()
	i := l.freeHead
	if i == none {
		l.mu.Unlock()
		return ErrNoFreeRecord
	}
	op := &l.ops[i]
	l.freeHead = op.next

	op.name = cmd
	op.args = args
	op.pipe = pipe
	op.next = none
	op.state = statePending
	if l.tail == none {
		l.head = i
	} else {
		l.ops[l.tail].next = i
	}
	l.tail = i
	l.mu.Unlock()

	// Never blocks: tokens never outnumber records.
	l.sem <- struct{}{}
	return nil
}

func (l *Listener) awaitInitialized() bool {
	for i := 0; i < l.initRetries; i++ {
		if l.initialized.Load() {
			return true
		}
		time.Sleep(l.initInterval)
	}
	return l.initialized.Load()
}

// Dequeue blocks until an operation is pending and returns it in FIFO
// order. It returns only with a record, or with ctx's error.
func (l *Listener) Dequeue(ctx context.Context) (*Operation, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.sem:
		}

		l.mu.Lock()
		i := l.head
		if i == none {
			// A token without a record; wait for the next one.
			l.mu.Unlock()
			continue
		}
		op := &l.ops[i]
		l.head = op.next
		if l.head == none {
			l.tail = none
		}
		op.next = none
		op.state = stateInService
		l.mu.Unlock()
		return op, nil
	}
}

// Complete delivers the result of op and returns the record to the pool.
// Delivery failures are logged, never returned. Completing a record that
// is not in service is logged and ignored.
func (l *Listener) Complete(op *Operation, code Code, output []byte) {
	l.mu.Lock()
	owned := op.state == stateInService
	if owned {
		op.state = stateCompleting
	}
	l.mu.Unlock()
	if !owned {
		l.logger.Error("attach operation completed twice", "name", op.name, "record", op.index)
		return
	}

	if err := l.deliver(op, code, output); err != nil {
		l.logger.Error("attach operation delivery failed",
			"name", op.name,
			"pipe", op.pipe,
			"error", err)
	} else {
		l.logger.Debug("attach operation completed",
			"name", op.name,
			"code", int(code),
			"bytes", len(output))
	}

	l.mu.Lock()
	op.name = ""
	op.args = [ArgCountMax]string{}
	op.pipe = ""
	op.state = stateFree
	op.next = l.freeHead
	l.freeHead = op.index
	l.mu.Unlock()
}

func (l *Listener) deliver(op *Operation, code Code, output []byte) error {
	w, err := l.opener.Open(op.pipe)
	if err != nil {
		return fmt.Errorf("open %s: %w", op.pipe, err)
	}
	if _, err := fmt.Fprintf(w, "%d\n", int(code)); err != nil {
		w.Close()
		return fmt.Errorf("write status: %w", err)
	}
	if _, err := w.Write(output); err != nil {
		w.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return w.Close()
}

// FreeCount returns the number of free records.
func (l *Listener) FreeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for i := l.freeHead; i != none; i = l.ops[i].next {
		n++
	}
	return n
}

// PendingCount returns the number of enqueued, not yet dequeued records.
func (l *Listener) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for i := l.head; i != none; i = l.ops[i].next {
		n++
	}
	return n
}
