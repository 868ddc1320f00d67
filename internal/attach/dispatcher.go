package attach

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// Handler runs one command. Output written to out is delivered to the
// client; a returned error sets the status code (see Status) and its text
// is appended to the output.
type Handler func(ctx context.Context, args [ArgCountMax]string, out io.Writer) error

// Dispatcher routes operations to handlers by command name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with the built-in help command.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{handlers: make(map[string]Handler), logger: logger}
	d.Register("help", func(_ context.Context, _ [ArgCountMax]string, out io.Writer) error {
		for _, name := range d.Names() {
			fmt.Fprintln(out, name)
		}
		return nil
	})
	return d
}

// Register adds or replaces the handler for name. It is safe to call
// while operations are being dispatched.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	d.handlers[name] = h
	d.mu.Unlock()
}

// Names returns the registered command names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	d.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Dispatch runs the handler for op and returns the status code and
// output. Handler panics are reported as internal errors.
func (d *Dispatcher) Dispatch(ctx context.Context, op *Operation) (code Code, output []byte) {
	d.mu.RLock()
	h, ok := d.handlers[op.Name()]
	d.mu.RUnlock()
	if !ok {
		return CodeIllegalArgument, []byte(fmt.Sprintf("Operation %s not recognized!\n", op.Name()))
	}

	var buf bytes.Buffer
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("attach handler panicked", "name", op.Name(), "panic", fmt.Sprint(r))
			fmt.Fprintf(&buf, "internal error: %v\n", r)
			code, output = CodeInternal, buf.Bytes()
		}
	}()

	if err := h(ctx, op.Args(), &buf); err != nil {
		fmt.Fprintf(&buf, "%v\n", err)
		return Status(err), buf.Bytes()
	}
	return CodeOK, buf.Bytes()
}
