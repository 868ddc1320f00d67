package attach

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Completion describes a serviced operation.
type Completion struct {
	ID          uuid.UUID
	Name        string
	Args        [ArgCountMax]string
	Pipe        string
	Code        Code
	OutputBytes int
	Duration    time.Duration
}

// Recorder is notified after each operation is completed.
type Recorder interface {
	OperationCompleted(c Completion)
}

// IDGenerator assigns operation IDs.
// Implemented by UUIDv7Generator (production) and testutil.SequentialIDs (tests).
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDv7Generator generates time-ordered UUIDv7 operation IDs.
type UUIDv7Generator struct{}

// NewID returns a fresh UUIDv7.
func (UUIDv7Generator) NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRecorder sets the completion recorder.
func WithRecorder(r Recorder) ServerOption {
	return func(s *Server) { s.recorder = r }
}

// WithIDGenerator replaces the UUIDv7 operation ID generator.
func WithIDGenerator(g IDGenerator) ServerOption {
	return func(s *Server) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is the single servicing goroutine of a Listener.
type Server struct {
	listener   *Listener
	dispatcher *Dispatcher
	recorder   Recorder
	ids        IDGenerator
	logger     *slog.Logger
}

// NewServer creates a server.
func NewServer(l *Listener, d *Dispatcher, opts ...ServerOption) *Server {
	s := &Server{listener: l, dispatcher: d, ids: UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run marks the listener initialized and services operations until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.listener.SetInitialized()
	s.logger.Info("attach listener started")

	for {
		op, err := s.listener.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("attach listener stopped")
				return nil
			}
			return err
		}
		s.serve(ctx, op)
	}
}

func (s *Server) serve(ctx context.Context, op *Operation) {
	start := time.Now()
	c := Completion{
		ID:   s.ids.NewID(),
		Name: op.Name(),
		Args: op.Args(),
		Pipe: op.Pipe(),
	}

	code, out := s.dispatcher.Dispatch(ctx, op)
	s.listener.Complete(op, code, out)

	c.Code = code
	c.OutputBytes = len(out)
	c.Duration = time.Since(start)
	if s.recorder != nil {
		s.recorder.OperationCompleted(c)
	}
}
