package attach

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// ProtocolVersion is the first field of every gateway request.
const ProtocolVersion = "1"

// Enqueuer submits attach operations. Listener enqueues in process;
// RemoteEnqueuer goes through a Gateway.
type Enqueuer interface {
	Enqueue(cmd string, args [ArgCountMax]string, pipe string) error
}

// Gateway lets other processes enqueue operations. A request is the
// protocol version, the command, three arguments and the pipe name, each
// terminated by a NUL byte. The reply is the enqueue status as "<code>\n".
type Gateway struct {
	listener *Listener
	path     string
	logger   *slog.Logger
}

// NewGateway creates a gateway listening on the unix socket at path.
func NewGateway(l *Listener, path string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{listener: l, path: path, logger: logger}
}

// Path returns the control socket path.
func (g *Gateway) Path() string { return g.path }

// Serve accepts requests until ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context) error {
	ln, err := net.Listen("unix", g.path)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return g.ServeListener(ctx, ln)
}

// ServeListener accepts requests on ln until ctx is cancelled.
func (g *Gateway) ServeListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	g.logger.Info("attach gateway listening", "path", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("gateway accept: %w", err)
		}
		go g.handle(conn)
	}
}

// maxRequestSize bounds a request: five bounded fields plus the version.
const maxRequestSize = len(ProtocolVersion) + NameLengthMax + ArgCountMax*ArgLengthMax + PipeNameMax + 6

func (g *Gateway) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	code := CodeOK
	fields, err := readRequest(conn)
	switch {
	case err != nil:
		g.logger.Warn("attach gateway: bad request", "error", err)
		code = CodeIllegalArgument
	case fields[0] != ProtocolVersion:
		g.logger.Warn("attach gateway: unsupported protocol", "version", fields[0])
		code = CodeIllegalArgument
	default:
		args := [ArgCountMax]string{fields[2], fields[3], fields[4]}
		code = Status(g.listener.Enqueue(fields[1], args, fields[5]))
	}
	fmt.Fprintf(conn, "%d\n", int(code))
}

func readRequest(r io.Reader) ([]string, error) {
	br := bufio.NewReader(io.LimitReader(r, int64(maxRequestSize)))
	fields := make([]string, 0, 6)
	for len(fields) < 6 {
		s, err := br.ReadString(0)
		if err != nil {
			return nil, fmt.Errorf("read field %d: %w", len(fields), err)
		}
		fields = append(fields, strings.TrimSuffix(s, "\x00"))
	}
	return fields, nil
}

// RemoteEnqueuer enqueues through the gateway socket at Path.
type RemoteEnqueuer struct {
	Path    string
	Timeout time.Duration
}

// Enqueue sends one request and maps the returned status to an error.
func (r RemoteEnqueuer) Enqueue(cmd string, args [ArgCountMax]string, pipe string) error {
	d := net.Dialer{Timeout: r.Timeout}
	conn, err := d.Dial("unix", r.Path)
	if err != nil {
		return &Error{Code: CodeDisabled, Message: fmt.Sprintf("connect to %s: %v", r.Path, err)}
	}
	defer conn.Close()

	var b strings.Builder
	for _, f := range []string{ProtocolVersion, cmd, args[0], args[1], args[2], pipe} {
		b.WriteString(f)
		b.WriteByte(0)
	}
	if _, err := io.WriteString(conn, b.String()); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("parse status %q: %w", line, err)
	}
	return errorForCode(Code(n))
}

func errorForCode(c Code) error {
	switch c {
	case CodeOK:
		return nil
	case CodeDisabled:
		return ErrDisabled
	case CodeResource:
		return ErrNoFreeRecord
	default:
		return &Error{Code: c, Message: "rejected by attach gateway"}
	}
}
