package attach

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Response is a completed operation as seen by the client.
type Response struct {
	Code   Code
	Output []byte
}

// Client sends operations and waits for their responses on a private pipe.
type Client struct {
	enq    Enqueuer
	opener UnixOpener
}

// NewClient creates a client whose response sockets live in dir.
func NewClient(enq Enqueuer, dir string) *Client {
	return &Client{enq: enq, opener: UnixOpener{Dir: dir}}
}

// Execute enqueues cmd with up to three arguments and waits for the
// response. An enqueue failure is returned as an error carrying the
// status code; a non-zero code from the command is returned in Response.
func (c *Client) Execute(ctx context.Context, cmd string, args ...string) (*Response, error) {
	if len(args) > ArgCountMax {
		return nil, &Error{Code: CodeIllegalArgument, Message: fmt.Sprintf("at most %d arguments", ArgCountMax)}
	}
	var a [ArgCountMax]string
	copy(a[:], args)

	pipe := PipePrefix + "oakvm-" + uuid.NewString()
	path, err := c.opener.Path(pipe)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	defer ln.Close()

	if err := c.enq.Enqueue(cmd, a, pipe); err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("await response: %w", err)
	}
	defer conn.Close()

	return readResponse(conn)
}

func readResponse(r io.Reader) (*Response, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("parse status %q: %w", line, err)
	}
	out, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return &Response{Code: Code(n), Output: out}, nil
}
