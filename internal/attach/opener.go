package attach

import (
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"time"
)

// UnixOpener maps `\\.\pipe\<name>` to the unix socket <Dir>/<name>.sock.
// The client listens on the socket; the server dials it to answer.
type UnixOpener struct {
	Dir     string
	Timeout time.Duration
}

// Path returns the socket path for pipe.
func (o UnixOpener) Path(pipe string) (string, error) {
	name := strings.TrimPrefix(pipe, PipePrefix)
	if name == "" || name == pipe || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid pipe name %q", pipe)
	}
	return filepath.Join(o.Dir, name+".sock"), nil
}

// Open dials the socket of pipe.
func (o UnixOpener) Open(pipe string) (io.WriteCloser, error) {
	path, err := o.Path(pipe)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: o.Timeout}
	return d.Dial("unix", path)
}
