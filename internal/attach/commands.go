package attach

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
)

// VMCommands are the diagnostic commands over a universe.
type VMCommands struct {
	Universe *oops.Universe

	// Loader returns the loader names are resolved in.
	Loader func() *oops.Loader

	// Properties are reported by the properties command in addition to the
	// runtime's own.
	Properties map[string]string
}

// Register adds properties, classes, resolve, print and verify to d.
func (c *VMCommands) Register(d *Dispatcher) {
	d.Register("properties", c.properties)
	d.Register("classes", c.classes)
	d.Register("resolve", c.resolve)
	d.Register("print", c.print)
	d.Register("verify", c.verify)
}

func (c *VMCommands) properties(_ context.Context, _ [ArgCountMax]string, out io.Writer) error {
	u := c.Universe
	props := map[string]string{
		"oakvm.version":              ir.RuntimeVersion,
		"oakvm.compressedOops":       strconv.FormatBool(u.Heap().UseCompressedOops()),
		"oakvm.flatArrays":           strconv.FormatBool(u.UseFlatArray()),
		"oakvm.maxArrayLength":       strconv.Itoa(u.MaxArrayLength()),
		"oakvm.loaders":              strconv.Itoa(len(u.Loaders())),
		"oakvm.attach.maxOperations": strconv.Itoa(MaxEnqueuedOperations),
	}
	for k, v := range c.Properties {
		props[k] = v
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s=%s\n", k, props[k])
	}
	return nil
}

func (c *VMCommands) classes(_ context.Context, _ [ArgCountMax]string, out io.Writer) error {
	for _, l := range c.Universe.Loaders() {
		for _, k := range l.Classes() {
			fmt.Fprintf(out, "%s\t%s\n", l.Name(), k.Name())
		}
	}
	return nil
}

// resolve <name> [rank] [nullfree]
func (c *VMCommands) resolve(_ context.Context, args [ArgCountMax]string, out io.Writer) error {
	if args[0] == "" {
		return &Error{Code: CodeIllegalArgument, Message: "usage: resolve <name> [rank] [nullfree]"}
	}
	k, err := c.Universe.ResolveName(c.Loader(), args[0])
	if err != nil {
		return err
	}
	if args[1] != "" {
		rank, err := strconv.Atoi(args[1])
		if err != nil || rank < 1 {
			return &Error{Code: CodeIllegalArgument, Message: fmt.Sprintf("invalid rank %q", args[1])}
		}
		nullFree := false
		switch args[2] {
		case "", "false", "nullable":
		case "true", "nullfree":
			nullFree = true
		default:
			return &Error{Code: CodeIllegalArgument, Message: fmt.Sprintf("invalid null-free flag %q", args[2])}
		}
		if nullFree && (rank != 1 || !k.IsFlattenable()) {
			return &Error{Code: CodeIllegalArgument,
				Message: fmt.Sprintf("null-free arrays need rank 1 and a flattenable element, got %s rank %d", k.ExternalName(), rank)}
		}
		if k, err = c.Universe.ArrayOf(k, rank, nullFree); err != nil {
			return err
		}
	}
	c.Universe.PrintOn(out, k)
	return nil
}

func (c *VMCommands) print(_ context.Context, args [ArgCountMax]string, out io.Writer) error {
	if args[0] == "" {
		return &Error{Code: CodeIllegalArgument, Message: "usage: print <name>"}
	}
	k, ok := c.Loader().FindLoadedClass(c.Universe.Symbols().Intern(args[0]))
	if !ok {
		return &Error{Code: CodeIllegalArgument, Message: fmt.Sprintf("class %s is not loaded", args[0])}
	}
	c.Universe.PrintOn(out, k)
	return nil
}

func (c *VMCommands) verify(_ context.Context, _ [ArgCountMax]string, out io.Writer) error {
	if err := c.Universe.VerifyAll(); err != nil {
		return err
	}
	n := 0
	for _, l := range c.Universe.Loaders() {
		n += l.ClassCount()
	}
	fmt.Fprintf(out, "verified %d classes\n", n)
	return nil
}
