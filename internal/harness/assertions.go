package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/oakvm/internal/oops"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func (h *Harness) EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLattice:
			err = h.assertLattice(a)
		case AssertContents:
			err = h.assertContents(a)
		case AssertPublished:
			err = assertPublished(result.Classes, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// lookup finds an already published class without creating arrays.
func (h *Harness) lookup(name string) (*oops.Klass, error) {
	k, ok := h.loader.FindLoadedClass(h.universe.Symbols().Intern(name))
	if !ok {
		return nil, fmt.Errorf("class %s is not loaded", name)
	}
	return k, nil
}

func (h *Harness) assertLattice(a Assertion) error {
	k, err := h.lookup(a.Class)
	if err != nil {
		return &AssertionError{Type: AssertLattice, Expected: a.Class + " loaded", Actual: err.Error()}
	}

	if a.Super != "" {
		got := ""
		if s := k.Super(); s != nil {
			got = s.Name()
		}
		if got != a.Super {
			return &AssertionError{
				Type:     AssertLattice,
				Expected: fmt.Sprintf("%s super %s", a.Class, a.Super),
				Actual:   fmt.Sprintf("super %s", got),
			}
		}
	}

	if a.Secondaries != nil {
		got := make([]string, 0, len(k.SecondarySupers()))
		for _, s := range k.SecondarySupers() {
			got = append(got, s.Name())
		}
		if !slices.Equal(got, a.Secondaries) {
			return &AssertionError{
				Type:     AssertLattice,
				Expected: fmt.Sprintf("%s secondaries %v", a.Class, a.Secondaries),
				Actual:   fmt.Sprintf("secondaries %v", got),
			}
		}
	}

	for _, name := range a.SubtypeOf {
		super, err := h.lookup(name)
		if err != nil || !h.universe.IsSubtypeOf(k, super) {
			return &AssertionError{
				Type:     AssertLattice,
				Expected: fmt.Sprintf("%s subtype of %s", a.Class, name),
				Actual:   "not a subtype",
			}
		}
	}
	for _, name := range a.NotSubtypeOf {
		super, err := h.lookup(name)
		if err == nil && h.universe.IsSubtypeOf(k, super) {
			return &AssertionError{
				Type:     AssertLattice,
				Expected: fmt.Sprintf("%s not a subtype of %s", a.Class, name),
				Actual:   "subtype",
			}
		}
	}
	return nil
}

func (h *Harness) assertContents(a Assertion) error {
	arr, err := h.objArray(a.Array)
	if err != nil {
		return &AssertionError{Type: AssertContents, Expected: a.Array + " is a reference array", Actual: err.Error()}
	}

	names := make(map[oops.Oop]string, len(h.objects))
	for name, obj := range h.objects {
		names[obj] = name
	}

	got := make([]string, arr.Length())
	for i := range got {
		v := arr.ObjAt(i)
		switch name, ok := names[v]; {
		case v == nil:
			got[i] = NullValue
		case ok:
			got[i] = name
		default:
			got[i] = "<" + v.Klass().Name() + ">"
		}
	}

	if !slices.Equal(got, a.Values) {
		return &AssertionError{
			Type:     AssertContents,
			Expected: fmt.Sprintf("%s = %v", a.Array, a.Values),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertPublished(classes []string, a Assertion) error {
	if !slices.Equal(classes, a.Classes) {
		return &AssertionError{
			Type:     AssertPublished,
			Expected: fmt.Sprintf("%v", a.Classes),
			Actual:   fmt.Sprintf("%v", classes),
		}
	}
	return nil
}
