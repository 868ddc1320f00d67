package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/oakvm/internal/compiler"
	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/journal"
	"github.com/roach88/oakvm/internal/oops"
	"github.com/roach88/oakvm/internal/store"
	"github.com/roach88/oakvm/internal/testutil"
)

// Loader and module names of the classes a scenario defines.
const (
	scenarioLoader = "app"
	scenarioModule = "app"
)

// Harness holds the runtime of one scenario execution.
type Harness struct {
	universe *oops.Universe
	loader   *oops.Loader
	clock    *testutil.StepClock
	objects  map[string]oops.Oop
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh heap, universe and in-memory journal.
// Execution flow:
//  1. Compile the CUE specs and define the hierarchy
//  2. Execute steps, checking each against its expect_error
//  3. Stop the journal and read back the published classes
//  4. Evaluate assertions
//
// An error is returned only when the scenario cannot be executed at all;
// step and assertion failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	hierarchy, err := compiler.CompileFiles(scenario.Specs...)
	if err != nil {
		return nil, fmt.Errorf("compile specs: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	heapOpts := []gc.Option{gc.WithLogger(logger)}
	if scenario.CompressedOops != nil {
		heapOpts = append(heapOpts, gc.WithCompressedOops(*scenario.CompressedOops))
	}
	if scenario.HeapCapacity > 0 {
		heapOpts = append(heapOpts, gc.WithCapacity(scenario.HeapCapacity))
	}
	uopts := []oops.Option{oops.WithLogger(logger)}
	if scenario.MaxArrayLength > 0 {
		uopts = append(uopts, oops.WithMaxArrayLength(scenario.MaxArrayLength))
	}

	u, err := oops.New(gc.New(heapOpts...), uopts...)
	if err != nil {
		return nil, fmt.Errorf("create universe: %w", err)
	}

	ctx := context.Background()
	j := journal.New(st, journal.WithLogger(logger))
	u.AddObserver(j)
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	h := &Harness{
		universe: u,
		loader:   u.NewLoader(scenarioLoader, scenarioModule),
		clock:    testutil.NewStepClock(),
		objects:  make(map[string]oops.Oop),
	}

	result := NewResult()
	_, defErr := u.DefineHierarchy(h.loader, hierarchy)
	if defErr == nil {
		for i, step := range scenario.Steps {
			h.executeStep(i, step, result)
		}
	}

	j.Stop()
	if err := <-done; err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if defErr != nil {
		return nil, fmt.Errorf("define hierarchy: %w", defErr)
	}

	events, err := st.ReadClassEvents(ctx, store.ClassFilter{})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	for _, ev := range events {
		result.Classes = append(result.Classes, ev.Name)
	}

	for _, msg := range h.EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one step and appends it to the trace.
func (h *Harness) executeStep(index int, step Step, result *Result) {
	ev := TraceEvent{Seq: h.clock.Next()}

	var err error
	switch {
	case step.Resolve != nil:
		err = h.resolve(step.Resolve, &ev)
	case step.Allocate != nil:
		err = h.allocate(step.Allocate, &ev)
	case step.Set != nil:
		err = h.set(step.Set, &ev)
	case step.Copy != nil:
		err = h.copy(step.Copy, &ev)
	}

	if err != nil {
		ev.Error = string(oops.KindOf(err))
		if ev.Error == "" {
			ev.Error = "error"
		}
	}
	result.Trace = append(result.Trace, ev)

	switch {
	case err == nil && step.ExpectError != "":
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got success", index, ev.Op, step.ExpectError))
	case err != nil && step.ExpectError == "":
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, ev.Op, err))
	case err != nil && ev.Error != step.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %v", index, ev.Op, step.ExpectError, err))
	}
}

func (h *Harness) resolve(s *ResolveStep, ev *TraceEvent) error {
	ev.Op = "resolve"
	elem, err := h.universe.ResolveName(h.loader, s.Class)
	if err != nil {
		return err
	}
	rank := s.Rank
	if rank == 0 {
		rank = 1
	}
	if s.NullFree && (rank != 1 || !elem.IsFlattenable()) {
		return fmt.Errorf("null-free arrays need rank 1 and a flattenable element, got %s rank %d", elem.Name(), rank)
	}
	k, err := h.universe.ArrayOf(elem, rank, s.NullFree)
	if err != nil {
		return err
	}
	ev.Class = k.Name()
	return nil
}

func (h *Harness) allocate(s *AllocateStep, ev *TraceEvent) error {
	ev.Op = "allocate"
	ev.Name = s.As
	k, err := h.universe.ResolveName(h.loader, s.Class)
	if err != nil {
		return err
	}
	ev.Class = k.Name()

	var obj oops.Oop
	switch {
	case k.IsInstance():
		obj, err = h.universe.AllocateInstance(k)
	case len(s.Lengths) > 0:
		if len(s.Lengths) > k.Dimension() {
			return fmt.Errorf("%d lengths for %d-dimensional %s", len(s.Lengths), k.Dimension(), k.Name())
		}
		obj, err = h.universe.MultiAllocate(k, s.Lengths)
		ev.Detail = fmt.Sprintf("lengths=%v", s.Lengths)
	case k.IsTypeArray():
		obj, err = h.universe.AllocateTypeArray(k, s.Length)
		ev.Detail = fmt.Sprintf("length=%d", s.Length)
	default:
		obj, err = h.universe.AllocateArray(k, s.Length)
		ev.Detail = fmt.Sprintf("length=%d", s.Length)
	}
	if err != nil {
		return err
	}
	h.objects[s.As] = obj
	return nil
}

func (h *Harness) set(s *SetStep, ev *TraceEvent) error {
	ev.Op = "set"
	ev.Detail = fmt.Sprintf("%s[%d]=%s", s.Array, s.Index, s.Value)
	a, err := h.objArray(s.Array)
	if err != nil {
		return err
	}
	v, err := h.value(s.Value)
	if err != nil {
		return err
	}
	return h.universe.StoreElement(a, s.Index, v)
}

func (h *Harness) copy(s *CopyStep, ev *TraceEvent) error {
	ev.Op = "copy"
	ev.Detail = fmt.Sprintf("%s[%d:%d] -> %s[%d]", s.Src, s.SrcPos, s.SrcPos+s.Length, s.Dst, s.DstPos)
	src, err := h.objArray(s.Src)
	if err != nil {
		return err
	}
	dst, ok := h.objects[s.Dst]
	if !ok {
		return fmt.Errorf("unknown object %q", s.Dst)
	}
	if d, ok := dst.(*oops.ObjArray); ok {
		ev.Detail += " " + h.universe.ClassifyCopy(src, d).String()
	}
	return h.universe.CopyArray(src, s.SrcPos, dst, s.DstPos, s.Length)
}

func (h *Harness) objArray(name string) (*oops.ObjArray, error) {
	obj, ok := h.objects[name]
	if !ok {
		return nil, fmt.Errorf("unknown object %q", name)
	}
	a, ok := obj.(*oops.ObjArray)
	if !ok {
		return nil, fmt.Errorf("%s is a %s, not a reference array", name, obj.Klass().Name())
	}
	return a, nil
}

func (h *Harness) value(name string) (oops.Oop, error) {
	if strings.EqualFold(name, NullValue) {
		return nil, nil
	}
	obj, ok := h.objects[name]
	if !ok {
		return nil, fmt.Errorf("unknown object %q", name)
	}
	return obj, nil
}
