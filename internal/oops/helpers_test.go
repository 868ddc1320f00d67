package oops_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
)

// testHierarchy:
//
//	app/Marker   interface
//	app/Base     class
//	app/Derived  extends Base implements Marker
//	app/Other    class
//	app/Point    flattenable class
var testHierarchy = &ir.Hierarchy{Classes: []ir.ClassDecl{
	{Name: "app/Marker", Kind: ir.KindInterface, Access: ir.AccessPublic},
	{Name: "app/Base", Kind: ir.KindClass, Access: ir.AccessPublic},
	{Name: "app/Derived", Kind: ir.KindClass, Super: "app/Base", Interfaces: []string{"app/Marker"}, Access: ir.AccessPublic},
	{Name: "app/Other", Kind: ir.KindClass, Access: ir.AccessPackage},
	{Name: "app/Point", Kind: ir.KindClass, Flattenable: true, Access: ir.AccessPublic},
}}

type fixture struct {
	u      *oops.Universe
	heap   *gc.Heap
	loader *oops.Loader
	k      map[string]*oops.Klass
}

func newFixture(t *testing.T, heapOpts []gc.Option, opts ...oops.Option) *fixture {
	t.Helper()
	heap := gc.New(heapOpts...)
	u, err := oops.New(heap, opts...)
	require.NoError(t, err)

	loader := u.NewLoader("app", "app")
	defined, err := u.DefineHierarchy(loader, testHierarchy)
	require.NoError(t, err)

	f := &fixture{u: u, heap: heap, loader: loader, k: make(map[string]*oops.Klass)}
	for _, k := range defined {
		f.k[k.Name()] = k
	}
	f.k[ir.ObjectClass] = u.ObjectKlass()
	return f
}

func (f *fixture) array(t *testing.T, name string, rank int) *oops.Klass {
	t.Helper()
	k, err := f.u.ArrayOf(f.k[name], rank, false)
	require.NoError(t, err)
	return k
}

func (f *fixture) nullFreeArray(t *testing.T, name string) *oops.Klass {
	t.Helper()
	k, err := f.u.ArrayOf(f.k[name], 1, true)
	require.NoError(t, err)
	return k
}

func (f *fixture) instance(t *testing.T, name string) *oops.Instance {
	t.Helper()
	o, err := f.heap.InstanceAllocate(f.k[name], 16)
	require.NoError(t, err)
	return o
}

func (f *fixture) objArray(t *testing.T, k *oops.Klass, elems ...oops.Oop) *oops.ObjArray {
	t.Helper()
	a, err := f.u.AllocateArray(k, len(elems))
	require.NoError(t, err)
	for i, e := range elems {
		a.ObjAtPut(i, e)
	}
	return a
}

// heapModes runs fn against narrow and wide reference slots.
func heapModes(t *testing.T, fn func(t *testing.T, heapOpts []gc.Option)) {
	t.Run("narrow", func(t *testing.T) { fn(t, []gc.Option{gc.WithCompressedOops(true)}) })
	t.Run("wide", func(t *testing.T) { fn(t, []gc.Option{gc.WithCompressedOops(false)}) })
}

func names(ks []*oops.Klass) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.Name()
	}
	return out
}
