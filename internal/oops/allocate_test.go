package oops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/oops"
)

func TestAllocateArray(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		k := f.array(t, "app/Base", 1)

		a, err := f.u.AllocateArray(k, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, a.Length())
		assert.Same(t, k, a.Klass())
		assert.Equal(t, f.heap.UseCompressedOops(), a.IsNarrow())
		for i := 0; i < a.Length(); i++ {
			assert.Nil(t, a.ObjAt(i))
		}

		b := f.instance(t, "app/Base")
		a.ObjAtPut(3, b)
		assert.Same(t, b, a.ObjAt(3))

		empty, err := f.u.AllocateArray(k, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, empty.Length())
	})
}

func TestAllocateArray_Size(t *testing.T) {
	narrow := newFixture(t, []gc.Option{gc.WithCompressedOops(true)})
	before := narrow.heap.Used()
	_, err := narrow.u.AllocateArray(narrow.array(t, "app/Base", 1), 3)
	require.NoError(t, err)
	// 16-byte header plus 3 * 4 bytes, aligned to 8.
	assert.Equal(t, int64(32), narrow.heap.Used()-before)

	wide := newFixture(t, []gc.Option{gc.WithCompressedOops(false)})
	before = wide.heap.Used()
	_, err = wide.u.AllocateArray(wide.array(t, "app/Base", 1), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(40), wide.heap.Used()-before)
}

func TestAllocateArray_InvalidLength(t *testing.T) {
	f := newFixture(t, nil, oops.WithMaxArrayLength(10))
	k := f.array(t, "app/Base", 1)

	_, err := f.u.AllocateArray(k, -1)
	require.Error(t, err)
	assert.True(t, oops.IsNegativeArraySize(err))
	assert.Equal(t, "NegativeArraySizeException: -1", err.Error())

	_, err = f.u.AllocateArray(k, 11)
	require.Error(t, err)
	assert.True(t, oops.IsOutOfMemory(err))
	assert.Contains(t, err.Error(), "Requested array size exceeds VM limit")

	_, err = f.u.AllocateArray(k, 10)
	assert.NoError(t, err)
}

func TestAllocateArray_HeapExhausted(t *testing.T) {
	f := newFixture(t, []gc.Option{gc.WithCapacity(64)})

	_, err := f.u.AllocateArray(f.array(t, "app/Base", 1), 100)
	require.Error(t, err)
	assert.True(t, oops.IsOutOfMemory(err))
	assert.Contains(t, err.Error(), "Java heap space")
	assert.Equal(t, int64(0), f.heap.Used())
}

func TestAllocateArray_NullFreeInitFailureLeavesHeap(t *testing.T) {
	f := newFixture(t, []gc.Option{gc.WithCapacity(8)})
	k := f.nullFreeArray(t, "app/Point")

	_, err := f.u.AllocateArray(k, 1)
	require.Error(t, err)
	assert.True(t, oops.IsOutOfMemory(err))
	assert.Contains(t, err.Error(), "initialize app/Point")
	assert.False(t, f.k["app/Point"].IsInitialized())
	assert.Equal(t, int64(0), f.heap.Used())
	assert.Equal(t, 0, f.heap.ObjectCount())
}

func TestAllocateArray_NullFreeInitializesElementFirst(t *testing.T) {
	// Room for the 16-byte default value only.
	f := newFixture(t, []gc.Option{gc.WithCapacity(16)})
	k := f.nullFreeArray(t, "app/Point")

	_, err := f.u.AllocateArray(k, 0)
	require.Error(t, err)
	assert.True(t, oops.IsOutOfMemory(err))
	assert.NotContains(t, err.Error(), "initialize")

	point := f.k["app/Point"]
	assert.True(t, point.IsInitialized())
	require.NotNil(t, point.DefaultValue())
	assert.Equal(t, int64(16), f.heap.Used())
	assert.Equal(t, 1, f.heap.ObjectCount())
}

func TestAllocateArray_NullFreePopulated(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		k := f.nullFreeArray(t, "app/Point")

		a, err := f.u.AllocateArray(k, 4)
		require.NoError(t, err)

		point := f.k["app/Point"]
		require.True(t, point.IsInitialized())
		def := point.DefaultValue()
		require.NotNil(t, def)
		for i := 0; i < a.Length(); i++ {
			assert.Same(t, def, a.ObjAt(i))
		}
		assert.NoError(t, f.u.OopVerify(a))
	})
}

func TestMultiAllocate(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		k := f.array(t, "app/Base", 3)

		a, err := f.u.MultiAllocate(k, []int{2, 3})
		require.NoError(t, err)
		outer, ok := a.(*oops.ObjArray)
		require.True(t, ok)
		assert.Equal(t, 2, outer.Length())

		inner0, ok := outer.ObjAt(0).(*oops.ObjArray)
		require.True(t, ok)
		inner1, ok := outer.ObjAt(1).(*oops.ObjArray)
		require.True(t, ok)
		assert.NotSame(t, inner0, inner1)
		assert.Equal(t, 3, inner0.Length())
		assert.Same(t, k.LowerDimension(), inner0.Klass())
		// The third level is not allocated.
		assert.Nil(t, inner0.ObjAt(0))
	})
}

func TestMultiAllocate_ZeroOuterStillValidates(t *testing.T) {
	f := newFixture(t, nil)
	k := f.array(t, "app/Base", 3)

	a, err := f.u.MultiAllocate(k, []int{0, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 0, a.Length())

	_, err = f.u.MultiAllocate(k, []int{0, 3, -4})
	require.Error(t, err)
	assert.True(t, oops.IsNegativeArraySize(err))
	assert.Contains(t, err.Error(), "-4")

	_, err = f.u.MultiAllocate(k, []int{2, -1})
	assert.True(t, oops.IsNegativeArraySize(err))

	_, err = f.u.MultiAllocate(k, []int{-2, 1})
	assert.True(t, oops.IsNegativeArraySize(err))
}

func TestMultiAllocate_PrimitiveLeaves(t *testing.T) {
	f := newFixture(t, nil)
	k, err := f.u.ArrayOf(f.u.TypeArrayKlass(oops.TInt), 1, false)
	require.NoError(t, err)

	a, err := f.u.MultiAllocate(k, []int{2, 4})
	require.NoError(t, err)
	outer := a.(*oops.ObjArray)
	leaf, ok := outer.ObjAt(1).(*oops.TypeArray)
	require.True(t, ok)
	assert.Equal(t, 4, leaf.Length())
	assert.Len(t, leaf.Bytes(), 16)
}

func TestMultiAllocate_RankContract(t *testing.T) {
	f := newFixture(t, nil)
	k := f.array(t, "app/Base", 2)

	assert.Panics(t, func() { _, _ = f.u.MultiAllocate(k, []int{1, 1, 1}) })
	assert.Panics(t, func() { _, _ = f.u.MultiAllocate(k, nil) })
}

func TestAllocateInstance(t *testing.T) {
	f := newFixture(t, nil)

	p, err := f.u.AllocateInstance(f.k["app/Point"])
	require.NoError(t, err)
	assert.Same(t, f.k["app/Point"], p.Klass())
	assert.True(t, f.k["app/Point"].IsInitialized())
	assert.NotNil(t, f.k["app/Point"].DefaultValue())
	assert.NotSame(t, f.k["app/Point"].DefaultValue(), p)

	_, err = f.u.AllocateInstance(f.k["app/Marker"])
	require.Error(t, err)
	assert.Equal(t, oops.ErrKindLinkage, oops.KindOf(err))
}
