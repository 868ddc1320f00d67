package oops_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
)

func TestCopyArray_Checks(t *testing.T) {
	f := newFixture(t, nil)
	baseArr := f.array(t, "app/Base", 1)
	src := f.objArray(t, baseArr, nil, nil, nil, nil)
	dst := f.objArray(t, baseArr, nil, nil, nil)
	ints, err := f.u.AllocateTypeArray(f.u.TypeArrayKlass(oops.TInt), 4)
	require.NoError(t, err)

	tests := []struct {
		name    string
		dst     oops.Oop
		srcPos  int
		dstPos  int
		length  int
		kind    oops.ErrorKind
		message string
	}{
		{
			name: "primitive destination", dst: ints, length: 1,
			kind:    oops.ErrKindArrayStore,
			message: "arraycopy: type mismatch: can not copy object array[] into int[]",
		},
		{
			name: "non-array destination", dst: f.instance(t, "app/Base"), length: 1,
			kind:    oops.ErrKindArrayStore,
			message: "arraycopy: destination type app.Base is not an array",
		},
		{
			name: "negative source position", dst: dst, srcPos: -1, length: 1,
			kind:    oops.ErrKindIndexOutOfBounds,
			message: "arraycopy: source index -1 out of bounds for object array[4]",
		},
		{
			name: "negative destination position", dst: dst, dstPos: -2, length: 1,
			kind:    oops.ErrKindIndexOutOfBounds,
			message: "arraycopy: destination index -2 out of bounds for object array[3]",
		},
		{
			name: "negative length", dst: dst, length: -3,
			kind:    oops.ErrKindIndexOutOfBounds,
			message: "arraycopy: length -3 is negative",
		},
		{
			name: "source range past end", dst: dst, srcPos: 2, length: 3,
			kind:    oops.ErrKindIndexOutOfBounds,
			message: "arraycopy: last source index 5 out of bounds for object array[4]",
		},
		{
			name: "destination range past end", dst: dst, dstPos: 1, length: 3,
			kind:    oops.ErrKindIndexOutOfBounds,
			message: "arraycopy: last destination index 4 out of bounds for object array[3]",
		},
		{
			// Destination kind is checked before positions.
			name: "primitive destination with bad position", dst: ints, srcPos: -1, length: 1,
			kind:    oops.ErrKindArrayStore,
			message: "arraycopy: type mismatch: can not copy object array[] into int[]",
		},
		{
			name: "huge positions do not wrap", dst: dst, srcPos: 1 << 62, length: 1 << 62,
			kind:    oops.ErrKindIndexOutOfBounds,
			message: "arraycopy: last source index 9223372036854775808 out of bounds for object array[4]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.u.CopyArray(src, tt.srcPos, tt.dst, tt.dstPos, tt.length)
			require.Error(t, err)
			assert.Equal(t, tt.kind, oops.KindOf(err))
			var ve *oops.VMError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.message, ve.Message)
		})
	}
}

func TestCopyArray_LengthPastEnd(t *testing.T) {
	f := newFixture(t, nil)
	k := f.array(t, "app/Base", 1)
	for _, n := range []int{0, 1, 7} {
		s := f.objArray(t, k, make([]oops.Oop, n)...)
		d := f.objArray(t, k, make([]oops.Oop, n+5)...)

		err := f.u.CopyArray(s, 0, d, 0, s.Length()+1)
		require.Error(t, err)
		assert.True(t, oops.IsIndexOutOfBounds(err))
		var ve *oops.VMError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t,
			"arraycopy: last source index "+strconv.Itoa(n+1)+" out of bounds for object array["+strconv.Itoa(n)+"]",
			ve.Message)
	}
}

func TestCopyArray_ZeroLength(t *testing.T) {
	f := newFixture(t, nil)
	b := f.instance(t, "app/Base")
	o := f.instance(t, "app/Other")
	s := f.objArray(t, f.array(t, "app/Base", 1), b, b)
	d := f.objArray(t, f.array(t, "app/Other", 1), o)

	// Incompatible element types are fine when nothing is copied.
	require.NoError(t, f.u.CopyArray(s, 1, d, 0, 0))
	// Positions exactly at the end.
	require.NoError(t, f.u.CopyArray(s, s.Length(), d, d.Length(), 0))
	assert.Same(t, o, d.ObjAt(0))

	empty := f.objArray(t, f.array(t, "app/Base", 1))
	require.NoError(t, f.u.CopyArray(empty, 0, empty, 0, 0))
}

func TestCopyArray_SelfCopy(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		k := f.array(t, "app/Base", 1)
		e := []oops.Oop{f.instance(t, "app/Base"), nil, f.instance(t, "app/Derived"), f.instance(t, "app/Base")}
		a := f.objArray(t, k, e...)

		for n := 0; n <= a.Length(); n++ {
			require.NoError(t, f.u.CopyArray(a, 0, a, 0, n))
			assert.Equal(t, e, a.Elements())
		}

		// Overlapping ranges behave like memmove.
		require.NoError(t, f.u.CopyArray(a, 0, a, 1, 3))
		assert.Equal(t, []oops.Oop{e[0], e[0], e[1], e[2]}, a.Elements())
	})
}

func TestCopyArray_SubtypeIntoSupertype(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		d1, d2, d3 := f.instance(t, "app/Derived"), f.instance(t, "app/Derived"), f.instance(t, "app/Derived")
		src := f.objArray(t, f.array(t, "app/Derived", 1), d1, d2, d3)
		dst := f.objArray(t, f.array(t, "app/Base", 1), nil, nil, nil, nil, nil)

		require.NoError(t, f.u.CopyArray(src, 0, dst, 1, 3))
		assert.Equal(t, []oops.Oop{nil, d1, d2, d3, nil}, dst.Elements())
		assert.NoError(t, f.u.OopVerify(dst))
	})
}

func TestCopyArray_CheckcastPartialCopy(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		d := f.instance(t, "app/Derived")
		b := f.instance(t, "app/Base")
		o := f.instance(t, "app/Other")
		src := f.objArray(t, f.array(t, ir.ObjectClass, 1), d, nil, b, o, d)
		dst := f.objArray(t, f.array(t, "app/Base", 1), nil, nil, nil, nil, nil)

		err := f.u.CopyArray(src, 0, dst, 0, 5)
		require.Error(t, err)
		assert.True(t, oops.IsArrayStore(err))
		assert.Contains(t, err.Error(), "element type app.Other cannot be stored to destination type app.Base[]")

		// Elements before the failing one stay copied.
		assert.Equal(t, []oops.Oop{d, nil, b, nil, nil}, dst.Elements())
	})
}

func TestCopyArray_NullIntoNullFree(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		p1 := f.instance(t, "app/Point")
		p2 := f.instance(t, "app/Point")
		src := f.objArray(t, f.array(t, ir.ObjectClass, 1), p1, nil, p2)

		dst, err := f.u.AllocateArray(f.nullFreeArray(t, "app/Point"), 3)
		require.NoError(t, err)
		def := f.k["app/Point"].DefaultValue()

		err = f.u.CopyArray(src, 0, dst, 0, 3)
		require.Error(t, err)
		assert.True(t, oops.IsArrayStore(err))
		assert.Contains(t, err.Error(), "null element at index 1")

		assert.Equal(t, []oops.Oop{p1, def, def}, dst.Elements())
		assert.NoError(t, f.u.OopVerify(dst))
	})
}

func TestCopyArray_NullFreeIntoNullable(t *testing.T) {
	f := newFixture(t, nil)
	src, err := f.u.AllocateArray(f.nullFreeArray(t, "app/Point"), 2)
	require.NoError(t, err)
	dst := f.objArray(t, f.array(t, "app/Point", 1), nil, nil)

	require.NoError(t, f.u.CopyArray(src, 0, dst, 0, 2))
	assert.Equal(t, src.Elements(), dst.Elements())
}

func TestClassifyCopy(t *testing.T) {
	f := newFixture(t, nil)
	arr := func(k *oops.Klass) *oops.ObjArray { return f.objArray(t, k) }

	derived := arr(f.array(t, "app/Derived", 1))
	base := arr(f.array(t, "app/Base", 1))
	object := arr(f.array(t, ir.ObjectClass, 1))
	marker := arr(f.array(t, "app/Marker", 1))
	points := arr(f.array(t, "app/Point", 1))
	nullFree := arr(f.nullFreeArray(t, "app/Point"))

	tests := []struct {
		name     string
		src, dst *oops.ObjArray
		want     string
	}{
		{"same array", base, base, "plain"},
		{"same type", base, arr(f.array(t, "app/Base", 1)), "disjoint"},
		{"subtype", derived, base, "disjoint"},
		{"interface supertype", derived, marker, "disjoint"},
		{"into object", marker, object, "disjoint"},
		{"supertype", base, derived, "disjoint|checkcast"},
		{"unrelated", marker, base, "disjoint|checkcast"},
		{"nullable into null-free", points, nullFree, "disjoint|notnull"},
		{"object into null-free", object, nullFree, "disjoint|checkcast|notnull"},
		{"null-free into nullable", nullFree, points, "disjoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.u.ClassifyCopy(tt.src, tt.dst).String())
		})
	}
}

func TestReferenceCopy_Offsets(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		k := f.array(t, "app/Base", 1)
		b := []oops.Oop{f.instance(t, "app/Base"), f.instance(t, "app/Base"), f.instance(t, "app/Base")}
		src := f.objArray(t, k, b...)
		dst := f.objArray(t, k, nil, nil, nil, nil)

		slot := uintptr(8)
		if f.heap.UseCompressedOops() {
			slot = 4
		}
		assert.Equal(t, 16+2*slot, oops.ObjAtOffset(src, 2))

		err := f.u.ReferenceCopy(src, oops.ObjAtOffset(src, 1), dst, oops.ObjAtOffset(dst, 2), 2, oops.CopyDisjoint)
		require.NoError(t, err)
		assert.Equal(t, []oops.Oop{nil, nil, b[1], b[2]}, dst.Elements())

		assert.Panics(t, func() {
			_ = f.u.ReferenceCopy(src, oops.ObjAtOffset(src, 1)+1, dst, oops.ObjAtOffset(dst, 0), 1, 0)
		})
	})
}

type fakeFlatArray struct {
	k      *oops.Klass
	length int
}

func (a *fakeFlatArray) Klass() *oops.Klass { return a.k }
func (a *fakeFlatArray) Handle() uint32     { return 1 }
func (a *fakeFlatArray) Length() int        { return a.length }

type recordingCopier struct {
	calls []string
}

func (c *recordingCopier) CopyArray(src *oops.ObjArray, srcPos int, dst oops.Array, dstPos int, length int) error {
	c.calls = append(c.calls, dst.Klass().Name()+":"+strconv.Itoa(srcPos)+":"+strconv.Itoa(dstPos)+":"+strconv.Itoa(length))
	return nil
}

func TestCopyArray_FlatDestination(t *testing.T) {
	copier := &recordingCopier{}
	f := newFixture(t, nil, oops.WithFlatArrays(copier))
	flat := &fakeFlatArray{k: oops.NewFlatArrayKlassForTest(f.u, f.k["app/Point"]), length: 4}
	src := f.objArray(t, f.array(t, "app/Point", 1), nil, nil)

	require.NoError(t, f.u.CopyArray(src, 0, flat, 1, 2))
	assert.Equal(t, []string{"[Qapp/Point;:0:1:2"}, copier.calls)

	disabled := newFixture(t, nil)
	flat = &fakeFlatArray{k: oops.NewFlatArrayKlassForTest(disabled.u, disabled.k["app/Point"]), length: 4}
	src = disabled.objArray(t, disabled.array(t, "app/Point", 1), nil)
	err := disabled.u.CopyArray(src, 0, flat, 0, 1)
	assert.True(t, oops.IsArrayStore(err))
}

func TestStoreElement(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)
		bases := f.objArray(t, f.array(t, "app/Base", 1), nil, nil)
		derived := f.instance(t, "app/Derived")
		other := f.instance(t, "app/Other")

		require.NoError(t, f.u.StoreElement(bases, 0, derived))
		assert.Same(t, derived, bases.ObjAt(0))

		err := f.u.StoreElement(bases, 1, other)
		require.Error(t, err)
		assert.True(t, oops.IsArrayStore(err))
		assert.EqualError(t, err, "ArrayStoreException: type mismatch: can not store app.Other to app.Base[]")
		assert.Nil(t, bases.ObjAt(1))

		err = f.u.StoreElement(bases, 2, derived)
		assert.EqualError(t, err, "ArrayIndexOutOfBoundsException: Index 2 out of bounds for length 2")

		require.NoError(t, f.u.StoreElement(bases, 0, nil))
		assert.Nil(t, bases.ObjAt(0))

		points, err := f.u.AllocateArray(f.nullFreeArray(t, "app/Point"), 1)
		require.NoError(t, err)
		err = f.u.StoreElement(points, 0, nil)
		assert.EqualError(t, err, "ArrayStoreException: null cannot be stored into null-free array [Qapp.Point;")
	})
}
