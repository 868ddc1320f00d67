package oops

import "strings"

// CopyFlags select the behaviour of ReferenceCopy.
type CopyFlags uint8

const (
	// CopyDisjoint asserts the source and destination ranges do not overlap.
	CopyDisjoint CopyFlags = 1 << iota
	// CopyCheckcast checks each element against the destination element type.
	CopyCheckcast
	// CopyNotNull rejects nil elements.
	CopyNotNull
)

func (f CopyFlags) String() string {
	if f == 0 {
		return "plain"
	}
	var parts []string
	if f&CopyDisjoint != 0 {
		parts = append(parts, "disjoint")
	}
	if f&CopyCheckcast != 0 {
		parts = append(parts, "checkcast")
	}
	if f&CopyNotNull != 0 {
		parts = append(parts, "notnull")
	}
	return strings.Join(parts, "|")
}

// ObjAtOffset returns the byte offset of element i of a.
func ObjAtOffset(a *ObjArray, i int) uintptr {
	return uintptr(arrayHeaderSize) + uintptr(i)<<a.klass.layout.Log2ElementSize()
}

func slotIndex(a *ObjArray, off uintptr) int {
	log2 := a.klass.layout.Log2ElementSize()
	guarantee(off >= arrayHeaderSize && (off-arrayHeaderSize)&(1<<log2-1) == 0,
		"offset %d is not an element boundary of %s", off, a.klass.name)
	return int((off - arrayHeaderSize) >> log2)
}

// ReferenceCopy moves count reference slots between the given byte
// offsets. Without checks the move behaves like memmove. With
// CopyCheckcast or CopyNotNull, elements are copied in order and the first
// failing element stops the copy; earlier elements stay copied.
func (u *Universe) ReferenceCopy(src *ObjArray, srcOff uintptr, dst *ObjArray, dstOff uintptr, count int, flags CopyFlags) error {
	guarantee(src.IsNarrow() == dst.IsNarrow(), "ReferenceCopy: mixed reference widths")
	si := slotIndex(src, srcOff)
	di := slotIndex(dst, dstOff)

	c := slotCopy{u: u, flags: flags, srcBase: si}
	if flags&CopyCheckcast != 0 {
		c.bound = dst.klass.element
	}
	if src.IsNarrow() {
		return copySlots(c, src.narrow[si:si+count], dst.narrow[di:di+count], func(n uint32) Oop {
			return decodeNarrow(src.decoder, n)
		})
	}
	return copySlots(c, src.wide[si:si+count], dst.wide[di:di+count], func(o Oop) Oop { return o })
}

type slotCopy struct {
	u       *Universe
	flags   CopyFlags
	bound   *Klass
	srcBase int
}

// copySlots copies slot values of either width. The zero value of T is the
// nil reference.
func copySlots[T comparable](c slotCopy, src, dst []T, load func(T) Oop) error {
	if c.flags&(CopyCheckcast|CopyNotNull) == 0 {
		copy(dst, src)
		return nil
	}
	var zero T
	for i, v := range src {
		if v == zero {
			if c.flags&CopyNotNull != 0 {
				return newVMError(ErrKindArrayStore,
					"arraycopy: null element at index %d cannot be stored into a null-free array", c.srcBase+i)
			}
		} else if c.bound != nil {
			o := load(v)
			if !c.u.IsSubtypeOf(o.Klass(), c.bound) {
				return newVMError(ErrKindArrayStore,
					"arraycopy: element type %s cannot be stored to destination type %s[]",
					o.Klass().ExternalName(), c.bound.ExternalName())
			}
		}
		dst[i] = v
	}
	return nil
}

// StoreElement performs a checked store of v into a[index]: the index is
// bounds checked, null is rejected by null-free arrays, and a non-null v
// must be a subtype of the element type.
func (u *Universe) StoreElement(a *ObjArray, index int, v Oop) error {
	guarantee(a != nil, "StoreElement: nil array")
	if index < 0 || index >= a.Length() {
		return newVMError(ErrKindIndexOutOfBounds,
			"Index %d out of bounds for length %d", index, a.Length())
	}
	if isNil(v) {
		if a.klass.nullFree {
			return newVMError(ErrKindArrayStore,
				"null cannot be stored into null-free array %s", a.klass.ExternalName())
		}
		a.ObjAtPut(index, nil)
		return nil
	}
	if !u.IsSubtypeOf(v.Klass(), a.klass.element) {
		return newVMError(ErrKindArrayStore,
			"type mismatch: can not store %s to %s[]", v.Klass().ExternalName(), a.klass.element.ExternalName())
	}
	a.ObjAtPut(index, v)
	return nil
}
