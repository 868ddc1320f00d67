package oops

// CopyArray copies length elements of src starting at srcPos into dst
// starting at dstPos, with the checks of the language's array copy:
// destination kind, then positions, then the last indices. Errors leave
// dst untouched, except for a checked element failure, which leaves the
// elements before the failing one copied.
func (u *Universe) CopyArray(src *ObjArray, srcPos int, dst Oop, dstPos int, length int) error {
	guarantee(src != nil, "CopyArray: nil source array")
	guarantee(!isNil(dst), "CopyArray: nil destination")

	dk := dst.Klass()
	if dk.IsFlatArray() {
		if !u.useFlatArray {
			return newVMError(ErrKindArrayStore,
				"arraycopy: flat array %s requires flat array support", dk.ExternalName())
		}
		da, ok := dst.(Array)
		guarantee(ok, "CopyArray: flat array destination %s has no length", dk.name)
		return u.flatCopier.CopyArray(src, srcPos, da, dstPos, length)
	}

	d, ok := dst.(*ObjArray)
	if !ok {
		if dk.IsTypeArray() {
			return newVMError(ErrKindArrayStore,
				"arraycopy: type mismatch: can not copy object array[] into %s[]", dk.ElementType().Name())
		}
		return newVMError(ErrKindArrayStore,
			"arraycopy: destination type %s is not an array", dk.ExternalName())
	}

	if srcPos < 0 || dstPos < 0 || length < 0 {
		switch {
		case srcPos < 0:
			return newVMError(ErrKindIndexOutOfBounds,
				"arraycopy: source index %d out of bounds for object array[%d]", srcPos, src.Length())
		case dstPos < 0:
			return newVMError(ErrKindIndexOutOfBounds,
				"arraycopy: destination index %d out of bounds for object array[%d]", dstPos, d.Length())
		default:
			return newVMError(ErrKindIndexOutOfBounds,
				"arraycopy: length %d is negative", length)
		}
	}

	// Both operands are non-negative here, so the unsigned sums cannot wrap.
	if end := uint64(length) + uint64(srcPos); end > uint64(src.Length()) {
		return newVMError(ErrKindIndexOutOfBounds,
			"arraycopy: last source index %d out of bounds for object array[%d]", end, src.Length())
	}
	if end := uint64(length) + uint64(dstPos); end > uint64(d.Length()) {
		return newVMError(ErrKindIndexOutOfBounds,
			"arraycopy: last destination index %d out of bounds for object array[%d]", end, d.Length())
	}

	if length == 0 {
		return nil
	}

	srcOff := ObjAtOffset(src, srcPos)
	dstOff := ObjAtOffset(d, dstPos)
	return u.ReferenceCopy(src, srcOff, d, dstOff, length, u.ClassifyCopy(src, d))
}

// ClassifyCopy selects the access flags for copying from s to d. Copies
// within one array are plain overlapping moves. Otherwise the ranges are
// disjoint; element checks are added when the source element type is not
// a subtype of the destination's, and null checks when a nullable source
// feeds a null-free destination.
func (u *Universe) ClassifyCopy(s, d *ObjArray) CopyFlags {
	if s == d {
		return 0
	}
	flags := CopyDisjoint
	if !s.klass.nullFree && d.klass.nullFree {
		flags |= CopyNotNull
	}
	stype := s.klass.element
	bound := d.klass.element
	if stype != bound && !u.IsSubtypeOf(stype, bound) {
		flags |= CopyCheckcast
	}
	return flags
}
