package oops

// AllocateArray allocates a reference array of k with length elements.
// Elements of a null-free array start as the element type's default
// value; all others start nil.
func (u *Universe) AllocateArray(k *Klass, length int) (*ObjArray, error) {
	guarantee(k != nil && k.IsObjArray(), "AllocateArray: %v is not a reference array klass", k)
	if err := u.checkArrayLength(length); err != nil {
		return nil, err
	}

	if k.nullFree {
		if err := u.Initialize(k.element); err != nil {
			return nil, err
		}
	}
	a, err := u.heap.ArrayAllocate(k, k.layout.ArraySize(length), length, true)
	if err != nil {
		return nil, err
	}
	if k.nullFree {
		v := k.element.defaultVal
		guarantee(v != nil, "flattenable %s has no default value", k.element.name)
		for i := 0; i < length; i++ {
			a.ObjAtPut(i, v)
		}
	}
	return a, nil
}

// AllocateTypeArray allocates a zeroed primitive array.
func (u *Universe) AllocateTypeArray(k *Klass, length int) (*TypeArray, error) {
	guarantee(k != nil && k.IsTypeArray(), "AllocateTypeArray: %v is not a primitive array klass", k)
	if err := u.checkArrayLength(length); err != nil {
		return nil, err
	}
	return u.heap.TypeArrayAllocate(k, k.layout.ArraySize(length), length)
}

// MultiAllocate allocates a rectangular array of len(lengths) levels. Each
// slot of a non-final level holds a fresh sub-array. When an outer length
// is zero no sub-arrays are built, but the remaining lengths are still
// checked for negative values.
func (u *Universe) MultiAllocate(k *Klass, lengths []int) (Array, error) {
	guarantee(k != nil && k.IsArray(), "MultiAllocate: %v is not an array klass", k)
	guarantee(len(lengths) >= 1 && len(lengths) <= k.Dimension(),
		"MultiAllocate: rank %d outside 1..%d for %s", len(lengths), k.Dimension(), k.name)

	if k.IsTypeArray() {
		return u.AllocateTypeArray(k, lengths[0])
	}

	length := lengths[0]
	a, err := u.AllocateArray(k, length)
	if err != nil {
		return nil, err
	}
	if len(lengths) == 1 {
		return a, nil
	}

	lower := k.LowerDimension()
	guarantee(lower != nil, "MultiAllocate: %s has no lower dimension", k.name)
	if length == 0 {
		for _, n := range lengths[1:] {
			if n < 0 {
				return nil, newVMError(ErrKindNegativeArraySize, "%d", n)
			}
		}
		return a, nil
	}
	for i := 0; i < length; i++ {
		sub, err := u.MultiAllocate(lower, lengths[1:])
		if err != nil {
			return nil, err
		}
		a.ObjAtPut(i, sub)
	}
	return a, nil
}

func (u *Universe) checkArrayLength(length int) error {
	if length > u.maxArrayLength {
		return newVMError(ErrKindOutOfMemory, "Requested array size exceeds VM limit")
	}
	if length < 0 {
		return newVMError(ErrKindNegativeArraySize, "%d", length)
	}
	return nil
}

// AllocateInstance initializes k and allocates one instance of it.
func (u *Universe) AllocateInstance(k *Klass) (*Instance, error) {
	guarantee(k != nil && k.IsInstance(), "AllocateInstance: %v is not an instance klass", k)
	if k.IsInterface() {
		return nil, newVMError(ErrKindLinkage, "cannot instantiate interface %s", k.ExternalName())
	}
	if err := u.Initialize(k); err != nil {
		return nil, err
	}
	return u.heap.InstanceAllocate(k, int64(k.layout))
}
