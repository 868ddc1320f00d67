package oops

import (
	"strings"
)

// resolveState is a step of array klass creation.
type resolveState int

const (
	// checkSupertypesComplete verifies, under the array lock, that the
	// array forms of every supertype of the element already exist.
	checkSupertypesComplete resolveState = iota

	// createMissingSupertypes drops the array lock and resolves each
	// missing supertype array, then goes back to checking.
	createMissingSupertypes

	// publishDescriptor builds the new klass under the array lock,
	// registers it with its loader and publishes it in the element's slot.
	publishDescriptor
)

func (s resolveState) String() string {
	switch s {
	case checkSupertypesComplete:
		return "check_supertypes_complete"
	case createMissingSupertypes:
		return "create_missing_supertypes"
	case publishDescriptor:
		return "publish_descriptor"
	default:
		return "unknown"
	}
}

// ArrayOf returns the canonical rank-dimensional array klass of elem,
// creating every missing intermediate dimension. Repeated calls with the
// same arguments return the same klass, from any goroutine.
//
// A null-free array may only be requested with rank 1 and a flattenable
// element type.
func (u *Universe) ArrayOf(elem *Klass, rank int, nullFree bool) (*Klass, error) {
	guarantee(elem != nil, "ArrayOf: nil element klass")
	guarantee(rank >= 1, "ArrayOf: rank must be at least 1, got %d", rank)
	guarantee(!elem.IsFlatArray(), "ArrayOf: flat array %s cannot be an element type", elem.name)
	if nullFree {
		guarantee(rank == 1, "ArrayOf: null-free arrays have rank 1, got %d", rank)
		guarantee(elem.IsFlattenable(), "ArrayOf: %s is not flattenable", elem.name)
	}

	k := elem
	for r := 0; r < rank; r++ {
		next, err := u.arrayKlass(k, nullFree && r == 0)
		if err != nil {
			return nil, err
		}
		k = next
	}
	return k, nil
}

// arrayKlass returns the one-dimension-higher array of elem. Supertype
// arrays are created first, with the array lock released, so that every
// published array klass can name its supertype arrays directly.
func (u *Universe) arrayKlass(elem *Klass, nullFree bool) (*Klass, error) {
	slot := elem.arraySlot(nullFree)
	if k := slot.Load(); k != nil {
		return k, nil
	}

	var (
		super   *Klass
		missing []*Klass
		retries int
	)
	u.arrayLock.Lock()
	state := checkSupertypesComplete
	for {
		switch state {
		case checkSupertypesComplete:
			if k := slot.Load(); k != nil {
				u.arrayLock.Unlock()
				return k, nil
			}
			super, missing = u.arraySupers(elem, nullFree)
			if len(missing) > 0 {
				state = createMissingSupertypes
			} else {
				state = publishDescriptor
			}

		case createMissingSupertypes:
			u.arrayLock.Unlock()
			retries++
			u.logger.Debug("creating supertype arrays",
				"element", elem.name,
				"missing", len(missing),
				"attempt", retries)
			for _, m := range missing {
				if _, err := u.arrayKlass(m, false); err != nil {
					return nil, err
				}
			}
			u.arrayLock.Lock()
			state = checkSupertypesComplete

		case publishDescriptor:
			k, err := u.newObjArrayKlass(elem, nullFree, super)
			if err == nil {
				slot.Store(k)
			}
			u.arrayLock.Unlock()
			if err != nil {
				return nil, err
			}
			u.logger.Debug("array class published",
				"class", k.name,
				"loader", k.loader.name,
				"dimension", k.dimension)
			u.notifyClassDefined(k)
			return k, nil
		}
	}
}

// arraySupers returns the direct super of the array of elem and the
// supertypes of elem whose array form does not yet exist.
func (u *Universe) arraySupers(elem *Klass, nullFree bool) (*Klass, []*Klass) {
	// The array of the root type extends the root type.
	if elem.super == nil {
		return elem, nil
	}

	var (
		super   *Klass
		missing []*Klass
	)
	if nullFree {
		// The null-free array of E extends the nullable array of E.
		super = elem.arrayKlass.Load()
		if super == nil {
			missing = append(missing, elem)
		}
	} else {
		super = elem.super.arrayKlass.Load()
		if super == nil {
			missing = append(missing, elem.super)
		}
	}
	for _, s := range elem.secondary {
		if s.arrayKlass.Load() == nil {
			missing = append(missing, s)
		}
	}
	return super, missing
}

// newObjArrayKlass constructs the array of elem. It runs under the array
// lock with every supertype array already published.
func (u *Universe) newObjArrayKlass(elem *Klass, nullFree bool, super *Klass) (*Klass, error) {
	bottom := elem
	dimension := 1
	if elem.IsArray() {
		bottom = elem.BottomKlass()
		dimension = elem.dimension + 1
	}

	loader := bottom.loader
	if err := loader.metaspace.Allocate(objArrayKlassSize); err != nil {
		return nil, err
	}

	layout := arrayLayoutHelper(TObject, u.heap.UseCompressedOops())
	if nullFree {
		layout = layout.WithNullFree()
	}

	k := &Klass{
		id:        u.nextKlassID(),
		name:      "[" + elem.elementDescriptor(nullFree),
		kind:      KindObjArray,
		access:    AccPublic | AccAbstract | AccFinal,
		loader:    loader,
		module:    bottom.Module(),
		layout:    layout,
		super:     super,
		secondary: u.arraySecondarySupers(elem),
		dimension: dimension,
		element:   elem,
		bottom:    bottom,
		nullFree:  nullFree,
		basicType: TObject,
	}
	guarantee(k.super != nil, "array %s has no super", k.name)

	if err := u.createMirror(k); err != nil {
		loader.metaspace.Deallocate(objArrayKlassSize)
		return nil, err
	}
	loader.AddClass(k)
	return k, nil
}

// arraySecondarySupers returns the two array marker interfaces followed by
// the array of each secondary super of elem. Arrays of types without
// secondary supers share one slice.
func (u *Universe) arraySecondarySupers(elem *Klass) []*Klass {
	if len(elem.secondary) == 0 {
		return u.arrayInterfaces
	}
	out := make([]*Klass, 0, len(elem.secondary)+len(u.arrayInterfaces))
	out = append(out, u.arrayInterfaces...)
	for _, s := range elem.secondary {
		as := s.arrayKlass.Load()
		guarantee(as != nil, "array of %s must exist before array of %s", s.name, elem.name)
		out = append(out, as)
	}
	return out
}

// newTypeArrayKlass creates the primitive array klass of t in the boot
// loader.
func (u *Universe) newTypeArrayKlass(t BasicType) (*Klass, error) {
	if err := u.boot.metaspace.Allocate(typeArrayKlassSize); err != nil {
		return nil, err
	}
	k := &Klass{
		id:        u.nextKlassID(),
		name:      "[" + string(t.Descriptor()),
		kind:      KindTypeArray,
		access:    AccPublic | AccAbstract | AccFinal,
		loader:    u.boot,
		module:    u.boot.module,
		layout:    arrayLayoutHelper(t, u.heap.UseCompressedOops()),
		super:     u.object,
		secondary: u.arrayInterfaces,
		dimension: 1,
		basicType: t,
	}
	if err := u.createMirror(k); err != nil {
		return nil, err
	}
	u.boot.AddClass(k)
	return k, nil
}

// ResolveName resolves an internal class name in loader, creating array
// klasses on demand. Accepted forms are "pkg/Name", "[Lpkg/Name;",
// "[Qpkg/Name;" and "[I", with any number of leading '['.
func (u *Universe) ResolveName(loader *Loader, name string) (*Klass, error) {
	name = u.symbols.Intern(name)
	rank := 0
	for rank < len(name) && name[rank] == '[' {
		rank++
	}
	if rank == 0 {
		k, ok := loader.FindLoadedClass(name)
		if !ok {
			return nil, newVMError(ErrKindNoClassDefFound, "%s", name)
		}
		return k, nil
	}

	desc := name[rank:]
	if len(desc) == 1 {
		t, ok := BasicTypeForDescriptor(desc[0])
		if !ok || t == TObject {
			return nil, newVMError(ErrKindNoClassDefFound, "%s", name)
		}
		base := u.typeArrays[t]
		if rank == 1 {
			return base, nil
		}
		return u.ArrayOf(base, rank-1, false)
	}

	if len(desc) < 3 || !strings.HasSuffix(desc, ";") || (desc[0] != 'L' && desc[0] != 'Q') {
		return nil, newVMError(ErrKindNoClassDefFound, "%s", name)
	}
	elem, ok := loader.FindLoadedClass(desc[1 : len(desc)-1])
	if !ok {
		return nil, newVMError(ErrKindNoClassDefFound, "%s", name)
	}
	if desc[0] == 'L' {
		return u.ArrayOf(elem, rank, false)
	}

	if !elem.IsFlattenable() {
		return nil, newVMError(ErrKindLinkage, "%s is not flattenable", elem.ExternalName())
	}
	k, err := u.ArrayOf(elem, 1, true)
	if err != nil || rank == 1 {
		return k, err
	}
	return u.ArrayOf(k, rank-1, false)
}
