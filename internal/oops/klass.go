package oops

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Kind distinguishes klass descriptor variants.
type Kind int

const (
	// KindInstance is a composite (record) type or an interface.
	KindInstance Kind = iota + 1
	// KindTypeArray is a primitive array type.
	KindTypeArray
	// KindObjArray is an array of references.
	KindObjArray
	// KindFlatArray is a flattened value array produced by the flattening
	// collaborator. This package only recognizes it as a copy destination.
	KindFlatArray
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindTypeArray:
		return "typeArray"
	case KindObjArray:
		return "objArray"
	case KindFlatArray:
		return "flatArray"
	default:
		return "unknown"
	}
}

// AccessFlags are class modifier bits.
type AccessFlags uint16

const (
	AccPublic    AccessFlags = 0x0001
	AccPrivate   AccessFlags = 0x0002
	AccProtected AccessFlags = 0x0004
	AccFinal     AccessFlags = 0x0010
	AccInterface AccessFlags = 0x0200
	AccAbstract  AccessFlags = 0x0400

	accVisibility = AccPublic | AccPrivate | AccProtected
)

// Mirror is the reflective handle of a klass. A klass becomes visible
// through its loader only after its mirror exists.
type Mirror struct {
	klass *Klass
	name  string
}

// Klass returns the klass this mirror reflects.
func (m *Mirror) Klass() *Klass { return m.klass }

// Name returns the external name shown by reflection.
func (m *Mirror) Name() string { return m.name }

// Klass is a runtime type descriptor.
//
// Fields are written during construction and never change once the klass
// is published, except for the two array slots (written once each under
// the universe's array-creation lock) and the initialization state.
type Klass struct {
	id     uint64
	name   string
	kind   Kind
	access AccessFlags
	loader *Loader
	module string
	layout LayoutHelper
	mirror *Mirror

	super     *Klass
	secondary []*Klass

	// Instance klasses.
	flattenable bool
	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool
	defaultVal  *Instance

	// Array klasses.
	dimension int
	element   *Klass
	bottom    *Klass
	nullFree  bool
	basicType BasicType

	// Registry slots: array of this klass, null-free array of this klass.
	arrayKlass    atomic.Pointer[Klass]
	nullFreeArray atomic.Pointer[Klass]
}

// ID returns the universe-unique identity of the klass.
func (k *Klass) ID() uint64 { return k.id }

// Name returns the internal name ("app/Foo", "[Lapp/Foo;", "[I").
func (k *Klass) Name() string { return k.name }

// ExternalName returns the dotted name used in messages.
func (k *Klass) ExternalName() string { return strings.ReplaceAll(k.name, "/", ".") }

// Kind returns the descriptor variant.
func (k *Klass) Kind() Kind { return k.kind }

// IsInstance reports whether k describes a composite type or interface.
func (k *Klass) IsInstance() bool { return k.kind == KindInstance }

// IsInterface reports whether k is an interface.
func (k *Klass) IsInterface() bool { return k.access&AccInterface != 0 }

// IsArray reports whether k is any array kind.
func (k *Klass) IsArray() bool { return k.kind != KindInstance }

// IsObjArray reports whether k is a reference array.
func (k *Klass) IsObjArray() bool { return k.kind == KindObjArray }

// IsTypeArray reports whether k is a primitive array.
func (k *Klass) IsTypeArray() bool { return k.kind == KindTypeArray }

// IsFlatArray reports whether k is a flattened value array.
func (k *Klass) IsFlatArray() bool { return k.kind == KindFlatArray }

// IsFlattenable reports whether k is a value-like type eligible for
// null-free arrays.
func (k *Klass) IsFlattenable() bool { return k.flattenable }

// IsNullFreeArray reports whether k is a null-free reference array.
func (k *Klass) IsNullFreeArray() bool { return k.nullFree }

// Loader returns the defining loader.
func (k *Klass) Loader() *Loader { return k.loader }

// Mirror returns the reflective handle.
func (k *Klass) Mirror() *Mirror { return k.mirror }

// Super returns the direct supertype, or nil for the root object type.
func (k *Klass) Super() *Klass { return k.super }

// SecondarySupers returns the secondary supertypes. The slice is shared
// and must not be modified.
func (k *Klass) SecondarySupers() []*Klass { return k.secondary }

// LayoutHelper returns the packed layout word.
func (k *Klass) LayoutHelper() LayoutHelper { return k.layout }

// Dimension returns the array rank, or 0 for instance klasses.
func (k *Klass) Dimension() int { return k.dimension }

// ElementKlass returns the immediate element type of an array klass.
func (k *Klass) ElementKlass() *Klass { return k.element }

// BottomKlass returns the innermost non-array type of an array klass.
// For type arrays it is the klass itself.
func (k *Klass) BottomKlass() *Klass {
	if k.kind == KindTypeArray {
		return k
	}
	return k.bottom
}

// ElementType returns the basic type of a type array's elements.
func (k *Klass) ElementType() BasicType { return k.basicType }

// ArrayKlassOrNull returns the published array of k, or nil.
func (k *Klass) ArrayKlassOrNull() *Klass { return k.arrayKlass.Load() }

// NullFreeArrayKlassOrNull returns the published null-free array of k, or nil.
func (k *Klass) NullFreeArrayKlassOrNull() *Klass { return k.nullFreeArray.Load() }

// HigherDimension is an alias for ArrayKlassOrNull on array klasses.
func (k *Klass) HigherDimension() *Klass { return k.arrayKlass.Load() }

// LowerDimension returns the element klass when it is itself an array.
func (k *Klass) LowerDimension() *Klass {
	if k.element != nil && k.element.IsArray() {
		return k.element
	}
	return nil
}

// Module returns the module name. Arrays live in the module of their
// bottom klass.
func (k *Klass) Module() string {
	if k.kind == KindObjArray || k.kind == KindFlatArray {
		return k.bottom.Module()
	}
	return k.module
}

// Package returns the package name. Arrays live in the package of their
// bottom klass; type arrays in the unnamed package of the root module.
func (k *Klass) Package() string {
	switch k.kind {
	case KindObjArray, KindFlatArray:
		return k.bottom.Package()
	case KindTypeArray:
		return ""
	}
	if i := strings.LastIndexByte(k.name, '/'); i >= 0 {
		return k.name[:i]
	}
	return ""
}

// ModifierFlags returns the access bits reported by reflection. The
// modifiers of an array are those of its bottom type plus abstract and
// final.
func (k *Klass) ModifierFlags() AccessFlags {
	switch k.kind {
	case KindInstance:
		return k.access
	case KindTypeArray:
		return AccAbstract | AccFinal | AccPublic
	default:
		return k.bottom.ModifierFlags()&accVisibility | AccAbstract | AccFinal
	}
}

// CanBePrimarySuper reports whether k may appear on another klass's
// primary supertype chain. Interfaces and arrays of interfaces cannot.
func (k *Klass) CanBePrimarySuper() bool {
	switch k.kind {
	case KindInstance:
		return !k.IsInterface()
	case KindObjArray:
		return k.bottom.CanBePrimarySuper()
	default:
		return true
	}
}

// isSubtypeOfSlow walks the primary chain, then scans secondary supers.
func (k *Klass) isSubtypeOfSlow(super *Klass) bool {
	for p := k; p != nil; p = p.super {
		if p == super {
			return true
		}
	}
	for _, s := range k.secondary {
		if s == super {
			return true
		}
	}
	return false
}

func (k *Klass) arraySlot(nullFree bool) *atomic.Pointer[Klass] {
	if nullFree {
		return &k.nullFreeArray
	}
	return &k.arrayKlass
}

// elementDescriptor returns the descriptor of k used inside an array name.
func (k *Klass) elementDescriptor(nullFree bool) string {
	if k.IsArray() {
		return k.name
	}
	if nullFree {
		return "Q" + k.name + ";"
	}
	return "L" + k.name + ";"
}

func (k *Klass) String() string { return k.ExternalName() }
