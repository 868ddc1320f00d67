package oops

import (
	"errors"
	"fmt"
)

// Verify checks the structural invariants of a published klass.
func (u *Universe) Verify(k *Klass) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: "+format, append([]any{k.name}, args...)...))
		}
	}

	check(k.mirror != nil, "missing mirror")
	check(k.loader != nil, "missing loader")
	check(k.kind == KindInstance || k.super != nil, "array without super")

	switch k.kind {
	case KindObjArray:
		check(k.element != nil, "missing element klass")
		check(k.bottom != nil && (k.bottom.IsInstance() || k.bottom.IsTypeArray()),
			"bottom klass must be an instance or primitive array klass")
		check(k.layout.IsObjArray(), "layout helper %s is not an object array layout", k.layout)
		check(k.layout.IsNullFree() == k.nullFree, "null-free flag disagrees with layout helper")
		check(!k.nullFree || (k.dimension == 1 && k.element.IsFlattenable()),
			"null-free array must have rank 1 and a flattenable element")
		if k.element != nil && k.element.IsArray() {
			check(k.dimension == k.element.dimension+1, "dimension %d does not follow element", k.dimension)
		} else {
			check(k.dimension == 1, "dimension %d for non-array element", k.dimension)
		}
		if k.bottom != nil {
			check(k.loader == k.bottom.loader, "loader differs from bottom klass loader")
		}
		check(len(k.secondary) >= len(u.arrayInterfaces), "secondary supers lack the array interfaces")
		for i, s := range u.arrayInterfaces {
			if i < len(k.secondary) {
				check(k.secondary[i] == s, "secondary super %d is %s, want %s", i, k.secondary[i].name, s.name)
			}
		}
		if k.element != nil && len(k.secondary) == len(k.element.secondary)+len(u.arrayInterfaces) {
			for i, s := range k.element.secondary {
				as := k.secondary[len(u.arrayInterfaces)+i]
				check(as == s.arrayKlass.Load(), "secondary super %s is not the array of %s", as.name, s.name)
			}
		} else if k.element != nil {
			check(false, "expected %d secondary supers, got %d",
				len(k.element.secondary)+len(u.arrayInterfaces), len(k.secondary))
		}
	case KindTypeArray:
		check(k.dimension == 1, "primitive array dimension %d", k.dimension)
		check(k.layout.IsArray() && !k.layout.IsObjArray(), "layout helper %s is not a primitive array layout", k.layout)
	}
	return errors.Join(errs...)
}

// OopVerify checks an array instance against its klass.
func (u *Universe) OopVerify(a *ObjArray) error {
	k := a.klass
	if err := u.Verify(k); err != nil {
		return err
	}
	if k.nullFree != k.layout.IsNullFree() {
		return fmt.Errorf("%s: null-free klass with nullable layout", k.name)
	}
	for i := 0; i < a.Length(); i++ {
		o := a.ObjAt(i)
		if o == nil {
			if k.nullFree {
				return fmt.Errorf("%s: null element %d in null-free array", k.name, i)
			}
			continue
		}
		if !u.IsSubtypeOf(o.Klass(), k.element) {
			return fmt.Errorf("%s: element %d of type %s is not a %s",
				k.name, i, o.Klass().ExternalName(), k.element.ExternalName())
		}
	}
	return nil
}

// VerifyAll verifies every klass of every loader.
func (u *Universe) VerifyAll() error {
	var errs []error
	for _, l := range u.Loaders() {
		for _, k := range l.Classes() {
			if err := u.Verify(k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
