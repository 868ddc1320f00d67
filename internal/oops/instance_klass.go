package oops

import (
	"fmt"

	"github.com/roach88/oakvm/internal/ir"
)

// DefineClass creates and publishes an instance klass in loader. The super
// class and every interface must already be loaded by loader or one of its
// parents. An empty super names the root object type, except for the root
// itself.
func (u *Universe) DefineClass(loader *Loader, decl ir.ClassDecl) (*Klass, error) {
	guarantee(loader != nil, "DefineClass: nil loader")
	decl = u.internDecl(decl)

	if !loader.reserve(decl.Name) {
		return nil, newVMError(ErrKindLinkage,
			"loader %s: attempted duplicate class definition for %s", loader.name, decl.Name)
	}
	k, err := u.defineClass(loader, decl)
	if err != nil {
		loader.release(decl.Name)
		return nil, err
	}

	u.logger.Debug("class defined",
		"class", k.name,
		"loader", loader.name,
		"secondary_supers", len(k.secondary))
	u.notifyClassDefined(k)
	return k, nil
}

func (u *Universe) defineClass(loader *Loader, decl ir.ClassDecl) (*Klass, error) {
	isInterface := decl.Kind == ir.KindInterface

	var super *Klass
	switch {
	case decl.Name == ir.ObjectClass && loader == u.boot:
		if decl.Super != "" || isInterface {
			return nil, newVMError(ErrKindLinkage, "%s must be a class without a super class", ir.ObjectClass)
		}
	default:
		superName := decl.Super
		if superName == "" {
			superName = ir.ObjectClass
		}
		s, ok := loader.FindLoadedClass(superName)
		if !ok {
			return nil, newVMError(ErrKindNoClassDefFound, "%s", superName)
		}
		if s.IsInterface() {
			return nil, newVMError(ErrKindLinkage,
				"class %s has interface %s as super class", decl.Name, s.ExternalName())
		}
		if s.IsArray() {
			return nil, newVMError(ErrKindLinkage,
				"class %s cannot extend array type %s", decl.Name, s.ExternalName())
		}
		if isInterface && s != u.object {
			return nil, newVMError(ErrKindLinkage,
				"interface %s must have %s as super class", decl.Name, ir.ObjectClass)
		}
		super = s
	}

	if decl.Flattenable && isInterface {
		return nil, newVMError(ErrKindLinkage, "interface %s cannot be flattenable", decl.Name)
	}

	secondary, err := u.transitiveInterfaces(loader, decl, super)
	if err != nil {
		return nil, err
	}

	if err := loader.metaspace.Allocate(instanceKlassSize); err != nil {
		return nil, err
	}

	module := decl.Module
	if module == "" {
		module = loader.module
	}
	k := &Klass{
		id:          u.nextKlassID(),
		name:        decl.Name,
		kind:        KindInstance,
		access:      accessFlagsFor(decl),
		loader:      loader,
		module:      module,
		layout:      LayoutHelper(instanceHeaderSize),
		super:       super,
		secondary:   secondary,
		flattenable: decl.Flattenable,
	}
	if err := u.createMirror(k); err != nil {
		loader.metaspace.Deallocate(instanceKlassSize)
		return nil, err
	}
	loader.AddClass(k)
	return k, nil
}

func (u *Universe) internDecl(decl ir.ClassDecl) ir.ClassDecl {
	decl.Name = u.symbols.Intern(decl.Name)
	if decl.Super != "" {
		decl.Super = u.symbols.Intern(decl.Super)
	}
	if len(decl.Interfaces) > 0 {
		names := make([]string, len(decl.Interfaces))
		for i, n := range decl.Interfaces {
			names[i] = u.symbols.Intern(n)
		}
		decl.Interfaces = names
	}
	return decl
}

// transitiveInterfaces returns the interfaces implemented by the class,
// directly or through its super class or super interfaces, without
// duplicates. An interface does not list itself.
func (u *Universe) transitiveInterfaces(loader *Loader, decl ir.ClassDecl, super *Klass) ([]*Klass, error) {
	var out []*Klass
	seen := make(map[*Klass]bool)
	add := func(k *Klass) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if super != nil {
		for _, s := range super.secondary {
			add(s)
		}
	}
	for _, name := range decl.Interfaces {
		i, ok := loader.FindLoadedClass(name)
		if !ok {
			return nil, newVMError(ErrKindNoClassDefFound, "%s", name)
		}
		if !i.IsInterface() {
			return nil, newVMError(ErrKindLinkage,
				"class %s can not implement %s, because it is not an interface", decl.Name, i.ExternalName())
		}
		add(i)
		for _, s := range i.secondary {
			add(s)
		}
	}
	return out, nil
}

func accessFlagsFor(decl ir.ClassDecl) AccessFlags {
	var f AccessFlags
	switch decl.Access {
	case ir.AccessPublic, "":
		f = AccPublic
	case ir.AccessProtected:
		f = AccProtected
	case ir.AccessPrivate:
		f = AccPrivate
	}
	if decl.Kind == ir.KindInterface {
		f |= AccInterface | AccAbstract
	}
	if decl.Flattenable {
		f |= AccFinal
	}
	return f
}

// DefineHierarchy defines every class of h in loader. Declarations may
// appear in any order; each is defined once its super class and
// interfaces exist.
func (u *Universe) DefineHierarchy(loader *Loader, h *ir.Hierarchy) ([]*Klass, error) {
	pending := make([]ir.ClassDecl, len(h.Classes))
	copy(pending, h.Classes)

	var defined []*Klass
	for len(pending) > 0 {
		var next []ir.ClassDecl
		for _, decl := range pending {
			if !u.declReady(loader, decl) {
				next = append(next, decl)
				continue
			}
			k, err := u.DefineClass(loader, decl)
			if err != nil {
				return defined, fmt.Errorf("define %s: %w", decl.Name, err)
			}
			defined = append(defined, k)
		}
		if len(next) == len(pending) {
			return defined, fmt.Errorf("define %s: %w", next[0].Name,
				newVMError(ErrKindNoClassDefFound, "%s", u.firstMissing(loader, next[0])))
		}
		pending = next
	}
	return defined, nil
}

func (u *Universe) declReady(loader *Loader, decl ir.ClassDecl) bool {
	return u.firstMissing(loader, decl) == ""
}

func (u *Universe) firstMissing(loader *Loader, decl ir.ClassDecl) string {
	decl = u.internDecl(decl)
	if decl.Super != "" {
		if _, ok := loader.FindLoadedClass(decl.Super); !ok {
			return decl.Super
		}
	}
	for _, name := range decl.Interfaces {
		if _, ok := loader.FindLoadedClass(name); !ok {
			return name
		}
	}
	return ""
}

// Initialize runs the one-time initialization of k's bottom type. A
// flattenable klass allocates its default value, which null-free arrays
// use to populate new elements.
func (u *Universe) Initialize(k *Klass) error {
	switch k.kind {
	case KindObjArray, KindFlatArray:
		return u.Initialize(k.bottom)
	case KindTypeArray:
		return nil
	}
	k.initOnce.Do(func() {
		if k.super != nil {
			if err := u.Initialize(k.super); err != nil {
				k.initErr = err
				return
			}
		}
		if k.flattenable {
			inst, err := u.heap.InstanceAllocate(k, int64(k.layout))
			if err != nil {
				k.initErr = fmt.Errorf("initialize %s: %w", k.name, err)
				return
			}
			k.defaultVal = inst
		}
		k.initialized.Store(true)
	})
	return k.initErr
}

// IsInitialized reports whether Initialize completed successfully.
func (k *Klass) IsInitialized() bool { return k.initialized.Load() }

// DefaultValue returns the default instance of an initialized flattenable
// klass, or nil.
func (k *Klass) DefaultValue() *Instance { return k.defaultVal }

