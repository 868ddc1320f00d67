package ir

// Well-known class names defined by every runtime at bootstrap.
const (
	ObjectClass       = "java/lang/Object"
	CloneableClass    = "java/lang/Cloneable"
	SerializableClass = "java/lang/Serializable"
)

// ClassKind distinguishes concrete classes from interfaces.
type ClassKind string

const (
	KindClass     ClassKind = "class"
	KindInterface ClassKind = "interface"
)

// ValidClassKinds defines allowed class kinds.
var ValidClassKinds = map[ClassKind]bool{
	KindClass:     true,
	KindInterface: true,
}

// Access is the declared visibility of a class.
type Access string

const (
	AccessPublic    Access = "public"
	AccessProtected Access = "protected"
	AccessPrivate   Access = "private"
	AccessPackage   Access = "package"
)

// ValidAccess defines allowed access values.
var ValidAccess = map[Access]bool{
	AccessPublic:    true,
	AccessProtected: true,
	AccessPrivate:   true,
	AccessPackage:   true,
}

// ClassDecl represents one compiled class or interface declaration.
type ClassDecl struct {
	Name        string    `json:"name"`
	Kind        ClassKind `json:"kind"`
	Super       string    `json:"super,omitempty"` // Empty only for the root object class
	Interfaces  []string  `json:"interfaces,omitempty"`
	Flattenable bool      `json:"flattenable"` // Value-like; eligible for null-free arrays
	Access      Access    `json:"access"`
	Module      string    `json:"module,omitempty"`
}

// IsInterface reports whether the declaration is an interface.
func (d ClassDecl) IsInterface() bool {
	return d.Kind == KindInterface
}

// Package returns the package portion of the class name ("app/model" for
// "app/model/Order"), or "" for the unnamed package.
func (d ClassDecl) Package() string {
	for i := len(d.Name) - 1; i >= 0; i-- {
		if d.Name[i] == '/' {
			return d.Name[:i]
		}
	}
	return ""
}

// Hierarchy is a set of class declarations in definition order: every
// declaration appears after its superclass and its interfaces.
type Hierarchy struct {
	Classes []ClassDecl `json:"classes"`
}

// Lookup returns the declaration with the given name.
func (h *Hierarchy) Lookup(name string) (ClassDecl, bool) {
	for _, c := range h.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return ClassDecl{}, false
}

// canonicalMap converts a declaration into the generic form accepted by
// MarshalCanonical.
func (d ClassDecl) canonicalMap() map[string]any {
	ifaces := make([]any, len(d.Interfaces))
	for i, s := range d.Interfaces {
		ifaces[i] = s
	}
	m := map[string]any{
		"name":        d.Name,
		"kind":        string(d.Kind),
		"interfaces":  ifaces,
		"flattenable": d.Flattenable,
		"access":      string(d.Access),
	}
	if d.Super != "" {
		m["super"] = d.Super
	}
	if d.Module != "" {
		m["module"] = d.Module
	}
	return m
}
