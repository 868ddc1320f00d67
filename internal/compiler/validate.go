package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/oakvm/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidName          = "E201" // malformed class name
	ErrInvalidKind          = "E202" // kind is not class or interface
	ErrInvalidAccess        = "E203" // unknown access value
	ErrUnknownSupertype     = "E204" // super or interface not declared
	ErrInterfaceAsSuper     = "E205" // class extends an interface
	ErrNotAnInterface       = "E206" // implements lists a class
	ErrFlattenableInterface = "E207" // interfaces cannot be flattened
	ErrDuplicateInterface   = "E208" // interface listed twice
	ErrBootstrapRedeclared  = "E209" // redeclares a bootstrap class
	ErrInterfaceSuper       = "E210" // interface super is not java/lang/Object
	ErrDuplicateClass       = "E211" // class declared twice
)

// bootstrapClasses exist in every runtime and may be referenced without
// being declared.
var bootstrapClasses = map[string]ir.ClassKind{
	ir.ObjectClass:       ir.KindClass,
	ir.CloneableClass:    ir.KindInterface,
	ir.SerializableClass: ir.KindInterface,
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	Class   string `json:"class"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Class, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Class, e.Message)
}

// ValidationErrors is every problem found in one hierarchy.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Validate checks a hierarchy against the declaration rules.
// Returns all errors found (does not fail-fast).
func Validate(h *ir.Hierarchy) ValidationErrors {
	return validate(h.Classes, nil)
}

func validate(decls []ir.ClassDecl, positions map[string]token.Pos) ValidationErrors {
	var errs ValidationErrors
	add := func(d ir.ClassDecl, code, format string, args ...any) {
		e := ValidationError{Class: d.Name, Code: code, Message: fmt.Sprintf(format, args...)}
		if p, ok := positions[d.Name]; ok && p.IsValid() {
			e.Line = p.Line()
		}
		errs = append(errs, e)
	}

	kinds := make(map[string]ir.ClassKind, len(decls)+len(bootstrapClasses))
	for name, kind := range bootstrapClasses {
		kinds[name] = kind
	}
	declared := make(map[string]bool, len(decls))
	for _, d := range decls {
		if declared[d.Name] {
			add(d, ErrDuplicateClass, "declared more than once")
			continue
		}
		declared[d.Name] = true
		if _, ok := bootstrapClasses[d.Name]; ok {
			add(d, ErrBootstrapRedeclared, "bootstrap class cannot be redeclared")
			continue
		}
		kinds[d.Name] = d.Kind
	}

	for _, d := range decls {
		if _, ok := bootstrapClasses[d.Name]; ok {
			continue
		}
		if msg := checkName(d.Name); msg != "" {
			add(d, ErrInvalidName, "%s", msg)
		}
		if !ir.ValidClassKinds[d.Kind] {
			add(d, ErrInvalidKind, "kind must be \"class\" or \"interface\", got %q", d.Kind)
		}
		if !ir.ValidAccess[d.Access] {
			add(d, ErrInvalidAccess, "invalid access %q", d.Access)
		}

		if d.IsInterface() {
			if d.Flattenable {
				add(d, ErrFlattenableInterface, "interface cannot be flattenable")
			}
			if d.Super != ir.ObjectClass {
				add(d, ErrInterfaceSuper, "interface must have %s as super class", ir.ObjectClass)
			}
		} else if kind, ok := kinds[d.Super]; !ok {
			add(d, ErrUnknownSupertype, "super class %s is not declared", d.Super)
		} else if kind == ir.KindInterface {
			add(d, ErrInterfaceAsSuper, "class has interface %s as super class", d.Super)
		}

		seen := make(map[string]bool, len(d.Interfaces))
		for _, iface := range d.Interfaces {
			if seen[iface] {
				add(d, ErrDuplicateInterface, "interface %s listed more than once", iface)
				continue
			}
			seen[iface] = true
			kind, ok := kinds[iface]
			switch {
			case !ok:
				add(d, ErrUnknownSupertype, "interface %s is not declared", iface)
			case kind != ir.KindInterface:
				add(d, ErrNotAnInterface, "can not implement %s, because it is not an interface", iface)
			}
		}
	}

	return errs
}

// checkName returns a description of what is wrong with a binary class
// name in slash form, or "" if it is well formed.
func checkName(name string) string {
	switch {
	case name == "":
		return "class name is empty"
	case strings.ContainsAny(name, "[;."):
		return "class name must not contain '[', ';' or '.'"
	case strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//"):
		return "class name has an empty package segment"
	}
	return ""
}
