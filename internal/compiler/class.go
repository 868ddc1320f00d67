package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/oakvm/internal/ir"
)

// classFields are the fields a class declaration may carry.
var classFields = map[string]bool{
	"super":       true,
	"interfaces":  true,
	"kind":        true,
	"flattenable": true,
	"access":      true,
	"module":      true,
}

// CompileHierarchy compiles every entry of the top-level "class" struct
// into a hierarchy in definition order:
//
//	class: "app/Base": {
//		interfaces: ["app/Marker"]
//	}
//	class: "app/Marker": kind: "interface"
//
// Omitted fields default to kind "class", access "public", super
// java/lang/Object and flattenable false.
func CompileHierarchy(v cue.Value) (*ir.Hierarchy, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	classesVal := v.LookupPath(cue.ParsePath("class"))
	if !classesVal.Exists() {
		return nil, &CompileError{
			Field:   "class",
			Message: "no class declarations found",
			Pos:     v.Pos(),
		}
	}

	iter, err := classesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.ClassDecl
	positions := make(map[string]token.Pos)
	for iter.Next() {
		decl, err := CompileClass(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, *decl)
		positions[decl.Name] = iter.Value().Pos()
	}

	if errs := validate(decls, positions); len(errs) > 0 {
		return nil, errs
	}

	if cycles := FindCycles(decls); len(cycles) > 0 {
		c := cycles[0]
		return nil, &CycleError{Path: c, Pos: positions[c[0]]}
	}

	return &ir.Hierarchy{Classes: topoOrder(decls)}, nil
}

// CompileClass compiles one class body. The name is the struct label the
// body was found under.
func CompileClass(name string, v cue.Value) (*ir.ClassDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   "class",
			Message: fmt.Sprintf("class %q must be a struct", name),
			Pos:     v.Pos(),
		}
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		if !classFields[iter.Label()] {
			return nil, &CompileError{
				Field:   iter.Label(),
				Message: fmt.Sprintf("unknown field in class %q", name),
				Pos:     iter.Value().Pos(),
			}
		}
	}

	decl := &ir.ClassDecl{
		Name:   name,
		Kind:   ir.KindClass,
		Access: ir.AccessPublic,
	}

	if s, ok, err := optionalString(v, "kind"); err != nil {
		return nil, err
	} else if ok {
		decl.Kind = ir.ClassKind(s)
	}

	if s, ok, err := optionalString(v, "access"); err != nil {
		return nil, err
	} else if ok {
		decl.Access = ir.Access(s)
	}

	if s, ok, err := optionalString(v, "super"); err != nil {
		return nil, err
	} else if ok {
		decl.Super = s
	} else if name != ir.ObjectClass {
		decl.Super = ir.ObjectClass
	}

	if s, ok, err := optionalString(v, "module"); err != nil {
		return nil, err
	} else if ok {
		decl.Module = s
	}

	flatVal := v.LookupPath(cue.ParsePath("flattenable"))
	if flatVal.Exists() {
		b, err := flatVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		decl.Flattenable = b
	}

	ifacesVal := v.LookupPath(cue.ParsePath("interfaces"))
	if ifacesVal.Exists() {
		list, err := ifacesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			decl.Interfaces = append(decl.Interfaces, s)
		}
	}

	return decl, nil
}

func optionalString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
