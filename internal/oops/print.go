package oops

import (
	"fmt"
	"io"
	"strings"
)

// PrintOn writes a multi-line description of k.
func (u *Universe) PrintOn(w io.Writer, k *Klass) {
	switch k.kind {
	case KindObjArray:
		fmt.Fprintf(w, "ObjArrayKlass: %s\n", k.name)
	case KindTypeArray:
		fmt.Fprintf(w, "TypeArrayKlass: %s\n", k.name)
	case KindFlatArray:
		fmt.Fprintf(w, "FlatArrayKlass: %s\n", k.name)
	default:
		fmt.Fprintf(w, "InstanceKlass: %s\n", k.name)
	}
	fmt.Fprintf(w, " - loader: %s\n", k.loader.name)
	fmt.Fprintf(w, " - module: %s\n", k.Module())
	fmt.Fprintf(w, " - modifiers: 0x%04x\n", uint16(k.ModifierFlags()))
	if k.super != nil {
		fmt.Fprintf(w, " - super: %s\n", k.super.ExternalName())
	}
	names := make([]string, len(k.secondary))
	for i, s := range k.secondary {
		names[i] = s.ExternalName()
	}
	fmt.Fprintf(w, " - secondary supers: [%s]\n", strings.Join(names, ", "))
	if k.IsArray() {
		fmt.Fprintf(w, " - dimension: %d\n", k.dimension)
		fmt.Fprintf(w, " - layout helper: %s\n", k.layout)
	}
	if k.kind == KindObjArray {
		fmt.Fprintf(w, " - element klass: %s\n", k.element.ExternalName())
		fmt.Fprintf(w, " - bottom klass: %s\n", k.bottom.ExternalName())
		fmt.Fprintf(w, " - null-free: %t\n", k.nullFree)
	}
}

// PrintValueOn writes the short form of k: the element's short form
// followed by "[]" for reference arrays, the external name otherwise.
func (u *Universe) PrintValueOn(w io.Writer, k *Klass) {
	if k.kind == KindObjArray {
		u.PrintValueOn(w, k.element)
		io.WriteString(w, "[]")
		return
	}
	if k.kind == KindTypeArray {
		fmt.Fprintf(w, "%s[]", k.basicType.Name())
		return
	}
	io.WriteString(w, k.ExternalName())
}

// OopPrintOn writes a header line, the length and up to
// MaxElementPrintSize elements of a.
func (u *Universe) OopPrintOn(w io.Writer, a *ObjArray) {
	u.OopPrintValueOn(w, a)
	io.WriteString(w, "\n")
	fmt.Fprintf(w, " - klass: %s\n", a.klass.ExternalName())
	fmt.Fprintf(w, " - length: %d\n", a.Length())

	n := a.Length()
	if n > u.maxElementPrintSize {
		n = u.maxElementPrintSize
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, " - %3d : ", i)
		u.printOopValue(w, a.ObjAt(i))
		io.WriteString(w, "\n")
	}
	if rest := a.Length() - n; rest > 0 {
		fmt.Fprintf(w, " - <%d more elements, increase MaxElementPrintSize to print>\n", rest)
	}
}

// OopPrintValueOn writes the one-line form of a.
func (u *Universe) OopPrintValueOn(w io.Writer, a *ObjArray) {
	io.WriteString(w, "a ")
	u.PrintValueOn(w, a.klass.element)
	fmt.Fprintf(w, "[%d] {0x%08x}", a.Length(), a.handle)
}

func (u *Universe) printOopValue(w io.Writer, o Oop) {
	switch v := o.(type) {
	case nil:
		io.WriteString(w, "null")
	case *ObjArray:
		u.OopPrintValueOn(w, v)
	default:
		fmt.Fprintf(w, "a %s {0x%08x}", o.Klass().ExternalName(), o.Handle())
	}
}
