package oops

import (
	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/text/unicode/norm"
)

// SymbolTable interns class names in Unicode NFC so that names differing
// only in normalization resolve to the same klass.
type SymbolTable struct {
	symbols cmap.ConcurrentMap[string, string]
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: cmap.New[string]()}
}

// Intern returns the canonical instance of name.
func (t *SymbolTable) Intern(name string) string {
	if s, ok := t.symbols.Get(name); ok {
		return s
	}
	n := norm.NFC.String(name)
	if !t.symbols.SetIfAbsent(n, n) {
		n, _ = t.symbols.Get(n)
	}
	if name != n {
		t.symbols.SetIfAbsent(name, n)
	}
	return n
}

// Len returns the number of interned spellings.
func (t *SymbolTable) Len() int { return t.symbols.Count() }
