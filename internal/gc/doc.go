// Package gc provides the heap collaborator of the oops package: byte
// capacity accounting and the handle table that encodes narrow references.
//
// Objects are never moved or reclaimed; a handle stays valid for the life
// of the heap.
package gc
