// Package oops implements the object-array metadata subsystem of the oakvm
// runtime: klass descriptors, the array-class registry, array allocation
// and the checked bulk copy.
//
// # Registry
//
// Every klass owns two publication slots, one for the array of that klass
// and one for its null-free array. A slot is written once with a release
// store and read with an acquire load, so the read path takes no lock. The
// slow path runs under the universe's array-creation lock and never
// publishes an array klass before the array forms of all of its element's
// supertypes exist. When one is missing the lock is dropped, the missing
// forms are created, and the check restarts.
//
// # Bulk copy
//
// CopyArray validates destination kind, signs and ranges before touching
// any slot, classifies the element types once, and hands the copy to
// ReferenceCopy with the minimal set of access flags. A checkcast or
// not-null failure leaves the prefix before the failing slot copied.
//
// # Collaborators
//
// Object storage comes from a Heap (see internal/gc). Metadata storage is
// accounted against the defining Loader's Metaspace.
package oops
