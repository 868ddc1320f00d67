// Package journal persists class publications and attach operations.
//
// A Journal is registered as an oops.ClassObserver and as an attach.Recorder.
// Both callbacks only enqueue; a single goroutine running Run stamps each
// event with the next value of a logical Clock and writes it to the store.
// Publication order in the store therefore equals notification order.
package journal
