// Package harness runs YAML conformance scenarios against a fresh runtime.
//
// A scenario names CUE class specs, a list of steps and a list of
// assertions. Each run gets its own heap, universe and in-memory journal:
//
//	name: covariant_copy
//	description: copying Round[] into Circle[] stops at the first Round
//	specs: [../specs/shapes.cue]
//	steps:
//	  - resolve: {class: app/Circle, rank: 2}
//	  - allocate: {class: "[Lapp/Round;", length: 2, as: rounds}
//	  - allocate: {class: app/Circle, as: c1}
//	  - set: {array: rounds, index: 0, value: c1}
//	  - copy: {src: rounds, dst: circles, length: 2}
//	    expect_error: ArrayStoreException
//	assertions:
//	  - type: contents
//	    array: circles
//	    values: [c1, null]
//
// The trace records every step in order together with the classes the
// journal saw published. RunWithGolden compares its canonical JSON form
// with a golden file.
package harness
