// Package ir provides the declaration types shared by the class hierarchy
// compiler, the runtime and the conformance harness.
//
// This package contains plain data only. All other internal packages may
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Class names use the internal slash form ("java/lang/Object")
//   - All JSON tags use snake_case
//   - Canonical JSON (MarshalCanonical) is the only serialization used for
//     hashing and golden comparison
package ir
