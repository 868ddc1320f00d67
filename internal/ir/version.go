package ir

// Version constants for declaration schema and runtime.
const (
	// IRVersion is the declaration schema version.
	IRVersion = "1"

	// RuntimeVersion is the oakvm runtime version reported by diagnostics.
	RuntimeVersion = "0.1.0"
)
