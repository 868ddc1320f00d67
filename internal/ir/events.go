package ir

// ClassEvent records the publication of one klass descriptor.
// Seq is assigned by the journal clock, never by wall time.
type ClassEvent struct {
	Seq       int64  `json:"seq"`
	KlassID   uint64 `json:"klass_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Loader    string `json:"loader"`
	LoaderID  string `json:"loader_id"`
	Super     string `json:"super,omitempty"`
	Dimension int    `json:"dimension"`
	NullFree  bool   `json:"null_free"`
	Layout    int32  `json:"layout"`
}

// AttachRecord records one completed attach operation.
type AttachRecord struct {
	ID             string   `json:"id"`
	Seq            int64    `json:"seq"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	Pipe           string   `json:"pipe"`
	Code           int      `json:"code"`
	OutputBytes    int      `json:"output_bytes"`
	DurationMicros int64    `json:"duration_micros"`
}
