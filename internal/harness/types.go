package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Op     string `json:"op"`              // resolve, allocate, set, copy
	Class  string `json:"class,omitempty"` // klass resolved or allocated
	Name   string `json:"name,omitempty"`  // object bound by allocate
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"` // error kind, when the step failed
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Classes lists the classes published during the run, in journal order.
	Classes []string `json:"classes"`

	// Errors contains step mismatches and failed assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Classes: []string{},
		Errors:  []string{},
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
