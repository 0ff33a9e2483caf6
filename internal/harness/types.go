package harness

// DeviceState is one device's build record after a step.
type DeviceState struct {
	Device     string `json:"device"`
	Status     string `json:"status"`
	BinaryType string `json:"binary_type"`
}

// TraceEvent records one flow step and its observable outcome.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Op      string `json:"op"`
	Program string `json:"program,omitempty"`

	// Error is the clerr code the step failed with, if any.
	Error string `json:"error,omitempty"`

	// Devices is the program's records after the step, for steps that
	// create or build programs.
	Devices []DeviceState `json:"devices,omitempty"`

	// Statuses are the per-device import statuses.
	Statuses []string `json:"statuses,omitempty"`

	// Result is the query result.
	Result string `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step to the trace, numbering it.
func (r *Result) AddEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
