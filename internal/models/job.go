package models

// Job states
const (
	JobStateQueued  = "queued"
	JobStateRunning = "running"
	JobStateDone    = "done"
	JobStateError   = "error"
	JobStateUnknown = "unknown"
)

// IsTerminal reports whether a state admits no further transitions.
func IsTerminal(state string) bool {
	return state == JobStateDone || state == JobStateError
}

// JobView is a read-only snapshot of a job's registry entry.
type JobView struct {
	ID       string `json:"job_id,omitempty"`
	State    string `json:"state"`
	Message  string `json:"msg"`
	Filename string `json:"filename,omitempty"`
}
