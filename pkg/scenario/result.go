package scenario

import (
	"time"
)

// Status is the outcome of a run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// StepResult records one step.
type StepResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the complete record of a run.
type Result struct {
	RunID        string        `json:"run_id"`
	Scenario     string        `json:"scenario"`
	Status       Status        `json:"status"`
	Steps        []StepResult  `json:"steps"`
	Handles      []string      `json:"handles,omitempty"`
	FinalURL     string        `json:"final_url,omitempty"`
	Error        string        `json:"error,omitempty"`
	ReleaseError string        `json:"release_error,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`

	err error
}

// Passed reports whether every step and the release succeeded.
func (r *Result) Passed() bool {
	return r.Status == StatusPassed
}

// Err returns the first failure, wrapped with its step name, or nil.
func (r *Result) Err() error {
	return r.err
}

func (r *Result) record(name string, started time.Time, err error) {
	step := StepResult{
		Name:     name,
		Passed:   err == nil,
		Duration: time.Since(started),
	}
	if err != nil {
		step.Error = err.Error()
	}
	r.Steps = append(r.Steps, step)
}

func (r *Result) fail(err error) {
	r.err = err
	r.Error = err.Error()
	r.Status = StatusFailed
}
