// Package task holds the execution record shared by the scheduler and the
// components that consume its events (metrics, execution history).
package task

import "time"

// Status of one task execution.
type Status string

const (
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Execution records one run of a scheduled task.
type Execution struct {
	Task      string        `json:"task"`
	Kind      string        `json:"kind"`
	Scheduled time.Time     `json:"scheduled"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// Finished reports whether the execution has a final status.
func (e Execution) Finished() bool { return e.Status == StatusSuccess || e.Status == StatusError }
