// Package scheduler runs registered tasks on their triggers.
//
// The scheduler is process-scoped: the app builds one at start and stops it
// at shutdown. Each task runs in its own supervised goroutine that waits on
// the injected clock, runs the job synchronously (so a task never overlaps
// itself), records the execution and computes the next fire time.
//
// Executions are published on the event bus as task.started, task.finished
// and task.failed with a task.Execution payload.
package scheduler
