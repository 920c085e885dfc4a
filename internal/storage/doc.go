// Package storage persists task execution history.
//
// Drivers:
//   - "file": append-only JSON Lines file (<prefix>.executions.jsonl)
//   - "sqlite": SQLite database via modernc.org/sqlite (pure Go, no cgo)
//
// The Recorder subscribes to scheduler events and appends finished executions.
// At startup the app seeds the scheduler's last-execution state from the store.
package storage
