package storage

import (
	"errors"
	"fmt"
	"strings"

	logx "taskbeat/pkg/logx"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Open opens the execution history store for cfg.Driver ("file", "sqlite").
// An empty driver or "none" disables history: Open returns (nil, nil).
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		st  Store
		err error
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		st, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}
