package queue

import (
	"errors"
	"strings"
	"time"

	logx "firemon/pkg/logx"
)

// Config selects and configures the queue backend.
//
// Driver values:
//   - "dir" (default): one file per item in Dir
//   - "sqlite": a SQLite database at Path
type Config struct {
	Driver      string
	Dir         string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured queue backend.
func Open(cfg Config, log logx.Logger) (Queue, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "dir", "file":
		return openDir(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown queue driver: " + driver)
	}
}
