// Package storage opens the configured task.Repository backend.
//
// The in-memory repository is the default; the sqlite backend provides a
// durable store behind the same contract, so the rest of the daemon cannot
// tell them apart.
package storage

import (
	"errors"
	"strings"

	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

func Open(cfg Config, log logx.Logger) (task.Repository, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return task.NewMemoryRepo(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
