package storage

import "time"

// Config selects the task repository backend.
//
// Driver values:
//   - "memory" (or empty): in-memory repository, state lost on restart
//   - "sqlite", "sqlite3": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
