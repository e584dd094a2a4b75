package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteRepo is the durable task.Repository. AUTOINCREMENT row ids give the
// same guarantee as the memory repo's counter: monotonic, never reused, and
// ascending in insertion order (so List can ORDER BY id).
type sqliteRepo struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (task.Repository, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	r := &sqliteRepo{db: db, log: log}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *sqliteRepo) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, string(b))
	return err
}

func (r *sqliteRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const taskColumns = `id, title, description, status, priority, tags, created_at,
	due_at, completed_at, recurrence, reminder_offset_ns, reminder_fired,
	superseded, predecessor_id`

func (r *sqliteRepo) Create(ctx context.Context, t task.Task) (task.Task, error) {
	t, err := task.PrepareNew(t, time.Now())
	if err != nil {
		return task.Task{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks(title, description, status, priority, tags, created_at,
		 due_at, completed_at, recurrence, reminder_offset_ns, reminder_fired,
		 superseded, predecessor_id)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, t.Description, string(t.Status), string(t.Priority), tagsJSON(t.Tags),
		fmtTime(t.CreatedAt), fmtTimePtr(t.DueAt), fmtTimePtr(t.CompletedAt),
		string(t.Recurrence), offsetArg(t.ReminderOffset), t.ReminderFired,
		t.Superseded, t.PredecessorID,
	)
	if err != nil {
		return task.Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return task.Task{}, err
	}
	t.ID = id
	return t, nil
}

func (r *sqliteRepo) Get(ctx context.Context, id int64) (task.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("%w: id %d", task.ErrNotFound, id)
	}
	return t, err
}

func (r *sqliteRepo) Put(ctx context.Context, t task.Task) (task.Task, error) {
	t.Tags = task.NormalizeTags(t.Tags)
	if err := t.Validate(); err != nil {
		return task.Task{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET title=?, description=?, status=?, priority=?, tags=?,
		 due_at=?, completed_at=?, recurrence=?, reminder_offset_ns=?,
		 reminder_fired=?, superseded=?, predecessor_id=?
		 WHERE id=?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), tagsJSON(t.Tags),
		fmtTimePtr(t.DueAt), fmtTimePtr(t.CompletedAt), string(t.Recurrence),
		offsetArg(t.ReminderOffset), t.ReminderFired, t.Superseded, t.PredecessorID,
		t.ID,
	)
	if err != nil {
		return task.Task{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return task.Task{}, err
	}
	if n == 0 {
		return task.Task{}, fmt.Errorf("%w: id %d", task.ErrNotFound, t.ID)
	}
	return t, nil
}

func (r *sqliteRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", task.ErrNotFound, id)
	}
	return nil
}

func (r *sqliteRepo) List(ctx context.Context) ([]task.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]task.Task, 0, 16)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) MarkReminderFired(ctx context.Context, id int64, due time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET reminder_fired=1
		 WHERE id=? AND reminder_fired=0 AND superseded=0 AND status<>? AND due_at=?`,
		id, string(task.StatusComplete), fmtTime(due),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// Distinguish "lost the claim" from "task is gone".
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: id %d", task.ErrNotFound, id)
	}
	return false, err
}

// ---- row mapping ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (task.Task, error) {
	var (
		t          task.Task
		status     string
		priority   string
		tags       string
		createdAt  string
		dueAt      sql.NullString
		doneAt     sql.NullString
		recurrence string
		offsetNS   sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &tags,
		&createdAt, &dueAt, &doneAt, &recurrence, &offsetNS,
		&t.ReminderFired, &t.Superseded, &t.PredecessorID)
	if err != nil {
		return task.Task{}, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.Recurrence = task.Recurrence(recurrence)

	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return task.Task{}, fmt.Errorf("tags column: %w", err)
		}
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return task.Task{}, fmt.Errorf("created_at column: %w", err)
	}
	if t.DueAt, err = parseTimePtr(dueAt); err != nil {
		return task.Task{}, fmt.Errorf("due_at column: %w", err)
	}
	if t.CompletedAt, err = parseTimePtr(doneAt); err != nil {
		return task.Task{}, fmt.Errorf("completed_at column: %w", err)
	}
	if offsetNS.Valid {
		off := time.Duration(offsetNS.Int64)
		t.ReminderOffset = &off
	}
	return t, nil
}

// Timestamps are stored as RFC3339Nano strings; the format keeps the zone
// offset, so time-of-day and timezone survive the roundtrip (the recurrence
// calculator depends on that).
func fmtTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func tagsJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func offsetArg(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return int64(*d)
}
