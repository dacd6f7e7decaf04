package queue

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
	_ "modernc.org/sqlite"

	logx "firemon/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteQueue keeps pending items in one database file. Item names carry the
// same priority-key prefix as the dir backend, so ordering by name yields the
// same publish order.
type sqliteQueue struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Queue, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("queue.path is required for the sqlite driver")
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
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	q := &sqliteQueue{db: db, log: log}
	if err := q.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

func (q *sqliteQueue) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, string(b))
	return err
}

func (q *sqliteQueue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

func (q *sqliteQueue) Enqueue(ctx context.Context, it Item) error {
	b, err := yaml.Marshal(it)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	created := it.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO pending(name, payload, created_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO UPDATE SET payload=excluded.payload`,
		it.Name(), string(b), created.Format(time.RFC3339Nano),
	)
	return err
}

func (q *sqliteQueue) List(ctx context.Context) ([]Ref, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name FROM pending ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		refs = append(refs, Ref{Name: name})
	}
	return refs, rows.Err()
}

func (q *sqliteQueue) Load(ctx context.Context, ref Ref) (Item, error) {
	var payload string
	err := q.db.QueryRowContext(ctx, `SELECT payload FROM pending WHERE name = ?`, ref.Name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	var it Item
	if err := yaml.Unmarshal([]byte(payload), &it); err != nil {
		return Item{}, fmt.Errorf("decode queue item %s: %w", ref.Name, err)
	}
	return it, nil
}

func (q *sqliteQueue) Remove(ctx context.Context, ref Ref) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM pending WHERE name = ?`, ref.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *sqliteQueue) Deadletter(ctx context.Context, ref Ref) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO deadletter(name, payload, created_at, deadlettered_at)
		 SELECT name, payload, created_at, ? FROM pending WHERE name = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), ref.Name,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending WHERE name = ?`, ref.Name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	q.log.Warn("queue item deadlettered", logx.String("item", ref.Name))
	return nil
}
