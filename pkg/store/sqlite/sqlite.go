// Package sqlite provides a SQLite-backed session store using the
// github.com/mattn/go-sqlite3 driver. Each session document is stored as
// one JSON blob keyed by session id.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parlorhq/parlor/pkg/session"
	"github.com/parlorhq/parlor/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// Driver implements store.Driver on top of a SQLite database.
type Driver struct {
	db    *sql.DB
	locks *store.LockTable
}

// NewDriver creates a SQLite-backed store. The dbPath can be a file path
// or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite-specific pragmas
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{
		db:    db,
		locks: store.NewLockTable(),
	}, nil
}

// Create ensures a session row exists for id, generating one when empty.
func (d *Driver) Create(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = session.NewID()
	}

	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := d.loadLocked(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// Load retrieves the session for id, creating it lazily when missing.
func (d *Driver) Load(ctx context.Context, id string) (*session.Session, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	return d.loadLocked(ctx, id)
}

// Save persists the session document.
func (d *Driver) Save(ctx context.Context, sess *session.Session) error {
	lock := d.locks.Get(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	return d.saveLocked(ctx, sess)
}

// Update applies fn under the session's lock and persists the result.
func (d *Driver) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := d.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(sess); err != nil {
		return nil, err
	}

	sess.Touch()
	if err := d.saveLocked(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reset replaces the session with a fresh empty document.
func (d *Driver) Reset(ctx context.Context, id string) (*session.Session, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	sess := session.New(id)
	if err := d.saveLocked(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session row. Returns false when none existed.
func (d *Driver) Delete(ctx context.Context, id string) (bool, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	res, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting session %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting session %s: %w", id, err)
	}
	return n > 0, nil
}

// List returns all session ids, sorted.
func (d *Driver) List(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

// loadLocked reads and decodes the session row, creating a fresh document
// when none exists. The caller must hold the session's lock.
func (d *Driver) loadLocked(ctx context.Context, id string) (*session.Session, error) {
	var doc string
	err := d.db.QueryRowContext(ctx, "SELECT doc FROM sessions WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		sess := session.New(id)
		if err := d.saveLocked(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, store.CorruptError{ID: id, Err: err}
	}

	sess.ID = id
	sess.Normalize()
	return &sess, nil
}

// saveLocked upserts the session row. The caller must hold the session's
// lock.
func (d *Driver) saveLocked(ctx context.Context, sess *session.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO sessions (id, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		sess.ID, string(doc), sess.CreatedAt.UTC().Format(time.RFC3339Nano), sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	return nil
}
