// Package file provides a JSON-file-backed session store. Each session
// lives in its own session_<id>.json document under a single directory,
// written atomically via a temp file and rename.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/parlorhq/parlor/pkg/session"
	"github.com/parlorhq/parlor/pkg/store"
)

const (
	filePrefix = "session_"
	fileSuffix = ".json"
)

// idRe constrains ids to characters that are safe as a filename component.
var idRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Driver implements store.Driver on top of a directory of JSON files.
type Driver struct {
	dir   string
	locks *store.LockTable
}

// NewDriver creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewDriver(dir string) (*Driver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	return &Driver{
		dir:   dir,
		locks: store.NewLockTable(),
	}, nil
}

// Create ensures a session document exists for id, generating a fresh id
// when none is given.
func (d *Driver) Create(_ context.Context, id string) (string, error) {
	if id == "" {
		id = session.NewID()
	}
	if !idRe.MatchString(id) {
		return "", store.InvalidIDError{ID: id}
	}

	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(d.path(id)); err == nil {
		return id, nil
	}

	if err := d.writeLocked(session.New(id)); err != nil {
		return "", err
	}
	return id, nil
}

// Load retrieves the session for id, creating it lazily when missing.
func (d *Driver) Load(_ context.Context, id string) (*session.Session, error) {
	if !idRe.MatchString(id) {
		return nil, store.InvalidIDError{ID: id}
	}

	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	return d.loadLocked(id)
}

// Save persists the session document.
func (d *Driver) Save(_ context.Context, sess *session.Session) error {
	if !idRe.MatchString(sess.ID) {
		return store.InvalidIDError{ID: sess.ID}
	}

	lock := d.locks.Get(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	return d.writeLocked(sess)
}

// Update applies fn to the current document and persists the result while
// holding the session's lock for the whole read-modify-write cycle.
func (d *Driver) Update(_ context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	if !idRe.MatchString(id) {
		return nil, store.InvalidIDError{ID: id}
	}

	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := d.loadLocked(id)
	if err != nil {
		return nil, err
	}

	if err := fn(sess); err != nil {
		return nil, err
	}

	sess.Touch()
	if err := d.writeLocked(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reset replaces the session with a fresh empty document.
func (d *Driver) Reset(_ context.Context, id string) (*session.Session, error) {
	if !idRe.MatchString(id) {
		return nil, store.InvalidIDError{ID: id}
	}

	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	sess := session.New(id)
	if err := d.writeLocked(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session file. Returns false when none existed.
func (d *Driver) Delete(_ context.Context, id string) (bool, error) {
	if !idRe.MatchString(id) {
		return false, store.InvalidIDError{ID: id}
	}

	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(d.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting session %s: %w", id, err)
	}
	return true, nil
}

// List returns all session ids found in the directory, sorted.
func (d *Driver) List(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		name := filepath.Base(match)
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if idRe.MatchString(id) {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the file store.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) path(id string) string {
	return filepath.Join(d.dir, filePrefix+id+fileSuffix)
}

// loadLocked reads and decodes the session file. The caller must hold the
// session's lock.
func (d *Driver) loadLocked(id string) (*session.Session, error) {
	data, err := os.ReadFile(d.path(id))
	if os.IsNotExist(err) {
		sess := session.New(id)
		if err := d.writeLocked(sess); err != nil {
			return nil, err
		}
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, store.CorruptError{ID: id, Err: err}
	}

	sess.ID = id
	sess.Normalize()
	return &sess, nil
}

// writeLocked writes the document atomically: encode to a temp file in the
// same directory, fsync, then rename over the target. The caller must hold
// the session's lock.
func (d *Driver) writeLocked(sess *session.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(d.dir, filePrefix+sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("syncing session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), d.path(sess.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing session %s: %w", sess.ID, err)
	}
	return nil
}
