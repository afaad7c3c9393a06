// Package inmemory provides a map-backed session store used in tests and
// throwaway setups. Nothing survives process exit.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/parlorhq/parlor/pkg/session"
	"github.com/parlorhq/parlor/pkg/store"
)

// Driver implements store.Driver using an in-memory map.
type Driver struct {
	// mu guards the sessions map itself
	mu sync.RWMutex

	// sessions maps session id to its stored document
	sessions map[string]*session.Session

	locks *store.LockTable
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		sessions: make(map[string]*session.Session),
		locks:    store.NewLockTable(),
	}
}

// Create ensures a session exists for id, generating one when empty.
func (d *Driver) Create(_ context.Context, id string) (string, error) {
	if id == "" {
		id = session.NewID()
	}

	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		d.sessions[id] = session.New(id)
	}
	return id, nil
}

// Load retrieves the session for id, creating it lazily when missing.
func (d *Driver) Load(_ context.Context, id string) (*session.Session, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	return d.loadLocked(id), nil
}

// Save persists the session document.
func (d *Driver) Save(_ context.Context, sess *session.Session) error {
	lock := d.locks.Get(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessions[sess.ID] = sess.Clone()
	return nil
}

// Update applies fn under the session's lock and stores the result.
func (d *Driver) Update(_ context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	sess := d.loadLocked(id)
	if err := fn(sess); err != nil {
		return nil, err
	}

	sess.Touch()

	d.mu.Lock()
	d.sessions[id] = sess.Clone()
	d.mu.Unlock()

	return sess, nil
}

// Reset replaces the session with a fresh empty document.
func (d *Driver) Reset(_ context.Context, id string) (*session.Session, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	sess := session.New(id)

	d.mu.Lock()
	d.sessions[id] = sess.Clone()
	d.mu.Unlock()

	return sess, nil
}

// Delete removes a session. Returns false when none existed.
func (d *Driver) Delete(_ context.Context, id string) (bool, error) {
	lock := d.locks.Get(id)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return false, nil
	}
	delete(d.sessions, id)
	return true, nil
}

// List returns all session ids, sorted.
func (d *Driver) List(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of sessions in the store.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}

// loadLocked fetches a deep copy of the document for id, creating a fresh
// one when missing. The caller must hold the session's lock.
func (d *Driver) loadLocked(id string) *session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions[id]
	if !ok {
		sess = session.New(id)
		d.sessions[id] = sess
	}
	return sess.Clone()
}
