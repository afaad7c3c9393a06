// Package store
package store

import (
	"context"
	"sync"

	"github.com/parlorhq/parlor/pkg/session"
)

// Driver defines the interface for persisting and retrieving session
// documents in a storage backend. Every operation on a single session id is
// serialized by the backend, so concurrent callers never interleave partial
// reads and writes of one document.
type Driver interface {
	// Create ensures a session exists and returns its id. An empty id asks
	// the backend to generate a fresh one. Creating an id that already
	// exists is a no-op.
	Create(ctx context.Context, id string) (string, error)

	// Load retrieves a session by id. Missing sessions are created lazily,
	// so Load never returns ErrNotFound. A stored document that cannot be
	// decoded surfaces as CorruptError.
	Load(ctx context.Context, id string) (*session.Session, error)

	// Save persists a session document, replacing any previous version.
	Save(ctx context.Context, sess *session.Session) error

	// Update applies fn to the current document and persists the result,
	// all under the session's lock. fn returning an error aborts the write.
	Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error)

	// Reset replaces the session with a fresh empty document.
	Reset(ctx context.Context, id string) (*session.Session, error)

	// Delete removes a session. Returns true if a session was deleted,
	// false if none existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns all known session ids in sorted order.
	List(ctx context.Context) ([]string, error)

	// Close closes the store and releases any resources.
	Close() error
}

// LockTable hands out one mutex per session id so backends can serialize
// operations on a single document. Mutexes are created lazily and never
// reclaimed; session counts are small enough that this does not matter.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		locks: make(map[string]*sync.Mutex),
	}
}

// Get returns the mutex for id, creating it on first use.
func (t *LockTable) Get(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[id] = lock
	}
	return lock
}
