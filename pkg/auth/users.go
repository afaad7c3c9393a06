// Package auth holds the user repository, password hashing, and access
// token handling for the HTTP API's login layer.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Departments users may belong to.
var allowedDepartments = map[string]bool{
	"hr":         true,
	"finance":    true,
	"operations": true,
	"sales":      true,
	"it":         true,
	"global":     true,
}

// User is one record in users.json. PasswordHash never leaves the package
// through the API layer.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	Department   string    `json:"department"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Patch is a partial user update. Nil fields are left untouched.
type Patch struct {
	Email        *string
	PasswordHash *string
	Roles        *[]string
	Department   *string
	IsActive     *bool
}

// usersFile is the on-disk payload shape.
type usersFile struct {
	Version int    `json:"version"`
	Users   []User `json:"users"`
}

// Repo is a file-backed user repository. All operations serialize on one
// mutex and every write replaces users.json atomically.
type Repo struct {
	path string
	mu   sync.Mutex
}

// NewRepo opens (or initializes) the user repository at path, creating the
// parent directory and an empty users.json when missing.
func NewRepo(path string) (*Repo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating auth directory: %w", err)
	}

	r := &Repo{path: path}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.loadLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

// NormalizeEmail lowercases and trims an email for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// List returns all users sorted by email.
func (r *Repo) List() ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	users := append([]User{}, payload.Users...)
	sort.Slice(users, func(i, j int) bool {
		return NormalizeEmail(users[i].Email) < NormalizeEmail(users[j].Email)
	})
	return users, nil
}

// GetByEmail looks a user up by normalized email.
func (r *Repo) GetByEmail(email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	target := NormalizeEmail(email)
	for i := range payload.Users {
		if NormalizeEmail(payload.Users[i].Email) == target {
			user := payload.Users[i]
			return &user, nil
		}
	}
	return nil, UserNotFoundError{ID: target}
}

// GetByID looks a user up by id.
func (r *Repo) GetByID(id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	for i := range payload.Users {
		if payload.Users[i].ID == id {
			user := payload.Users[i]
			return &user, nil
		}
	}
	return nil, UserNotFoundError{ID: id}
}

// Create adds a user. The email must be unused and the department must be
// in the allowlist. The password hash comes precomputed from HashPassword.
func (r *Repo) Create(email, passwordHash string, roles []string, department string) (*User, error) {
	if !allowedDepartments[department] {
		return nil, InvalidDepartmentError{Department: department}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	for i := range payload.Users {
		if NormalizeEmail(payload.Users[i].Email) == email {
			return nil, UserExistsError{Email: email}
		}
	}

	now := time.Now().UTC()
	user := User{
		ID:           strings.ReplaceAll(uuid.NewString(), "-", ""),
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		Department:   department,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}

	payload.Users = append(payload.Users, user)
	if err := r.saveLocked(payload); err != nil {
		return nil, err
	}
	return &user, nil
}

// Update applies a patch to a user. Only the fields carried by the patch
// change.
func (r *Repo) Update(id string, patch Patch) (*User, error) {
	if patch.Department != nil && !allowedDepartments[*patch.Department] {
		return nil, InvalidDepartmentError{Department: *patch.Department}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	for i := range payload.Users {
		if payload.Users[i].ID != id {
			continue
		}

		user := &payload.Users[i]
		if patch.Email != nil {
			user.Email = NormalizeEmail(*patch.Email)
		}
		if patch.PasswordHash != nil {
			user.PasswordHash = *patch.PasswordHash
		}
		if patch.Roles != nil {
			user.Roles = append([]string{}, (*patch.Roles)...)
		}
		if patch.Department != nil {
			user.Department = *patch.Department
		}
		if patch.IsActive != nil {
			user.IsActive = *patch.IsActive
		}
		user.UpdatedAt = time.Now().UTC()

		if err := r.saveLocked(payload); err != nil {
			return nil, err
		}
		out := *user
		return &out, nil
	}

	return nil, UserNotFoundError{ID: id}
}

// Delete removes a user by id.
func (r *Repo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i := range payload.Users {
		if payload.Users[i].ID == id {
			payload.Users = append(payload.Users[:i], payload.Users[i+1:]...)
			return r.saveLocked(payload)
		}
	}
	return UserNotFoundError{ID: id}
}

// Authenticate verifies an email/password pair against an active user.
// Every failure path returns ErrBadCredentials.
func (r *Repo) Authenticate(email, password string) (*User, error) {
	user, err := r.GetByEmail(email)
	if err != nil {
		return nil, ErrBadCredentials
	}
	if !user.IsActive {
		return nil, ErrBadCredentials
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return user, nil
}

// loadLocked reads users.json, initializing it when missing or empty. The
// caller must hold r.mu.
func (r *Repo) loadLocked() (*usersFile, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) || (err == nil && len(strings.TrimSpace(string(data))) == 0) {
		payload := &usersFile{Version: 1, Users: []User{}}
		if err := r.saveLocked(payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.path, err)
	}

	var payload usersFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", r.path, err)
	}
	if payload.Users == nil {
		payload.Users = []User{}
	}
	return &payload, nil
}

// saveLocked writes users.json atomically. The caller must hold r.mu.
func (r *Repo) saveLocked(payload *usersFile) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding users: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing users: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing users file: %w", err)
	}
	return nil
}
