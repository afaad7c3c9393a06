package auth

import "errors"

// ErrWeakPassword is returned when a password fails the minimum length
// check.
var ErrWeakPassword = errors.New("password must be at least 8 characters")

// ErrBadCredentials is returned on any login failure. Callers get one
// error whether the email or the password was wrong.
var ErrBadCredentials = errors.New("invalid email or password")

// UserExistsError is returned when creating a user whose email is taken.
type UserExistsError struct {
	Email string
}

func (e UserExistsError) Error() string {
	return "user already exists: " + e.Email
}

// UserNotFoundError is returned when a user id has no record.
type UserNotFoundError struct {
	ID string
}

func (e UserNotFoundError) Error() string {
	return "user not found: " + e.ID
}

// InvalidDepartmentError is returned when a department is not in the
// allowlist.
type InvalidDepartmentError struct {
	Department string
}

func (e InvalidDepartmentError) Error() string {
	return "invalid department: " + e.Department
}
