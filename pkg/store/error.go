package store

// NotFoundError is returned when a session doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "session not found"
	}

	return "session not found: " + e.ID
}

// CorruptError is returned when a stored session document cannot be
// decoded. The store refuses to silently reinitialize a damaged record;
// the operator decides whether to delete or repair it.
type CorruptError struct {
	ID  string
	Err error
}

func (e CorruptError) Error() string {
	return "corrupt session record: " + e.ID + ": " + e.Err.Error()
}

func (e CorruptError) Unwrap() error {
	return e.Err
}

// InvalidIDError is returned when a session id is unusable as a storage
// key, for example because it contains path separators.
type InvalidIDError struct {
	ID string
}

func (e InvalidIDError) Error() string {
	return "invalid session id: " + e.ID
}
