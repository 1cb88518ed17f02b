package errors

// ConflictError signals that a pristine store was asked to save over a file
// that already exists on disk — a storage medium that was absent at start
// and later appeared with pre-existing data. The call site is expected to
// load the existing file (which merges into the live store) and retry.
type ConflictError struct {
	*baseError
	path      string
	timestamp uint32
}

// NewConflictError creates a Conflict-class error for path at timestamp.
func NewConflictError(path string, timestamp uint32) *ConflictError {
	return &ConflictError{
		baseError: NewBaseError(nil, ErrorCodeConflict, "destination file already exists: "+path),
		path:      path,
		timestamp: timestamp,
	}
}

// Path returns the file path that already existed.
func (e *ConflictError) Path() string { return e.path }

// Timestamp returns the period stamp involved in the conflict.
func (e *ConflictError) Timestamp() uint32 { return e.timestamp }
