package errors

// MissingError is a control-signal error: a file wasn't found, or an index
// lookup came up empty. update, list, and the load existence-probe all use
// it to decide whether to skip an event, stop a walk, or report absence.
type MissingError struct {
	*baseError
	key  string
	path string
}

// NewMissingError creates a Missing-class error.
func NewMissingError(msg string) *MissingError {
	return &MissingError{baseError: NewBaseError(nil, ErrorCodeMissing, msg)}
}

// WithKey records the identity key that was not found.
func (e *MissingError) WithKey(key string) *MissingError {
	e.key = key
	return e
}

// WithPath records the file path that was not found.
func (e *MissingError) WithPath(path string) *MissingError {
	e.path = path
	return e
}

// Key returns the identity key that was not found, if any.
func (e *MissingError) Key() string { return e.key }

// Path returns the file path that was not found, if any.
func (e *MissingError) Path() string { return e.path }
