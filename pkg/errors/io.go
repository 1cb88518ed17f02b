package errors

// IOError covers transport failures on sockets, netlink, and disk. It keeps
// the teacher's StorageError habit of carrying path/offset/file context so
// logging and recovery code can pinpoint exactly where the failure occurred.
type IOError struct {
	*baseError
	path     string
	fileName string
	offset   int64
}

// NewIOError creates an IO-class error.
func NewIOError(err error, msg string) *IOError {
	return &IOError{baseError: NewBaseError(err, ErrorCodeIO, msg)}
}

// WithPath records which path was being accessed.
func (e *IOError) WithPath(path string) *IOError {
	e.path = path
	return e
}

// WithFileName records which file was being accessed.
func (e *IOError) WithFileName(name string) *IOError {
	e.fileName = name
	return e
}

// WithOffset records the byte offset involved in the failure.
func (e *IOError) WithOffset(offset int64) *IOError {
	e.offset = offset
	return e
}

// WithDetail adds contextual information while preserving the concrete type.
func (e *IOError) WithDetail(key string, value any) *IOError {
	e.baseError.WithDetail(key, value)
	return e
}

// Path returns the path that was being accessed.
func (e *IOError) Path() string { return e.path }

// FileName returns the file name that was being accessed.
func (e *IOError) FileName() string { return e.fileName }

// Offset returns the byte offset involved in the failure.
func (e *IOError) Offset() int64 { return e.offset }
