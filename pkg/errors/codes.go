package errors

// ErrorCode represents a standardized way to categorize different types of
// errors, mirroring the error categories the accounting engine propagates
// out of its core: ResourceExhausted, Invalid, Missing, Conflict, Stale, IO.
type ErrorCode string

const (
	// ErrorCodeResourceExhausted covers allocation failures and the
	// deferred-task queue reaching its cap. Local fallbacks exist for both
	// (circular overwrite, immediate zero-MAC insert); callers that have no
	// fallback surface this code.
	ErrorCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"

	// ErrorCodeInvalid covers corrupt headers, magic mismatches, a zero
	// interval descriptor type, and malformed CLI input. Never retried.
	ErrorCodeInvalid ErrorCode = "INVALID"

	// ErrorCodeMissing is a control signal: file not found, index lookup
	// miss. Used by update, list, and load-probe call sites to decide
	// whether to skip, merge, or stop.
	ErrorCodeMissing ErrorCode = "MISSING"

	// ErrorCodeConflict signals a pristine store being saved over an
	// existing file; the caller is expected to load-then-save to merge.
	ErrorCodeConflict ErrorCode = "CONFLICT"

	// ErrorCodeStale signals that archive rolled the period; the refresh
	// timer uses it to skip its own update-only re-dump for this tick.
	ErrorCodeStale ErrorCode = "STALE"

	// ErrorCodeIO covers transport errors on sockets, netlink, and disk.
	ErrorCodeIO ErrorCode = "IO"
)
