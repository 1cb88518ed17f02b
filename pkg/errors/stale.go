package errors

// StaleError signals that archive rolled the store to a new period during
// the current operation. The refresh timer uses this as a control signal to
// skip its own update-only re-dump for the tick that triggered the rollover,
// since the rollover already kicked off a full re-dump.
type StaleError struct {
	*baseError
	oldStamp uint32
	newStamp uint32
}

// NewStaleError creates a Stale-class error describing the rollover from
// oldStamp to newStamp.
func NewStaleError(oldStamp, newStamp uint32) *StaleError {
	return &StaleError{
		baseError: NewBaseError(nil, ErrorCodeStale, "period rolled over"),
		oldStamp:  oldStamp,
		newStamp:  newStamp,
	}
}

// OldStamp returns the stamp the store was archived under.
func (e *StaleError) OldStamp() uint32 { return e.oldStamp }

// NewStamp returns the stamp the store now accumulates under.
func (e *StaleError) NewStamp() uint32 { return e.newStamp }
