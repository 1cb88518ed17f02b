package errors

// ResourceExhaustedError reports that a bounded resource — store capacity,
// the deferred MAC-resolution queue — has no room left for the requested
// operation. Callers that have a documented fallback (circular overwrite,
// immediate zero-MAC insert) handle it locally instead of propagating it.
type ResourceExhaustedError struct {
	*baseError
	component string // which bounded resource was exhausted, e.g. "recstore", "neigh.deferred"
	limit     int
	requested int
}

// NewResourceExhaustedError creates a resource-exhaustion error for component,
// which has capacity limit and was asked to admit requested.
func NewResourceExhaustedError(component string, limit, requested int) *ResourceExhaustedError {
	return &ResourceExhaustedError{
		baseError: NewBaseError(nil, ErrorCodeResourceExhausted, "resource exhausted: "+component),
		component: component,
		limit:     limit,
		requested: requested,
	}
}

// WithDetail adds contextual information while preserving the concrete type.
func (e *ResourceExhaustedError) WithDetail(key string, value any) *ResourceExhaustedError {
	e.baseError.WithDetail(key, value)
	return e
}

// Component returns the name of the bounded resource that was exhausted.
func (e *ResourceExhaustedError) Component() string { return e.component }

// Limit returns the resource's configured capacity.
func (e *ResourceExhaustedError) Limit() int { return e.limit }

// Requested returns how much capacity the failing operation asked for.
func (e *ResourceExhaustedError) Requested() int { return e.requested }
