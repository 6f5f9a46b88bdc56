package ratelimitd

// ErrUnavailable is returned when a backend (Redis, a health source, a
// config source) could not be reached and the caller's fail-open/fail-closed
// policy determined the request could not proceed normally.
type ErrUnavailable struct {
	Backend string
	Cause   error
}

func (e *ErrUnavailable) Error() string {
	if e.Cause != nil {
		return "ratelimitd: " + e.Backend + " unavailable: " + e.Cause.Error()
	}
	return "ratelimitd: " + e.Backend + " unavailable"
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrInvalidInput is returned when caller-supplied parameters (a config, a
// key, an algorithm selection) fail validation before any backend call is
// attempted.
type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return "ratelimitd: invalid " + e.Field + ": " + e.Reason
}

// ErrConflict is returned when an update races another writer for the same
// logical resource (e.g. two concurrent config reloads touching the same
// key, or an override racing a resolver reload) and the caller should retry.
type ErrConflict struct {
	Resource string
}

func (e *ErrConflict) Error() string {
	return "ratelimitd: conflicting update on " + e.Resource
}

// ErrTransientInternal wraps an error the caller should retry without
// changing anything about the request — a blip distinct from ErrUnavailable
// in that the backend itself is healthy, but this one call failed.
type ErrTransientInternal struct {
	Op    string
	Cause error
}

func (e *ErrTransientInternal) Error() string {
	return "ratelimitd: transient error during " + e.Op + ": " + e.Cause.Error()
}

func (e *ErrTransientInternal) Unwrap() error { return e.Cause }

// ErrConfigViolation is returned when a resolved RateLimitConfig fails its
// own internal invariants (e.g. a non-positive capacity or rate, an empty or
// unknown algorithm, a composite limiter with no children) and cannot be used
// to construct a Limiter.
type ErrConfigViolation struct {
	Reason string
}

func (e *ErrConfigViolation) Error() string {
	return "ratelimitd: invalid rate limit config: " + e.Reason
}
