// Package errtax defines the sync engine's error taxonomy: sentinel errors
// for conditions that span git, provider, cache, and lock failures, plus a
// Classify helper in the style of gitx.ClassifyError.
package errtax

import "errors"

var (
	// ErrTransientProvider marks a provider error expected to clear on retry
	// (5xx, connection reset, timeout).
	ErrTransientProvider = errors.New("transient provider error")
	// ErrPermanentProvider marks a provider error that will not clear on
	// retry (404, malformed scope, deleted org).
	ErrPermanentProvider = errors.New("permanent provider error")
	// ErrRateLimited marks a provider response indicating the caller should
	// back off until a known reset time.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrAuthRejected marks a provider authentication/authorization failure.
	ErrAuthRejected = errors.New("provider authentication rejected")
	// ErrLocked marks failure to acquire the process lock.
	ErrLocked = errors.New("lock held by another process")
	// ErrCachePersist marks a failure to durably write the cache file.
	ErrCachePersist = errors.New("cache persist failed")
	// ErrCancelRequested marks a run stopped by caller-requested cancellation.
	ErrCancelRequested = errors.New("cancel requested")
	// ErrInvalidArgument marks a bad CLI flag, selector, or config value
	// caught before any network or filesystem side effect.
	ErrInvalidArgument = errors.New("invalid argument or configuration")
	// ErrPartialFailure marks a run that completed but left at least one
	// target or repo in a failed state.
	ErrPartialFailure = errors.New("partial failure")
)

// Category is a coarse, actionable error classification.
type Category string

const (
	CategoryTransientProvider Category = "transient_provider"
	CategoryPermanentProvider Category = "permanent_provider"
	CategoryRateLimited       Category = "rate_limited"
	CategoryAuth              Category = "auth"
	CategoryLocked            Category = "locked"
	CategoryCachePersist      Category = "cache_persist"
	CategoryCancelled         Category = "cancelled"
	CategoryInvalidArgument   Category = "invalid_argument"
	CategoryPartialFailure    Category = "partial_failure"
	CategoryUnknown           Category = "unknown"
)

// Classify maps a sync-engine error into a Category using errors.Is against
// the sentinels above. Unrecognized errors classify as CategoryUnknown,
// leaving git-specific classification to gitx.ClassifyError.
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientProvider):
		return CategoryTransientProvider
	case errors.Is(err, ErrPermanentProvider):
		return CategoryPermanentProvider
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, ErrAuthRejected):
		return CategoryAuth
	case errors.Is(err, ErrLocked):
		return CategoryLocked
	case errors.Is(err, ErrCachePersist):
		return CategoryCachePersist
	case errors.Is(err, ErrCancelRequested):
		return CategoryCancelled
	case errors.Is(err, ErrInvalidArgument):
		return CategoryInvalidArgument
	case errors.Is(err, ErrPartialFailure):
		return CategoryPartialFailure
	default:
		return CategoryUnknown
	}
}

// Retryable reports whether a run loop should retry an operation that
// failed with this category, rather than giving up immediately.
func Retryable(c Category) bool {
	switch c {
	case CategoryTransientProvider, CategoryRateLimited:
		return true
	default:
		return false
	}
}
