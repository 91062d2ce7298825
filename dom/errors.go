package dom

import "errors"

var (
	// ErrNotAcquired: no upload target found within the retry and
	// provocation budget.
	ErrNotAcquired = errors.New("upload target not acquired")

	// ErrInjectionFailed: the target was detached when injection started.
	ErrInjectionFailed = errors.New("injection failed: target not live")

	// ErrInvalidPayload: a forwarded item is not an image.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrSurfaceNotFound: the editable surface is not in the document yet.
	ErrSurfaceNotFound = errors.New("paste surface not found")

	// ErrRootNotFound: an observation root matches nothing.
	ErrRootNotFound = errors.New("observation root not found")
)
