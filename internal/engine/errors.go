package engine

import "errors"

// Rejections are deterministic and leave no partial state; the sender can
// safely redeliver. ErrTransient is the one retryable outcome.
var (
	ErrDuplicateEntry = errors.New("duplicate or late entry for tag")
	ErrNoOpenTrade    = errors.New("no matching open trade for tag")
	ErrSideMismatch   = errors.New("event side does not match open trade")
	ErrTransient      = errors.New("transient storage failure")
)
