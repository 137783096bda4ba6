package response

import (
	"fmt"
	"time"
)

// UserBlocked reports that a user is block-listed until the given time.
type UserBlocked struct {
	UserID string
	Until  time.Time
}

func (e *UserBlocked) Error() string {
	return fmt.Sprintf("user %s is blocked until %s", e.UserID, e.Until.Format(time.RFC3339))
}

// ServiceUnavailable reports an open circuit breaker. RetryAfter is how long
// until the breaker is eligible to close.
type ServiceUnavailable struct {
	UserID     string
	RetryAfter time.Duration
}

func (e *ServiceUnavailable) Error() string {
	return fmt.Sprintf("escalation suppressed for user %s, retry after %s", e.UserID, e.RetryAfter.Round(time.Second))
}

// InternalFailure reports that one or more response actions failed. The
// underlying causes are logged and counted against the user's circuit
// breaker but not exposed to callers.
type InternalFailure struct {
	UserID string
	Action Action
}

func (e *InternalFailure) Error() string {
	return fmt.Sprintf("failed to execute response action for user %s", e.UserID)
}
