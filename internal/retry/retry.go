// Package retry implements bounded retries with exponential backoff and
// jitter for outbound deliveries (webhook dispatch, SIEM forwarding).
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// PermanentError marks a failure that retrying cannot fix, such as a 4xx
// response or a request that could not be built.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do gives up immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times, sleeping between attempts with
// exponential backoff. It returns nil on the first success, the unwrapped
// error when fn reports a permanent failure, ctx.Err() when the context
// ends during backoff, and otherwise the last error once attempts run out.
// maxAttempts below 1 is treated as 1.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delay := baseDelay
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay)):
		}
		delay *= 2
	}

	return err
}

// jittered spreads a backoff delay by +-25% so a burst of failed
// deliveries does not hammer the target in lockstep.
func jittered(delay time.Duration) time.Duration {
	j := delay / 4
	return delay - j + time.Duration(cryptoInt64n(int64(2*j+1)))
}

// cryptoInt64n returns a random int64 in [0, n). Modulo bias is fine for
// jitter.
func cryptoInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.LittleEndian.Uint64(b[:]) >> 1 // keep it in int64 range
	return int64(v % uint64(n))                //nolint:gosec // v%n < n, safe
}
