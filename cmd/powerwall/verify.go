package main

import (
	"context"
	"fmt"
	"time"
)

// verifyOptions configures how a change is read back from the gateway
type verifyOptions struct {
	// MaxRetries is the maximum number of read-back attempts
	MaxRetries int

	// InitialDelay gives the gateway time to apply the change
	InitialDelay time.Duration

	// RetryDelay is doubled after every attempt, up to MaxRetryDelay
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func defaultVerifyOptions() verifyOptions {
	return verifyOptions{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 5 * time.Second,
	}
}

// verifyChange calls check until it reports a match, an error other than a
// mismatch occurs, or the attempts run out. It returns the attempts made.
func verifyChange(ctx context.Context, opts verifyOptions, check func(ctx context.Context) (bool, string, error)) (int, error) {
	delay := opts.RetryDelay
	wait := opts.InitialDelay

	var mismatch string
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return attempt - 1, ctx.Err()
		case <-time.After(wait):
		}

		ok, got, err := check(ctx)
		if err != nil {
			return attempt, err
		}
		if ok {
			return attempt, nil
		}
		mismatch = got

		wait = delay
		delay *= 2
		if delay > opts.MaxRetryDelay {
			delay = opts.MaxRetryDelay
		}
	}
	return opts.MaxRetries, fmt.Errorf("change not applied after %d attempts, gateway reports %q", opts.MaxRetries, mismatch)
}
