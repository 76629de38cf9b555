package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastVerifyOptions() verifyOptions {
	return verifyOptions{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	}
}

func TestVerifyChange_EventuallyApplied(t *testing.T) {
	calls := 0
	attempts, err := verifyChange(context.Background(), fastVerifyOptions(), func(ctx context.Context) (bool, string, error) {
		calls++
		return calls == 2, "old", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestVerifyChange_NeverApplied(t *testing.T) {
	attempts, err := verifyChange(context.Background(), fastVerifyOptions(), func(ctx context.Context) (bool, string, error) {
		return false, "old name", nil
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), `"old name"`)
}

func TestVerifyChange_ReadErrorStops(t *testing.T) {
	boom := errors.New("unreachable")
	attempts, err := verifyChange(context.Background(), fastVerifyOptions(), func(ctx context.Context) (bool, string, error) {
		return false, "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestVerifyChange_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastVerifyOptions()
	opts.InitialDelay = time.Hour
	_, err := verifyChange(ctx, opts, func(ctx context.Context) (bool, string, error) {
		t.Fatal("check must not run after cancellation")
		return false, "", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "87.5", formatFloat(87.5))
	assert.Equal(t, "20", formatFloat(20))
	assert.Equal(t, "-2.156", formatFloat(-2.15566))
	assert.Equal(t, "0", formatFloat(0))
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "yes", display(true))
	assert.Equal(t, "-", display(""))
	assert.Equal(t, "1h2m3s", display(time.Hour+2*time.Minute+3*time.Second+200*time.Millisecond))
	assert.Equal(t, "a, b", display([]string{"a", "b"}))
}
