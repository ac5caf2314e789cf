package poll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jkcoxson/jitstreamer-pair/poll"
	"github.com/stretchr/testify/assert"
)

var fast = poll.Policy{MaxAttempts: 20, Interval: time.Millisecond}

func TestUntil(t *testing.T) {
	testCases := map[string]struct {
		succeedOn     int
		expected      bool
		expectedCalls int
	}{
		"first attempt":  {succeedOn: 1, expected: true, expectedCalls: 1},
		"fifth attempt":  {succeedOn: 5, expected: true, expectedCalls: 5},
		"last attempt":   {succeedOn: 20, expected: true, expectedCalls: 20},
		"budget too low": {succeedOn: 21, expected: false, expectedCalls: 20},
		"never":          {succeedOn: -1, expected: false, expectedCalls: 20},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			calls := 0
			ok, err := poll.Until(context.Background(), fast, func(ctx context.Context) (bool, error) {
				calls++
				return calls == tc.succeedOn, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
			assert.Equal(t, tc.expectedCalls, calls)
		})
	}
}

func TestUntilStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	ok, err := poll.Until(context.Background(), fast, func(ctx context.Context) (bool, error) {
		calls++
		return false, boom
	})
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntilZeroAttempts(t *testing.T) {
	ok, err := poll.Until(context.Background(), poll.Policy{}, func(ctx context.Context) (bool, error) {
		t.Fatal("condition must not run")
		return true, nil
	})
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestUntilContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	ok, err := poll.Until(ctx, poll.Policy{MaxAttempts: 5, Interval: time.Hour}, func(ctx context.Context) (bool, error) {
		calls++
		cancel()
		return false, nil
	})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
