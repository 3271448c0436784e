package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingLimiterTrailingWindow(t *testing.T) {
	base := time.Unix(1700000000, 0)
	now := base
	l := NewSlidingLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("u1"))
	now = base.Add(30 * time.Second)
	require.True(t, l.Allow("u1"))
	now = base.Add(40 * time.Second)
	require.True(t, l.Allow("u1"))
	now = base.Add(50 * time.Second)
	require.False(t, l.Allow("u1"), "4th submission within the trailing minute is rejected")
	require.True(t, l.Allow("u2"), "keys are independent")

	// The first submission has aged out of the window by now.
	now = base.Add(65 * time.Second)
	require.True(t, l.Allow("u1"))
	now = base.Add(70 * time.Second)
	require.False(t, l.Allow("u1"))
}

func TestSlidingLimiterDeniedAttemptsNotCounted(t *testing.T) {
	base := time.Unix(1700000000, 0)
	now := base
	l := NewSlidingLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("u"))
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		require.False(t, l.Allow("u"))
	}

	now = base.Add(61 * time.Second)
	require.True(t, l.Allow("u"), "recovers once the accepted submission ages out")
}

func TestSlidingLimiterPrune(t *testing.T) {
	base := time.Unix(1700000000, 0)
	now := base
	l := NewSlidingLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	now = base.Add(30 * time.Second)
	l.Allow("c")
	now = base.Add(2 * time.Minute)
	l.Prune()
	require.Equal(t, 0, l.Len())

	l.Allow("a")
	l.Prune()
	require.Equal(t, 1, l.Len(), "live keys survive pruning")
}
