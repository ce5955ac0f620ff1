// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package resilience_test

import (
	"sync"
	"testing"
	"time"

	"github.com/trendscout-dev/trendscout/internal/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newClockedBreaker returns a breaker pinned to a controllable clock. Tests
// advance the clock instead of sleeping across open windows.
func newClockedBreaker(cfg resilience.Config) (*resilience.Breaker, *time.Time) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	b := resilience.NewBreaker("reports", cfg)
	b.SetNowFunc(func() time.Time { return now })
	return b, &now
}

func failN(b *resilience.Breaker, n int) {
	for range n {
		b.RecordFailure()
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := resilience.NewBreaker("reports", resilience.DefaultConfig())

	assert.Equal(t, resilience.StateClosed, b.State())
	assert.True(t, b.Attempt())
}

func TestBreakerTripsOpenAtFailureThreshold(t *testing.T) {
	b, _ := newClockedBreaker(resilience.Config{FailureThreshold: 3})

	failN(b, 2)
	assert.Equal(t, resilience.StateClosed, b.State())
	assert.True(t, b.Attempt())

	b.RecordFailure()
	assert.Equal(t, resilience.StateOpen, b.State())
	assert.False(t, b.Attempt())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newClockedBreaker(resilience.Config{FailureThreshold: 3})

	failN(b, 2)
	b.RecordSuccess()
	failN(b, 2)

	// The streak restarted after the success, so the breaker is still closed.
	assert.Equal(t, resilience.StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, resilience.StateOpen, b.State())
}

func TestBreakerOpenRejectsUntilWindowElapses(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
	})

	b.RecordFailure()
	require.Equal(t, resilience.StateOpen, b.State())

	assert.False(t, b.Attempt())

	*now = now.Add(time.Minute - time.Nanosecond)
	assert.False(t, b.Attempt())
	assert.Equal(t, resilience.StateOpen, b.State())

	*now = now.Add(time.Nanosecond)
	assert.True(t, b.Attempt())
	assert.Equal(t, resilience.StateHalfOpen, b.State())
}

func TestBreakerStateReadDoesNotProbe(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
	})

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)

	// Reading state or stats after the window must not flip the breaker;
	// only traffic through Attempt pays the probe.
	assert.Equal(t, resilience.StateOpen, b.State())
	assert.Equal(t, "open", b.Stats().State)

	assert.True(t, b.Attempt())
	assert.Equal(t, resilience.StateHalfOpen, b.State())
}

func TestBreakerHalfOpenProbeBudget(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold:  1,
		SuccessThreshold:  5,
		OpenTimeout:       time.Minute,
		HalfOpenMaxProbes: 2,
	})

	b.RecordFailure()
	*now = now.Add(time.Minute)

	assert.True(t, b.Attempt())  // transition probe
	assert.True(t, b.Attempt())  // second slot
	assert.False(t, b.Attempt()) // budget exhausted

	// Recording an outcome frees a slot.
	b.RecordSuccess()
	assert.True(t, b.Attempt())
	assert.False(t, b.Attempt())
}

func TestBreakerHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	b.RecordFailure()
	*now = now.Add(time.Minute)

	require.True(t, b.Attempt())
	b.RecordSuccess()
	assert.Equal(t, resilience.StateHalfOpen, b.State())

	require.True(t, b.Attempt())
	b.RecordSuccess()
	assert.Equal(t, resilience.StateClosed, b.State())
}

func TestBreakerHalfOpenReopensOnSingleFailure(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})

	failN(b, 3)
	*now = now.Add(time.Minute)

	require.True(t, b.Attempt())
	b.RecordFailure()

	assert.Equal(t, resilience.StateOpen, b.State())
	assert.False(t, b.Attempt())
}

func TestBreakerReopenRestartsWindow(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
	})

	b.RecordFailure()
	*now = now.Add(time.Minute)
	require.True(t, b.Attempt())
	b.RecordFailure()
	require.Equal(t, resilience.StateOpen, b.State())

	// The window restarts at the reopen, not the original failure.
	*now = now.Add(30 * time.Second)
	assert.False(t, b.Attempt())
	*now = now.Add(30 * time.Second)
	assert.True(t, b.Attempt())
}

func TestBreakerCountersResetOnTransition(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	failN(b, 2)
	assert.Equal(t, 0, b.Stats().CurrentFailureCount)

	*now = now.Add(time.Minute)
	require.True(t, b.Attempt())
	b.RecordSuccess()
	require.True(t, b.Attempt())
	b.RecordSuccess()

	require.Equal(t, resilience.StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().CurrentFailureCount)
}

func TestBreakerRejectionsExcludedFromTotals(t *testing.T) {
	b, _ := newClockedBreaker(resilience.Config{FailureThreshold: 1})

	b.RecordFailure()
	require.Equal(t, resilience.StateOpen, b.State())

	for range 5 {
		assert.False(t, b.Attempt())
	}

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.TotalCalls)
	assert.Equal(t, int64(1), stats.TotalFailures)
	assert.Equal(t, int64(0), stats.TotalSuccesses)
}

func TestBreakerLateFailureWhileOpenExtendsWindow(t *testing.T) {
	b, now := newClockedBreaker(resilience.Config{
		FailureThreshold:  1,
		OpenTimeout:       time.Minute,
		HalfOpenMaxProbes: 2,
	})

	b.RecordFailure()
	*now = now.Add(time.Minute)
	require.True(t, b.Attempt()) // probe A
	require.True(t, b.Attempt()) // probe B

	b.RecordFailure() // A fails, breaker reopens
	require.Equal(t, resilience.StateOpen, b.State())

	// B's late failure restarts the window: it is measured from the last
	// recorded failure, not the reopen.
	*now = now.Add(59 * time.Second)
	b.RecordFailure()

	*now = now.Add(time.Second)
	assert.False(t, b.Attempt())
	assert.Equal(t, resilience.StateOpen, b.State())

	*now = now.Add(59 * time.Second)
	assert.True(t, b.Attempt())
	assert.Equal(t, resilience.StateHalfOpen, b.State())
}

func TestBreakerStatsSnapshot(t *testing.T) {
	b, _ := newClockedBreaker(resilience.Config{
		FailureThreshold:  4,
		SuccessThreshold:  2,
		OpenTimeout:       30 * time.Second,
		HalfOpenMaxProbes: 3,
	})

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()

	stats := b.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, int64(3), stats.TotalCalls)
	assert.Equal(t, int64(2), stats.TotalSuccesses)
	assert.Equal(t, int64(1), stats.TotalFailures)
	assert.Equal(t, 1, stats.CurrentFailureCount)
	assert.Equal(t, 4, stats.Config.FailureThreshold)
	assert.Equal(t, 2, stats.Config.SuccessThreshold)
	assert.Equal(t, 30.0, stats.Config.OpenTimeoutSeconds)
	assert.Equal(t, 3, stats.Config.HalfOpenMaxProbes)
}

func TestBreakerZeroConfigUsesDefaults(t *testing.T) {
	b := resilience.NewBreaker("reports", resilience.Config{})

	cfg := b.Stats().Config
	assert.Equal(t, resilience.DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, resilience.DefaultSuccessThreshold, cfg.SuccessThreshold)
	assert.Equal(t, resilience.DefaultOpenTimeout.Seconds(), cfg.OpenTimeoutSeconds)
	assert.Equal(t, resilience.DefaultHalfOpenMaxProbes, cfg.HalfOpenMaxProbes)
}

func TestBreakerStateStrings(t *testing.T) {
	assert.Equal(t, "closed", resilience.StateClosed.String())
	assert.Equal(t, "half_open", resilience.StateHalfOpen.String())
	assert.Equal(t, "open", resilience.StateOpen.String())
}

func TestBreakerConcurrentTraffic(t *testing.T) {
	b := resilience.NewBreaker("reports", resilience.Config{FailureThreshold: 1000})

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range workers {
		go func(i int) {
			defer wg.Done()
			if !b.Attempt() {
				return
			}
			if i%2 == 0 {
				b.RecordSuccess()
			} else {
				b.RecordFailure()
			}
		}(i)
	}
	wg.Wait()

	stats := b.Stats()
	assert.Equal(t, int64(workers), stats.TotalCalls)
	assert.Equal(t, int64(workers/2), stats.TotalSuccesses)
	assert.Equal(t, int64(workers/2), stats.TotalFailures)
}
