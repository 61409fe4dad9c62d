package tracker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internhub/reportwatch/internal/clock"
)

func TestRefresher_BurstCoalesces(t *testing.T) {
	clk := clock.Fake(epoch)
	var fetches atomic.Int32
	r := NewRefresher(clk, 500*time.Millisecond, func(context.Context) error {
		fetches.Add(1)
		return nil
	})

	for i := 0; i < 10; i++ {
		r.Schedule()
		clk.Advance(100 * time.Millisecond)
	}
	assert.Zero(t, fetches.Load(), "no refetch while calls keep arriving")

	clk.Advance(400 * time.Millisecond)
	assert.Equal(t, int32(1), fetches.Load())

	clk.Advance(time.Minute)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestRefresher_SpacedCallsEachFetch(t *testing.T) {
	clk := clock.Fake(epoch)
	var fetches atomic.Int32
	r := NewRefresher(clk, 500*time.Millisecond, func(context.Context) error {
		fetches.Add(1)
		return nil
	})

	for i := 0; i < 4; i++ {
		r.Schedule()
		clk.Advance(600 * time.Millisecond)
	}
	assert.Equal(t, int32(4), fetches.Load())
}

func TestRefresher_RefreshNowIgnoredWhileInFlight(t *testing.T) {
	clk := clock.Fake(epoch)
	entered := make(chan struct{})
	release := make(chan struct{})
	var fetches atomic.Int32
	r := NewRefresher(clk, 500*time.Millisecond, func(context.Context) error {
		fetches.Add(1)
		entered <- struct{}{}
		<-release
		return nil
	})

	done := make(chan bool)
	go func() {
		ran, _ := r.RefreshNow(context.Background())
		done <- ran
	}()
	<-entered

	ran, err := r.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.False(t, ran, "overlapping RefreshNow must be ignored")

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), fetches.Load())

	// The lock is released afterwards.
	go func() { <-entered }()
	ran, _ = r.RefreshNow(context.Background())
	assert.True(t, ran)
}

func TestRefresher_DebouncedFireWaitsForInFlight(t *testing.T) {
	clk := clock.Fake(epoch)
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var fetches atomic.Int32
	r := NewRefresher(clk, 500*time.Millisecond, func(context.Context) error {
		n := fetches.Add(1)
		entered <- struct{}{}
		if n == 1 {
			<-release
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		r.RefreshNow(context.Background())
		close(done)
	}()
	<-entered

	r.Schedule()
	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, int32(1), fetches.Load(), "debounced fetch must not overlap")
	assert.True(t, r.Pending(), "debounced fetch is re-armed")

	close(release)
	<-done

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestRefresher_StopCancelsPending(t *testing.T) {
	clk := clock.Fake(epoch)
	var fetches atomic.Int32
	r := NewRefresher(clk, 500*time.Millisecond, func(context.Context) error {
		fetches.Add(1)
		return nil
	})

	r.Schedule()
	r.Stop()
	clk.Advance(time.Second)
	r.Schedule()
	clk.Advance(time.Second)

	assert.Zero(t, fetches.Load())
	ran, _ := r.RefreshNow(context.Background())
	assert.False(t, ran)
}
