package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadGuard_SecondCallSkipped(t *testing.T) {
	g := NewDownloadGuard()
	entered := make(chan struct{})
	release := make(chan struct{})

	calls := 0
	first := make(chan error)
	go func() {
		_, err := g.Do(context.Background(), "r1", func(context.Context) error {
			calls++
			close(entered)
			<-release
			return nil
		})
		first <- err
	}()
	<-entered

	ran, err := g.Do(context.Background(), "r1", func(context.Context) error {
		t.Error("second download must not run")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.True(t, g.InFlight("r1"))

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, 1, calls)
	assert.False(t, g.InFlight("r1"))
}

func TestDownloadGuard_ReleasesOnError(t *testing.T) {
	g := NewDownloadGuard()
	boom := errors.New("server error")

	ran, err := g.Do(context.Background(), "r1", func(context.Context) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.InFlight("r1"))
}

func TestDownloadGuard_ReleasesOnPanic(t *testing.T) {
	g := NewDownloadGuard()

	func() {
		defer func() { _ = recover() }()
		g.Do(context.Background(), "r1", func(context.Context) error { panic("boom") })
	}()
	assert.False(t, g.InFlight("r1"))
}

func TestDownloadGuard_IndependentJobs(t *testing.T) {
	g := NewDownloadGuard()
	release := make(chan struct{})
	entered := make(chan struct{})
	go g.Do(context.Background(), "r1", func(context.Context) error {
		close(entered)
		<-release
		return nil
	})
	<-entered
	defer close(release)

	ran, err := g.Do(context.Background(), "r2", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran, "a lock on r1 must not block r2")
}
