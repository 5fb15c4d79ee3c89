package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleValidation(t *testing.T) {
	t.Run("rejects non-positive interval", func(t *testing.T) {
		s := New(time.Second)
		err := s.Schedule(0, func() {})
		assert.Error(t, err)
	})

	t.Run("rejects second task", func(t *testing.T) {
		s := New(time.Second)
		require.NoError(t, s.Schedule(time.Minute, func() {}))
		err := s.Schedule(time.Minute, func() {})
		assert.Error(t, err)
	})
}

func TestStartStopIdempotent(t *testing.T) {
	s := New(time.Second)
	require.NoError(t, s.Schedule(time.Hour, func() {}))

	assert.False(t, s.Running())
	s.Start()
	assert.True(t, s.Running())
	s.Start()
	assert.True(t, s.Running())

	assert.True(t, s.Stop())
	assert.False(t, s.Running())
	assert.True(t, s.Stop())
}

func TestTaskRuns(t *testing.T) {
	var runs atomic.Int32
	s := New(time.Second)
	require.NoError(t, s.Schedule(50*time.Millisecond, func() {
		runs.Add(1)
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKickoffRunsImmediately(t *testing.T) {
	var runs atomic.Int32
	s := New(time.Second)
	require.NoError(t, s.Schedule(time.Hour, func() {
		runs.Add(1)
	}))

	s.Start()
	defer s.Stop()

	// The schedule alone would not fire for an hour.
	s.Kickoff()

	assert.Eventually(t, func() bool {
		return runs.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKickoffWithoutTaskIsNoop(t *testing.T) {
	s := New(time.Second)
	s.Kickoff()
}

func TestKickoffSkipsWhileRunning(t *testing.T) {
	var started atomic.Int32
	block := make(chan struct{})

	s := New(time.Second)
	require.NoError(t, s.Schedule(time.Hour, func() {
		started.Add(1)
		<-block
	}))

	s.Start()

	s.Kickoff()
	assert.Eventually(t, func() bool {
		return started.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// A second kickoff while the first run blocks must be skipped.
	s.Kickoff()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())

	close(block)
	s.Stop()
}

func TestSkipWhileRunning(t *testing.T) {
	var started atomic.Int32
	block := make(chan struct{})

	s := New(time.Second)
	require.NoError(t, s.Schedule(20*time.Millisecond, func() {
		started.Add(1)
		<-block
	}))

	s.Start()

	// Let several ticks elapse while the first run blocks; the chain
	// must skip them rather than start overlapping runs.
	assert.Eventually(t, func() bool {
		return started.Load() == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())

	close(block)
	s.Stop()
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool

	s := New(2 * time.Second)
	require.NoError(t, s.Schedule(20*time.Millisecond, func() {
		<-release
		finished.Store(true)
	}))

	s.Start()
	time.Sleep(50 * time.Millisecond)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	assert.True(t, s.Stop())
	assert.True(t, finished.Load())
}

func TestStopTimeoutExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s := New(50 * time.Millisecond)
	require.NoError(t, s.Schedule(20*time.Millisecond, func() {
		<-release
	}))

	s.Start()
	time.Sleep(50 * time.Millisecond)

	assert.False(t, s.Stop())
}
