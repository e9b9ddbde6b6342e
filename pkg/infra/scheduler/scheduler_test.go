package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/infra/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newScheduler() *scheduler.Scheduler {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return scheduler.New(logger)
}

func TestScheduler_AfterRunsOnce(t *testing.T) {
	s := newScheduler()
	defer s.Stop()

	var calls int32
	done := make(chan struct{})
	s.After("blacklist:1.2.3.4", 10*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("one-shot did not fire")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScheduler_AfterReplacesPendingTimer(t *testing.T) {
	s := newScheduler()
	defer s.Stop()

	var first, second int32
	s.After("k", time.Hour, func() { atomic.AddInt32(&first, 1) })
	fired := make(chan struct{})
	s.After("k", 5*time.Millisecond, func() {
		atomic.AddInt32(&second, 1)
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("replacement timer did not fire")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
}

func TestScheduler_Cancel(t *testing.T) {
	s := newScheduler()
	defer s.Stop()

	var calls int32
	s.After("k", time.Hour, func() { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, 1, s.Pending())
	assert.True(t, s.Cancel("k"))
	assert.False(t, s.Cancel("k"))
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_PanicInOneShotIsRecovered(t *testing.T) {
	s := newScheduler()
	defer s.Stop()

	done := make(chan struct{})
	s.After("boom", time.Millisecond, func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("one-shot did not fire")
	}
}

func TestScheduler_Every(t *testing.T) {
	s := newScheduler()
	require.Error(t, s.Every("bad", 0, func() {}))
	require.NoError(t, s.Every("sweep", time.Second, func() {}))
	require.NoError(t, s.Every("sweep", 2*time.Second, func() {}))
	s.Start()
	s.Stop()

	assert.ErrorIs(t, s.Every("late", time.Second, func() {}), scheduler.ErrStopped)
}

func TestScheduler_StopDropsPendingOneShots(t *testing.T) {
	s := newScheduler()
	var calls int32
	s.After("a", time.Hour, func() { atomic.AddInt32(&calls, 1) })
	s.After("b", time.Hour, func() { atomic.AddInt32(&calls, 1) })
	s.Stop()
	s.Stop()

	assert.Equal(t, 0, s.Pending())
	s.After("c", time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
