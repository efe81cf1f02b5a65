package task

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingeweb/contactws/internal/apperror"
)

type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcTask) Name() string                      { return f.name }
func (f funcTask) Execute(ctx context.Context) error { return f.fn(ctx) }

func newTestRunner() *Runner {
	return NewRunner(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4})))
}

// ===== RUN NOW TESTS =====

func TestRunNow_ReturnsTaskError(t *testing.T) {
	r := newTestRunner()
	boom := errors.New("boom")
	r.Register(funcTask{name: "sync_users", fn: func(ctx context.Context) error { return boom }}, 0)

	err := r.RunNow(context.Background(), "sync_users")

	assert.ErrorIs(t, err, boom)
	st := r.Statuses()
	require.Len(t, st, 1)
	assert.Equal(t, 1, st[0].Runs)
	assert.Equal(t, "boom", st[0].LastError)
	assert.False(t, st[0].Running)
}

func TestRunNow_UnknownTask(t *testing.T) {
	err := newTestRunner().RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRunNow_RecoversPanic(t *testing.T) {
	r := newTestRunner()
	r.Register(funcTask{name: "notify_admins", fn: func(ctx context.Context) error { panic("nil map") }}, 0)

	err := r.RunNow(context.Background(), "notify_admins")

	assert.ErrorContains(t, err, "panicked: nil map")
}

func TestRunNow_NeverOverlaps(t *testing.T) {
	r := newTestRunner()
	started := make(chan struct{})
	release := make(chan struct{})
	r.Register(funcTask{name: "sync_users", fn: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}, 0)

	done := make(chan error, 1)
	go func() { done <- r.RunNow(context.Background(), "sync_users") }()
	<-started

	err := r.RunNow(context.Background(), "sync_users")
	assert.ErrorIs(t, err, apperror.ErrAlreadyRunning)
	assert.True(t, r.Statuses()[0].Running)

	close(release)
	require.NoError(t, <-done)
}

// ===== SCHEDULE TESTS =====

func TestStart_RunsOnScheduleUntilCancelled(t *testing.T) {
	r := newTestRunner()
	var runs atomic.Int32
	r.Register(funcTask{name: "sync_users", fn: func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("ignored by the loop")
	}}, 5*time.Millisecond)
	r.Register(funcTask{name: "manual", fn: func(ctx context.Context) error {
		t.Error("manual task must not be scheduled")
		return nil
	}}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	r.Wait()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no run after the loop stopped")
}

func TestStatuses_RegistrationOrder(t *testing.T) {
	r := newTestRunner()
	noop := func(ctx context.Context) error { return nil }
	r.Register(funcTask{name: "sync_users", fn: noop}, time.Hour)
	r.Register(funcTask{name: "notify_admins", fn: noop}, 24*time.Hour)

	st := r.Statuses()

	require.Len(t, st, 2)
	assert.Equal(t, "sync_users", st[0].Name)
	assert.Equal(t, time.Hour, st[0].Interval)
	assert.Equal(t, "notify_admins", st[1].Name)
	assert.Zero(t, st[1].Runs)
}

func TestTrigger_RunsInBackground(t *testing.T) {
	r := newTestRunner()
	release := make(chan struct{})
	var runs atomic.Int32
	r.Register(funcTask{name: "sync_users", fn: func(ctx context.Context) error {
		<-release
		runs.Add(1)
		return ctx.Err()
	}}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Trigger(ctx, "sync_users"))
	cancel()

	assert.ErrorIs(t, r.Trigger(context.Background(), "sync_users"), apperror.ErrAlreadyRunning)
	assert.ErrorIs(t, r.Trigger(context.Background(), "nope"), apperror.ErrNotFound)

	close(release)
	r.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.Empty(t, r.Statuses()[0].LastError, "a triggered run outlives the request context")
}
