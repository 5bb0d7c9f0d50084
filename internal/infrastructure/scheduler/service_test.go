package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	timescheduler "github.com/parcelhq/parceld/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

func TestScheduleTaskEvery(t *testing.T) {
	t.Parallel()

	scheduler := timescheduler.NewScheduler()
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	var calls atomic.Int64
	err := scheduler.ScheduleTaskEvery(time.Second, func() {
		calls.Add(1)
	})
	require.NoError(t, err)

	time.Sleep(2500 * time.Millisecond)

	require.GreaterOrEqual(t, calls.Load(), int64(2))
}

func TestRejectsInvalidInterval(t *testing.T) {
	t.Parallel()

	scheduler := timescheduler.NewScheduler()
	err := scheduler.ScheduleTaskEvery(0, func() {})
	require.Error(t, err)
}
