package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleTaskEvery runs task at every interval until the scheduler is
	// stopped.
	ScheduleTaskEvery(interval time.Duration, task func()) error
}
