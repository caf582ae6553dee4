package scheduler

import (
	"context"
)

type TaskSupervisor struct {
	Schedulers []Scheduler
}

func NewTaskSupervisor(schedulers ...Scheduler) *TaskSupervisor {
	return &TaskSupervisor{
		Schedulers: schedulers,
	}
}

func (c *TaskSupervisor) Start(ctx context.Context) {
	for _, scheduler := range c.Schedulers {
		scheduler.Start(ctx)()
	}
}

// Stop останавливает планировщики в обратном порядке.
func (c *TaskSupervisor) Stop() {
	for i := len(c.Schedulers) - 1; i >= 0; i-- {
		c.Schedulers[i].Stop()()
	}
}
