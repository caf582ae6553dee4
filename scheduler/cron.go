package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/robfig/cron/v3"
)

var calendarParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Period минимальный интервал между соседними запусками calendar в ближайших окнах.
// Формат тот же, что у Add, с секундами.
func Period(calendar string) (time.Duration, error) {
	schedule, err := calendarParser.Parse(calendar)
	if err != nil {
		return 0, fmt.Errorf("cron: parse %q: %w", calendar, err)
	}
	prev := schedule.Next(time.Now())
	if prev.IsZero() {
		return 0, fmt.Errorf("cron: %q never fires", calendar)
	}
	var period time.Duration
	for i := 0; i < 8; i++ {
		next := schedule.Next(prev)
		if next.IsZero() {
			break
		}
		if gap := next.Sub(prev); period == 0 || gap < period {
			period = gap
		}
		prev = next
	}
	if period <= 0 {
		return 0, fmt.Errorf("cron: %q fires only once", calendar)
	}
	return period, nil
}

type Cron struct {
	c *cron.Cron
}

func NewCron() *Cron {
	return &Cron{
		c: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Add "*/10 * * * * *" - каждые 10 секунд. Запуск пропускается, если предыдущий ещё идёт.
func (c *Cron) Add(ctx context.Context, calendar string, fn func(ctx context.Context) error) error {
	_, err := c.c.AddFunc(calendar, func() {
		if err := fn(ctx); err != nil {
			logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
				Msg:       "cron job failed",
				Component: "cron",
				Method:    "Add",
				Args:      calendar,
				Error:     err,
			})
		}
	})
	if err != nil {
		return fmt.Errorf("cron: add job %q: %w", calendar, err)
	}
	return nil
}

func (c *Cron) Start(context.Context) func() {
	return func() {
		c.c.Start()
	}
}

// Stop ждёт завершения уже запущенных заданий.
func (c *Cron) Stop() func() {
	return func() {
		<-c.c.Stop().Done()
	}
}
