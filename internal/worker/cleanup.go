package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SessionSweeper is the part of the session registry the cleanup needs.
type SessionSweeper interface {
	IdleSessions(cutoff time.Time) []string
	DestroyIdle(ctx context.Context, id string, cutoff time.Time) bool
}

// Cleanup destroys sessions that have been idle for longer than the idle
// timeout, checking every interval.
type Cleanup struct {
	sessions SessionSweeper
	interval time.Duration
	idle     time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewCleanup(sessions SessionSweeper, interval, idle time.Duration, log zerolog.Logger) *Cleanup {
	return &Cleanup{
		sessions: sessions,
		interval: interval,
		idle:     idle,
		log:      log.With().Str("component", "cleanup").Logger(),
		now:      time.Now,
	}
}

// Run schedules the sweep and blocks until ctx is done. A sweep still in
// progress is waited for before returning.
func (c *Cleanup) Run(ctx context.Context) error {
	cl := cron.PrintfLogger(&c.log)
	sched := cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))
	sched.Schedule(cron.Every(c.interval), cron.FuncJob(func() {
		if n := c.Sweep(ctx, c.now()); n > 0 {
			c.log.Info().Int("destroyed", n).Msg("idle sessions cleaned up")
		}
	}))

	c.log.Info().Dur("interval", c.interval).Dur("idle_timeout", c.idle).Msg("cleanup started")
	sched.Start()
	<-ctx.Done()
	<-sched.Stop().Done()
	c.log.Info().Msg("cleanup stopped")
	return nil
}

// Sweep destroys every session idle at now and returns how many were
// destroyed. A failure on one session does not stop the others.
func (c *Cleanup) Sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-c.idle)
	destroyed := 0
	for _, id := range c.sessions.IdleSessions(cutoff) {
		if ctx.Err() != nil {
			break
		}
		if c.destroy(ctx, id, cutoff) {
			destroyed++
		}
	}
	return destroyed
}

func (c *Cleanup) destroy(ctx context.Context, id string, cutoff time.Time) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().Interface("panic", rec).Str("session", id).Msg("idle destroy failed")
			ok = false
		}
	}()
	if !c.sessions.DestroyIdle(ctx, id, cutoff) {
		return false
	}
	c.log.Info().Str("session", id).Msg("idle session destroyed")
	return true
}
