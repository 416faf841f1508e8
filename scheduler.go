package imapsync

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs account syncs on cron schedules. A schedule fires at
// most one run at a time; a run still going when the next tick arrives
// makes that tick a no-op.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	logger := cronLogger{log: getLogger().WithAttrs("component", "scheduler")}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(logger))),
	}
}

// Add registers a syncer on a cron schedule (e.g. "@every 5m" or
// "0 */2 * * *"). Failures are logged; the schedule keeps running.
func (s *Scheduler) Add(spec string, syncer *Syncer, full bool) (cron.EntryID, error) {
	if spec == "" {
		spec = syncer.account.Schedule
	}
	if spec == "" {
		return 0, &ConfigError{Field: "schedule", Msg: "no cron expression given"}
	}
	return s.cron.AddFunc(spec, func() {
		if err := syncer.Sync(full); err != nil {
			accountLogger(syncer.account.label(), "").Error("scheduled sync failed", "error", err)
		}
	})
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops firing new runs and returns a context that is done once
// in-flight runs have finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// cronLogger adapts the package logger to the cron library's interface.
type cronLogger struct {
	log Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(fmt.Sprintf("%s: %s", msg, err), keysAndValues...)
}

// SyncAll runs one sync per syncer in parallel and returns the first
// failure. Accounts are independent; each holds its own connection.
func SyncAll(syncers []*Syncer, full bool) error {
	var g errgroup.Group
	for _, syncer := range syncers {
		syncer := syncer
		g.Go(func() error {
			return syncer.Sync(full)
		})
	}
	return g.Wait()
}
