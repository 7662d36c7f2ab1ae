// Package scheduler implements the Scythe tick loop: it rebuilds its
// trigger table from the Store on start and on every Scythe CRUD event,
// then enqueues a reaped copy of the job when a trigger fires.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"reaper/internal/logger"
	"reaper/internal/model"
	"reaper/internal/state"
	"reaper/internal/store"
)

// Notifier is satisfied by *notify.Notifier.
type Notifier interface {
	ScytheReaped(name string)
}

// Scheduler owns one cron table built from the saved Scythes.
type Scheduler struct {
	store    *store.Store
	state    *state.Manager
	tz       func() string
	notifier Notifier

	cron   *cron.Cron
	reload chan struct{}
	done   chan struct{}
}

// New constructs a Scheduler. tz is called on every Reload so a live config
// change to user_timezone takes effect on the next rebuild. notifier may be
// nil.
func New(st *store.Store, sm *state.Manager, tz func() string, notifier Notifier) *Scheduler {
	return &Scheduler{
		store:    st,
		state:    sm,
		tz:       tz,
		notifier: notifier,
		reload:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Reload requests the tick loop rebuild its trigger table from the Store.
// Safe to call from any goroutine; concurrent requests coalesce.
func (s *Scheduler) Reload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Stop ends Run.
func (s *Scheduler) Stop() { close(s.done) }

// Run is the Scheduler's tick loop. It exits promptly when Stop is
// called or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.rebuild()
	for {
		select {
		case <-s.done:
			s.stopCron()
			return
		case <-ctx.Done():
			s.stopCron()
			return
		case <-s.reload:
			s.rebuild()
		}
	}
}

func (s *Scheduler) stopCron() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) rebuild() {
	s.stopCron()
	c := cron.New()

	scythes, err := s.store.ListScythes()
	if err != nil {
		logger.Log.Error().Err(err).Msg("scheduler: could not load scythes, running with no triggers until next reload")
		s.cron = c
		c.Start()
		return
	}

	loc, err := time.LoadLocation(s.tz())
	if err != nil {
		logger.Log.Warn().Err(err).Str("timezone", s.tz()).Msg("scheduler: invalid user_timezone, falling back to UTC")
		loc = time.UTC
	}

	for _, sc := range scythes {
		if sc.Schedule == nil || !sc.Schedule.Enabled {
			continue
		}
		spec, err := cronSpec(*sc.Schedule, loc)
		if err != nil {
			logger.Log.Warn().Err(err).Int("scythe_id", sc.ID).Msg("scheduler: skipping invalid schedule")
			continue
		}
		id := sc.ID
		if _, err := c.AddFunc(spec, func() { s.fire(id) }); err != nil {
			logger.Log.Warn().Err(err).Int("scythe_id", id).Str("spec", spec).Msg("scheduler: could not register trigger")
		}
	}

	s.cron = c
	c.Start()
}

// cronSpec translates a ScytheSchedule into a robfig/cron spec carrying a
// CRON_TZ prefix, so the cron library, not hand-rolled arithmetic, owns
// the user_timezone-to-server-clock conversion (including any day shift
// across a DST boundary).
func cronSpec(sched model.ScytheSchedule, loc *time.Location) (string, error) {
	t, err := time.Parse("15:04", sched.Time)
	if err != nil {
		return "", fmt.Errorf("parsing schedule time %q: %w", sched.Time, err)
	}

	dow := "*"
	if sched.Interval == "weekly" {
		if len(sched.Weekdays) == 0 {
			return "", fmt.Errorf("weekly schedule requires weekdays")
		}
		days := make([]string, len(sched.Weekdays))
		for i, d := range sched.Weekdays {
			// Scythe weekdays are Mon=0..Sun=6; cron fields are Sun=0..Sat=6.
			days[i] = strconv.Itoa((d + 1) % 7)
		}
		dow = strings.Join(days, ",")
	}

	return fmt.Sprintf("CRON_TZ=%s %d %d * * %s", loc.String(), t.Minute(), t.Hour(), dow), nil
}

// fire enqueues a reaped copy of the Scythe's job and records a notification.
func (s *Scheduler) fire(scytheID int) {
	sc, err := s.store.GetScythe(scytheID)
	if err != nil {
		logger.Log.Info().Int("scythe_id", scytheID).Msg("scheduler: scythe no longer exists, skipping")
		return
	}
	if sc.Schedule == nil || !sc.Schedule.Enabled {
		logger.Log.Info().Int("scythe_id", scytheID).Msg("scheduler: scythe disabled, skipping")
		return
	}

	job := sc.JobData
	job.ResolvedFolder = job.Folder
	if _, err := s.state.EnqueueJob(job); err != nil {
		logger.Log.Error().Err(err).Int("scythe_id", scytheID).Msg("scheduler: could not enqueue reaped job")
		return
	}
	if err := s.state.AddNotification(fmt.Sprintf("Scythe '%s' was automatically reaped.", sc.Name)); err != nil {
		logger.Log.Error().Err(err).Int("scythe_id", scytheID).Msg("scheduler: could not record notification")
	}
	if s.notifier != nil {
		s.notifier.ScytheReaped(sc.Name)
	}
}
