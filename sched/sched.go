// Package sched holds pending publish schedules in memory and fires them
// at or after their target time.  Schedules do not survive a restart; the
// durable schedule_note column is a display echo, not a recovery source.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zhorzholianitornike/vinegar/draft"
)

var (
	// ErrRejected means the schedule/publish precondition failed: the
	// draft does not exist, is not approved, or a racing caller won.
	ErrRejected = errors.New("rejected")

	// ErrNotScheduled means there was no pending schedule to cancel.
	ErrNotScheduled = errors.New("not scheduled")
)

// A PublishResult reports a successful publish for display.
type PublishResult struct {
	DraftID     int64
	Text        string
	ImageRef    string
	PublishedAt time.Time
}

// A Scheduler owns the in-memory draft id → target time mapping and the
// background sweep that publishes due drafts.  The mapping is only touched
// under mu; per-draft consistency is the store's problem.
type Scheduler struct {
	engine   *draft.Engine
	store    *draft.Store
	log      *slog.Logger
	interval time.Duration
	// test usage
	now func() time.Time

	mu      sync.Mutex
	entries map[int64]time.Time

	cron *cron.Cron
}

// New returns a stopped Scheduler sweeping at the given interval.
func New(engine *draft.Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		store:    engine.Store(),
		log:      slog.Default().With("system", "sched"),
		interval: interval,
		now:      time.Now,
		entries:  make(map[int64]time.Time),
	}
}

func (s *Scheduler) Engine() *draft.Engine { return s.engine }

// Schedule sets (or overwrites) the target publish time for an approved
// draft.  Drafts that do not exist or are not approved are rejected.
func (s *Scheduler) Schedule(id int64, at time.Time) error {
	d, err := s.store.Get(id)
	if errors.Is(err, draft.ErrNotFound) {
		return fmt.Errorf("draft %d: %w", id, ErrRejected)
	}
	if err != nil {
		return err
	}
	if d.Status != draft.StatusApproved {
		return fmt.Errorf("draft %d is %s, not approved: %w", id, d.Status, ErrRejected)
	}

	s.mu.Lock()
	s.entries[id] = at
	s.mu.Unlock()

	// best-effort audit echo; the schedule itself lives above
	note := "Scheduled for: " + at.Format("2006-01-02 15:04")
	if err := s.store.SetScheduleNote(id, note); err != nil {
		s.log.Warn("writing schedule note", "id", id, "err", err)
	}
	s.log.Info("scheduled draft", "id", id, "at", at)
	return nil
}

// Cancel removes the pending schedule for id.
func (s *Scheduler) Cancel(id int64) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("draft %d: %w", id, ErrNotScheduled)
	}
	if err := s.store.ClearScheduleNote(id); err != nil && !errors.Is(err, draft.ErrNotFound) {
		s.log.Warn("clearing schedule note", "id", id, "err", err)
	}
	s.log.Info("cancelled schedule", "id", id)
	return nil
}

// BackToEdit reverts an approved draft to draft and drops any pending
// schedule for it.
func (s *Scheduler) BackToEdit(id int64) (*draft.Draft, error) {
	d, err := s.engine.BackToEdit(id)
	if err != nil {
		return nil, err
	}
	if err := s.Cancel(id); err != nil && !errors.Is(err, ErrNotScheduled) {
		return nil, err
	}
	return d, nil
}

// PublishNow publishes an approved draft immediately.  The approved check
// happens inside the publish write itself, so of two racing calls exactly
// one succeeds and the other gets ErrRejected.  Calling it on an
// already-published draft is rejected, never a duplicate publish.
func (s *Scheduler) PublishNow(id int64) (*PublishResult, error) {
	d, err := s.engine.Publish(id)
	if errors.Is(err, draft.ErrNotFound) || errors.Is(err, draft.ErrInvalidTransition) {
		return nil, fmt.Errorf("%v: %w", err, ErrRejected)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	if err := s.store.ClearScheduleNote(id); err != nil {
		s.log.Warn("clearing schedule note", "id", id, "err", err)
	}

	return &PublishResult{
		DraftID:     d.ID,
		Text:        d.Text,
		ImageRef:    d.ImageRef,
		PublishedAt: *d.PublishedAt,
	}, nil
}

// Scheduled returns a snapshot of pending schedules.
func (s *Scheduler) Scheduled() map[int64]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[int64]time.Time, len(s.entries))
	for id, at := range s.entries {
		snapshot[id] = at
	}
	return snapshot
}

// Start begins the background sweep.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("sweep started", "interval", s.interval)
	return nil
}

// Stop halts the sweep and waits for any in-flight run, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	s.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweep publishes every entry whose target time has passed.  A stale due
// schedule (the draft moved out of approved since scheduling) is dropped,
// never retried: its precondition is permanently false.  Storage faults
// keep the entry for the next interval.  One bad entry never stops the
// rest of the sweep.
func (s *Scheduler) sweep() {
	now := s.now()

	s.mu.Lock()
	var due []int64
	for id, at := range s.entries {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		res, err := s.PublishNow(id)
		switch {
		case err == nil:
			s.log.Info("published scheduled draft", "id", id, "at", res.PublishedAt)
		case errors.Is(err, ErrRejected):
			s.log.Warn("dropping stale schedule", "id", id, "err", err)
			s.mu.Lock()
			delete(s.entries, id)
			s.mu.Unlock()
		default:
			s.log.Error("sweep publish failed, will retry", "id", id, "err", err)
		}
	}
}
