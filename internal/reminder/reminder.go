// Package reminder periodically checks the collection for events entering the
// reminder window and reports each of them once.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/schedule"
)

// Source is the read side of the event store.
type Source interface {
	ListAll(ctx context.Context) []model.Event
}

// Notifier delivers a reminder for a single event.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event) error
}

// LogNotifier writes reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ev model.Event) error {
	appLog.Info("reminder",
		"id", ev.ID,
		"title", ev.Title,
		"start", ev.StartTime.Format(time.RFC3339),
		"parent_id", ev.ParentID,
	)
	return nil
}

// Scanner remembers which (event, start) pairs were already reported so that
// an event is announced once even though it stays in the window for up to an
// hour. Rescheduling an event makes it eligible again.
type Scanner struct {
	src      Source
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time
}

func NewScanner(src Source, notifier Notifier) *Scanner {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Scanner{
		src:      src,
		notifier: notifier,
		now:      time.Now,
		notified: make(map[string]time.Time),
	}
}

// Scan reports every event currently in the reminder window that has not been
// reported yet and returns them.
func (s *Scanner) Scan(ctx context.Context) []model.Event {
	now := s.now()
	due := schedule.Reminders(s.src.ListAll(ctx), now)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Forget entries that can no longer be in the window.
	for k, start := range s.notified {
		if start.Before(now) {
			delete(s.notified, k)
		}
	}

	sent := make([]model.Event, 0)
	for _, ev := range schedule.SortedByStart(due) {
		k := key(ev)
		if _, ok := s.notified[k]; ok {
			continue
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			appLog.Error("reminder: notify failed", err, "id", ev.ID)
			continue
		}
		s.notified[k] = ev.StartTime
		sent = append(sent, ev)
	}
	return sent
}

func key(ev model.Event) string {
	return ev.ID + "@" + ev.StartTime.UTC().Format(time.RFC3339Nano)
}

// Scheduler runs a Scanner on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers scanner under spec (standard 5-field cron or
// descriptors such as "@every 1m").
func NewScheduler(spec string, scanner *Scanner) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		sent := scanner.Scan(context.Background())
		if len(sent) > 0 {
			appLog.Debug("reminder scan", "sent", len(sent))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reminder: invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	appLog.Info("reminder scheduler started", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts the schedule and waits for a running scan to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
