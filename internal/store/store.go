// Package store owns the canonical event collection. Every operation loads
// the full collection from the backend, works in memory and, for mutations,
// writes the complete result back in one Replace.
//
// Mutations are serialized through a single writer so that two overlapping
// read-modify-write cycles in this process cannot lose an update. Reads are
// not coordinated and observe the last committed collection. Several
// processes sharing one backend remain last-writer-wins.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/schedule"
	"eventcal/internal/storage"
)

type Store struct {
	backend storage.Backend
	now     func() time.Time
	newID   func() string
	metrics *metrics

	// writeMu admits one mutation at a time.
	writeMu sync.Mutex
}

type Option func(*Store)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithRegisterer exposes store metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) { s.metrics = newMetrics(reg) }
}

func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAll returns every stored event in storage order. A storage read failure
// is logged and yields an empty collection.
func (s *Store) ListAll(ctx context.Context) []model.Event {
	events, err := s.backend.Load(ctx)
	if err != nil {
		appLog.Error("store: list failed, serving empty collection", err)
		return []model.Event{}
	}
	return events
}

func (s *Store) GetByID(ctx context.Context, id string) (model.Event, error) {
	events, err := s.load(ctx)
	if err != nil {
		return model.Event{}, err
	}
	i := indexOf(events, id)
	if i < 0 {
		return model.Event{}, model.ErrNotFound
	}
	return events[i], nil
}

// Insert creates an event from in. For a recurring rule the generated
// instances are appended in the same write. Only the parent is returned.
func (s *Store) Insert(ctx context.Context, in model.Input) (ev model.Event, err error) {
	defer func() { s.metrics.observe("insert", err) }()

	if err := in.Validate().Err(); err != nil {
		return model.Event{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events, err := s.load(ctx)
	if err != nil {
		return model.Event{}, err
	}

	now := s.now().UTC()
	parent := model.Event{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Recurrence:  in.RecurrenceOrDefault(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	instances := schedule.Instances(parent, s.newID)
	events = append(events, parent)
	events = append(events, instances...)

	if err := s.replace(ctx, events); err != nil {
		return model.Event{}, err
	}

	appLog.Info("event created", "id", parent.ID, "recurrence", parent.Recurrence, "instances", len(instances))
	return parent, nil
}

// Update replaces the mutable fields of the event with id. id, createdAt and
// parentId are kept; other records of the series are not touched.
func (s *Store) Update(ctx context.Context, id string, in model.Input) (ev model.Event, err error) {
	defer func() { s.metrics.observe("update", err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events, err := s.load(ctx)
	if err != nil {
		return model.Event{}, err
	}
	i := indexOf(events, id)
	if i < 0 {
		return model.Event{}, model.ErrNotFound
	}
	if err := in.Validate().Err(); err != nil {
		return model.Event{}, err
	}

	updated := events[i]
	updated.Title = in.Title
	updated.Description = in.Description
	updated.StartTime = in.StartTime
	updated.EndTime = in.EndTime
	updated.Recurrence = in.RecurrenceOrDefault()
	updated.UpdatedAt = s.now().UTC()
	events[i] = updated

	if err := s.replace(ctx, events); err != nil {
		return model.Event{}, err
	}

	appLog.Info("event updated", "id", id)
	return updated, nil
}

// Delete removes the event with id together with every event generated from
// it, in one write. The returned event is the one named by id.
func (s *Store) Delete(ctx context.Context, id string) (ev model.Event, err error) {
	defer func() { s.metrics.observe("delete", err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events, err := s.load(ctx)
	if err != nil {
		return model.Event{}, err
	}
	i := indexOf(events, id)
	if i < 0 {
		return model.Event{}, model.ErrNotFound
	}
	deleted := events[i]

	kept := make([]model.Event, 0, len(events)-1)
	for _, e := range events {
		if e.ID == id || e.ParentID == id {
			continue
		}
		kept = append(kept, e)
	}

	if err := s.replace(ctx, kept); err != nil {
		return model.Event{}, err
	}

	appLog.Info("event deleted", "id", id, "cascaded", len(events)-len(kept)-1)
	return deleted, nil
}

func (s *Store) load(ctx context.Context) ([]model.Event, error) {
	events, err := s.backend.Load(ctx)
	if err != nil {
		return nil, &model.StorageError{Op: "load", Err: err}
	}
	return events, nil
}

func (s *Store) replace(ctx context.Context, events []model.Event) error {
	if err := s.backend.Replace(ctx, events); err != nil {
		return &model.StorageError{Op: "replace", Err: err}
	}
	s.metrics.setSize(len(events))
	return nil
}

func indexOf(events []model.Event, id string) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}
	return -1
}
