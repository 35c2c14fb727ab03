package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/prohmpiriya/event-registration/internal/domain"
)

// MemoryStore keeps events and registrations in process memory. A single
// mutex makes every admission atomic.
type MemoryStore struct {
	mu            sync.RWMutex
	events        map[string]*domain.Event
	registrations map[string]*domain.Registration // by registration id
	byUserEvent   map[userEventKey]string
}

type userEventKey struct {
	userID  string
	eventID string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]*domain.Event),
		registrations: make(map[string]*domain.Registration),
		byUserEvent:   make(map[userEventKey]string),
	}
}

// Events returns the store's EventRepository
func (s *MemoryStore) Events() EventRepository {
	return &memoryEventRepository{s}
}

// Registrations returns the store's RegistrationRepository
func (s *MemoryStore) Registrations() RegistrationRepository {
	return &memoryRegistrationRepository{s}
}

func (s *MemoryStore) countLocked(eventID string) int {
	n := 0
	for _, r := range s.registrations {
		if r.EventID == eventID && r.IsActive() {
			n++
		}
	}
	return n
}

type memoryEventRepository struct {
	s *MemoryStore
}

func (r *memoryEventRepository) Create(ctx context.Context, event *domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.events[event.ID]; ok {
		return domain.ErrEventAlreadyExists
	}
	cp := *event
	r.s.events[event.ID] = &cp
	return nil
}

func (r *memoryEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memoryEventRepository) List(ctx context.Context, filter *EventFilter) ([]*domain.Event, error) {
	if filter == nil {
		filter = &EventFilter{}
	}

	r.s.mu.RLock()
	out := make([]*domain.Event, 0, len(r.s.events))
	for _, e := range r.s.events {
		if matchesFilter(e, filter) {
			cp := *e
			out = append(out, &cp)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})

	return paginate(out, filter.Offset, filter.Limit), nil
}

func (r *memoryEventRepository) DeleteAll(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := int64(len(r.s.events))
	r.s.events = make(map[string]*domain.Event)
	r.s.registrations = make(map[string]*domain.Registration)
	r.s.byUserEvent = make(map[userEventKey]string)
	return n, nil
}

type memoryRegistrationRepository struct {
	s *MemoryStore
}

func (r *memoryRegistrationRepository) Admit(ctx context.Context, reg *domain.Registration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.events[reg.EventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if !event.HasCapacityFor(r.s.countLocked(reg.EventID)) {
		return domain.ErrCapacityExceeded
	}
	key := userEventKey{reg.UserID, reg.EventID}
	if _, ok := r.s.byUserEvent[key]; ok {
		return domain.ErrDuplicateRegistration
	}

	cp := *reg
	r.s.registrations[reg.ID] = &cp
	r.s.byUserEvent[key] = reg.ID
	return nil
}

func (r *memoryRegistrationRepository) Remove(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := userEventKey{userID, eventID}
	id, ok := r.s.byUserEvent[key]
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	reg := r.s.registrations[id]
	delete(r.s.registrations, id)
	delete(r.s.byUserEvent, key)
	return reg, nil
}

func (r *memoryRegistrationRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.countLocked(eventID), nil
}

func (r *memoryRegistrationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Registration, error) {
	r.s.mu.RLock()
	out := make([]*domain.Registration, 0)
	for _, reg := range r.s.registrations {
		if reg.UserID == userID {
			cp := *reg
			out = append(out, &cp)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matchesFilter(e *domain.Event, f *EventFilter) bool {
	if f.Search != "" && !containsFold(e.Name, f.Search) {
		return false
	}
	if f.Category != "" && !containsFold(e.Category, f.Category) {
		return false
	}
	if f.Location != "" && !containsFold(e.Location, f.Location) {
		return false
	}
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
