package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/internal/dto"
	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

// EventService defines the interface for the event catalog
type EventService interface {
	// ListEvents returns events matching query, soonest first
	ListEvents(ctx context.Context, query *dto.ListEventsQuery) ([]*domain.Event, error)

	// GetEvent returns an event with its registration count
	GetEvent(ctx context.Context, id string) (*dto.EventDetailResponse, error)

	// CreateEvent stores a new event. organizer defaults to createdBy.
	CreateEvent(ctx context.Context, createdBy string, req *dto.CreateEventRequest) (*domain.Event, error)

	// DeleteAllEvents removes every event and registration
	DeleteAllEvents(ctx context.Context) (int64, error)
}

type eventService struct {
	eventRepo        repository.EventRepository
	registrationRepo repository.RegistrationRepository
}

// NewEventService creates a new event service
func NewEventService(eventRepo repository.EventRepository, registrationRepo repository.RegistrationRepository) EventService {
	return &eventService{
		eventRepo:        eventRepo,
		registrationRepo: registrationRepo,
	}
}

func (s *eventService) ListEvents(ctx context.Context, query *dto.ListEventsQuery) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.list")
	defer span.End()

	filter, err := eventFilterFromQuery(query)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	events, err := s.eventRepo.List(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(events)))
	return events, nil
}

func (s *eventService) GetEvent(ctx context.Context, id string) (*dto.EventDetailResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrEventNotFound
	}

	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	registered, err := s.registrationRepo.CountByEvent(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return dto.EventDetailFromDomain(event, registered), nil
}

func (s *eventService) CreateEvent(ctx context.Context, createdBy string, req *dto.CreateEventRequest) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.create")
	defer span.End()

	if req == nil {
		return nil, domain.ErrInvalidEventName
	}
	capacity := 0
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	organizer := req.Organizer
	if strings.TrimSpace(organizer) == "" {
		organizer = createdBy
	}

	event, err := domain.NewEvent(req.Name, req.Description, req.Date, req.Location, req.Category, capacity, organizer)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Get().WithContext(ctx).Info("event created",
		zap.String("event_id", event.ID),
		zap.String("name", event.Name),
		zap.Int("capacity", event.Capacity),
	)
	span.SetAttributes(attribute.String("event_id", event.ID))
	return event, nil
}

func (s *eventService) DeleteAllEvents(ctx context.Context) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.delete_all")
	defer span.End()

	n, err := s.eventRepo.DeleteAll(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	return n, nil
}

func eventFilterFromQuery(q *dto.ListEventsQuery) (*repository.EventFilter, error) {
	if q == nil {
		return &repository.EventFilter{}, nil
	}

	filter := &repository.EventFilter{
		Search:   strings.TrimSpace(q.Search),
		Category: strings.TrimSpace(q.Category),
		Location: strings.TrimSpace(q.Location),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if q.Date != "" {
		from, err := parseDate(q.Date)
		if err != nil {
			return nil, err
		}
		filter.From = &from
	}
	return filter, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, domain.ErrInvalidDateFilter
}
