package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/internal/dto"
	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	"github.com/prohmpiriya/event-registration/pkg/telemetry"
)

// RegistrationService defines the interface for registration business logic
type RegistrationService interface {
	// Register admits userID to eventID
	Register(ctx context.Context, userID, eventID string) (*domain.Registration, error)

	// Cancel removes the user's registration for eventID
	Cancel(ctx context.Context, userID, eventID string) (*dto.CancelRegistrationResponse, error)

	// ListForUser returns the user's registrations joined with their events,
	// newest first. when is "", dto.WhenUpcoming or dto.WhenPast.
	ListForUser(ctx context.Context, userID, when string) ([]*domain.RegistrationWithEvent, error)
}

// RegistrationServiceConfig contains configuration for registration service
type RegistrationServiceConfig struct {
	// JoinConcurrency bounds parallel event lookups in ListForUser
	JoinConcurrency int
	// Now is the clock used by the upcoming/past split
	Now func() time.Time
}

// registrationService implements RegistrationService
type registrationService struct {
	eventRepo        repository.EventRepository
	registrationRepo repository.RegistrationRepository
	eventPublisher   EventPublisher
	metrics          *metrics.Metrics
	joinConcurrency  int
	now              func() time.Time
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(
	eventRepo repository.EventRepository,
	registrationRepo repository.RegistrationRepository,
	eventPublisher EventPublisher,
	m *metrics.Metrics,
	cfg *RegistrationServiceConfig,
) RegistrationService {
	concurrency := 8
	now := time.Now
	if cfg != nil {
		if cfg.JoinConcurrency > 0 {
			concurrency = cfg.JoinConcurrency
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &registrationService{
		eventRepo:        eventRepo,
		registrationRepo: registrationRepo,
		eventPublisher:   eventPublisher,
		metrics:          m,
		joinConcurrency:  concurrency,
		now:              now,
	}
}

// Register admits userID to eventID. The event must exist, have a free seat
// and not already hold a registration of this user.
func (s *registrationService) Register(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.register")
	defer span.End()

	userID = strings.TrimSpace(userID)
	eventID = strings.TrimSpace(eventID)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		s.metrics.RecordRegistration(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidUserID
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		s.metrics.RecordRegistration(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidEventID
	}

	if _, err := s.eventRepo.GetByID(ctx, eventID); err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordRegistration(registrationOutcome(err))
		return nil, err
	}

	reg, err := domain.NewRegistration(userID, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordRegistration(metrics.OutcomeInvalid)
		return nil, err
	}

	start := time.Now()
	err = s.registrationRepo.Admit(ctx, reg)
	s.metrics.ObserveAdmission(start)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordRegistration(registrationOutcome(err))
		if !domain.IsConflictError(err) && !domain.IsNotFoundError(err) {
			logger.Get().WithContext(ctx).Error("registration admission failed",
				zap.String("user_id", userID),
				zap.String("event_id", eventID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if err := s.eventPublisher.PublishRegistrationCreated(ctx, reg); err != nil {
		logger.Get().WithContext(ctx).Warn(fmt.Sprintf("failed to publish registration %s created", reg.ID), zap.Error(err))
	}

	s.metrics.RecordRegistration(metrics.OutcomeAdmitted)
	span.AddEvent("registration_admitted", trace.WithAttributes(
		attribute.String("registration_id", reg.ID),
	))
	span.SetStatus(codes.Ok, "")
	return reg, nil
}

// Cancel deletes the user's registration for eventID
func (s *registrationService) Cancel(ctx context.Context, userID, eventID string) (*dto.CancelRegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.cancel")
	defer span.End()

	userID = strings.TrimSpace(userID)
	eventID = strings.TrimSpace(eventID)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		s.metrics.RecordCancellation(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidUserID
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		s.metrics.RecordCancellation(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidEventID
	}

	reg, err := s.registrationRepo.Remove(ctx, userID, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			s.metrics.RecordCancellation("not_found")
		} else {
			s.metrics.RecordCancellation(metrics.OutcomeError)
		}
		return nil, err
	}

	if err := s.eventPublisher.PublishRegistrationCancelled(ctx, reg); err != nil {
		logger.Get().WithContext(ctx).Warn(fmt.Sprintf("failed to publish registration %s cancelled", reg.ID), zap.Error(err))
	}

	s.metrics.RecordCancellation("cancelled")
	span.SetAttributes(attribute.String("registration_id", reg.ID))
	span.SetStatus(codes.Ok, "")
	return dto.NewCancelRegistrationResponse(reg), nil
}

// ListForUser joins each of the user's registrations with its event.
// Registrations whose event is gone carry a nil Event and are left out of
// the upcoming and past views.
func (s *registrationService) ListForUser(ctx context.Context, userID, when string) ([]*domain.RegistrationWithEvent, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.list_for_user")
	defer span.End()

	userID = strings.TrimSpace(userID)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("when", when),
	)

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	switch when {
	case "", dto.WhenUpcoming, dto.WhenPast:
	default:
		span.SetStatus(codes.Error, "invalid filter")
		return nil, domain.ErrInvalidListFilter
	}

	regs, err := s.registrationRepo.ListByUser(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	events, err := s.loadEvents(ctx, regs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.now()
	out := make([]*domain.RegistrationWithEvent, 0, len(regs))
	for _, reg := range regs {
		event := events[reg.EventID]
		switch when {
		case dto.WhenUpcoming:
			if event == nil || !event.IsUpcoming(now) {
				continue
			}
		case dto.WhenPast:
			if event == nil || event.IsUpcoming(now) {
				continue
			}
		}
		out = append(out, &domain.RegistrationWithEvent{Registration: reg, Event: event})
	}

	span.SetAttributes(attribute.Int("count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// loadEvents fetches the distinct events of regs concurrently. Missing
// events map to nil.
func (s *registrationService) loadEvents(ctx context.Context, regs []*domain.Registration) (map[string]*domain.Event, error) {
	events := make(map[string]*domain.Event, len(regs))
	seen := make(map[string]struct{}, len(regs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.joinConcurrency)

	for _, reg := range regs {
		eventID := reg.EventID
		if _, ok := seen[eventID]; ok {
			continue
		}
		seen[eventID] = struct{}{}

		g.Go(func() error {
			event, err := s.eventRepo.GetByID(gctx, eventID)
			if err != nil {
				if errors.Is(err, domain.ErrEventNotFound) {
					return nil
				}
				return fmt.Errorf("failed to load event %s: %w", eventID, err)
			}
			mu.Lock()
			events[eventID] = event
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrCapacityExceeded):
		return metrics.OutcomeFull
	case errors.Is(err, domain.ErrDuplicateRegistration):
		return metrics.OutcomeDuplicate
	case domain.IsValidationError(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
