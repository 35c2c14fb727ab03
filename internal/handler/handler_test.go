package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/internal/dto"
	"github.com/prohmpiriya/event-registration/pkg/middleware"
	"github.com/prohmpiriya/event-registration/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockRegistrationService is a mock implementation of RegistrationService for testing
type MockRegistrationService struct {
	RegisterFunc    func(ctx context.Context, userID, eventID string) (*domain.Registration, error)
	CancelFunc      func(ctx context.Context, userID, eventID string) (*dto.CancelRegistrationResponse, error)
	ListForUserFunc func(ctx context.Context, userID, when string) ([]*domain.RegistrationWithEvent, error)
}

func (m *MockRegistrationService) Register(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, userID, eventID)
	}
	return nil, nil
}

func (m *MockRegistrationService) Cancel(ctx context.Context, userID, eventID string) (*dto.CancelRegistrationResponse, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, userID, eventID)
	}
	return nil, nil
}

func (m *MockRegistrationService) ListForUser(ctx context.Context, userID, when string) ([]*domain.RegistrationWithEvent, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID, when)
	}
	return []*domain.RegistrationWithEvent{}, nil
}

// MockEventService is a mock implementation of EventService for testing
type MockEventService struct {
	ListEventsFunc      func(ctx context.Context, query *dto.ListEventsQuery) ([]*domain.Event, error)
	GetEventFunc        func(ctx context.Context, id string) (*dto.EventDetailResponse, error)
	CreateEventFunc     func(ctx context.Context, createdBy string, req *dto.CreateEventRequest) (*domain.Event, error)
	DeleteAllEventsFunc func(ctx context.Context) (int64, error)
}

func (m *MockEventService) ListEvents(ctx context.Context, query *dto.ListEventsQuery) ([]*domain.Event, error) {
	if m.ListEventsFunc != nil {
		return m.ListEventsFunc(ctx, query)
	}
	return []*domain.Event{}, nil
}

func (m *MockEventService) GetEvent(ctx context.Context, id string) (*dto.EventDetailResponse, error) {
	if m.GetEventFunc != nil {
		return m.GetEventFunc(ctx, id)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockEventService) CreateEvent(ctx context.Context, createdBy string, req *dto.CreateEventRequest) (*domain.Event, error) {
	if m.CreateEventFunc != nil {
		return m.CreateEventFunc(ctx, createdBy, req)
	}
	return nil, nil
}

func (m *MockEventService) DeleteAllEvents(ctx context.Context) (int64, error) {
	if m.DeleteAllEventsFunc != nil {
		return m.DeleteAllEventsFunc(ctx)
	}
	return 0, nil
}

var testJWT = middleware.JWTConfig{Secret: "test-secret", Issuer: "test", TTL: time.Hour}

func setupRouter(regs *MockRegistrationService, events *MockEventService) *gin.Engine {
	r := gin.New()
	routes := &Routes{
		Events:        NewEventHandler(events),
		Registrations: NewRegistrationHandler(regs),
		Auth:          middleware.Auth(middleware.NewTokenValidator(testJWT)),
	}
	routes.Register(r)
	return r
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.NewTokenValidator(testJWT).Issue(userID, "")
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(r *gin.Engine, method, path, auth string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRegister_Success(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var gotUser, gotEvent string
	regs := &MockRegistrationService{
		RegisterFunc: func(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
			gotUser, gotEvent = userID, eventID
			return &domain.Registration{
				ID: "reg-1", UserID: userID, EventID: eventID,
				Status: domain.RegistrationStatusRegistered, CreatedAt: created,
			}, nil
		},
	}
	r := setupRouter(regs, &MockEventService{})

	w := doRequest(r, http.MethodPost, "/api/events/evt-1/register", bearer(t, "user-1"), nil)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "evt-1", gotEvent)

	var body dto.RegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "reg-1", body.ID)
	assert.Equal(t, "user-1", body.UserID)
	assert.Equal(t, "evt-1", body.EventID)
	assert.Equal(t, "registered", body.Status)
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"event not found", domain.ErrEventNotFound, http.StatusNotFound, CodeEventNotFound, MsgEventNotFound},
		{"full", domain.ErrCapacityExceeded, http.StatusBadRequest, CodeCapacityExceeded, MsgCapacityExceeded},
		{"duplicate", domain.ErrDuplicateRegistration, http.StatusBadRequest, CodeDuplicateRegistration, MsgDuplicateRegistration},
		{"wrapped full", errors.Join(errors.New("tx"), domain.ErrCapacityExceeded), http.StatusBadRequest, CodeCapacityExceeded, MsgCapacityExceeded},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError, response.CodeInternal, "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs := &MockRegistrationService{
				RegisterFunc: func(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
					return nil, tt.err
				},
			}
			r := setupRouter(regs, &MockEventService{})

			w := doRequest(r, http.MethodPost, "/api/events/evt-1/register", bearer(t, "user-1"), nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.Equal(t, http.StatusText(tt.wantStatus), body.Error)
		})
	}
}

func TestRegister_RequiresToken(t *testing.T) {
	called := false
	regs := &MockRegistrationService{
		RegisterFunc: func(ctx context.Context, userID, eventID string) (*domain.Registration, error) {
			called = true
			return nil, nil
		},
	}
	r := setupRouter(regs, &MockEventService{})

	w := doRequest(r, http.MethodPost, "/api/events/evt-1/register", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/api/events/evt-1/register", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
}

func TestCancel_Success(t *testing.T) {
	regs := &MockRegistrationService{
		CancelFunc: func(ctx context.Context, userID, eventID string) (*dto.CancelRegistrationResponse, error) {
			return &dto.CancelRegistrationResponse{Message: dto.CancelledMessage, RegistrationID: "reg-1"}, nil
		},
	}
	r := setupRouter(regs, &MockEventService{})

	w := doRequest(r, http.MethodDelete, "/api/events/evt-1/register", bearer(t, "user-1"), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Registration cancelled","registrationId":"reg-1"}`, w.Body.String())
}

func TestCancel_NotFound(t *testing.T) {
	regs := &MockRegistrationService{
		CancelFunc: func(ctx context.Context, userID, eventID string) (*dto.CancelRegistrationResponse, error) {
			return nil, domain.ErrRegistrationNotFound
		},
	}
	r := setupRouter(regs, &MockEventService{})

	w := doRequest(r, http.MethodDelete, "/api/events/evt-1/register", bearer(t, "user-1"), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, CodeRegistrationNotFound, body.Code)
	assert.Equal(t, MsgRegistrationNotFound, body.Message)
}

func TestListMine(t *testing.T) {
	var gotWhen string
	event := &domain.Event{ID: "evt-1", Name: "Go Conf", Capacity: 10}
	regs := &MockRegistrationService{
		ListForUserFunc: func(ctx context.Context, userID, when string) ([]*domain.RegistrationWithEvent, error) {
			gotWhen = when
			return []*domain.RegistrationWithEvent{
				{Registration: &domain.Registration{ID: "reg-2", UserID: userID, EventID: "evt-1", Status: domain.RegistrationStatusRegistered}, Event: event},
				{Registration: &domain.Registration{ID: "reg-1", UserID: userID, EventID: "gone", Status: domain.RegistrationStatusRegistered}},
			}, nil
		},
	}
	r := setupRouter(regs, &MockEventService{})

	w := doRequest(r, http.MethodGet, "/api/events/mine?when=upcoming", bearer(t, "user-1"), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.WhenUpcoming, gotWhen)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "reg-2", body[0]["id"])
	assert.Equal(t, "Go Conf", body[0]["event"].(map[string]interface{})["name"])
	assert.Nil(t, body[1]["event"])
}

func TestListMine_InvalidFilter(t *testing.T) {
	r := setupRouter(&MockRegistrationService{}, &MockEventService{})

	w := doRequest(r, http.MethodGet, "/api/events/mine?when=someday", bearer(t, "user-1"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/events/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEventGet(t *testing.T) {
	events := &MockEventService{
		GetEventFunc: func(ctx context.Context, id string) (*dto.EventDetailResponse, error) {
			if id != "evt-1" {
				return nil, domain.ErrEventNotFound
			}
			e := &domain.Event{ID: id, Name: "Go Conf", Capacity: 10}
			return dto.EventDetailFromDomain(e, 4), nil
		},
	}
	r := setupRouter(&MockRegistrationService{}, events)

	w := doRequest(r, http.MethodGet, "/api/events/evt-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body dto.EventDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Registered)
	assert.Equal(t, 6, body.SpotsLeft)

	w = doRequest(r, http.MethodGet, "/api/events/other", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MsgEventNotFound, decodeError(t, w).Message)
}

func TestEventList_PassesFilters(t *testing.T) {
	var got *dto.ListEventsQuery
	events := &MockEventService{
		ListEventsFunc: func(ctx context.Context, query *dto.ListEventsQuery) ([]*domain.Event, error) {
			got = query
			return []*domain.Event{{ID: "evt-1", Name: "Go Conf"}}, nil
		},
	}
	r := setupRouter(&MockRegistrationService{}, events)

	w := doRequest(r, http.MethodGet, "/api/events?search=go&category=tech&location=bkk&date=2027-01-01", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "go", got.Search)
	assert.Equal(t, "tech", got.Category)
	assert.Equal(t, "bkk", got.Location)
	assert.Equal(t, "2027-01-01", got.Date)
}

func TestEventList_BadDate(t *testing.T) {
	events := &MockEventService{
		ListEventsFunc: func(ctx context.Context, query *dto.ListEventsQuery) ([]*domain.Event, error) {
			return nil, domain.ErrInvalidDateFilter
		},
	}
	r := setupRouter(&MockRegistrationService{}, events)

	w := doRequest(r, http.MethodGet, "/api/events?date=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, decodeError(t, w).Code)
}

func TestEventCreate(t *testing.T) {
	var createdBy string
	events := &MockEventService{
		CreateEventFunc: func(ctx context.Context, by string, req *dto.CreateEventRequest) (*domain.Event, error) {
			createdBy = by
			return &domain.Event{ID: "evt-9", Name: req.Name, Capacity: *req.Capacity, Date: req.Date}, nil
		},
	}
	r := setupRouter(&MockRegistrationService{}, events)

	body := []byte(`{"name":"Go Conf","description":"talks","date":"2027-03-01T09:00:00Z","capacity":50}`)
	w := doRequest(r, http.MethodPost, "/api/events", bearer(t, "organizer-1"), body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "organizer-1", createdBy)
	var got dto.EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "evt-9", got.ID)
	assert.Equal(t, 50, got.Capacity)
}

func TestEventCreate_MissingFields(t *testing.T) {
	r := setupRouter(&MockRegistrationService{}, &MockEventService{})

	w := doRequest(r, http.MethodPost, "/api/events", bearer(t, "organizer-1"), []byte(`{"name":"Go Conf"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please include all fields", decodeError(t, w).Message)
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{
		"database": HealthCheckFunc(func(ctx context.Context) error { return nil }),
		"kafka":    nil,
	})
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	w := doRequest(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "healthy", ready.Components["database"])
	assert.Equal(t, "not configured", ready.Components["kafka"])
}

func TestHealthHandler_NotReady(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{
		"redis": HealthCheckFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") }),
	})
	r := gin.New()
	r.GET("/ready", h.Ready)

	w := doRequest(r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
