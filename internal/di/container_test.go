package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/internal/dto"
	"github.com/prohmpiriya/event-registration/internal/metrics"
	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/internal/service"
	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/middleware"
	"github.com/prohmpiriya/event-registration/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testJWT = middleware.JWTConfig{Secret: "test-secret", Issuer: "test", TTL: time.Hour}

type stubOutbox struct {
	repository.OutboxRepository
}

func newMemoryContainer(t *testing.T) *Container {
	t.Helper()
	repos, err := NewRepositories(&RepositoriesConfig{Driver: config.StoreDriverMemory})
	require.NoError(t, err)
	return NewContainer(&ContainerConfig{
		Repositories:   repos,
		Metrics:        metrics.NewNop(),
		TokenValidator: middleware.NewTokenValidator(testJWT),
	})
}

func serve(c *Container, method, path, userID string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/ready", c.HealthHandler.Ready)
	c.Routes.Register(r)

	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		token, _ := middleware.NewTokenValidator(testJWT).Issue(userID, "")
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRepositories(t *testing.T) {
	_, err := NewRepositories(&RepositoriesConfig{Driver: config.StoreDriverPostgres})
	assert.Error(t, err)

	_, err = NewRepositories(&RepositoriesConfig{Driver: config.StoreDriverMongo})
	assert.Error(t, err)

	_, err = NewRepositories(&RepositoriesConfig{Driver: "sqlite"})
	assert.Error(t, err)

	repos, err := NewRepositories(&RepositoriesConfig{Driver: config.StoreDriverMemory})
	require.NoError(t, err)
	assert.NotNil(t, repos.Events)
	assert.NotNil(t, repos.Registrations)
	assert.Nil(t, repos.Outbox)
}

func TestNewContainer_OutboxDisablesDirectPublishing(t *testing.T) {
	store := repository.NewMemoryStore()
	c := NewContainer(&ContainerConfig{
		Repositories: &Repositories{
			Events:        store.Events(),
			Registrations: store.Registrations(),
			Outbox:        stubOutbox{},
		},
		EventPublisher: service.NewKafkaEventPublisherWithProducer(nil, "", ""),
		TokenValidator: middleware.NewTokenValidator(testJWT),
	})

	assert.IsType(t, &service.NoOpEventPublisher{}, c.EventPublisher)
	assert.Nil(t, c.Routes.Idempotency)
	assert.NoError(t, c.Close())
}

func TestNewContainer_EndToEnd(t *testing.T) {
	c := newMemoryContainer(t)

	event, err := domain.NewEvent("Go Meetup", "Monthly meetup", time.Now().Add(48*time.Hour), "Bangkok", "tech", 1, "org")
	require.NoError(t, err)
	require.NoError(t, c.EventRepo.Create(context.Background(), event))

	w := serve(c, http.MethodPost, "/api/events/"+event.ID+"/register", "user-1")
	require.Equal(t, http.StatusCreated, w.Code)
	var reg dto.RegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.Equal(t, "user-1", reg.UserID)
	assert.Equal(t, event.ID, reg.EventID)

	w = serve(c, http.MethodPost, "/api/events/"+event.ID+"/register", "user-2")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CAPACITY_EXCEEDED", body.Code)

	w = serve(c, http.MethodGet, "/api/events/mine?when=upcoming", "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	var mine []dto.RegistrationWithEventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Event)
	assert.Equal(t, "Go Meetup", mine[0].Event.Name)

	w = serve(c, http.MethodDelete, "/api/events/"+event.ID+"/register", "user-1")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(c, http.MethodPost, "/api/events/"+event.ID+"/register", "user-2")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestNewContainer_ReadyWithoutInfrastructure(t *testing.T) {
	c := newMemoryContainer(t)

	w := serve(c, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
