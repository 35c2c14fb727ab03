package handler

import (
	"github.com/gin-gonic/gin"
)

// Routes groups the handlers served under /api/events
type Routes struct {
	Events        *EventHandler
	Registrations *RegistrationHandler
	// Auth guards write routes and /mine
	Auth gin.HandlerFunc
	// Idempotency wraps register and cancel when set
	Idempotency gin.HandlerFunc
}

// Register mounts the event and registration routes on r
func (rt *Routes) Register(r gin.IRouter) {
	events := r.Group("/api/events")
	{
		events.GET("", rt.Events.List)
		events.POST("", rt.Auth, rt.Events.Create)
		events.GET("/mine", rt.Auth, rt.Registrations.ListMine)
		events.GET("/:id", rt.Events.Get)
		events.POST("/:id/register", rt.idempotent(rt.Registrations.Register)...)
		events.DELETE("/:id/register", rt.idempotent(rt.Registrations.Cancel)...)
	}
}

func (rt *Routes) idempotent(h gin.HandlerFunc) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{rt.Auth}
	if rt.Idempotency != nil {
		chain = append(chain, rt.Idempotency)
	}
	return append(chain, h)
}
