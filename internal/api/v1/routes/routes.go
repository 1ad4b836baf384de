package routes

import (
	v1handlers "github.com/deepgram/wayfinder/internal/api/v1/handlers"
	v1ws "github.com/deepgram/wayfinder/internal/api/v1/handlers/websocket"
	v1mware "github.com/deepgram/wayfinder/internal/api/v1/middleware"
	"github.com/deepgram/wayfinder/internal/services"
	"github.com/gorilla/mux"
)

// NewRouter builds the backend router with default socket timeouts.
func NewRouter(svc *services.Services) *mux.Router {
	return NewRouterWithTimeouts(svc, v1ws.DefaultTimeouts)
}

func NewRouterWithTimeouts(svc *services.Services, timeouts v1ws.TimeoutConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(v1mware.RateLimit("global"))
	v1handlers.RegisterRoutes(r, svc, timeouts)
	return r
}
