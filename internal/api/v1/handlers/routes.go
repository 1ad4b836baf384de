package handlers

import (
	"net/http"

	v1oauth "github.com/deepgram/wayfinder/internal/api/v1/handlers/oauth"
	v1ws "github.com/deepgram/wayfinder/internal/api/v1/handlers/websocket"
	v1mware "github.com/deepgram/wayfinder/internal/api/v1/middleware"
	"github.com/deepgram/wayfinder/internal/services"
	"github.com/gorilla/mux"
)

func RegisterRoutes(router *mux.Router, services *services.Services, timeouts v1ws.TimeoutConfig) {
	// Public routes (no auth required)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", HandleHealth).Methods("GET")
	api.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		HandleStatus(services, w, r)
	}).Methods("GET")

	// OAuth routes (no auth required)
	router.Handle("/oauth/token", v1mware.RateLimit("oauth_token")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1oauth.HandleToken(services.GetConfig().TokenLifetime, w, r)
	}))).Methods("POST")

	// Chat socket authenticates during the upgrade
	router.Handle("/ws", v1ws.NewHandler(services, timeouts))

	// Protected routes (require auth)
	protected := api.NewRoute().Subrouter()
	protected.Use(v1mware.RequireAuth())

	chat := protected.PathPrefix("/chat").Subrouter()
	chat.Use(v1mware.RateLimit("chat"))
	chat.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		HandleGetHistory(services.GetHistoryService(), w, r)
	}).Methods("GET")
	chat.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		HandleClearHistory(services.GetHistoryService(), w, r)
	}).Methods("DELETE")

	protected.Handle("/search/enhanced", v1mware.RateLimit("search")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleEnhancedSearch(services.GetResponder(), w, r)
	}))).Methods("POST")
}
