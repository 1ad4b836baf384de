package handlers

import (
	"net/http"

	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/services"
	"github.com/deepgram/wayfinder/pkg/httpext"
)

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	httpext.JsonResponse(w, http.StatusOK, protocol.HealthResponse{Status: "ok"})
}

func HandleStatus(svc *services.Services, w http.ResponseWriter, r *http.Request) {
	httpext.JsonResponse(w, http.StatusOK, protocol.StatusResponse{
		Status:        "ok",
		Connections:   svc.Connections(),
		HistoryStore:  svc.GetHistoryService().Backend(),
		Responder:     svc.GetResponder().Name(),
		UptimeSeconds: svc.Uptime().Seconds(),
	})
}
