package handlers

import (
	"net/http"

	v1mware "github.com/deepgram/wayfinder/internal/api/v1/middleware"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/services/history"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/deepgram/wayfinder/pkg/logger"
)

// sessionFor resolves the session a history request targets. A token may
// only reach its own session.
func sessionFor(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := v1mware.GetClaims(r)
	if claims == nil {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		return claims.SessionID, true
	}
	if sessionID != claims.SessionID {
		httpext.JsonError(w, "Session does not belong to token", http.StatusForbidden)
		return "", false
	}
	return sessionID, true
}

func HandleGetHistory(historyService *history.Service, w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionFor(w, r)
	if !ok {
		return
	}

	records, err := historyService.List(r.Context(), sessionID)
	if err != nil {
		l := logger.For(logger.HANDLER)
		l.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load history")
		httpext.JsonError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	httpext.JsonResponse(w, http.StatusOK, protocol.HistoryPayload{SessionID: sessionID, Records: records})
}

func HandleClearHistory(historyService *history.Service, w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionFor(w, r)
	if !ok {
		return
	}

	if err := historyService.Clear(r.Context(), sessionID); err != nil {
		l := logger.For(logger.HANDLER)
		l.Error().Err(err).Str("session_id", sessionID).Msg("Failed to clear history")
		httpext.JsonError(w, "Failed to clear history", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
