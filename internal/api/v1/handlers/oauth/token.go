package oauth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/services/oauth"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/deepgram/wayfinder/pkg/logger"
)

// HandleToken issues anonymous session tokens. Each token carries a fresh
// session id, which the chat socket announces in its connect frame.
func HandleToken(lifetime time.Duration, w http.ResponseWriter, r *http.Request) {
	l := logger.For(logger.OAUTH)

	if r.Method != http.MethodPost {
		httpext.JsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req protocol.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.GrantType != oauth.GrantTypeAnonymous {
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "unsupported_grant_type",
			ErrorDescription: "only the anonymous grant is supported",
		})
		return
	}

	signed, claims, err := oauth.IssueAnonymousToken(lifetime)
	if err != nil {
		l.Error().Err(err).Msg("Failed to issue token")
		httpext.JsonError(w, "Error creating token", http.StatusInternalServerError)
		return
	}

	l.Debug().Str("session_id", claims.SessionID).Msg("Issued anonymous token")
	httpext.JsonResponse(w, http.StatusOK, protocol.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(lifetime.Seconds()),
		SessionID:   claims.SessionID,
	})
}
