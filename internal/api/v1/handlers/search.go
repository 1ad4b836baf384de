package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/services/responder"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// HandleEnhancedSearch answers a location query with a summary and tips. The
// request can run for minutes; clients use their long timeout for it.
func HandleEnhancedSearch(responderService responder.Responder, w http.ResponseWriter, r *http.Request) {
	l := logger.For(logger.SEARCH)

	var req protocol.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		description := err.Error()
		if errors.As(err, &verrs) && len(verrs) > 0 {
			description = verrs[0].Field() + " failed " + verrs[0].Tag()
		}
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: description,
		})
		return
	}

	start := time.Now()
	summary, tips, err := responderService.Tips(r.Context(), req)
	if err != nil {
		l.Error().Err(err).Str("query", req.Query).Msg("Enhanced search failed")
		httpext.JsonError(w, "Search failed", http.StatusBadGateway)
		return
	}

	elapsed := time.Since(start)
	l.Info().Str("query", req.Query).Int("tips", len(tips)).Dur("elapsed", elapsed).Msg("Enhanced search answered")

	httpext.JsonResponse(w, http.StatusOK, protocol.SearchResponse{
		Query:          req.Query,
		Summary:        summary,
		Tips:           tips,
		ElapsedSeconds: elapsed.Seconds(),
	})
}
