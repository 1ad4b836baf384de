package protocol

// REST bodies shared by the client and the backend.

type HealthResponse struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	Status        string  `json:"status"`
	Connections   int     `json:"connections"`
	HistoryStore  string  `json:"history_store"`
	Responder     string  `json:"responder"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type TokenRequest struct {
	GrantType string `json:"grant_type"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	SessionID   string `json:"session_id,omitempty"`
}

type SearchRequest struct {
	Query     string  `json:"query" validate:"required,max=500"`
	Latitude  float64 `json:"latitude,omitempty" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude,omitempty" validate:"gte=-180,lte=180"`
	RadiusKM  float64 `json:"radius_km,omitempty" validate:"gte=0,lte=100"`
}

type SearchResponse struct {
	Query          string   `json:"query"`
	Summary        string   `json:"summary"`
	Tips           []string `json:"tips"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
}
