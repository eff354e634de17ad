package handler

import "time"

// RuleRequest represents the request structure for creating a forwarding rule
type RuleRequest struct {
	Name        string `json:"name" binding:"required"`
	Destination *int64 `json:"destination" binding:"required"`
}

// SourcesRequest lists source chat ids to add to a rule
type SourcesRequest struct {
	Sources []string `json:"sources" binding:"required,min=1"`
}

// RuleResponse represents the response structure for forwarding rules
type RuleResponse struct {
	Name        string  `json:"name"`
	Destination int64   `json:"destination"`
	Sources     []int64 `json:"sources"`
}

// AddSourcesResponse reports what an add-sources request changed
type AddSourcesResponse struct {
	Added      []int64  `json:"added"`
	Duplicates []int64  `json:"duplicates"`
	Invalid    []string `json:"invalid"`
}

// StatusResponse represents the relay status
type StatusResponse struct {
	Rules     int       `json:"rules"`
	Sources   int       `json:"sources"`
	Version   uint64    `json:"version"`
	LoggedIn  bool      `json:"logged_in"`
	Forwarder string    `json:"forwarder"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Storage   string            `json:"storage"`
	Details   map[string]string `json:"details"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
