package model

// ErrorResponse is the JSON error body shared by every service.
type ErrorResponse struct {
	Detail        string `json:"detail"`
	CorrelationID string `json:"correlationId,omitempty"`
}
