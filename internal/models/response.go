package models

// Error codes returned in ErrorResponse.Code.
const (
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidEditTarget = "INVALID_EDIT_TARGET"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeNoActiveStory     = "NO_ACTIVE_STORY"
	ErrCodeSuperseded        = "SUPERSEDED"
	ErrCodeUpstream          = "UPSTREAM_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
