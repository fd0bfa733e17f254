package schemas

import (
	"fmt"
	"net/http"
)

// ErrorResponse represents a standard API error (RFC 7807).
// It implements the standard Go error interface.
type ErrorResponse struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"` // HTTP Status Code
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

// Error implements the error interface.
// This allows ErrorResponse to be returned as a standard Go error.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// NewErrorResponse creates a general ErrorResponse.
func NewErrorResponse(status int, title, detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     fmt.Sprintf("https://travvy.app/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// --- Helper Constructors for Common HTTP Errors ---

// NewBadRequestError creates a 400 Bad Request error.
func NewBadRequestError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, "Bad Request", detail, instance)
}

// NewForbiddenError creates a 403 Forbidden error.
func NewForbiddenError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusForbidden, "Forbidden", detail, instance)
}

// NewNotFoundError creates a 404 Not Found error.
func NewNotFoundError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusNotFound, "Not Found", detail, instance)
}

// NewConflictError creates a 409 Conflict error.
func NewConflictError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusConflict, "Conflict", detail, instance)
}

// NewInternalError creates a 500 Internal Server Error.
// Note: Be careful not to expose sensitive technical details in production.
func NewInternalError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal Server Error", detail, instance)
}

// --- Domain-Specific Error Constructors ---

// VersionConflictError creates a 409 Conflict error for an optimistic-lock
// failure. The client must re-fetch the trip and resubmit with the current
// version.
func VersionConflictError(detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://travvy.app/version-conflict",
		Title:    "Version Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	}
}

// JobAlreadyActiveError creates a 409 Conflict error for a duplicate
// generation request while a job is still running for the trip.
func JobAlreadyActiveError(detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://travvy.app/job-already-active",
		Title:    "Job Already Active",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	}
}
