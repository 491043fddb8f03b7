// Package handlers defines the error codes carried by the JSON error
// envelope of the /api endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. The capture endpoint does not use them: its failures
// answer with the minimal {"error": "..."} body callers of a webhook target
// expect.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "forbidden",
//	  "message": "not the owner of this slug"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidSlug   = "invalid_slug"
	ErrCodeInvalidStatus = "invalid_status"
	ErrCodeUnknownJob    = "unknown_job"
)
