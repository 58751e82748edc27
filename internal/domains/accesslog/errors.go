package accesslog

import (
	"fmt"

	"accesslog-backend/pkg/apperror"
)

// ============================================================
// DOMAIN ERRORS
// ============================================================
// Domain error = taxonomy error + error code riêng của domain.
// Status code kế thừa từ base kind nên handler không cần mapping
// riêng cho từng code:
//     INVALID_DATE_RANGE        => 400 (BadRequest)
//     ACCESS_LOG_NOT_FOUND      => 404 (NotFound)
//     DUPLICATE_SESSION_TOKEN   => 409 (Duplicate)
//
// Check bằng apperror.IsKind(err, CodeXxx).

const (
	CodeLogNotFound           = "ACCESS_LOG_NOT_FOUND"
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeInvalidDateRange      = "INVALID_DATE_RANGE"
	CodeDuplicateSessionToken = "DUPLICATE_SESSION_TOKEN"
	CodeInvalidPayload        = "INVALID_LOG_PAYLOAD"
)

func ErrLogNotFound(id string) *apperror.Error {
	return apperror.NotFound(fmt.Sprintf("access log %s not found", id)).
		WithCode(CodeLogNotFound).
		WithDetail(map[string]string{"id": id})
}

func ErrSessionNotFound(id string) *apperror.Error {
	return apperror.NotFound(fmt.Sprintf("visitor session %s not found", id)).
		WithCode(CodeSessionNotFound).
		WithDetail(map[string]string{"id": id})
}

// ErrInvalidDateRange: start phải đứng trước end. Service trả lỗi này
// trước khi chạm DB.
func ErrInvalidDateRange(start, end string) *apperror.Error {
	return apperror.BadRequest("start must be before end").
		WithCode(CodeInvalidDateRange).
		WithDetail(map[string]string{"start": start, "end": end})
}

func ErrDuplicateSessionToken(token string) *apperror.Error {
	return apperror.Duplicate("session token already exists").
		WithCode(CodeDuplicateSessionToken).
		WithDetail(map[string]string{"token": token})
}

func ErrInvalidPayload(cause error) *apperror.Error {
	return apperror.Validation("invalid access log payload").
		WithCode(CodeInvalidPayload).
		WithCause(cause)
}
