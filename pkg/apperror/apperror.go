package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ========================================
// ERROR TAXONOMY
// ========================================
// Mọi lỗi trong application đều là *Error với status code, error code,
// message và detail. Một handler duy nhất ở boundary convert *Error
// thành response body thống nhất {error_code, message, detail}.
//
// Phân nhóm:
//   - Client errors (4xx): BadRequest, Validation, Unauthorized, Forbidden,
//     NotFound, Conflict, Duplicate
//   - Server errors (5xx): Internal, Database, ExternalService, Unavailable
//   - Business errors:     Business, InvalidOperation, ResourceLocked
//
// Domain packages extend taxonomy bằng error code riêng nhưng luôn giữ
// status mapping của base kind (xem WithCode).

// Error là root của taxonomy. Implement error interface và hỗ trợ
// errors.As / errors.Is qua toàn bộ chain.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap expose lỗi gốc cho errors.Is/errors.As
func (e *Error) Unwrap() error { return e.cause }

// Is cho phép errors.Is so sánh theo error code
// (hai *Error cùng code được coi là cùng loại lỗi)
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail gắn structured detail (model, id, ...) vào error.
// Trả về chính error để chain được.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// WithCode override error code cho domain-specific errors
// (vd: ACCESS_LOG_INVALID_DATE_RANGE kế thừa BadRequest).
// Status code của base kind được giữ nguyên.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithCause wrap lỗi gốc để preserve error chain
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// ========================================
// CLIENT ERRORS (4xx)
// ========================================

func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, "BAD_REQUEST", message)
}

func Validation(message string) *Error {
	return newError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message)
}

func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(message string) *Error {
	return newError(http.StatusForbidden, "FORBIDDEN", message)
}

func NotFound(message string) *Error {
	return newError(http.StatusNotFound, "NOT_FOUND", message)
}

func Conflict(message string) *Error {
	return newError(http.StatusConflict, "CONFLICT", message)
}

// Duplicate là Conflict chuyên cho unique constraint violation
func Duplicate(message string) *Error {
	return newError(http.StatusConflict, "DUPLICATE", message)
}

// ========================================
// SERVER ERRORS (5xx)
// ========================================

func Internal(message string) *Error {
	return newError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message)
}

func Database(message string) *Error {
	return newError(http.StatusInternalServerError, "DATABASE_ERROR", message)
}

func ExternalService(message string) *Error {
	return newError(http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR", message)
}

func Unavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}

// ========================================
// BUSINESS ERRORS
// ========================================

func Business(message string) *Error {
	return newError(http.StatusBadRequest, "BUSINESS_ERROR", message)
}

func InvalidOperation(message string) *Error {
	return newError(http.StatusBadRequest, "INVALID_OPERATION", message)
}

func ResourceLocked(message string) *Error {
	return newError(http.StatusLocked, "RESOURCE_LOCKED", message)
}

// ========================================
// HELPERS
// ========================================

// From extract *Error từ một error chain.
// Trả về (nil, false) nếu err không thuộc taxonomy.
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind check err có phải taxonomy error với code cho trước không
func IsKind(err error, code string) bool {
	if e, ok := From(err); ok {
		return e.Code == code
	}
	return false
}
