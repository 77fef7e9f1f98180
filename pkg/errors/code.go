package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth & Session errors
// 12000-12999: Transport & Protocol errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Draft errors
// 15000-15999: Settlement errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Auth & Session Errors (11000-11999) ==========

	// AuthExpired means the refresh exchange failed or a refreshed token was
	// rejected again; the session is gone and the user must log in.
	AuthExpired     ErrorCode = 11000
	SessionNotFound ErrorCode = 11001
	TokenInvalid    ErrorCode = 11002
	LoginFailed     ErrorCode = 11003

	// ========== Transport & Protocol Errors (12000-12999) ==========

	TransportError  ErrorCode = 12000
	ProtocolError   ErrorCode = 12001
	RequestRejected ErrorCode = 12002

	// ========== Submission & Judge Errors (13000-13999) ==========

	SubmissionRejected   ErrorCode = 13000
	JudgeTimeout         ErrorCode = 13001
	LanguageNotSupported ErrorCode = 13002
	StaleResult          ErrorCode = 13003

	// ========== Draft Errors (14000-14999) ==========

	DraftSaveFailed ErrorCode = 14000
	DraftNotFound   ErrorCode = 14001

	// ========== Settlement Errors (15000-15999) ==========

	MarkSolvedFailed ErrorCode = 15000
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError: "Cache operation failed",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Auth
	AuthExpired:     "Session expired, please log in again",
	SessionNotFound: "Session not found",
	TokenInvalid:    "Invalid token",
	LoginFailed:     "Invalid username or password",

	// Transport
	TransportError:  "Network request failed",
	ProtocolError:   "Unexpected response from server",
	RequestRejected: "Request rejected by server",

	// Submission
	SubmissionRejected:   "Submission rejected",
	JudgeTimeout:         "Judging did not finish in time",
	LanguageNotSupported: "Programming language not supported",
	StaleResult:          "Result superseded by a newer submission",

	// Draft
	DraftSaveFailed: "Failed to save draft",
	DraftNotFound:   "Draft not found",

	// Settlement
	MarkSolvedFailed: "Failed to mark problem as solved",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == Unauthorized, c == AuthExpired, c == TokenInvalid, c == LoginFailed:
		return http.StatusUnauthorized
	case c == Forbidden:
		return http.StatusForbidden
	case c == NotFound, c == SessionNotFound, c == DraftNotFound:
		return http.StatusNotFound
	case c == TooManyRequests:
		return http.StatusTooManyRequests
	case c == ServiceUnavailable:
		return http.StatusServiceUnavailable
	case c == Timeout, c == JudgeTimeout:
		return http.StatusGatewayTimeout
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	case c == InvalidParams, c == LanguageNotSupported, c == SubmissionRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus picks the code that describes a non-2xx response status.
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status >= 200 && status < 300:
		return Success
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return InvalidParams
	case status == http.StatusUnauthorized:
		return Unauthorized
	case status == http.StatusForbidden:
		return Forbidden
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusTooManyRequests:
		return TooManyRequests
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return Timeout
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway:
		return ServiceUnavailable
	case status >= 500:
		return InternalServerError
	default:
		return RequestRejected
	}
}
