package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	. "ojclient/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{AuthExpired, "Session expired, please log in again"},
		{InvalidParams, "Invalid parameters"},
		{ProtocolError, "Unexpected response from server"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{LanguageNotSupported, 400},
		{Unauthorized, 401},
		{AuthExpired, 401},
		{Forbidden, 403},
		{DraftNotFound, 404},
		{TooManyRequests, 429},
		{JudgeTimeout, 504},
		{InternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusOK, Success},
		{http.StatusCreated, Success},
		{http.StatusBadRequest, InvalidParams},
		{http.StatusUnprocessableEntity, InvalidParams},
		{http.StatusUnauthorized, Unauthorized},
		{http.StatusForbidden, Forbidden},
		{http.StatusNotFound, NotFound},
		{http.StatusTooManyRequests, TooManyRequests},
		{http.StatusGatewayTimeout, Timeout},
		{http.StatusBadGateway, ServiceUnavailable},
		{http.StatusInternalServerError, InternalServerError},
		{http.StatusConflict, RequestRejected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := FromHTTPStatus(tt.status); got != tt.want {
				t.Errorf("FromHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(DraftNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if err.Code != DraftNotFound {
		t.Errorf("Code = %v, want %v", err.Code, DraftNotFound)
	}

	if err.Error() != DraftNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), DraftNotFound.Message())
	}
}

func TestNewf(t *testing.T) {
	err := Newf(LanguageNotSupported, "language %q is not supported", "cobol")

	want := `language "cobol" is not supported`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, TransportError)

	if wrappedErr.Code != TransportError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, TransportError)
	}

	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}

	if wrappedErr.Error() != "connection refused" {
		t.Errorf("Error() = %v, want original message", wrappedErr.Error())
	}

	if Wrap(nil, TransportError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapDoesNotMutateInner(t *testing.T) {
	inner := New(Unauthorized)
	outer := Wrap(inner, AuthExpired)

	if inner.Code != Unauthorized {
		t.Errorf("inner code changed to %v", inner.Code)
	}
	if outer.Code != AuthExpired {
		t.Errorf("outer code = %v, want %v", outer.Code, AuthExpired)
	}
	if !errors.Is(outer, inner) {
		t.Error("inner error should stay reachable")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(ValidationFailed).
		WithDetail("field", "code").
		WithDetail("reason", "code is empty")

	if err.Details["field"] != "code" {
		t.Error("Field detail not set correctly")
	}

	if err.Details["reason"] != "code is empty" {
		t.Error("Reason detail not set correctly")
	}
}

func TestError_WithMessage(t *testing.T) {
	customMsg := "custom error message"
	err := New(InternalServerError).WithMessage(customMsg)

	if err.Error() != customMsg {
		t.Errorf("Error() = %v, want %v", err.Error(), customMsg)
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "nil error",
			err:  nil,
			want: Success,
		},
		{
			name: "custom error",
			err:  New(JudgeTimeout),
			want: JudgeTimeout,
		},
		{
			name: "wrapped by fmt",
			err:  fmt.Errorf("poll: %w", New(JudgeTimeout)),
			want: JudgeTimeout,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: InternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetError(t *testing.T) {
	if GetError(nil) != nil {
		t.Error("GetError(nil) should be nil")
	}
	coded := New(ProtocolError)
	if GetError(fmt.Errorf("x: %w", coded)) != coded {
		t.Error("GetError should find the coded error in the chain")
	}
	if got := GetError(errors.New("plain")); got.Code != InternalServerError {
		t.Errorf("plain error code = %v, want %v", got.Code, InternalServerError)
	}
}

func TestIs(t *testing.T) {
	err := New(StaleResult)

	if !Is(err, StaleResult) {
		t.Error("Is() should return true for matching code")
	}

	if Is(err, ProtocolError) {
		t.Error("Is() should return false for non-matching code")
	}

	if Is(nil, StaleResult) {
		t.Error("Is() should return false for nil error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	t.Run("BadRequest", func(t *testing.T) {
		err := BadRequest("invalid input")
		if err.Code != InvalidParams {
			t.Error("BadRequest should use InvalidParams code")
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("draft")
		if err.Code != NotFound || err.Error() != "draft not found" {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("UnauthorizedError", func(t *testing.T) {
		if err := UnauthorizedError("token expired"); err.Code != Unauthorized || err.Error() != "token expired" {
			t.Error("UnauthorizedError should use Unauthorized code")
		}
		if err := UnauthorizedError(""); err.Error() != Unauthorized.Message() {
			t.Error("empty message should fall back to the default")
		}
	})

	t.Run("AuthExpiredError", func(t *testing.T) {
		cause := errors.New("refresh token revoked")
		err := AuthExpiredError(cause)
		if err.Code != AuthExpired || !errors.Is(err, cause) {
			t.Errorf("unexpected error %v", err)
		}
		if AuthExpiredError(nil).Code != AuthExpired {
			t.Error("AuthExpiredError(nil) should still be coded")
		}
	})

	t.Run("TransportFailure", func(t *testing.T) {
		err := TransportFailure(errors.New("dial tcp: i/o timeout"))
		if err.Code != TransportError || err.Error() != "dial tcp: i/o timeout" {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("ProtocolFailure", func(t *testing.T) {
		err := ProtocolFailure("unexpected field %s", "token")
		if err.Code != ProtocolError || err.Error() != "unexpected field token" {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		originalErr := errors.New("db error")
		err := InternalError(originalErr)
		if err.Code != InternalServerError {
			t.Error("InternalError should use InternalServerError code")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("code", "code is empty")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "code" {
			t.Error("Field detail not set")
		}
	})
}
