package client

import (
	"errors"
	"net/http"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Code:       "InternalServerException",
				Message:    "internal server error",
				Err:        errors.New("connection reset"),
			},
			expected: "AWS server error (status 500): InternalServerException: internal server error: connection reset",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 400,
				ErrorClass: ErrorClassClient,
				Code:       "InvalidRequestException",
				Message:    "QueryExecution abc was not found",
			},
			expected: "AWS client error (status 400): InvalidRequestException: QueryExecution abc was not found",
		},
		{
			name: "throttling error",
			apiError: &APIError{
				StatusCode: 400,
				ErrorClass: ErrorClassRateLimit,
				Code:       "ThrottlingException",
				Message:    "Rate exceeded",
			},
			expected: "AWS rate_limit error (status 400): ThrottlingException: Rate exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.apiError.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{
		StatusCode: 500,
		ErrorClass: ErrorClassServer,
		Message:    "server error",
		Err:        wrappedErr,
	}

	if unwrapped := apiError.Unwrap(); unwrapped != wrappedErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, wrappedErr)
	}

	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}

	if (&APIError{}).Unwrap() != nil {
		t.Error("Unwrap() of error without cause should be nil")
	}
}

func TestInvalidArgumentError(t *testing.T) {
	tests := []struct {
		name     string
		err      *InvalidArgumentError
		expected string
	}{
		{
			name:     "missing member",
			err:      &InvalidArgumentError{Field: "Names", Input: "*ssm.GetParametersRequest", Rule: "required"},
			expected: `Missing parameter "Names" for "*ssm.GetParametersRequest". The value cannot be null.`,
		},
		{
			name:     "constraint",
			err:      &InvalidArgumentError{Field: "Names", Input: "*ssm.GetParametersRequest", Rule: "max=10"},
			expected: `Invalid parameter "Names" for "*ssm.GetParametersRequest": failed "max=10" constraint.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
			if !errors.Is(tt.err, ErrInvalidArgument) {
				t.Error("errors.Is(err, ErrInvalidArgument) = false")
			}
		})
	}
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		header      http.Header
		body        string
		wantCode    string
		wantMessage string
	}{
		{
			name:        "type with namespace and lowercase message",
			status:      400,
			body:        `{"__type":"com.amazonaws.athena#InvalidRequestException","message":"bad query"}`,
			wantCode:    "InvalidRequestException",
			wantMessage: "bad query",
		},
		{
			name:        "capitalized message",
			status:      400,
			body:        `{"__type":"ParameterNotFound","Message":"no such parameter"}`,
			wantCode:    "ParameterNotFound",
			wantMessage: "no such parameter",
		},
		{
			name:        "header wins over body",
			status:      400,
			header:      http.Header{"X-Amzn-Errortype": []string{"ThrottlingException:http://internal.amazon.com/coral/com.amazon.coral.availability/"}},
			body:        `{"__type":"Other","message":"Rate exceeded"}`,
			wantCode:    "ThrottlingException",
			wantMessage: "Rate exceeded",
		},
		{
			name:     "empty body",
			status:   503,
			wantCode: "Service Unavailable",
		},
		{
			name:     "non-json body",
			status:   502,
			body:     "<html>bad gateway</html>",
			wantCode: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			apiErr := parseAPIError(tt.status, header, []byte(tt.body))

			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestIsThrottling(t *testing.T) {
	for _, code := range []string{"ThrottlingException", "TooManyRequestsException", "ThrottledException"} {
		if !IsThrottling(code) {
			t.Errorf("IsThrottling(%q) = false, want true", code)
		}
	}
	if IsThrottling("InvalidRequestException") {
		t.Error("IsThrottling(InvalidRequestException) = true, want false")
	}
}
