package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidArgument is matched by every InvalidArgumentError.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrThrottled is returned when the shared throttle state blocks a request.
	ErrThrottled = errors.New("request blocked: service throttling critical")

	// ErrCircuitOpen is returned while the circuit breaker of a service is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// APIError represents an error response from an AWS JSON service.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	// Code is the AWS error code, e.g. "InvalidRequestException".
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("AWS %s error (status %d): %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("AWS %s error (status %d): %s: %s",
		e.ErrorClass, e.StatusCode, e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// InvalidArgumentError reports an input rejected before any request is sent.
type InvalidArgumentError struct {
	// Field is the wire name of the offending member.
	Field string
	// Input is the Go type of the request.
	Input string
	// Rule is the failed validation rule, "required" for missing members.
	Rule string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	if e.Rule == "required" {
		return fmt.Sprintf("Missing parameter %q for %q. The value cannot be null.", e.Field, e.Input)
	}
	return fmt.Sprintf("Invalid parameter %q for %q: failed %q constraint.", e.Field, e.Input, e.Rule)
}

// Is makes errors.Is(err, ErrInvalidArgument) succeed.
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// throttlingCodes are error codes AWS JSON services use for request throttling.
var throttlingCodes = map[string]bool{
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"ProvisionedThroughputExceededException": true,
	"RequestThrottledException":              true,
}

// IsThrottling reports whether code is a throttling error code.
func IsThrottling(code string) bool {
	return throttlingCodes[code]
}

type errorBody struct {
	Type         string `json:"__type"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	MessageUpper string `json:"Message"`
}

// parseAPIError builds an APIError from a non-2xx response.
// The code comes from the X-Amzn-ErrorType header or the __type body member.
func parseAPIError(statusCode int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var eb errorBody
	if len(body) > 0 {
		_ = json.Unmarshal(body, &eb)
	}

	code := header.Get("X-Amzn-ErrorType")
	if code == "" {
		code = eb.Type
	}
	if code == "" {
		code = eb.Code
	}
	apiErr.Code = sanitizeErrorCode(code)
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(statusCode)
	}

	apiErr.Message = eb.Message
	if apiErr.Message == "" {
		apiErr.Message = eb.MessageUpper
	}

	return apiErr
}

// sanitizeErrorCode strips the namespace prefix and URI suffix AWS may add:
// "aws.protocoltests#ThrottlingException" and
// "ThrottlingException:http://internal.amazon.com/" both become "ThrottlingException".
func sanitizeErrorCode(code string) string {
	if i := strings.Index(code, ":"); i >= 0 {
		code = code[:i]
	}
	if i := strings.LastIndex(code, "#"); i >= 0 {
		code = code[i+1:]
	}
	return strings.TrimSpace(code)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are caller mistakes, retrying cannot fix them
		return false
	case ErrorClassServer:
		// 5xx server errors should be retried
		return true
	case ErrorClassRateLimit:
		// Throttling errors should be retried
		return true
	case ErrorClassNetwork:
		// Network errors should be retried
		return true
	default:
		return false
	}
}
