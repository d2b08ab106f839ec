// Package testutil provides testing utilities for the AWS API client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mocked AWS JSON response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by MockAWS.
type RecordedRequest struct {
	Target string
	Body   []byte
	Header http.Header
}

// MockAWS is a configurable mock of AWS JSON 1.1 services for testing.
// Requests are routed by their X-Amz-Target header.
type MockAWS struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockAWS creates a new mock AWS server.
func NewMockAWS() *MockAWS {
	mock := &MockAWS{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))

	return mock
}

func (m *MockAWS) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	target := r.Header.Get("X-Amz-Target")

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Target: target,
		Body:   body,
		Header: r.Header.Clone(),
	})
	handler, exists := m.handlers[target]
	m.mu.Unlock()

	if r.Method != http.MethodPost || r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "UnknownOperationException", "only POST / is supported")
		return
	}
	if r.Header.Get("Content-Type") != "application/x-amz-json-1.1" {
		writeError(w, http.StatusBadRequest, "SerializationException", "unexpected content type")
		return
	}
	if !exists {
		writeError(w, http.StatusBadRequest, "UnknownOperationException", fmt.Sprintf("no handler for %q", target))
		return
	}

	// Restore the body for handlers that decode it
	r.Body = io.NopCloser(&bodyReader{data: body})
	handler(w, r)
}

// URL returns the mock server URL.
func (m *MockAWS) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAWS) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockAWS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for an X-Amz-Target value.
func (m *MockAWS) SetHandler(target string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[target] = handler
}

// SetResponse configures a fixed response for a target.
func (m *MockAWS) SetResponse(target string, resp MockResponse) {
	m.SetHandler(target, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence answers successive calls of a target with successive
// responses. The last response repeats once the sequence is used up.
func (m *MockAWS) SetSequence(target string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(target, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// SetPages serves a paginated operation. pages maps the NextToken of the
// request ("" for the first page) to the response body.
func (m *MockAWS) SetPages(target string, pages map[string]string) {
	m.SetHandler(target, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			NextToken string `json:"NextToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "SerializationException", err.Error())
			return
		}

		body, ok := pages[req.NextToken]
		if !ok {
			writeError(w, http.StatusBadRequest, "InvalidRequestException", fmt.Sprintf("invalid token %q", req.NextToken))
			return
		}
		writeResponse(w, NewJSONResponse(body))
	})
}

// Requests returns the requests received so far.
func (m *MockAWS) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestsFor returns the requests received for a target.
func (m *MockAWS) RequestsFor(target string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RecordedRequest
	for _, req := range m.requests {
		if req.Target == target {
			out = append(out, req)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAWS) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, NewErrorResponse(status, code, message))
}

// NewJSONResponse creates a 200 OK response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-Amzn-RequestId": "00000000-0000-0000-0000-000000000000",
		},
	}
}

// NewErrorResponse creates an AWS JSON error response.
func NewErrorResponse(status int, code, message string) MockResponse {
	body, _ := json.Marshal(map[string]string{
		"__type":  code,
		"message": message,
	})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
	}
}

// NewThrottlingResponse creates a ThrottlingException response.
func NewThrottlingResponse() MockResponse {
	return NewErrorResponse(http.StatusBadRequest, "ThrottlingException", "Rate exceeded")
}

// NewServerErrorResponse creates a 500 InternalServerException response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusInternalServerError, "InternalServerException", "Internal server error")
}

type bodyReader struct {
	data []byte
	pos  int
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
