// Package client provides the AWS JSON 1.1 RPC transport with request
// signing, throttle tracking, caching, retries and error handling.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/aws-api-client/pkg/cache"
	"github.com/Sternrassler/aws-api-client/pkg/ratelimit"
)

// Prometheus metrics for AWS client operations.
var (
	awsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aws_requests_total",
		Help: "Total AWS requests by service, operation and status",
	}, []string{"service", "operation", "status"})

	awsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aws_request_duration_seconds",
		Help:    "AWS request duration in seconds by service and operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"service", "operation"})

	awsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aws_errors_total",
		Help: "Total AWS errors by class",
	}, []string{"class"})

	awsCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aws_circuit_breaker_state",
		Help: "Circuit breaker state by service (0=closed, 1=half-open, 2=open)",
	}, []string{"service"})
)

const (
	contentType = "application/x-amz-json-1.1"
	emptyBody   = "{}"
)

var tracer = otel.Tracer("github.com/Sternrassler/aws-api-client/pkg/client")

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents throttling errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Service describes an AWS service speaking the JSON 1.1 protocol.
type Service struct {
	// Name is the short service name used for metrics and throttle state, e.g. "athena".
	Name string
	// SigningName is the SigV4 service name.
	SigningName string
	// TargetPrefix precedes the operation name in X-Amz-Target, e.g. "AmazonAthena".
	TargetPrefix string
	// EndpointPrefix is the host prefix of the regional endpoint.
	EndpointPrefix string
}

// Operation describes one API call of a Service.
type Operation struct {
	Service Service
	Name    string
	// Cacheable operations have their successful responses cached.
	Cacheable bool
}

// Target returns the X-Amz-Target header value.
func (o Operation) Target() string {
	return o.Service.TargetPrefix + "." + o.Name
}

// String implements fmt.Stringer.
func (o Operation) String() string {
	return o.Service.Name + "." + o.Name
}

// Invoker performs one API call. *Client implements it; service packages
// depend on the interface so tests can swap the transport.
type Invoker interface {
	Invoke(ctx context.Context, op Operation, in, out any) error
}

// Client is the AWS JSON RPC client.
type Client struct {
	httpClient  *http.Client
	signer      *v4.Signer
	credentials aws.CredentialsProvider
	limiter     *rate.Limiter
	throttle    *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// Config holds the client configuration.
type Config struct {
	// Region requests are signed for (REQUIRED)
	Region string

	// Endpoint overrides the regional endpoint, e.g. "http://localhost:4566"
	Endpoint string

	// Credentials sign every request. nil resolves the default AWS credential chain.
	Credentials aws.CredentialsProvider

	// Redis client for the shared cache and throttle state (optional)
	Redis *redis.Client

	// User-Agent header
	UserAgent string

	// Rate Limiting
	RateLimit float64 // Requests per second, 0 disables the local limiter
	RateBurst int

	// Caching
	CacheTTL        time.Duration // Lifetime of cacheable responses
	MemoryCacheSize int           // Entries in the in-process LRU, 0 disables it

	// Retry. Zero values keep the per-class defaults of RetryConfigForErrorClass.
	MaxAttempts    int
	InitialBackoff time.Duration

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// Circuit breaker
	BreakerFailures uint32        // Consecutive failures that open a service breaker, 0 disables it
	BreakerCooldown time.Duration // Time an open breaker waits before probing
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(region string) Config {
	return Config{
		Region:          region,
		UserAgent:       "aws-api-client/0.1.0",
		RateLimit:       10,
		RateBurst:       10,
		CacheTTL:        5 * time.Minute,
		MemoryCacheSize: 1000,
		Timeout:         30 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// StaticCredentials returns a provider for fixed access keys.
func StaticCredentials(accessKeyID, secretAccessKey, sessionToken string) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
}

// New creates a new AWS client.
func New(cfg Config) (*Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max_attempts must be >= 0 (got %d)", cfg.MaxAttempts)
	}

	logger := log.With().Str("component", "aws-client").Logger()

	provider := cfg.Credentials
	if provider == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		provider = awsCfg.Credentials
	}
	if provider == nil {
		return nil, fmt.Errorf("no aws credentials provider available")
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		signer:      v4.NewSigner(),
		credentials: aws.NewCredentialsCache(provider),
		config:      cfg,
		logger:      logger,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.Redis != nil {
		c.throttle = ratelimit.NewTracker(cfg.Redis, logger)
	}

	if cfg.Redis != nil || cfg.MemoryCacheSize > 0 {
		manager, err := cache.NewManager(cfg.Redis, cfg.MemoryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		c.cache = manager
	}

	return c, nil
}

// Invoke performs one API call: validates and serializes in, sends the
// signed request with throttle gating, caching and retries, and decodes
// the response into out.
func (c *Client) Invoke(ctx context.Context, op Operation, in, out any) error {
	ctx, span := tracer.Start(ctx, op.Target(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("aws.service", op.Service.Name),
			attribute.String("aws.operation", op.Name),
			attribute.String("aws.region", c.config.Region),
		))
	defer span.End()

	data, err := c.invoke(ctx, op, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			span.SetAttributes(
				attribute.Int("http.status_code", apiErr.StatusCode),
				attribute.String("aws.error_code", apiErr.Code),
			)
		}
		return err
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode response")
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}

	return nil
}

func (c *Client) invoke(ctx context.Context, op Operation, in any) ([]byte, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	payload, err := marshalPayload(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	startTime := time.Now()
	defer func() {
		awsRequestDuration.WithLabelValues(op.Service.Name, op.Name).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check shared throttle state
	if c.throttle != nil {
		allowed, err := c.throttle.ShouldAllowRequest(ctx, op.Service.Name)
		if err != nil {
			c.logger.Error().Err(err).Msg("Throttle check failed")
			return nil, fmt.Errorf("throttle check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("operation", op.String()).
				Msg("Request blocked by throttle tracker")
			awsRequestsTotal.WithLabelValues(op.Service.Name, op.Name, "throttle_blocked").Inc()
			return nil, fmt.Errorf("%s: %w", op, ErrThrottled)
		}
	}

	// Step 2: Local request rate
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	// Step 3: Check cache
	cacheKey := cache.CacheKey{
		Service:   op.Service.Name,
		Operation: op.Name,
		Region:    c.config.Region,
		Payload:   payload,
	}

	if op.Cacheable && c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().
				Str("operation", op.String()).
				Str("request_id", entry.RequestID).
				Dur("age", entry.Age()).
				Msg("Cache hit")
			awsRequestsTotal.WithLabelValues(op.Service.Name, op.Name, "cached").Inc()
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("operation", op.String()).Msg("Cache get error")
		}
	}

	// Step 4: Send through the service circuit breaker
	var header http.Header
	data, err := c.execute(op, func() ([]byte, error) {
		body, h, err := c.send(ctx, op, payload)
		header = h
		return body, err
	})
	if err != nil {
		return nil, err
	}

	// Step 5: Update cache on success
	if op.Cacheable && c.cache != nil {
		entry := cache.NewEntry(http.StatusOK, header, data, c.config.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("operation", op.String()).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return data, nil
}

// send executes the request with retry logic.
func (c *Client) send(ctx context.Context, op Operation, payload []byte) ([]byte, http.Header, error) {
	var data []byte
	var header http.Header
	var errClass ErrorClass

	err := retryWithBackoff(ctx, c.retryPolicy, func() error {
		body, h, class, err := c.attempt(ctx, op, payload)
		errClass = class
		if err != nil {
			return err
		}
		data, header = body, h
		return nil
	}, func(error) ErrorClass {
		return errClass
	})

	return data, header, err
}

// attempt performs a single signed HTTP round-trip.
func (c *Client) attempt(ctx context.Context, op Operation, payload []byte) ([]byte, http.Header, ErrorClass, error) {
	req, err := c.newRequest(ctx, op, payload)
	if err != nil {
		return nil, nil, "", err
	}

	c.logger.Debug().
		Str("operation", op.String()).
		Str("url", req.URL.String()).
		Msg("Executing AWS request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation is never retried
			return nil, nil, "", err
		}
		c.logger.Error().Err(err).Str("operation", op.String()).Msg("HTTP request failed")
		class := c.classifyError(0, "", err)
		awsErrorsTotal.WithLabelValues(string(class)).Inc()
		awsRequestsTotal.WithLabelValues(op.Service.Name, op.Name, "network_error").Inc()
		return nil, nil, class, &APIError{ErrorClass: class, Code: "NetworkError", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		class := c.classifyError(0, "", err)
		awsErrorsTotal.WithLabelValues(string(class)).Inc()
		return nil, nil, class, &APIError{StatusCode: resp.StatusCode, ErrorClass: class, Code: "NetworkError", Message: "read response body", Err: err}
	}

	status := strconv.Itoa(resp.StatusCode)

	if resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, resp.Header, body)
		apiErr.ErrorClass = c.classifyError(resp.StatusCode, apiErr.Code, nil)
		awsErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		awsRequestsTotal.WithLabelValues(op.Service.Name, op.Name, status).Inc()

		c.logger.Warn().
			Str("operation", op.String()).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Str("error_class", string(apiErr.ErrorClass)).
			Msg("AWS request error")

		if apiErr.ErrorClass == ErrorClassRateLimit && c.throttle != nil {
			if _, err := c.throttle.RecordThrottle(ctx, op.Service.Name); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record throttle")
			}
		}

		return nil, nil, apiErr.ErrorClass, apiErr
	}

	awsRequestsTotal.WithLabelValues(op.Service.Name, op.Name, status).Inc()
	if c.throttle != nil {
		if err := c.throttle.RecordSuccess(ctx, op.Service.Name); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update throttle state")
		}
	}

	return body, resp.Header, "", nil
}

// newRequest builds and signs the POST request of an operation.
func (c *Client) newRequest(ctx context.Context, op Operation, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(op.Service), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Target", op.Target())
	req.Header.Set("User-Agent", c.config.UserAgent)

	creds, err := c.credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}

	sum := sha256.Sum256(payload)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), op.Service.SigningName, c.config.Region, time.Now()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	return req, nil
}

// endpoint resolves the URL requests of a service are posted to.
func (c *Client) endpoint(svc Service) string {
	if c.config.Endpoint != "" {
		return strings.TrimRight(c.config.Endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.%s.amazonaws.com/", svc.EndpointPrefix, c.config.Region)
}

// execute runs fn through the circuit breaker of the operation's service.
func (c *Client) execute(op Operation, fn func() ([]byte, error)) ([]byte, error) {
	cb := c.breaker(op.Service.Name)
	if cb == nil {
		return fn()
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Error().
			Str("operation", op.String()).
			Str("state", cb.State().String()).
			Msg("Circuit breaker rejected request")
		awsRequestsTotal.WithLabelValues(op.Service.Name, op.Name, "circuit_open").Inc()
		return nil, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	if err != nil {
		return nil, err
	}

	data, _ := result.([]byte)
	return data, nil
}

func (c *Client) breaker(service string) *gobreaker.CircuitBreaker {
	if c.config.BreakerFailures == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[service]; ok {
		return cb
	}

	threshold := c.config.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     c.config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			awsCircuitState.WithLabelValues(name).Set(float64(to))
			c.logger.Warn().
				Str("service", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	c.breakers[service] = cb
	return cb
}

// breakerSuccess reports whether an outcome says the service is healthy.
// Client errors and cancellations are the caller's problem.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass == ErrorClassClient
	}
	return false
}

// retryPolicy applies the configured overrides to the per-class retry configuration.
func (c *Client) retryPolicy(class ErrorClass) RetryConfig {
	rc := RetryConfigForErrorClass(class)
	if c.config.MaxAttempts > 0 {
		rc.MaxAttempts = c.config.MaxAttempts
	}
	if c.config.InitialBackoff > 0 {
		rc.InitialBackoff = c.config.InitialBackoff
		if rc.MaxBackoff < rc.InitialBackoff {
			rc.MaxBackoff = rc.InitialBackoff
		}
	}
	return rc
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(statusCode int, code string, err error) ErrorClass {
	var class ErrorClass
	switch {
	case err != nil:
		class = ErrorClassNetwork
	case IsThrottling(code) || statusCode == http.StatusTooManyRequests:
		class = ErrorClassRateLimit
	case statusCode >= 500:
		class = ErrorClassServer
	case statusCode >= 400:
		class = ErrorClassClient
	default:
		return ""
	}

	c.logger.Debug().Str("class", string(class)).Msg("Error classified")
	return class
}

// marshalPayload serializes a request body. Missing input is sent as "{}".
func marshalPayload(in any) ([]byte, error) {
	if in == nil {
		return []byte(emptyBody), nil
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	if string(payload) == "null" {
		return []byte(emptyBody), nil
	}
	return payload, nil
}

// Close releases idle connections. The Redis client stays owned by the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Region returns the region requests are signed for.
func (c *Client) Region() string {
	return c.config.Region
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
