// Package athena is a client for the Amazon Athena query execution service.
//
// GetQueryResults and ListQueryExecutions return lazy paginators: rows are
// fetched page by page while they are consumed, with the next page requested
// before the rows of the current one are handed out.
package athena

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/aws-api-client/pkg/client"
)

// Service describes the Athena JSON 1.1 endpoint.
var Service = client.Service{
	Name:           "athena",
	SigningName:    "athena",
	TargetPrefix:   "AmazonAthena",
	EndpointPrefix: "athena",
}

var (
	opGetQueryResults     = client.Operation{Service: Service, Name: "GetQueryResults"}
	opListQueryExecutions = client.Operation{Service: Service, Name: "ListQueryExecutions"}
	opStartQueryExecution = client.Operation{Service: Service, Name: "StartQueryExecution"}
	opGetQueryExecution   = client.Operation{Service: Service, Name: "GetQueryExecution"}
	opStopQueryExecution  = client.Operation{Service: Service, Name: "StopQueryExecution"}
)

// PollConfig controls how WaitForQueryExecution polls the query state.
type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime bounds the whole wait, 0 waits until ctx is done.
	MaxElapsedTime time.Duration
}

// DefaultPollConfig returns the polling configuration used by New.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  15 * time.Minute,
	}
}

// Client performs Athena operations through a transport.
type Client struct {
	invoker client.Invoker
	logger  zerolog.Logger
	poll    PollConfig
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger of the client and of its paginators.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPollConfig overrides the polling of WaitForQueryExecution.
func WithPollConfig(poll PollConfig) Option {
	return func(c *Client) {
		c.poll = poll
	}
}

// New creates an Athena client on top of invoker, usually a *client.Client.
func New(invoker client.Invoker, opts ...Option) *Client {
	c := &Client{
		invoker: invoker,
		logger:  log.With().Str("component", "athena").Logger(),
		poll:    DefaultPollConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
