// Package ssm is a client for the AWS Systems Manager Parameter Store.
package ssm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/aws-api-client/pkg/client"
	"github.com/Sternrassler/aws-api-client/pkg/pagination"
)

// Service describes the SSM JSON 1.1 endpoint.
var Service = client.Service{
	Name:           "ssm",
	SigningName:    "ssm",
	TargetPrefix:   "AmazonSSM",
	EndpointPrefix: "ssm",
}

var (
	opGetParameters = client.Operation{Service: Service, Name: "GetParameters", Cacheable: true}
	// Decrypted values never enter the cache
	opGetParametersDecrypted = client.Operation{Service: Service, Name: "GetParameters"}
	opGetParameter           = client.Operation{Service: Service, Name: "GetParameter"}
	opGetParametersByPath    = client.Operation{Service: Service, Name: "GetParametersByPath"}
)

// Client performs Parameter Store operations through a transport.
type Client struct {
	invoker client.Invoker
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger of the client and of its paginators.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates an SSM client on top of invoker, usually a *client.Client.
func New(invoker client.Invoker, opts ...Option) *Client {
	c := &Client{
		invoker: invoker,
		logger:  log.With().Str("component", "ssm").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetParameters returns up to ten parameters by name. Names that do not
// exist are listed in InvalidParameters instead of failing the call.
// Responses without decryption are cached by the transport.
func (c *Client) GetParameters(ctx context.Context, in *GetParametersRequest) (*GetParametersResult, error) {
	if in == nil {
		return nil, fmt.Errorf("GetParameters: %w", client.ErrInvalidArgument)
	}

	op := opGetParameters
	if in.WithDecryption != nil && *in.WithDecryption {
		op = opGetParametersDecrypted
	}

	var out GetParametersResult
	if err := c.invoker.Invoke(ctx, op, in, &out); err != nil {
		return nil, err
	}

	if len(out.InvalidParameters) > 0 {
		c.logger.Debug().
			Strs("invalid_parameters", out.InvalidParameters).
			Msg("Parameters not found")
	}

	return &out, nil
}

// GetParameter returns one parameter.
func (c *Client) GetParameter(ctx context.Context, in *GetParameterRequest) (*GetParameterResult, error) {
	if in == nil {
		return nil, fmt.Errorf("GetParameter: %w", client.ErrInvalidArgument)
	}

	var out GetParameterResult
	if err := c.invoker.Invoke(ctx, opGetParameter, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetParametersByPath returns every parameter below a path hierarchy. The
// first page is fetched on first access of the result.
func (c *Client) GetParametersByPath(ctx context.Context, in *GetParametersByPathRequest) (*GetParametersByPathResult, error) {
	if in == nil {
		return nil, fmt.Errorf("GetParametersByPath: %w", client.ErrInvalidArgument)
	}
	if err := client.Validate(in); err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, in *GetParametersByPathRequest) (*GetParametersByPathOutput, error) {
		var out GetParametersByPathOutput
		if err := c.invoker.Invoke(ctx, opGetParametersByPath, in, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	return pagination.New[*GetParametersByPathRequest, *GetParametersByPathOutput, Parameter](
		pagination.ClientFunc[*GetParametersByPathRequest, *GetParametersByPathOutput](fetch),
		in,
		pagination.WithOperation(opGetParametersByPath.String()),
		pagination.WithLogger(c.logger),
	), nil
}
