package athena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Sternrassler/aws-api-client/pkg/client"
	"github.com/Sternrassler/aws-api-client/pkg/pagination"
)

// StartQueryExecutionInput describes a query to run.
type StartQueryExecutionInput struct {
	QueryString string `json:"QueryString" validate:"required,max=262144"`
	// ClientRequestToken makes the call idempotent. A random token is used when nil.
	ClientRequestToken    *string                `json:"ClientRequestToken,omitempty" validate:"omitempty,min=32,max=128"`
	QueryExecutionContext *QueryExecutionContext `json:"QueryExecutionContext,omitempty"`
	ResultConfiguration   *ResultConfiguration   `json:"ResultConfiguration,omitempty"`
	WorkGroup             *string                `json:"WorkGroup,omitempty" validate:"omitempty,max=128"`
	ExecutionParameters   []string               `json:"ExecutionParameters,omitempty" validate:"omitempty,dive,required,max=1024"`
}

// StartQueryExecutionOutput identifies the started query.
type StartQueryExecutionOutput struct {
	QueryExecutionID *string `json:"QueryExecutionId,omitempty"`
}

// GetQueryExecutionInput selects a query execution.
type GetQueryExecutionInput struct {
	QueryExecutionID string `json:"QueryExecutionId" validate:"required,max=128"`
}

// GetQueryExecutionOutput is the state of a query execution.
type GetQueryExecutionOutput struct {
	QueryExecution *QueryExecution `json:"QueryExecution,omitempty"`
}

// StopQueryExecutionInput selects the query execution to cancel.
type StopQueryExecutionInput struct {
	QueryExecutionID string `json:"QueryExecutionId" validate:"required,max=128"`
}

// StopQueryExecutionOutput is empty.
type StopQueryExecutionOutput struct{}

// ListQueryExecutionsInput filters the listed query executions.
type ListQueryExecutionsInput struct {
	NextToken  *string `json:"NextToken,omitempty" validate:"omitempty,min=1,max=1024"`
	MaxResults *int32  `json:"MaxResults,omitempty" validate:"omitempty,min=0,max=50"`
	WorkGroup  *string `json:"WorkGroup,omitempty" validate:"omitempty,max=128"`
}

// WithNextToken returns a copy of the input asking for the page after token.
func (in *ListQueryExecutionsInput) WithNextToken(token string) *ListQueryExecutionsInput {
	clone := *in
	clone.NextToken = &token
	if in.MaxResults != nil {
		maxResults := *in.MaxResults
		clone.MaxResults = &maxResults
	}
	if in.WorkGroup != nil {
		workGroup := *in.WorkGroup
		clone.WorkGroup = &workGroup
	}
	return &clone
}

// ListQueryExecutionsOutput is one page of query execution IDs, newest first.
type ListQueryExecutionsOutput struct {
	QueryExecutionIDs []string `json:"QueryExecutionIds,omitempty"`
	NextToken         *string  `json:"NextToken,omitempty"`
}

// NextPageToken implements pagination.Response.
func (o *ListQueryExecutionsOutput) NextPageToken() *string {
	return o.NextToken
}

// PageItems implements pagination.Response.
func (o *ListQueryExecutionsOutput) PageItems() []string {
	return o.QueryExecutionIDs
}

// ListQueryExecutionsResult walks every query execution ID across pages.
type ListQueryExecutionsResult = pagination.Paginator[*ListQueryExecutionsInput, *ListQueryExecutionsOutput, string]

// QueryFailedError is returned by WaitForQueryExecution for queries that
// ended in FAILED or CANCELLED.
type QueryFailedError struct {
	QueryExecutionID string
	State            string
	Reason           string
}

// Error implements the error interface.
func (e *QueryFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("query %s %s", e.QueryExecutionID, e.State)
	}
	return fmt.Sprintf("query %s %s: %s", e.QueryExecutionID, e.State, e.Reason)
}

var errQueryPending = errors.New("query still pending")

// StartQueryExecution submits a query and returns its execution ID.
func (c *Client) StartQueryExecution(ctx context.Context, in *StartQueryExecutionInput) (*StartQueryExecutionOutput, error) {
	if in == nil {
		return nil, fmt.Errorf("StartQueryExecution: %w", client.ErrInvalidArgument)
	}

	req := *in
	if req.ClientRequestToken == nil {
		token := uuid.NewString()
		req.ClientRequestToken = &token
	}

	var out StartQueryExecutionOutput
	if err := c.invoker.Invoke(ctx, opStartQueryExecution, &req, &out); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("query_execution_id", deref(out.QueryExecutionID)).
		Str("client_request_token", *req.ClientRequestToken).
		Msg("Query started")

	return &out, nil
}

// GetQueryExecution returns the state of a query execution.
func (c *Client) GetQueryExecution(ctx context.Context, in *GetQueryExecutionInput) (*GetQueryExecutionOutput, error) {
	if in == nil {
		return nil, fmt.Errorf("GetQueryExecution: %w", client.ErrInvalidArgument)
	}

	var out GetQueryExecutionOutput
	if err := c.invoker.Invoke(ctx, opGetQueryExecution, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopQueryExecution cancels a running query.
func (c *Client) StopQueryExecution(ctx context.Context, in *StopQueryExecutionInput) (*StopQueryExecutionOutput, error) {
	if in == nil {
		return nil, fmt.Errorf("StopQueryExecution: %w", client.ErrInvalidArgument)
	}

	var out StopQueryExecutionOutput
	if err := c.invoker.Invoke(ctx, opStopQueryExecution, in, &out); err != nil {
		return nil, err
	}

	c.logger.Info().Str("query_execution_id", in.QueryExecutionID).Msg("Query stopped")
	return &out, nil
}

// ListQueryExecutions returns the query execution IDs of a work group.
// A nil input lists the primary work group.
func (c *Client) ListQueryExecutions(ctx context.Context, in *ListQueryExecutionsInput) (*ListQueryExecutionsResult, error) {
	if in == nil {
		in = &ListQueryExecutionsInput{}
	}
	if err := client.Validate(in); err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, in *ListQueryExecutionsInput) (*ListQueryExecutionsOutput, error) {
		var out ListQueryExecutionsOutput
		if err := c.invoker.Invoke(ctx, opListQueryExecutions, in, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	return pagination.New[*ListQueryExecutionsInput, *ListQueryExecutionsOutput, string](
		pagination.ClientFunc[*ListQueryExecutionsInput, *ListQueryExecutionsOutput](fetch),
		in,
		pagination.WithOperation(opListQueryExecutions.String()),
		pagination.WithLogger(c.logger),
	), nil
}

// WaitForQueryExecution polls a query with exponential backoff until it
// reaches a terminal state. A SUCCEEDED query is returned; FAILED and
// CANCELLED queries are returned together with a *QueryFailedError.
func (c *Client) WaitForQueryExecution(ctx context.Context, queryExecutionID string) (*QueryExecution, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.poll.InitialInterval
	b.MaxInterval = c.poll.MaxInterval
	b.MaxElapsedTime = c.poll.MaxElapsedTime

	var execution *QueryExecution
	operation := func() error {
		out, err := c.GetQueryExecution(ctx, &GetQueryExecutionInput{QueryExecutionID: queryExecutionID})
		if err != nil {
			// The transport already retried transient failures
			return backoff.Permanent(err)
		}

		execution = out.QueryExecution
		switch state := execution.State(); state {
		case StateSucceeded:
			return nil
		case StateFailed, StateCancelled:
			reason := ""
			if execution.Status.StateChangeReason != nil {
				reason = *execution.Status.StateChangeReason
			}
			return backoff.Permanent(&QueryFailedError{
				QueryExecutionID: queryExecutionID,
				State:            state,
				Reason:           reason,
			})
		default:
			return errQueryPending
		}
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().
			Str("query_execution_id", queryExecutionID).
			Str("state", execution.State()).
			Dur("wait", wait).
			Msg("Waiting for query")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if errors.Is(err, errQueryPending) {
		return execution, fmt.Errorf("query %s not finished after %v: %w", queryExecutionID, c.poll.MaxElapsedTime, err)
	}
	if err != nil {
		return execution, err
	}

	c.logger.Info().
		Str("query_execution_id", queryExecutionID).
		Msg("Query succeeded")

	return execution, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
