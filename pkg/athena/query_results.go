package athena

import (
	"context"
	"fmt"

	"github.com/Sternrassler/aws-api-client/pkg/client"
	"github.com/Sternrassler/aws-api-client/pkg/pagination"
)

// GetQueryResultsInput selects the results of a query execution.
type GetQueryResultsInput struct {
	QueryExecutionID string  `json:"QueryExecutionId" validate:"required,max=128"`
	NextToken        *string `json:"NextToken,omitempty" validate:"omitempty,min=1,max=1024"`
	MaxResults       *int32  `json:"MaxResults,omitempty" validate:"omitempty,min=1,max=1000"`
	QueryResultType  *string `json:"QueryResultType,omitempty" validate:"omitempty,oneof=DATA_MANIFEST DATA_ROWS"`
}

// WithNextToken returns a copy of the input asking for the page after token.
func (in *GetQueryResultsInput) WithNextToken(token string) *GetQueryResultsInput {
	clone := *in
	clone.NextToken = &token
	if in.MaxResults != nil {
		maxResults := *in.MaxResults
		clone.MaxResults = &maxResults
	}
	if in.QueryResultType != nil {
		resultType := *in.QueryResultType
		clone.QueryResultType = &resultType
	}
	return &clone
}

// GetQueryResultsOutput is one page of query results.
type GetQueryResultsOutput struct {
	// UpdateCount is the number of rows inserted by a CREATE TABLE AS SELECT statement.
	UpdateCount *int64     `json:"UpdateCount,omitempty"`
	ResultSet   *ResultSet `json:"ResultSet,omitempty"`
	NextToken   *string    `json:"NextToken,omitempty"`
}

// NextPageToken implements pagination.Response.
func (o *GetQueryResultsOutput) NextPageToken() *string {
	return o.NextToken
}

// PageItems implements pagination.Response.
func (o *GetQueryResultsOutput) PageItems() []Row {
	if o.ResultSet == nil {
		return nil
	}
	return o.ResultSet.Rows
}

// PageSummary implements pagination.Summarizer.
func (o *GetQueryResultsOutput) PageSummary() *int64 {
	return o.UpdateCount
}

// ColumnNames returns the column names of the page, nil without metadata.
func (o *GetQueryResultsOutput) ColumnNames() []string {
	if o.ResultSet == nil || o.ResultSet.ResultSetMetadata == nil {
		return nil
	}
	names := make([]string, len(o.ResultSet.ResultSetMetadata.ColumnInfo))
	for i, col := range o.ResultSet.ResultSetMetadata.ColumnInfo {
		names[i] = col.Name
	}
	return names
}

// GetQueryResultsResult walks every row of a query result across pages.
type GetQueryResultsResult = pagination.Paginator[*GetQueryResultsInput, *GetQueryResultsOutput, Row]

// GetQueryResults returns the rows of a finished query. The first page is
// fetched on first access of the result; iterating Items follows NextToken
// until the last page.
func (c *Client) GetQueryResults(ctx context.Context, in *GetQueryResultsInput) (*GetQueryResultsResult, error) {
	if in == nil {
		return nil, fmt.Errorf("GetQueryResults: %w", client.ErrInvalidArgument)
	}
	if err := client.Validate(in); err != nil {
		return nil, err
	}

	return pagination.New[*GetQueryResultsInput, *GetQueryResultsOutput, Row](
		pagination.ClientFunc[*GetQueryResultsInput, *GetQueryResultsOutput](c.getQueryResultsPage),
		in,
		pagination.WithOperation(opGetQueryResults.String()),
		pagination.WithLogger(c.logger),
	), nil
}

// GetQueryResultsBatch drains the results of several queries concurrently.
// The map is keyed by the index of the input; failed inputs are missing
// from it and reported in the error.
func (c *Client) GetQueryResultsBatch(ctx context.Context, config pagination.Config, inputs []*GetQueryResultsInput) (map[int][]Row, error) {
	results := make([]*GetQueryResultsResult, len(inputs))
	for i, in := range inputs {
		result, err := c.GetQueryResults(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		results[i] = result
	}

	c.logger.Debug().Int("queries", len(inputs)).Msg("Collecting query results")

	return pagination.CollectAll(ctx, config, results)
}

func (c *Client) getQueryResultsPage(ctx context.Context, in *GetQueryResultsInput) (*GetQueryResultsOutput, error) {
	var out GetQueryResultsOutput
	if err := c.invoker.Invoke(ctx, opGetQueryResults, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
