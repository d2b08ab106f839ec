package athena

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/aws-api-client/internal/testutil"
	"github.com/Sternrassler/aws-api-client/pkg/client"
	"github.com/Sternrassler/aws-api-client/pkg/pagination"
)

const targetGetQueryResults = "AmazonAthena.GetQueryResults"

func newTestAthena(t *testing.T) (*Client, *testutil.MockAWS) {
	t.Helper()

	mock := testutil.NewMockAWS()
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig("us-east-1")
	cfg.Endpoint = mock.URL()
	cfg.Credentials = client.StaticCredentials("AKIDEXAMPLE", "SECRET", "")
	cfg.RateLimit = 0
	cfg.MemoryCacheSize = 0
	cfg.BreakerFailures = 0
	cfg.MaxAttempts = 1

	transport, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { transport.Close() })

	return New(transport, WithPollConfig(PollConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	})), mock
}

// rowsPage renders a GetQueryResults response with one VarChar column.
func rowsPage(next string, values ...string) string {
	rows := make([]Row, len(values))
	for i := range values {
		rows[i] = Row{Data: []Datum{{VarCharValue: &values[i]}}}
	}
	out := GetQueryResultsOutput{
		ResultSet: &ResultSet{
			Rows: rows,
			ResultSetMetadata: &ResultSetMetadata{
				ColumnInfo: []ColumnInfo{{Name: "letter", Type: "varchar"}},
			},
		},
	}
	if next != "" {
		out.NextToken = &next
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func rowValues(rows []Row) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.Values()...)
	}
	return values
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func int32Ptr(v int32) *int32 { return &v }

func TestGetQueryResults_MultiplePages(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetPages(targetGetQueryResults, map[string]string{
		"":   rowsPage("T1", "a", "b"),
		"T1": rowsPage("T2", "c", "d"),
		"T2": rowsPage("", "e"),
	})

	result, err := c.GetQueryResults(context.Background(), &GetQueryResultsInput{
		QueryExecutionID: "q-1",
		MaxResults:       int32Ptr(2),
	})
	require.NoError(t, err)

	rows, err := result.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, rowValues(rows))

	requests := mock.RequestsFor(targetGetQueryResults)
	require.Len(t, requests, 3)

	wantTokens := []any{nil, "T1", "T2"}
	for i, req := range requests {
		body := decodeBody(t, req.Body)
		assert.Equal(t, "q-1", body["QueryExecutionId"], "request %d", i)
		assert.Equal(t, float64(2), body["MaxResults"], "request %d", i)
		assert.Equal(t, wantTokens[i], body["NextToken"], "request %d", i)
	}
}

func TestGetQueryResults_SinglePage(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse(targetGetQueryResults, testutil.NewJSONResponse(
		`{"UpdateCount":0,"ResultSet":{"Rows":[{"Data":[{"VarCharValue":"x"}]}]}}`))

	result, err := c.GetQueryResults(context.Background(), &GetQueryResultsInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)

	rows, err := result.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, rowValues(rows))

	token, err := result.NextToken(context.Background())
	require.NoError(t, err)
	assert.Nil(t, token)

	summary, err := result.Summary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, int64(0), *summary)

	assert.Equal(t, 1, mock.GetRequestCount(), "page must be fetched once")
}

func TestGetQueryResults_LazyUntilAccessed(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse(targetGetQueryResults, testutil.NewJSONResponse(rowsPage("", "x")))

	result, err := c.GetQueryResults(context.Background(), &GetQueryResultsInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, mock.GetRequestCount())

	require.NoError(t, result.Materialize(context.Background()))
	require.NoError(t, result.Materialize(context.Background()))
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestGetQueryResults_EmptyTokenEndsTraversal(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse(targetGetQueryResults, testutil.NewJSONResponse(
		`{"ResultSet":{"Rows":[{"Data":[{"VarCharValue":"x"}]}]},"NextToken":""}`))

	result, err := c.GetQueryResults(context.Background(), &GetQueryResultsInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)

	rows, err := result.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestGetQueryResults_PartialFailure(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetPages(targetGetQueryResults, map[string]string{
		"": rowsPage("T1", "a", "b"),
		// T1 is unknown to the mock and fails with InvalidRequestException
	})

	result, err := c.GetQueryResults(context.Background(), &GetQueryResultsInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)

	rows, err := result.Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, rowValues(rows))

	var transportErr *pagination.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 1, transportErr.Page)
	assert.Equal(t, "athena.GetQueryResults", transportErr.Operation)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InvalidRequestException", apiErr.Code)
	assert.Equal(t, client.ErrorClassClient, apiErr.ErrorClass)
}

func TestGetQueryResults_FirstPageFailure(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse(targetGetQueryResults, testutil.NewErrorResponse(http.StatusBadRequest,
		"InvalidRequestException", "Query has not yet finished. Current state: RUNNING"))

	result, err := c.GetQueryResults(context.Background(), &GetQueryResultsInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)

	err = result.Materialize(context.Background())
	require.Error(t, err)

	// The failure is memoized
	_, err2 := result.Page(context.Background())
	assert.Equal(t, err, err2)
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestGetQueryResults_EarlyBreak(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetPages(targetGetQueryResults, map[string]string{
		"":   rowsPage("T1", "a", "b"),
		"T1": rowsPage("T2", "c", "d"),
		"T2": rowsPage("", "e"),
	})

	result, err := c.GetQueryResults(context.Background(), &GetQueryResultsInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)

	var seen []string
	for row, err := range result.Items(context.Background()) {
		require.NoError(t, err)
		seen = append(seen, row.Values()...)
		if len(seen) == 1 {
			break
		}
	}
	assert.Equal(t, []string{"a"}, seen)

	// At most the first page and its prefetch were requested
	assert.LessOrEqual(t, mock.GetRequestCount(), 2)
}

func TestGetQueryResults_Validation(t *testing.T) {
	c, mock := newTestAthena(t)

	_, err := c.GetQueryResults(context.Background(), nil)
	assert.ErrorIs(t, err, client.ErrInvalidArgument)

	_, err = c.GetQueryResults(context.Background(), &GetQueryResultsInput{})
	var invalid *client.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "QueryExecutionId", invalid.Field)
	assert.Equal(t, "required", invalid.Rule)

	_, err = c.GetQueryResults(context.Background(), &GetQueryResultsInput{QueryExecutionID: "q-1", MaxResults: int32Ptr(5000)})
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "MaxResults", invalid.Field)

	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestGetQueryResultsInput_WithNextToken(t *testing.T) {
	resultType := "DATA_ROWS"
	in := &GetQueryResultsInput{
		QueryExecutionID: "q-1",
		MaxResults:       int32Ptr(10),
		QueryResultType:  &resultType,
	}

	next := in.WithNextToken("T1")

	require.NotNil(t, next.NextToken)
	assert.Equal(t, "T1", *next.NextToken)
	assert.Equal(t, "q-1", next.QueryExecutionID)
	assert.Equal(t, int32(10), *next.MaxResults)
	assert.Equal(t, "DATA_ROWS", *next.QueryResultType)

	assert.Nil(t, in.NextToken, "original input must not change")
	assert.NotSame(t, in.MaxResults, next.MaxResults)
}

func TestGetQueryResultsOutput_Accessors(t *testing.T) {
	var empty GetQueryResultsOutput
	assert.Nil(t, empty.PageItems())
	assert.Nil(t, empty.ColumnNames())
	assert.Nil(t, empty.PageSummary())

	var out GetQueryResultsOutput
	require.NoError(t, json.Unmarshal([]byte(rowsPage("T1", "a")), &out))
	assert.Equal(t, []string{"letter"}, out.ColumnNames())
	assert.Equal(t, "T1", *out.NextPageToken())
	assert.Len(t, out.PageItems(), 1)
}

func TestRow_Values(t *testing.T) {
	v := "value"
	row := Row{Data: []Datum{{VarCharValue: &v}, {}}}
	assert.Equal(t, []string{"value", ""}, row.Values())
}

func TestGetQueryResultsBatch(t *testing.T) {
	c, mock := newTestAthena(t)

	pages := map[string]map[string]string{
		"q-1": {"": rowsPage("T1", "a"), "T1": rowsPage("", "b")},
		"q-2": {"": rowsPage("", "x", "y")},
	}
	mock.SetHandler(targetGetQueryResults, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QueryExecutionID string `json:"QueryExecutionId"`
			NextToken        string `json:"NextToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		body, ok := pages[req.QueryExecutionID][req.NextToken]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"__type":"InvalidRequestException","message":"unknown query"}`))
			return
		}
		w.Write([]byte(body))
	})

	results, err := c.GetQueryResultsBatch(context.Background(), pagination.Config{MaxConcurrency: 2}, []*GetQueryResultsInput{
		{QueryExecutionID: "q-1"},
		{QueryExecutionID: "q-2"},
		{QueryExecutionID: "q-3"},
	})

	require.Error(t, err, "q-3 is unknown")
	assert.Equal(t, []string{"a", "b"}, rowValues(results[0]))
	assert.Equal(t, []string{"x", "y"}, rowValues(results[1]))
	assert.NotContains(t, results, 2)
}

func TestGetQueryResultsBatch_InvalidInput(t *testing.T) {
	c, mock := newTestAthena(t)

	_, err := c.GetQueryResultsBatch(context.Background(), pagination.DefaultConfig(), []*GetQueryResultsInput{
		{QueryExecutionID: "q-1"},
		{},
	})
	assert.ErrorIs(t, err, client.ErrInvalidArgument)
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestListQueryExecutions(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetPages("AmazonAthena.ListQueryExecutions", map[string]string{
		"":   `{"QueryExecutionIds":["q-3","q-2"],"NextToken":"N1"}`,
		"N1": `{"QueryExecutionIds":["q-1"]}`,
	})

	workGroup := "analytics"
	result, err := c.ListQueryExecutions(context.Background(), &ListQueryExecutionsInput{WorkGroup: &workGroup})
	require.NoError(t, err)

	ids, err := result.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"q-3", "q-2", "q-1"}, ids)

	requests := mock.RequestsFor("AmazonAthena.ListQueryExecutions")
	require.Len(t, requests, 2)
	assert.Equal(t, "analytics", decodeBody(t, requests[1].Body)["WorkGroup"])
}

func TestListQueryExecutions_NilInput(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse("AmazonAthena.ListQueryExecutions", testutil.NewJSONResponse(`{"QueryExecutionIds":[]}`))

	result, err := c.ListQueryExecutions(context.Background(), nil)
	require.NoError(t, err)

	ids, err := result.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, "{}", string(mock.Requests()[0].Body))
}

func TestStartQueryExecution(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse("AmazonAthena.StartQueryExecution", testutil.NewJSONResponse(`{"QueryExecutionId":"q-42"}`))

	database := "sales"
	in := &StartQueryExecutionInput{
		QueryString:           "SELECT 1",
		QueryExecutionContext: &QueryExecutionContext{Database: &database},
	}

	out, err := c.StartQueryExecution(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, out.QueryExecutionID)
	assert.Equal(t, "q-42", *out.QueryExecutionID)
	assert.Nil(t, in.ClientRequestToken, "caller input must not change")

	body := decodeBody(t, mock.Requests()[0].Body)
	assert.Equal(t, "SELECT 1", body["QueryString"])
	assert.Len(t, body["ClientRequestToken"], 36)
	assert.Equal(t, map[string]any{"Database": "sales"}, body["QueryExecutionContext"])
}

func TestStartQueryExecution_KeepsClientRequestToken(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse("AmazonAthena.StartQueryExecution", testutil.NewJSONResponse(`{"QueryExecutionId":"q-42"}`))

	token := "0123456789abcdef0123456789abcdef"
	_, err := c.StartQueryExecution(context.Background(), &StartQueryExecutionInput{
		QueryString:        "SELECT 1",
		ClientRequestToken: &token,
	})
	require.NoError(t, err)
	assert.Equal(t, token, decodeBody(t, mock.Requests()[0].Body)["ClientRequestToken"])
}

func TestStartQueryExecution_Validation(t *testing.T) {
	c, mock := newTestAthena(t)

	_, err := c.StartQueryExecution(context.Background(), &StartQueryExecutionInput{})
	assert.ErrorIs(t, err, client.ErrInvalidArgument)

	empty := ""
	_, err = c.StartQueryExecution(context.Background(), &StartQueryExecutionInput{
		QueryString:           "SELECT 1",
		QueryExecutionContext: &QueryExecutionContext{Database: &empty},
	})
	assert.ErrorIs(t, err, client.ErrInvalidArgument)

	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestGetQueryExecution(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse("AmazonAthena.GetQueryExecution", testutil.NewJSONResponse(`{
		"QueryExecution": {
			"QueryExecutionId": "q-1",
			"Query": "SELECT 1",
			"Status": {"State": "SUCCEEDED", "SubmissionDateTime": 1700000000.5},
			"Statistics": {"DataScannedInBytes": 1024}
		}
	}`))

	out, err := c.GetQueryExecution(context.Background(), &GetQueryExecutionInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)

	qe := out.QueryExecution
	require.NotNil(t, qe)
	assert.Equal(t, StateSucceeded, qe.State())
	assert.Equal(t, int64(1024), *qe.Statistics.DataScannedInBytes)
	assert.Equal(t, time.UnixMilli(1700000000500).UTC(), qe.Status.SubmissionDateTime.Time)
}

func TestStopQueryExecution(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse("AmazonAthena.StopQueryExecution", testutil.NewJSONResponse(`{}`))

	_, err := c.StopQueryExecution(context.Background(), &StopQueryExecutionInput{QueryExecutionID: "q-1"})
	require.NoError(t, err)
	assert.Equal(t, `{"QueryExecutionId":"q-1"}`, string(mock.Requests()[0].Body))

	_, err = c.StopQueryExecution(context.Background(), nil)
	assert.ErrorIs(t, err, client.ErrInvalidArgument)
}

func executionResponse(state, reason string) testutil.MockResponse {
	status := map[string]any{"State": state}
	if reason != "" {
		status["StateChangeReason"] = reason
	}
	body, _ := json.Marshal(map[string]any{
		"QueryExecution": map[string]any{"QueryExecutionId": "q-1", "Status": status},
	})
	return testutil.NewJSONResponse(string(body))
}

func TestWaitForQueryExecution(t *testing.T) {
	tests := []struct {
		name      string
		responses []testutil.MockResponse
		wantState string
		wantErr   bool
		wantCalls int
	}{
		{
			name: "succeeds after polling",
			responses: []testutil.MockResponse{
				executionResponse(StateQueued, ""),
				executionResponse(StateRunning, ""),
				executionResponse(StateSucceeded, ""),
			},
			wantState: StateSucceeded,
			wantCalls: 3,
		},
		{
			name: "failed query",
			responses: []testutil.MockResponse{
				executionResponse(StateRunning, ""),
				executionResponse(StateFailed, "SYNTAX_ERROR: line 1:8"),
			},
			wantState: StateFailed,
			wantErr:   true,
			wantCalls: 2,
		},
		{
			name: "cancelled query",
			responses: []testutil.MockResponse{
				executionResponse(StateCancelled, ""),
			},
			wantState: StateCancelled,
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newTestAthena(t)
			mock.SetSequence("AmazonAthena.GetQueryExecution", tt.responses...)

			qe, err := c.WaitForQueryExecution(context.Background(), "q-1")

			require.NotNil(t, qe)
			assert.Equal(t, tt.wantState, qe.State())
			assert.Equal(t, tt.wantCalls, mock.GetRequestCount())

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var failed *QueryFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, "q-1", failed.QueryExecutionID)
			assert.Equal(t, tt.wantState, failed.State)
		})
	}
}

func TestWaitForQueryExecution_Timeout(t *testing.T) {
	c, mock := newTestAthena(t)
	c.poll.MaxElapsedTime = 30 * time.Millisecond
	mock.SetResponse("AmazonAthena.GetQueryExecution", executionResponse(StateRunning, ""))

	qe, err := c.WaitForQueryExecution(context.Background(), "q-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errQueryPending))
	assert.Equal(t, StateRunning, qe.State())
}

func TestWaitForQueryExecution_ContextCancelled(t *testing.T) {
	c, mock := newTestAthena(t)
	c.poll.MaxElapsedTime = 0
	mock.SetResponse("AmazonAthena.GetQueryExecution", executionResponse(StateRunning, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.WaitForQueryExecution(ctx, "q-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForQueryExecution_APIError(t *testing.T) {
	c, mock := newTestAthena(t)
	mock.SetResponse("AmazonAthena.GetQueryExecution", testutil.NewErrorResponse(http.StatusBadRequest,
		"InvalidRequestException", "QueryExecution q-1 was not found"))

	_, err := c.WaitForQueryExecution(context.Background(), "q-1")

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InvalidRequestException", apiErr.Code)
	assert.Equal(t, 1, mock.GetRequestCount(), "API errors are not polled again")
}
