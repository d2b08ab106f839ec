package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/aws-api-client/pkg/athena"
	"github.com/Sternrassler/aws-api-client/pkg/pagination"
)

// queryResults is the printable form of one query result.
type queryResults struct {
	QueryExecutionID string     `json:"query_execution_id" yaml:"query_execution_id"`
	Columns          []string   `json:"columns,omitempty" yaml:"columns,omitempty"`
	Rows             [][]string `json:"rows" yaml:"rows"`
	UpdateCount      *int64     `json:"update_count,omitempty" yaml:"update_count,omitempty"`
}

// queryExecution is the printable form of a query execution.
type queryExecution struct {
	QueryExecutionID string     `json:"query_execution_id" yaml:"query_execution_id"`
	State            string     `json:"state,omitempty" yaml:"state,omitempty"`
	Reason           string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	Submitted        *time.Time `json:"submitted,omitempty" yaml:"submitted,omitempty"`
	Completed        *time.Time `json:"completed,omitempty" yaml:"completed,omitempty"`
	ScannedBytes     *int64     `json:"scanned_bytes,omitempty" yaml:"scanned_bytes,omitempty"`
}

func newQueryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run and read Athena queries",
	}

	cmd.AddCommand(newQueryResultsCommand(a))
	cmd.AddCommand(newQueryStartCommand(a))
	cmd.AddCommand(newQueryListCommand(a))

	return cmd
}

func newQueryResultsCommand(a *app) *cobra.Command {
	var (
		maxResults  int32
		concurrency int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "results QUERY_EXECUTION_ID...",
		Short: "Print the rows of finished queries",
		Long: `Print every row of one or more finished queries.

With several IDs the results are collected concurrently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.athena()
			if err != nil {
				return err
			}

			inputs := make([]*athena.GetQueryResultsInput, len(args))
			for i, id := range args {
				inputs[i] = &athena.GetQueryResultsInput{QueryExecutionID: id}
				if maxResults > 0 {
					inputs[i].MaxResults = &maxResults
				}
			}

			if len(inputs) == 1 {
				return a.printQueryResults(cmd, client, inputs[0])
			}

			config := pagination.DefaultConfig()
			config.MaxConcurrency = concurrency
			config.Timeout = timeout

			rows, batchErr := client.GetQueryResultsBatch(cmd.Context(), config, inputs)
			if rows == nil && batchErr != nil {
				return batchErr
			}

			results := make([]queryResults, 0, len(rows))
			for i, id := range args {
				if items, ok := rows[i]; ok {
					results = append(results, queryResults{QueryExecutionID: id, Rows: rowValues(items)})
				}
			}

			err = a.render(results, func(t *tablewriter.Table) error {
				t.Header("Query Execution ID", "Row")
				for _, r := range results {
					for _, row := range r.Rows {
						if err := t.Append(r.QueryExecutionID, fmt.Sprint(row)); err != nil {
							return err
						}
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			return batchErr
		},
	}

	cmd.Flags().Int32Var(&maxResults, "max-results", 0, "rows per page (1-1000, default chosen by the service)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "queries collected in parallel")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "time limit per query")

	return cmd
}

func (a *app) printQueryResults(cmd *cobra.Command, client *athena.Client, in *athena.GetQueryResultsInput) error {
	ctx := cmd.Context()

	result, err := client.GetQueryResults(ctx, in)
	if err != nil {
		return err
	}

	first, err := result.Page(ctx)
	if err != nil {
		return err
	}
	updateCount, err := result.Summary(ctx)
	if err != nil {
		return err
	}

	out := queryResults{
		QueryExecutionID: in.QueryExecutionID,
		Columns:          first.ColumnNames(),
		Rows:             [][]string{},
		UpdateCount:      updateCount,
	}
	for row, err := range result.Items(ctx) {
		if err != nil {
			return err
		}
		out.Rows = append(out.Rows, row.Values())
	}

	return a.render(out, func(t *tablewriter.Table) error {
		if len(out.Columns) > 0 {
			t.Header(header(out.Columns...)...)
		}
		for _, row := range out.Rows {
			if err := t.Append(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func newQueryStartCommand(a *app) *cobra.Command {
	var (
		database       string
		workGroup      string
		outputLocation string
		wait           bool
	)

	cmd := &cobra.Command{
		Use:   "start SQL",
		Short: "Start a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.athena()
			if err != nil {
				return err
			}

			in := &athena.StartQueryExecutionInput{QueryString: args[0]}
			if database != "" {
				in.QueryExecutionContext = &athena.QueryExecutionContext{Database: &database}
			}
			if workGroup != "" {
				in.WorkGroup = &workGroup
			}
			if outputLocation != "" {
				in.ResultConfiguration = &athena.ResultConfiguration{OutputLocation: &outputLocation}
			}

			started, err := client.StartQueryExecution(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := queryExecution{QueryExecutionID: orDash(started.QueryExecutionID)}

			if wait {
				execution, err := client.WaitForQueryExecution(cmd.Context(), out.QueryExecutionID)
				if err != nil {
					return err
				}
				out = describeExecution(execution)
			}

			return a.render(out, func(t *tablewriter.Table) error {
				t.Header("Query Execution ID", "State", "Scanned Bytes")
				scanned := "-"
				if out.ScannedBytes != nil {
					scanned = fmt.Sprint(*out.ScannedBytes)
				}
				state := out.State
				if state == "" {
					state = "-"
				}
				return t.Append(out.QueryExecutionID, state, scanned)
			})
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "database the query runs in")
	cmd.Flags().StringVar(&workGroup, "workgroup", "", "workgroup the query runs in")
	cmd.Flags().StringVar(&outputLocation, "output-location", "", "S3 location for query results")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the query finished")

	return cmd
}

func newQueryListCommand(a *app) *cobra.Command {
	var (
		workGroup string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent query execution IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.athena()
			if err != nil {
				return err
			}

			in := &athena.ListQueryExecutionsInput{}
			if workGroup != "" {
				in.WorkGroup = &workGroup
			}

			result, err := client.ListQueryExecutions(cmd.Context(), in)
			if err != nil {
				return err
			}

			ids := []string{}
			for id, err := range result.Items(cmd.Context()) {
				if err != nil {
					return err
				}
				ids = append(ids, id)
				if limit > 0 && len(ids) >= limit {
					break
				}
			}

			return a.render(ids, func(t *tablewriter.Table) error {
				t.Header("Query Execution ID")
				for _, id := range ids {
					if err := t.Append(id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&workGroup, "workgroup", "", "workgroup to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of IDs, 0 for all")

	return cmd
}

func describeExecution(q *athena.QueryExecution) queryExecution {
	out := queryExecution{State: q.State()}
	if q.QueryExecutionID != nil {
		out.QueryExecutionID = *q.QueryExecutionID
	}
	if s := q.Status; s != nil {
		if s.StateChangeReason != nil {
			out.Reason = *s.StateChangeReason
		}
		if s.SubmissionDateTime != nil {
			out.Submitted = &s.SubmissionDateTime.Time
		}
		if s.CompletionDateTime != nil {
			out.Completed = &s.CompletionDateTime.Time
		}
	}
	if q.Statistics != nil {
		out.ScannedBytes = q.Statistics.DataScannedInBytes
	}
	return out
}

func rowValues(rows []athena.Row) [][]string {
	values := make([][]string, len(rows))
	for i, row := range rows {
		values[i] = row.Values()
	}
	return values
}
