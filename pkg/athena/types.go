package athena

import "github.com/Sternrassler/aws-api-client/pkg/client"

// Query execution states.
const (
	StateQueued    = "QUEUED"
	StateRunning   = "RUNNING"
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// ResultSet is the rows and metadata of one page of query results.
type ResultSet struct {
	Rows              []Row              `json:"Rows,omitempty"`
	ResultSetMetadata *ResultSetMetadata `json:"ResultSetMetadata,omitempty"`
}

// ResultSetMetadata describes the columns of a result set.
type ResultSetMetadata struct {
	ColumnInfo []ColumnInfo `json:"ColumnInfo,omitempty"`
}

// ColumnInfo describes one result column.
type ColumnInfo struct {
	CatalogName   *string `json:"CatalogName,omitempty"`
	SchemaName    *string `json:"SchemaName,omitempty"`
	TableName     *string `json:"TableName,omitempty"`
	Name          string  `json:"Name"`
	Label         *string `json:"Label,omitempty"`
	Type          string  `json:"Type"`
	Precision     *int64  `json:"Precision,omitempty"`
	Scale         *int64  `json:"Scale,omitempty"`
	Nullable      *string `json:"Nullable,omitempty"`
	CaseSensitive *bool   `json:"CaseSensitive,omitempty"`
}

// Row is one row of a result set.
type Row struct {
	Data []Datum `json:"Data,omitempty"`
}

// Values returns the cell values of the row, "" for NULL cells.
func (r Row) Values() []string {
	values := make([]string, len(r.Data))
	for i, d := range r.Data {
		if d.VarCharValue != nil {
			values[i] = *d.VarCharValue
		}
	}
	return values
}

// Datum is one cell of a row. A nil VarCharValue is SQL NULL.
type Datum struct {
	VarCharValue *string `json:"VarCharValue,omitempty"`
}

// QueryExecution describes one run of a query.
type QueryExecution struct {
	QueryExecutionID      *string                   `json:"QueryExecutionId,omitempty"`
	Query                 *string                   `json:"Query,omitempty"`
	StatementType         *string                   `json:"StatementType,omitempty"`
	ResultConfiguration   *ResultConfiguration      `json:"ResultConfiguration,omitempty"`
	QueryExecutionContext *QueryExecutionContext    `json:"QueryExecutionContext,omitempty"`
	Status                *QueryExecutionStatus     `json:"Status,omitempty"`
	Statistics            *QueryExecutionStatistics `json:"Statistics,omitempty"`
	WorkGroup             *string                   `json:"WorkGroup,omitempty"`
}

// State returns the execution state, "" when unknown.
func (q *QueryExecution) State() string {
	if q == nil || q.Status == nil || q.Status.State == nil {
		return ""
	}
	return *q.Status.State
}

// QueryExecutionStatus is the state of a query execution.
type QueryExecutionStatus struct {
	State              *string           `json:"State,omitempty"`
	StateChangeReason  *string           `json:"StateChangeReason,omitempty"`
	SubmissionDateTime *client.EpochTime `json:"SubmissionDateTime,omitempty"`
	CompletionDateTime *client.EpochTime `json:"CompletionDateTime,omitempty"`
}

// QueryExecutionContext is the database and catalog a query runs in.
type QueryExecutionContext struct {
	Database *string `json:"Database,omitempty" validate:"omitempty,min=1,max=255"`
	Catalog  *string `json:"Catalog,omitempty" validate:"omitempty,min=1,max=256"`
}

// ResultConfiguration is where query results are written.
type ResultConfiguration struct {
	OutputLocation      *string `json:"OutputLocation,omitempty"`
	ExpectedBucketOwner *string `json:"ExpectedBucketOwner,omitempty"`
}

// QueryExecutionStatistics holds the resource usage of a query execution.
type QueryExecutionStatistics struct {
	EngineExecutionTimeInMillis      *int64  `json:"EngineExecutionTimeInMillis,omitempty"`
	DataScannedInBytes               *int64  `json:"DataScannedInBytes,omitempty"`
	DataManifestLocation             *string `json:"DataManifestLocation,omitempty"`
	TotalExecutionTimeInMillis       *int64  `json:"TotalExecutionTimeInMillis,omitempty"`
	QueryQueueTimeInMillis           *int64  `json:"QueryQueueTimeInMillis,omitempty"`
	QueryPlanningTimeInMillis        *int64  `json:"QueryPlanningTimeInMillis,omitempty"`
	ServiceProcessingTimeInMillis    *int64  `json:"ServiceProcessingTimeInMillis,omitempty"`
	ServicePreProcessingTimeInMillis *int64  `json:"ServicePreProcessingTimeInMillis,omitempty"`
}
