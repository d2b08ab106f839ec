package ssm

import (
	"slices"

	"github.com/Sternrassler/aws-api-client/pkg/client"
	"github.com/Sternrassler/aws-api-client/pkg/pagination"
)

// Parameter types.
const (
	TypeString       = "String"
	TypeStringList   = "StringList"
	TypeSecureString = "SecureString"
)

// GetParametersRequest selects parameters by name or ARN. A name may carry
// a ":label" or ":version" selector.
type GetParametersRequest struct {
	Names          []string `json:"Names" validate:"required,min=1,max=10,dive,required,max=2048"`
	WithDecryption *bool    `json:"WithDecryption,omitempty"`
}

// GetParametersResult holds the parameters found, in alphabetical order.
type GetParametersResult struct {
	Parameters        []Parameter `json:"Parameters,omitempty"`
	InvalidParameters []string    `json:"InvalidParameters,omitempty"`
}

// GetParameterRequest selects one parameter.
type GetParameterRequest struct {
	Name           string `json:"Name" validate:"required,max=2048"`
	WithDecryption *bool  `json:"WithDecryption,omitempty"`
}

// GetParameterResult holds one parameter.
type GetParameterResult struct {
	Parameter *Parameter `json:"Parameter,omitempty"`
}

// ParameterStringFilter narrows GetParametersByPath results.
type ParameterStringFilter struct {
	Key    string   `json:"Key" validate:"required,min=1,max=132"`
	Option *string  `json:"Option,omitempty" validate:"omitempty,min=1,max=10"`
	Values []string `json:"Values,omitempty" validate:"omitempty,min=1,max=50,dive,min=1,max=1024"`
}

// GetParametersByPathRequest selects every parameter below a path.
type GetParametersByPathRequest struct {
	Path             string                  `json:"Path" validate:"required,min=1,max=2048"`
	Recursive        *bool                   `json:"Recursive,omitempty"`
	ParameterFilters []ParameterStringFilter `json:"ParameterFilters,omitempty" validate:"omitempty,dive"`
	WithDecryption   *bool                   `json:"WithDecryption,omitempty"`
	MaxResults       *int32                  `json:"MaxResults,omitempty" validate:"omitempty,min=1,max=10"`
	NextToken        *string                 `json:"NextToken,omitempty"`
}

// WithNextToken returns a copy of the request asking for the page after token.
func (in *GetParametersByPathRequest) WithNextToken(token string) *GetParametersByPathRequest {
	clone := *in
	clone.NextToken = &token
	clone.ParameterFilters = slices.Clone(in.ParameterFilters)
	if in.Recursive != nil {
		recursive := *in.Recursive
		clone.Recursive = &recursive
	}
	if in.WithDecryption != nil {
		decrypt := *in.WithDecryption
		clone.WithDecryption = &decrypt
	}
	if in.MaxResults != nil {
		maxResults := *in.MaxResults
		clone.MaxResults = &maxResults
	}
	return &clone
}

// GetParametersByPathOutput is one page of parameters below a path.
type GetParametersByPathOutput struct {
	Parameters []Parameter `json:"Parameters,omitempty"`
	NextToken  *string     `json:"NextToken,omitempty"`
}

// NextPageToken implements pagination.Response.
func (o *GetParametersByPathOutput) NextPageToken() *string {
	return o.NextToken
}

// PageItems implements pagination.Response.
func (o *GetParametersByPathOutput) PageItems() []Parameter {
	return o.Parameters
}

// GetParametersByPathResult walks every parameter below a path across pages.
type GetParametersByPathResult = pagination.Paginator[*GetParametersByPathRequest, *GetParametersByPathOutput, Parameter]

// Parameter is one Parameter Store entry.
type Parameter struct {
	Name             *string           `json:"Name,omitempty"`
	Type             *string           `json:"Type,omitempty"`
	Value            *string           `json:"Value,omitempty"`
	Version          *int64            `json:"Version,omitempty"`
	Selector         *string           `json:"Selector,omitempty"`
	SourceResult     *string           `json:"SourceResult,omitempty"`
	LastModifiedDate *client.EpochTime `json:"LastModifiedDate,omitempty"`
	ARN              *string           `json:"ARN,omitempty"`
	DataType         *string           `json:"DataType,omitempty"`
}

// NameOrEmpty returns the parameter name, "" when absent.
func (p Parameter) NameOrEmpty() string {
	if p.Name == nil {
		return ""
	}
	return *p.Name
}

// ValueOrEmpty returns the parameter value, "" when absent.
func (p Parameter) ValueOrEmpty() string {
	if p.Value == nil {
		return ""
	}
	return *p.Value
}
