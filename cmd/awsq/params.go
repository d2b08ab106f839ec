package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/aws-api-client/pkg/ssm"
)

// parameter is the printable form of an SSM parameter.
type parameter struct {
	Name         string     `json:"name" yaml:"name"`
	Type         string     `json:"type,omitempty" yaml:"type,omitempty"`
	Value        string     `json:"value" yaml:"value"`
	Version      int64      `json:"version,omitempty" yaml:"version,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
}

// parameterList is the printable form of a GetParameters call.
type parameterList struct {
	Parameters []parameter `json:"parameters" yaml:"parameters"`
	Invalid    []string    `json:"invalid,omitempty" yaml:"invalid,omitempty"`
}

func newParamsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "params",
		Aliases: []string{"parameters"},
		Short:   "Read Parameter Store values",
	}

	cmd.AddCommand(newParamsGetCommand(a))
	cmd.AddCommand(newParamsPathCommand(a))

	return cmd
}

func newParamsGetCommand(a *app) *cobra.Command {
	var decrypt bool

	cmd := &cobra.Command{
		Use:   "get NAME...",
		Short: "Print parameters by name (at most 10)",
		Args:  cobra.RangeArgs(1, 10),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.ssm()
			if err != nil {
				return err
			}

			result, err := client.GetParameters(cmd.Context(), &ssm.GetParametersRequest{
				Names:          args,
				WithDecryption: &decrypt,
			})
			if err != nil {
				return err
			}

			out := parameterList{Parameters: toParameters(result.Parameters), Invalid: result.InvalidParameters}
			return a.render(out, func(t *tablewriter.Table) error {
				t.Header("Name", "Type", "Value", "Version")
				if err := appendParameters(t, out.Parameters); err != nil {
					return err
				}
				for _, name := range out.Invalid {
					if err := t.Append(name, "-", "(not found)", "-"); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&decrypt, "decrypt", false, "decrypt SecureString values")

	return cmd
}

func newParamsPathCommand(a *app) *cobra.Command {
	var (
		recursive bool
		decrypt   bool
	)

	cmd := &cobra.Command{
		Use:   "path PATH",
		Short: "Print every parameter below a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.ssm()
			if err != nil {
				return err
			}

			result, err := client.GetParametersByPath(cmd.Context(), &ssm.GetParametersByPathRequest{
				Path:           args[0],
				Recursive:      &recursive,
				WithDecryption: &decrypt,
			})
			if err != nil {
				return err
			}

			params := []parameter{}
			for p, err := range result.Items(cmd.Context()) {
				if err != nil {
					return err
				}
				params = append(params, toParameter(p))
			}

			return a.render(params, func(t *tablewriter.Table) error {
				t.Header("Name", "Type", "Value", "Version")
				return appendParameters(t, params)
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "include nested paths")
	cmd.Flags().BoolVar(&decrypt, "decrypt", false, "decrypt SecureString values")

	return cmd
}

func toParameter(p ssm.Parameter) parameter {
	out := parameter{
		Name:  p.NameOrEmpty(),
		Value: p.ValueOrEmpty(),
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Version != nil {
		out.Version = *p.Version
	}
	if p.LastModifiedDate != nil {
		out.LastModified = &p.LastModifiedDate.Time
	}
	return out
}

func toParameters(params []ssm.Parameter) []parameter {
	out := make([]parameter, len(params))
	for i, p := range params {
		out[i] = toParameter(p)
	}
	return out
}

func appendParameters(t *tablewriter.Table, params []parameter) error {
	for _, p := range params {
		if err := t.Append(p.Name, p.Type, p.Value, fmt.Sprint(p.Version)); err != nil {
			return err
		}
	}
	return nil
}
