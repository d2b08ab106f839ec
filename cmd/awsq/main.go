// Command awsq queries Athena results and Parameter Store values from the
// command line, or serves them over HTTP.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/aws-api-client/pkg/athena"
	"github.com/Sternrassler/aws-api-client/pkg/client"
	"github.com/Sternrassler/aws-api-client/pkg/logging"
	"github.com/Sternrassler/aws-api-client/pkg/ssm"
)

var version = "dev"

// app carries the configuration and clients shared by all commands.
type app struct {
	v   *viper.Viper
	out io.Writer

	transport *client.Client
	redis     *redis.Client
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	cmd := &cobra.Command{
		Use:   "awsq",
		Short: "Query Athena results and SSM parameters",
		Long: `awsq reads Athena query results and Parameter Store values.

Paginated results are streamed: the next page is requested while the
current one is printed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.awsq.yaml)")
	flags.String("region", "us-east-1", "AWS region")
	flags.String("endpoint", "", "endpoint override, e.g. http://localhost:4566")
	flags.String("redis", "", "Redis address for the shared cache and throttle state")
	flags.StringP("output", "o", "table", "output format (table, json, yaml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	for _, name := range []string{"config", "region", "endpoint", "redis", "output", "log-level"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(newQueryCommand(a))
	cmd.AddCommand(newParamsCommand(a))
	cmd.AddCommand(newServeCommand(a))

	return cmd
}

// init loads .env, the config file and the environment, then sets up logging.
func (a *app) init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	a.v.SetEnvPrefix("AWSQ")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".awsq")
		a.v.SetConfigType("yaml")
		// A missing default config file is fine
		_ = a.v.ReadInConfig()
	}

	level, err := logging.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	logging.Setup(cfg)

	switch a.v.GetString("output") {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown output format %q", a.v.GetString("output"))
	}

	return nil
}

// client returns the shared transport, creating it on first use.
func (a *app) client() (*client.Client, error) {
	if a.transport != nil {
		return a.transport, nil
	}

	cfg := client.DefaultConfig(a.v.GetString("region"))
	cfg.Endpoint = a.v.GetString("endpoint")
	cfg.UserAgent = "awsq/" + version

	if id := a.v.GetString("access-key-id"); id != "" {
		cfg.Credentials = client.StaticCredentials(id, a.v.GetString("secret-access-key"), a.v.GetString("session-token"))
	}

	if addr := a.v.GetString("redis"); addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: addr})
		cfg.Redis = a.redis
	}

	transport, err := client.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create AWS client: %w", err)
	}
	a.transport = transport
	return transport, nil
}

func (a *app) athena() (*athena.Client, error) {
	transport, err := a.client()
	if err != nil {
		return nil, err
	}
	return athena.New(transport), nil
}

func (a *app) ssm() (*ssm.Client, error) {
	transport, err := a.client()
	if err != nil {
		return nil, err
	}
	return ssm.New(transport), nil
}

func (a *app) close() error {
	if a.transport != nil {
		a.transport.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
