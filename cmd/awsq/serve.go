package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Sternrassler/aws-api-client/pkg/athena"
	"github.com/Sternrassler/aws-api-client/pkg/client"
	"github.com/Sternrassler/aws-api-client/pkg/metrics"
	"github.com/Sternrassler/aws-api-client/pkg/ssm"
)

// requestTimeout bounds one proxied call including all of its pages.
const requestTimeout = 30 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve parameters and query results over HTTP",
		Long: `Serve parameters and query results over HTTP.

Routes:
  GET /health                        liveness
  GET /ready                         readiness, pings Redis when configured
  GET /metrics                       Prometheus metrics
  GET /ssm/parameters?name=N         parameters by name (repeatable, at most 10)
  GET /athena/queries/{id}/results   every row of a finished query`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shutdownTracing, err := setupTracing(cmd.Context(), tracingConfig{
				Endpoint:     a.v.GetString("otlp-endpoint"),
				Insecure:     a.v.GetBool("otlp-insecure"),
				SamplingRate: a.v.GetFloat64("trace-sampling"),
			})
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush traces")
				}
			}()

			athenaClient, err := a.athena()
			if err != nil {
				return err
			}
			ssmClient, err := a.ssm()
			if err != nil {
				return err
			}

			srv := &server{
				athena: athenaClient,
				ssm:    ssmClient,
				redis:  a.redis,
				logger: log.With().Str("component", "server").Logger(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.run(ctx, a.v.GetString("addr"))
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("otlp-endpoint", "", "OTLP/gRPC collector address; tracing is off when empty")
	flags.Bool("otlp-insecure", false, "connect to the collector without TLS")
	flags.Float64("trace-sampling", 1, "fraction of root spans to sample")
	for _, name := range []string{"addr", "otlp-endpoint", "otlp-insecure", "trace-sampling"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

// server exposes the service clients over HTTP.
type server struct {
	athena *athena.Client
	ssm    *ssm.Client
	redis  *redis.Client
	logger zerolog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /ssm/parameters", s.handleParameters)
	mux.HandleFunc("GET /athena/queries/{id}/results", s.handleQueryResults)
	return otelhttp.NewHandler(mux, "awsq")
}

func (s *server) run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Redis not reachable")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (s *server) handleParameters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	in := &ssm.GetParametersRequest{Names: r.URL.Query()["name"]}
	if v := r.URL.Query().Get("decrypt"); v != "" {
		decrypt, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "decrypt must be a boolean", http.StatusBadRequest)
			return
		}
		in.WithDecryption = &decrypt
	}

	result, err := s.ssm.GetParameters(ctx, in)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, parameterList{Parameters: toParameters(result.Parameters), Invalid: result.InvalidParameters})
}

func (s *server) handleQueryResults(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	in := &athena.GetQueryResultsInput{QueryExecutionID: r.PathValue("id")}
	if v := r.URL.Query().Get("max_results"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			http.Error(w, "max_results must be an integer", http.StatusBadRequest)
			return
		}
		maxResults := int32(n)
		in.MaxResults = &maxResults
	}

	result, err := s.athena.GetQueryResults(ctx, in)
	if err != nil {
		s.writeError(w, err)
		return
	}

	first, err := result.Page(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := queryResults{
		QueryExecutionID: in.QueryExecutionID,
		Columns:          first.ColumnNames(),
		Rows:             [][]string{},
		UpdateCount:      first.UpdateCount,
	}
	for row, err := range result.Items(ctx) {
		if err != nil {
			s.writeError(w, err)
			return
		}
		out.Rows = append(out.Rows, row.Values())
	}

	s.writeJSON(w, out)
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

// writeError maps client errors onto HTTP status codes.
func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway

	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, client.ErrThrottled), errors.Is(err, client.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.ErrorClass == client.ErrorClassClient:
		status = http.StatusBadRequest
	}

	s.logger.Warn().Err(err).Int("status", status).Msg("Request failed")
	http.Error(w, err.Error(), status)
}
