// Package server exposes the engine over HTTP: a query endpoint plus the
// Prometheus metrics and health endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/castordb/castor/internal/config"
	"github.com/castordb/castor/internal/engine"
	"github.com/castordb/castor/internal/settings"
	"github.com/castordb/castor/internal/util/workerpool"
)

// Server is the HTTP front of the engine.
type Server struct {
	httpServer *http.Server
	engine     *engine.Engine
	pool       *workerpool.Pool
	logger     *zap.Logger
	shutdown   time.Duration
}

// New creates the server. gatherer may be nil to disable /metrics.
func New(cfg config.ServerConfig, metricsCfg config.MetricsConfig, eng *engine.Engine, pool *workerpool.Pool, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		engine:   eng,
		pool:     pool,
		logger:   logger,
		shutdown: cfg.ShutdownTimeout,
	}

	mux.HandleFunc("/query", s.queryHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if metricsCfg.Enabled && gatherer != nil {
		mux.Handle(metricsCfg.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// Handler returns the server's route multiplexer, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("http server stopping")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

// queryResponse is the JSON shape of a query result.
type queryResponse struct {
	QueryID string   `json:"query_id"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Cached  bool     `json:"cached"`
}

// queryHandler executes the SQL in the request body. The requesting user
// comes from the X-Castor-User header, or from the "user" URL query
// parameter when the header is absent; every other URL query parameter is
// treated as a per-query setting.
func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	query := string(body)

	user := r.Header.Get("X-Castor-User")
	set := settings.Settings{}
	for name, values := range r.URL.Query() {
		if name == "user" {
			if user == "" && len(values) > 0 {
				user = values[0]
			}
			continue
		}
		if len(values) > 0 {
			set[name] = values[0]
		}
	}

	var res *engine.Result
	err = s.pool.Do(r.Context(), func(ctx context.Context) error {
		var execErr error
		res, execErr = s.engine.Execute(ctx, query, set, user)
		return execErr
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := queryResponse{
		QueryID: res.QueryID.String(),
		Cached:  res.Cached,
		Rows:    make([][]any, 0, res.Rows()),
	}
	for _, m := range res.Header {
		resp.Columns = append(resp.Columns, fmt.Sprintf("%s %s", m.Name, m.Type))
	}
	for _, chunk := range res.Chunks {
		for i := 0; i < chunk.NumRows(); i++ {
			resp.Rows = append(resp.Rows, chunk.Row(i))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// healthHandler answers liveness probes.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}
