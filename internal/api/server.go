package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nadim/fieldsync/internal/appeal"
	"github.com/nadim/fieldsync/internal/geo"
	"github.com/nadim/fieldsync/internal/scheduler"
	"github.com/nadim/fieldsync/internal/store"
	syncpkg "github.com/nadim/fieldsync/internal/sync"
	"github.com/nadim/fieldsync/internal/zones"
)

// zoneCatalog is a swappable zone index. A zone import replaces the snapshot
// atomically; in-flight batches keep validating against the one they started
// with.
type zoneCatalog struct {
	idx atomic.Pointer[zones.Index]
}

func (zc *zoneCatalog) Candidates(zoneID int64) ([]geo.Polygon, error) {
	return zc.idx.Load().Candidates(zoneID)
}

func (zc *zoneCatalog) snapshot() *zones.Index {
	return zc.idx.Load()
}

// Server is the HTTP API server for fieldsync.
type Server struct {
	config      Config
	http        *http.Server
	store       *store.Store
	catalog     *zoneCatalog
	coordinator *syncpkg.Coordinator
	appeals     *appeal.Service
	sched       *scheduler.Scheduler
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
}

// NewServer creates a new Server with the given config and store. The zone
// index is loaded eagerly so a broken zone table fails startup.
func NewServer(cfg Config, st *store.Store) (*Server, error) {
	idx, err := st.LoadZoneIndex(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load zone index: %w", err)
	}
	catalog := &zoneCatalog{}
	catalog.idx.Store(idx)

	coord := syncpkg.NewCoordinator(st, catalog, cfg.Thresholds(), slog.Default())
	coord.SetWarningSink(st)

	s := &Server{
		config:      cfg,
		store:       st,
		catalog:     catalog,
		coordinator: coord,
		appeals:     appeal.NewService(st, slog.Default()),
		sched:       scheduler.New(st, cfg.SchedulerInterval, slog.Default()),
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	// Recurring task templates materialize in the background.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("scheduler panic", "panic", r)
			}
		}()
		s.sched.Run(ctx)
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Device sync
	mux.HandleFunc("POST /v1/sync/tasks", s.requireDevice(s.withRateLimit(s.handleSyncBatch("task"), s.config.RateLimitSync)))
	mux.HandleFunc("POST /v1/sync/attendance", s.requireDevice(s.withRateLimit(s.handleSyncBatch("attendance"), s.config.RateLimitSync)))
	mux.HandleFunc("POST /v1/sync/issues", s.requireDevice(s.withRateLimit(s.handleSyncBatch("issue"), s.config.RateLimitSync)))
	mux.HandleFunc("GET /v1/sync/batches", s.requireAdmin(s.withRateLimit(s.handleListBatches, s.config.RateLimitOther)))

	// Appeals
	mux.HandleFunc("POST /v1/appeals", s.requireDevice(s.withRateLimit(s.handleSubmitAppeal, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/appeals", s.requireAdmin(s.withRateLimit(s.handleListAppeals, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/appeals/{id}", s.requireAdmin(s.withRateLimit(s.handleGetAppeal, s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/appeals/{id}/review", s.requireAdmin(s.withRateLimit(s.handleReviewAppeal, s.config.RateLimitOther)))

	// Zones
	mux.HandleFunc("GET /v1/zones", s.withRateLimit(s.handleListZones, s.config.RateLimitOther))
	mux.HandleFunc("PUT /v1/zones", s.requireAdmin(s.withRateLimit(s.handleImportZones, s.config.RateLimitOther)))
	mux.HandleFunc("DELETE /v1/zones/{code}", s.requireAdmin(s.withRateLimit(s.handleDeactivateZone, s.config.RateLimitOther)))

	// Supervisor review & admin
	mux.HandleFunc("GET /v1/entities/{kind}", s.requireAdmin(s.withRateLimit(s.handleListEntities, s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/tasks/{id}/review", s.requireAdmin(s.withRateLimit(s.handleReviewTask, s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/attendance/{id}/review", s.requireAdmin(s.withRateLimit(s.handleReviewAttendance, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/workers", s.requireAdmin(s.withRateLimit(s.handleListWorkers, s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/workers", s.requireAdmin(s.withRateLimit(s.handleCreateWorker, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/templates", s.requireAdmin(s.withRateLimit(s.handleListTemplates, s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/templates", s.requireAdmin(s.withRateLimit(s.handleCreateTemplate, s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/devices/keys", s.requireAdmin(s.withRateLimit(s.handleCreateDeviceKey, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/devices/keys", s.requireAdmin(s.withRateLimit(s.handleListDeviceKeys, s.config.RateLimitOther)))
	mux.HandleFunc("DELETE /v1/devices/keys/{id}", s.requireAdmin(s.withRateLimit(s.handleRevokeDeviceKey, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/status", s.withRateLimit(s.handleStatus, s.config.RateLimitOther))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(10<<20))
}

// handleHealth returns a health check response, pinging the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// StatusResponse is the operational overview served to the status CLI and
// the monitor TUI.
type StatusResponse struct {
	Metrics      MetricsSnapshot     `json:"metrics"`
	EntityCounts map[string]int      `json:"entity_counts"`
	ZoneCount    int                 `json:"zone_count"`
	Batches      []store.BatchRecord `json:"recent_batches"`
}

// handleStatus aggregates entity counts, zone count, recent batches and
// metrics into one response.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.EntityStateCounts(r.Context())
	if err != nil {
		logFor(r.Context()).Error("entity state counts", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load status")
		return
	}
	batches, err := s.store.RecentBatches(r.Context(), "", 20)
	if err != nil {
		logFor(r.Context()).Error("recent batches", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Metrics:      s.metrics.Snapshot(),
		EntityCounts: counts,
		ZoneCount:    s.catalog.snapshot().Len(),
		Batches:      batches,
	})
}
