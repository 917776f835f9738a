package httpserver

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/quantleap/funnelsight/internal/config"
	"github.com/quantleap/funnelsight/internal/database"
	"github.com/quantleap/funnelsight/internal/fbads"
	"github.com/quantleap/funnelsight/internal/fxrates"
	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/report"
	"github.com/quantleap/funnelsight/internal/storage"
	"github.com/quantleap/funnelsight/internal/tracking"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Events  *database.ClickHouseDB
	Geo     tracking.GeoResolver
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and the report/collector services.
type Server struct {
	reportService *report.Service
	collector     *tracking.Collector
	deps          *Dependencies
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
// Missing databases fall back to in-memory stores (development mode).
func NewServer(deps *Dependencies) http.Handler {
	var eventStore storage.EventStore
	var txRepo storage.TransactionRepo
	var nameRepo storage.NameCacheRepo
	var dayRepo storage.DayCacheRepo

	if deps.Events != nil {
		eventStore = storage.NewClickHouseEventStore(deps.Events.Conn, deps.Config.Events.BatchIDLimit)
	} else {
		eventStore = storage.NewInMemoryEventStore()
	}
	if deps.DB != nil {
		txRepo = storage.NewPostgresTransactionRepo(deps.DB.Pool)
		nameRepo = storage.NewPostgresNameCacheRepo(deps.DB.Pool)
	} else {
		txRepo = storage.NewInMemoryTransactionRepo()
		nameRepo = storage.NewInMemoryNameCacheRepo()
	}
	if deps.Redis != nil {
		dayRepo = storage.NewRedisDayCacheRepo(deps.Redis.Client)
	} else {
		dayRepo = storage.NewInMemoryDayCacheRepo()
	}

	insights := fbads.NewClient(deps.Config.Facebook, deps.Logger, deps.Metrics)
	rates := fxrates.NewClient(deps.Config.FXRates, deps.Logger, deps.Metrics)

	reportSvc := report.NewService(eventStore, txRepo, nameRepo, dayRepo,
		insights, rates, deps.Logger, deps.Metrics, nil)
	collector := tracking.NewCollector(eventStore, deps.Geo, deps.Logger, deps.Metrics)

	s := &Server{
		reportService: reportSvc,
		collector:     collector,
		deps:          deps,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Admin reporting
	mux.HandleFunc("/api/v1/report", s.handleReport)

	// Tracking collector
	mux.HandleFunc("/track", s.handleTrack)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}

	ctx := r.Context()
	if s.deps.DB != nil {
		if err := s.deps.DB.Health(ctx); err != nil {
			status["postgres"] = err.Error()
			status["status"] = "degraded"
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Health(ctx); err != nil {
			status["redis"] = err.Error()
			status["status"] = "degraded"
		}
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.Health(ctx); err != nil {
			status["clickhouse"] = err.Error()
			status["status"] = "degraded"
		}
	}

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.reportService.Generate(r.Context(), req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ReportRequests.WithLabelValues("error").Inc()
		}
		s.logger.Error("report generation failed",
			zap.String("start", req.StartDate),
			zap.String("end", req.EndDate),
			zap.Error(err),
		)
		// The admin UI surfaces the raw message to engineers.
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.ReportRequests.WithLabelValues("ok").Inc()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req tracking.TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ev, err := s.collector.Record(r.Context(), &req, clientIP(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": ev.ID})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the client.
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// Timeouts for the outer http.Server; report generation is slow by
// nature (serial external API calls), so the write timeout is long.
const (
	ReadHeaderTimeout = 2 * time.Second
	ReadTimeout       = 10 * time.Second
	WriteTimeout      = 10 * time.Minute
	IdleTimeout       = 120 * time.Second
)
