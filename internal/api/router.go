package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sketchreel/internal/ledger"
	"sketchreel/internal/logging"
	"sketchreel/internal/pipeline"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 500
	version             = "0.1.0"
)

// CycleSource exposes watch loop progress.
type CycleSource interface {
	LastCycle() (pipeline.CycleReport, bool)
	Cycles() int
}

// LedgerReader exposes attempt history.
type LedgerReader interface {
	Summary(ctx context.Context) (ledger.Summary, error)
	Recent(ctx context.Context, limit int) ([]ledger.Attempt, error)
}

// Deps are the values the router reports on.
type Deps struct {
	Cycles    CycleSource
	Ledger    LedgerReader
	Remote    string
	StartedAt time.Time
	Token     string
	Logger    *slog.Logger
}

type handler struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewRouter builds the status API.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now()
	}
	h := &handler{deps: d, logger: logging.NewComponentLogger(logger, "api"), now: time.Now}

	r := chi.NewRouter()
	r.Get("/api/health", h.health)
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(d.Token))
		r.Get("/api/status", h.status)
		r.Get("/api/attempts", h.attempts)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok", Service: "sketchreel", Version: version})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	resp := Status{
		StartedAt: formatTime(h.deps.StartedAt),
		Uptime:    h.now().Sub(h.deps.StartedAt).Truncate(time.Second).String(),
		Remote:    h.deps.Remote,
		Ledger:    LedgerSummary{Outcomes: map[string]int{}},
	}
	if h.deps.Cycles != nil {
		resp.Cycles = h.deps.Cycles.Cycles()
		if report, ok := h.deps.Cycles.LastCycle(); ok {
			cycle := FromCycleReport(report)
			resp.LastCycle = &cycle
		}
	}
	if h.deps.Ledger != nil {
		summary, err := h.deps.Ledger.Summary(r.Context())
		if err != nil {
			h.logger.Warn("ledger summary failed", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "ledger unavailable")
			return
		}
		resp.Ledger = FromSummary(summary)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) attempts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAttemptLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxAttemptLimit)
	}
	if h.deps.Ledger == nil {
		writeJSON(w, http.StatusOK, []Attempt{})
		return
	}
	rows, err := h.deps.Ledger.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Warn("ledger query failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	out := make([]Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromAttempt(row))
	}
	writeJSON(w, http.StatusOK, out)
}

// bearerAuth requires "Authorization: Bearer <token>" when token is set.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
