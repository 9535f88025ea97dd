package app

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/lendsim/internal/observability"
	"github.com/odyssey-erp/lendsim/internal/platform/httpx"
)

// Progress tracks merchant completion for the status server. Observe matches
// the lender progress callback.
type Progress struct {
	mu       sync.RWMutex
	done     int
	total    int
	started  time.Time
	finished bool
	now      func() time.Time
}

// ProgressSnapshot is the JSON body served on /progress.
type ProgressSnapshot struct {
	Done           int     `json:"done"`
	Total          int     `json:"total"`
	Percent        float64 `json:"percent"`
	Finished       bool    `json:"finished"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// NewProgress starts tracking a run over total merchants.
func NewProgress(total int) *Progress {
	p := &Progress{total: total, now: time.Now}
	p.started = p.now()
	return p
}

// Observe records that done of total merchants have completed.
func (p *Progress) Observe(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	p.total = total
}

// Finish marks the run complete.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := ProgressSnapshot{
		Done:           p.done,
		Total:          p.total,
		Finished:       p.finished,
		ElapsedSeconds: p.now().Sub(p.started).Seconds(),
	}
	if p.total > 0 {
		s.Percent = 100 * float64(p.done) / float64(p.total)
	}
	return s
}

// RouterParams groups dependencies for building the status router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Metrics  *observability.Metrics
	Progress *Progress
}

// NewRouter constructs the status chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, params.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
		if params.Progress == nil {
			httpx.Problem(w, http.StatusNotFound, "no run in progress")
			return
		}
		httpx.JSON(w, params.Logger, http.StatusOK, params.Progress.Snapshot())
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// NewStatusServer wraps the router in an http.Server using the configured
// address and timeouts.
func NewStatusServer(cfg *Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           handler,
		ReadTimeout:       cfg.StatusReadTimeout,
		ReadHeaderTimeout: cfg.StatusReadTimeout,
		WriteTimeout:      cfg.StatusWriteTimeout,
	}
}
