// AngelaMos | 2026
// handler.go

// Package health serves the orchestrator health checks. Liveness only
// reflects the process lifecycle. Readiness also pings the account store and
// the token denylist that entitlement checks rely on.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

const pingBudget = 5 * time.Second

const (
	StatusOK           = "ok"
	StatusDegraded     = "degraded"
	StatusNotReady     = "not_ready"
	StatusShuttingDown = "shutting_down"
)

type phase int32

const (
	phaseServing phase = iota
	phaseWarming
	phaseDraining
)

type Checker interface {
	Ping(ctx context.Context) error
}

// Dependency is one named readiness target.
type Dependency struct {
	Name    string
	Checker Checker
}

// Report is the bare health check body. Checks is only filled by readiness.
type Report struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  []DependencyCheck `json:"checks,omitempty"`
}

type DependencyCheck struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type Handler struct {
	deps    []Dependency
	version string
	phase   atomic.Int32
}

func NewHandler(version string, deps ...Dependency) *Handler {
	return &Handler{deps: deps, version: version}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	for _, path := range []string{"/healthz", "/livez"} {
		r.Get(path, h.Liveness)
	}
	r.Get("/readyz", h.Readiness)
}

// SetReady moves between warming and serving. It never undoes a drain.
func (h *Handler) SetReady(ready bool) {
	from, to := phaseServing, phaseWarming
	if ready {
		from, to = phaseWarming, phaseServing
	}
	h.phase.CompareAndSwap(int32(from), int32(to))
}

// SetShutdown(true) starts draining; liveness and readiness answer 503 from then on.
func (h *Handler) SetShutdown(shutdown bool) {
	if shutdown {
		h.phase.Store(int32(phaseDraining))
		return
	}
	h.phase.CompareAndSwap(int32(phaseDraining), int32(phaseServing))
}

func (h *Handler) current() phase {
	return phase(h.phase.Load())
}

func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	if h.current() == phaseDraining {
		h.write(w, http.StatusServiceUnavailable, Report{Status: StatusShuttingDown})
		return
	}
	h.write(w, http.StatusOK, Report{Status: StatusOK})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	switch h.current() {
	case phaseDraining:
		h.write(w, http.StatusServiceUnavailable, Report{Status: StatusShuttingDown})
		return
	case phaseWarming:
		h.write(w, http.StatusServiceUnavailable, Report{Status: StatusNotReady})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingBudget)
	defer cancel()

	report := Report{Status: StatusOK, Checks: h.pingAll(ctx)}
	code := http.StatusOK
	for _, c := range report.Checks {
		if !c.Healthy {
			report.Status, code = StatusDegraded, http.StatusServiceUnavailable
		}
	}
	h.write(w, code, report)
}

// pingAll runs every check concurrently and keeps registration order.
func (h *Handler) pingAll(ctx context.Context) []DependencyCheck {
	out := make([]DependencyCheck, len(h.deps))

	var wg sync.WaitGroup
	for i, dep := range h.deps {
		wg.Go(func() { out[i] = ping(ctx, dep) })
	}
	wg.Wait()

	return out
}

// ping never surfaces the driver error; it can carry hostnames.
func ping(ctx context.Context, dep Dependency) DependencyCheck {
	if dep.Checker == nil {
		return DependencyCheck{Name: dep.Name, Message: "not configured"}
	}

	start := time.Now()
	err := dep.Checker.Ping(ctx)
	result := DependencyCheck{
		Name:    dep.Name,
		Healthy: err == nil,
		Latency: time.Since(start).Round(time.Microsecond).String(),
	}
	if err != nil {
		result.Message = "ping failed"
	}
	return result
}

// Orchestrators read the bare report, not the API envelope.
func (h *Handler) write(w http.ResponseWriter, status int, report Report) {
	report.Version = h.version
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	core.JSON(w, status, report)
}
