package admin

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// HealthResponse is the body of /livez and /readyz.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// Health holds the readiness checks of the server.
type Health struct {
	service string
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func newHealth(service, version string) *Health {
	return &Health{
		service: service,
		version: version,
		timeout: 2 * time.Second,
		checks:  make(map[string]CheckFunc),
	}
}

// AddReadinessCheck registers check under name, replacing any previous one.
func (h *Health) AddReadinessCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// live always answers ok while the process can serve requests.
func (h *Health) live(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, HealthResponse{
		Status:    statusOK,
		Service:   h.service,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	}, "")
}

// ready runs every check and answers 503 if any fails.
func (h *Health) ready(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, c := range h.checks {
		names = append(names, name)
		checks[name] = c
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:    statusOK,
		Service:   h.service,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(names)),
	}
	for _, name := range names {
		start := time.Now()
		err := checks[name](ctx)
		result := CheckResult{Status: statusOK, Duration: time.Since(start).String()}
		if err != nil {
			result.Status = statusFail
			result.Error = err.Error()
			resp.Status = statusFail
		}
		resp.Checks[name] = result
	}

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeSuccess(w, code, resp, "")
}
