package handlers

import (
	"context"
	"net/http"
	"time"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"

	readinessCheckTimeout = 5 * time.Second
)

// BuildInfo describes the running binary for health reporting.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck probes a single downstream dependency.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the /healthz and /readyz probes.
type HealthHandlers struct {
	build  BuildInfo
	clock  func() time.Time
	checks []namedReadinessCheck
}

type namedReadinessCheck struct {
	name  string
	check ReadinessCheck
}

// HealthOption customises the health handlers before construction.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthBuildInfo sets the build metadata reported by the probes.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime calculation.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a named dependency probe run by /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || check == nil {
			return
		}
		h.checks = append(h.checks, namedReadinessCheck{name: name, check: check})
	}
}

// Healthz reports liveness with build metadata. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    healthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type readinessCheckResult struct {
	Status    string `json:"status"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checkedAt"`
}

type readinessResponse struct {
	Status  string                          `json:"status"`
	Checks  map[string]readinessCheckResult `json:"checks"`
	Details []string                        `json:"details"`
}

// Readyz runs every registered dependency probe and reports 503 if any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()

	response := readinessResponse{
		Status:  healthStatusOK,
		Checks:  make(map[string]readinessCheckResult, len(h.checks)),
		Details: []string{},
	}

	for _, probe := range h.checks {
		started := h.clock()
		err := probe.check(ctx)
		finished := h.clock()

		result := readinessCheckResult{
			Status:    healthStatusOK,
			Latency:   finished.Sub(started).String(),
			CheckedAt: finished.UTC().Format(time.RFC3339),
		}
		if err != nil {
			result.Status = healthStatusDegraded
			result.Error = err.Error()
			response.Status = healthStatusDegraded
			response.Details = append(response.Details, probe.name+": "+err.Error())
		}
		response.Checks[probe.name] = result
	}

	status := http.StatusOK
	if response.Status != healthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, response)
}
