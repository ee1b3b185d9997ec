package services

import (
	"context"
	"runtime"
	"time"
)

// Version is the reported application version
const Version = "v1.0.0"

// HealthService reports process health for probes and the UI footer.
type HealthService struct {
	startedAt time.Time
}

// NewHealthService creates a new health service
func NewHealthService() *HealthService {
	return &HealthService{startedAt: time.Now()}
}

// HealthCheck returns the overall health payload
func (h *HealthService) HealthCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"status":     "healthy",
		"version":    Version,
		"uptime":     time.Since(h.startedAt).String(),
		"goroutines": runtime.NumGoroutine(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
}

// ReadinessCheck reports whether the service can take traffic. The
// service has no external dependencies, so readiness follows liveness.
func (h *HealthService) ReadinessCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"status": "ready"}
}

// LivenessCheck reports process liveness
func (h *HealthService) LivenessCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"status": "alive"}
}

// VersionInfo returns build version details
func (h *HealthService) VersionInfo() map[string]interface{} {
	return map[string]interface{}{
		"version":    Version,
		"go_version": runtime.Version(),
	}
}
