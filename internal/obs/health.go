// Package obs provides health checking and Prometheus metrics for
// streamgate, grounded in the teacher's pkg/monitoring shape.
package obs

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult is the outcome of a single health check.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck performs one liveness probe.
type HealthCheck func() CheckResult

// HealthStatus is the aggregate liveness payload for GET /health.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`

	Streams    int    `json:"streams"`
	Sessions   int    `json:"sessions"`
	StorageDir string `json:"storageDir"`
}

// HealthChecker aggregates named checks into one status.
type HealthChecker struct {
	service string
	version string
	checks  map[string]HealthCheck

	// StreamCount, SessionCount and StorageDir are read at report time so
	// the checker can be constructed before the registry/session manager
	// exist and wired in afterwards.
	StreamCount  func() int
	SessionCount func() int
	StorageDir   string
}

// NewHealthChecker constructs an empty checker for the given service/version.
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheck),
	}
}

// AddCheck registers a named health check.
func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.checks[name] = check
}

// Report runs every check and returns the aggregate status.
func (hc *HealthChecker) Report() HealthStatus {
	status := HealthStatus{
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult),
	}

	unhealthy, degraded := false, false
	for name, check := range hc.checks {
		result := check()
		status.Checks[name] = result
		switch result.Status {
		case StatusDegraded:
			degraded = true
		case StatusHealthy:
		default:
			unhealthy = true
		}
	}

	switch {
	case unhealthy:
		status.Status = StatusUnhealthy
	case degraded:
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}

	if hc.StreamCount != nil {
		status.Streams = hc.StreamCount()
	}
	if hc.SessionCount != nil {
		status.Sessions = hc.SessionCount()
	}
	status.StorageDir = hc.StorageDir

	return status
}

// Handler renders GET /health.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := hc.Report()
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	}
}

// ConfigurationCheck flags missing required configuration values.
func ConfigurationCheck(values map[string]string) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		var missing []string
		for key, value := range values {
			if value == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "missing required configuration",
				Latency: time.Since(start).String(),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "configuration present", Latency: time.Since(start).String()}
	}
}

// StatDir reports whether the storage root is reachable at the filesystem
// level, using statfs on Linux and a plain stat elsewhere.
func StatDir(path string) error {
	return statDir(path)
}

// StorageCheck verifies the storage root directory is statable; a missing
// directory is degraded rather than unhealthy since it is created on demand
// by the asset producer.
func StorageCheck(path string, stat func(string) error) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		if err := stat(path); err != nil {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "storage directory not yet materialized: " + err.Error(),
				Latency: time.Since(start).String(),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "storage directory reachable", Latency: time.Since(start).String()}
	}
}
