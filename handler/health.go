package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/gopaytr/infra/response"
)

// StatsProvider reports statistics of a backing store
type StatsProvider interface {
	GetStats() (map[string]any, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	version       string
	environment   string
	gatewayReady  func() bool
	credentials   StatsProvider
	eventsEnabled bool
	startTime     time.Time
}

// HealthStatus represents overall service health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// SystemHealth represents process resource usage
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string         `json:"status"`
	Healthy     bool           `json:"healthy"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler. gatewayReady reports
// whether merchant credentials are configured; credentials may be nil
// when no SQLite store is used.
func NewHealthHandler(version, environment string, gatewayReady func() bool, credentials StatsProvider, eventsEnabled bool) *HealthHandler {
	return &HealthHandler{
		version:       version,
		environment:   environment,
		gatewayReady:  gatewayReady,
		credentials:   credentials,
		eventsEnabled: eventsEnabled,
		startTime:     time.Now(),
	}
}

// CheckHealth reports the service status. A gateway without credentials
// makes the service unhealthy.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Version:     h.version,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: h.environment,
		System:      checkSystemHealth(),
		Services:    h.checkServicesHealth(),
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkServicesHealth() map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)

	gateway := &ServiceHealth{Description: "PayTR iframe gateway"}
	if h.gatewayReady != nil && h.gatewayReady() {
		gateway.Status, gateway.Healthy = "healthy", true
	} else {
		gateway.Status = "unhealthy"
		gateway.Error = "merchant credentials are not configured"
	}
	services["paytr_gateway"] = gateway

	store := &ServiceHealth{Description: "SQLite merchant credential store"}
	if h.credentials == nil {
		store.Status = "not_configured"
	} else if stats, err := h.credentials.GetStats(); err != nil {
		store.Status = "degraded"
		store.Error = err.Error()
	} else {
		store.Status, store.Healthy = "healthy", true
		store.Details = stats
	}
	services["credential_store"] = store

	events := &ServiceHealth{Description: "OpenSearch payment event logging"}
	if h.eventsEnabled {
		events.Status, events.Healthy = "healthy", true
	} else {
		events.Status = "not_configured"
	}
	services["event_logging"] = events

	return services
}

func determineOverallStatus(health *HealthStatus) string {
	if gw, ok := health.Services["paytr_gateway"]; ok && !gw.Healthy {
		return "unhealthy"
	}
	for _, service := range health.Services {
		if service.Status == "degraded" {
			return "degraded"
		}
	}
	return "healthy"
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
