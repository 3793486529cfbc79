package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// ServiceName is reported by the liveness endpoint
const ServiceName = "downtime-scheduler"

// Status values of a Report
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not ready"
)

// Report is the body of the health and readiness endpoints
type Report struct {
	Status     string            `json:"status"`
	Service    string            `json:"service,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     float64           `json:"uptime"` // seconds
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
}

type component struct {
	healthy bool
	message string
	checked time.Time
}

// registry holds the last reported state of each checked component. Readiness
// only considers the critical components.
type registry struct {
	mu         sync.RWMutex
	components map[string]component
	critical   []string
	started    time.Time
	version    string
}

func newRegistry() *registry {
	return &registry{
		components: make(map[string]component),
		critical:   []string{"store", "scheduler"},
		started:    time.Now(),
	}
}

var components = newRegistry()

// SetVersion sets the version reported by the health endpoints
func SetVersion(version string) {
	components.mu.Lock()
	components.version = version
	components.mu.Unlock()
}

// SetCriticalComponents replaces the components readiness waits for.
// An API-only process only needs "store".
func SetCriticalComponents(names ...string) {
	components.mu.Lock()
	components.critical = append([]string(nil), names...)
	components.mu.Unlock()
}

// UpdateComponent records the latest check result of a component
func UpdateComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	components.components[name] = component{healthy: healthy, message: message, checked: time.Now()}
	components.mu.Unlock()
}

// GetHealth reports every known component. Status is unhealthy when any of
// them failed its last check.
func GetHealth() Report {
	r := components
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := r.base(StatusHealthy)
	for name, c := range r.components {
		if c.healthy {
			report.Components[name] = StatusHealthy
			continue
		}
		report.Status = StatusUnhealthy
		report.Components[name] = StatusUnhealthy + ": " + c.message
	}
	return report
}

// GetReadiness reports the critical components. A component that has not
// been checked yet counts as not ready.
func GetReadiness() Report {
	r := components
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := r.base(StatusReady)
	var waiting []string
	for _, name := range r.critical {
		c, ok := r.components[name]
		switch {
		case !ok:
			report.Components[name] = "not checked"
			waiting = append(waiting, name)
		case !c.healthy:
			report.Components[name] = StatusNotReady + ": " + c.message
			waiting = append(waiting, name)
		default:
			report.Components[name] = StatusReady
		}
	}
	if len(waiting) > 0 {
		sort.Strings(waiting)
		report.Status = StatusNotReady
		report.Message = "waiting for " + strings.Join(waiting, ", ")
	}
	return report
}

func (r *registry) base(status string) Report {
	return Report{
		Status:     status,
		Version:    r.version,
		Uptime:     time.Since(r.started).Seconds(),
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}
}

// LivenessHandler answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components.mu.RLock()
		report := Report{
			Status:    StatusHealthy,
			Service:   ServiceName,
			Version:   components.version,
			Uptime:    time.Since(components.started).Seconds(),
			Timestamp: time.Now().UTC(),
		}
		components.mu.RUnlock()
		writeReport(w, http.StatusOK, report)
	}
}

// ReadyHandler answers 503 until every critical component is healthy
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetReadiness()
		code := http.StatusOK
		if report.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, report)
	}
}

// HealthHandler reports every component, answering 503 when one is unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetHealth()
		code := http.StatusOK
		if report.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, report)
	}
}

func writeReport(w http.ResponseWriter, code int, report Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
