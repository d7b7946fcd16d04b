package server

import (
	"runtime"
	"time"

	"econsim-terminal/internal/feed"
)

// HealthStatus represents the health of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth is the health of one data source.
type ComponentHealth struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
	Interval  string       `json:"interval,omitempty"`
	Refreshes uint64       `json:"refreshes"`
	Failures  uint64       `json:"failures"`
	Discarded uint64       `json:"discarded"`
}

// SystemHealth is the body of /health.
type SystemHealth struct {
	Status        HealthStatus      `json:"status"`
	Uptime        string            `json:"uptime"`
	StartTime     time.Time         `json:"start_time"`
	Components    []ComponentHealth `json:"components"`
	Goroutines    int               `json:"goroutines"`
	MemoryAllocMB uint64            `json:"memory_alloc_mb"`
	NumGC         uint32            `json:"num_gc"`
	ReadOnly      bool              `json:"read_only"`
}

// componentHealth classifies a source. A source that never loaded and never
// failed is UNKNOWN (usually waiting for a selection); a failure after the
// last successful load is DEGRADED; a failure with nothing loaded is
// UNHEALTHY.
func componentHealth(st feed.Status) ComponentHealth {
	h := ComponentHealth{
		Name:      st.Name,
		UpdatedAt: st.UpdatedAt,
		Refreshes: st.Refreshes,
		Failures:  st.Failures,
		Discarded: st.Discarded,
	}
	if st.Interval > 0 {
		h.Interval = st.Interval.String()
	}

	failedSinceLoad := st.LastError != "" && st.LastErrorAt.After(st.UpdatedAt)
	switch {
	case st.HasValue && !failedSinceLoad:
		h.Status = HealthStatusHealthy
	case st.HasValue:
		h.Status = HealthStatusDegraded
		h.Message = st.LastError
	case failedSinceLoad:
		h.Status = HealthStatusUnhealthy
		h.Message = st.LastError
	default:
		h.Status = HealthStatusUnknown
	}
	return h
}

func systemHealth(statuses []feed.Status, start time.Time, readOnly bool) SystemHealth {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := SystemHealth{
		Status:        HealthStatusHealthy,
		Uptime:        time.Since(start).Truncate(time.Second).String(),
		StartTime:     start,
		Components:    make([]ComponentHealth, 0, len(statuses)),
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: mem.Alloc / 1024 / 1024,
		NumGC:         mem.NumGC,
		ReadOnly:      readOnly,
	}

	hasUnhealthy, hasDegraded := false, false
	for _, st := range statuses {
		h := componentHealth(st)
		switch h.Status {
		case HealthStatusUnhealthy:
			hasUnhealthy = true
		case HealthStatusDegraded:
			hasDegraded = true
		}
		out.Components = append(out.Components, h)
	}

	if hasUnhealthy {
		out.Status = HealthStatusUnhealthy
	} else if hasDegraded {
		out.Status = HealthStatusDegraded
	}
	return out
}
