package server

import (
	"context"
	"sync"
	"time"

	"meetflow/internal/calendar"
	"meetflow/internal/progress"
)

// HealthStatus is the state reported by a probe.
type HealthStatus string

const (
	HealthStatusReady    HealthStatus = "ready"
	HealthStatusDisabled HealthStatus = "disabled"
	HealthStatusError    HealthStatus = "error"
)

// ComponentHealth is one probe result.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthProbe checks one dependency.
type HealthProbe interface {
	Check(ctx context.Context) ComponentHealth
}

// HealthChecker aggregates health probes for all components.
type HealthChecker struct {
	probes []HealthProbe
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// RegisterProbe adds a health probe.
func (h *HealthChecker) RegisterProbe(probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all components.
func (h *HealthChecker) CheckAll(ctx context.Context) []ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// CalendarProbe issues a bounded query against the calendar backend.
type CalendarProbe struct {
	Store calendar.Store
}

// Check implements HealthProbe.
func (p CalendarProbe) Check(ctx context.Context) ComponentHealth {
	if p.Store == nil {
		return ComponentHealth{Name: "calendar", Status: HealthStatusDisabled, Message: "no calendar configured"}
	}
	now := time.Now()
	events, err := p.Store.ListEvents(ctx, calendar.Query{From: now, To: now.Add(24 * time.Hour), MaxResults: 10})
	if err != nil {
		return ComponentHealth{Name: "calendar", Status: HealthStatusError, Message: err.Error()}
	}
	return ComponentHealth{
		Name:    "calendar",
		Status:  HealthStatusReady,
		Details: map[string]any{"events_next_24h": len(events)},
	}
}

// ModelProbe reports the configured generator.
type ModelProbe struct {
	Model string
}

// Check implements HealthProbe.
func (p ModelProbe) Check(context.Context) ComponentHealth {
	if p.Model == "" {
		return ComponentHealth{Name: "llm", Status: HealthStatusDisabled}
	}
	return ComponentHealth{Name: "llm", Status: HealthStatusReady, Details: map[string]any{"model": p.Model}}
}

// BroadcasterProbe reports attached progress observers.
type BroadcasterProbe struct {
	Broadcaster *progress.Broadcaster
}

// Check implements HealthProbe.
func (p BroadcasterProbe) Check(context.Context) ComponentHealth {
	if p.Broadcaster == nil {
		return ComponentHealth{Name: "progress", Status: HealthStatusDisabled}
	}
	return ComponentHealth{
		Name:    "progress",
		Status:  HealthStatusReady,
		Details: map[string]any{"subscribers": p.Broadcaster.SubscriberCount()},
	}
}

func overallStatus(components []ComponentHealth) string {
	for _, c := range components {
		if c.Status == HealthStatusError {
			return "degraded"
		}
	}
	return "ok"
}
