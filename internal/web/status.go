package web

import (
	"sort"
	"sync"
	"time"

	"joftmode/internal/telemetry"
)

const serviceName = "joftmode"

// TelemetrySource is the read side of the telemetry store.
type TelemetrySource interface {
	Snapshot() telemetry.Snapshot
}

// Status aggregates what /api/status reports: static run info set once at
// startup, the latest telemetry, and counters polled from each task.
type Status struct {
	start time.Time
	telem TelemetrySource

	mu       sync.RWMutex
	info     map[string]string
	counters map[string]func() any
}

func NewStatus(telem TelemetrySource) *Status {
	return &Status{
		start:    time.Now(),
		telem:    telem,
		info:     map[string]string{},
		counters: map[string]func() any{},
	}
}

// SetInfo records a static key, e.g. the IMU source or the log file path.
func (s *Status) SetInfo(key, value string) {
	s.mu.Lock()
	s.info[key] = value
	s.mu.Unlock()
}

// AddCounter registers a stats getter. fn is called on every request and
// must be safe for concurrent use.
func (s *Status) AddCounter(name string, fn func() any) {
	s.mu.Lock()
	s.counters[name] = fn
	s.mu.Unlock()
}

type StatusSnapshot struct {
	Service   string             `json:"service"`
	NowUTC    string             `json:"now_utc"`
	UptimeSec int64              `json:"uptime_sec"`
	Info      map[string]string  `json:"info"`
	Telemetry telemetry.Snapshot `json:"telemetry"`
	Counters  map[string]any     `json:"counters"`
	Tasks     []string           `json:"tasks"`
}

func (s *Status) Snapshot(now time.Time) StatusSnapshot {
	if now.IsZero() {
		now = time.Now()
	}
	snap := StatusSnapshot{
		Service:   serviceName,
		NowUTC:    now.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(now.Sub(s.start).Seconds()),
		Info:      map[string]string{},
		Counters:  map[string]any{},
	}
	if s.telem != nil {
		snap.Telemetry = s.telem.Snapshot()
	}

	s.mu.RLock()
	for k, v := range s.info {
		snap.Info[k] = v
	}
	fns := make(map[string]func() any, len(s.counters))
	for k, fn := range s.counters {
		fns[k] = fn
	}
	s.mu.RUnlock()

	for k, fn := range fns {
		snap.Counters[k] = fn()
		snap.Tasks = append(snap.Tasks, k)
	}
	sort.Strings(snap.Tasks)
	return snap
}
