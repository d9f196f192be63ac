// Package performance times named pipeline stages. The chunk coordinator
// records sampling, upload, and publish durations; the admin metrics endpoint
// exposes the snapshot.
package performance

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Profiler aggregates duration statistics per stage name.
type Profiler struct {
	mu        sync.RWMutex
	stages    map[string]*stageStats
	enabled   bool
	startTime time.Time
}

type stageStats struct {
	count     int64
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	lastTime  time.Duration
	lastCall  time.Time
}

// Operation is a single in-flight timing started by Start.
type Operation struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// StageReport is the aggregated statistics for one stage, in milliseconds.
type StageReport struct {
	Name     string    `json:"name"`
	Count    int64     `json:"count"`
	AvgMs    float64   `json:"avg_ms"`
	MinMs    float64   `json:"min_ms"`
	MaxMs    float64   `json:"max_ms"`
	LastMs   float64   `json:"last_ms"`
	TotalMs  float64   `json:"total_ms"`
	LastCall time.Time `json:"last_call"`
}

// Report is a point-in-time snapshot of all stages.
type Report struct {
	StartTime     time.Time     `json:"start_time"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Stages        []StageReport `json:"stages"`
}

// NewProfiler creates a profiler. A disabled profiler accepts calls and
// records nothing.
func NewProfiler(enabled bool) *Profiler {
	return &Profiler{
		stages:    make(map[string]*stageStats),
		enabled:   enabled,
		startTime: time.Now(),
	}
}

// Start begins timing a stage. Returns nil when disabled; End on a nil
// operation is a no-op, so call sites stay unconditional.
func (p *Profiler) Start(name string) *Operation {
	if !p.IsEnabled() {
		return nil
	}
	return &Operation{
		profiler: p,
		name:     name,
		start:    time.Now(),
	}
}

// End completes the timing and records the elapsed duration.
func (o *Operation) End() {
	if o == nil {
		return
	}
	o.profiler.Record(o.name, time.Since(o.start))
}

// Record adds one observed duration for the stage.
func (p *Profiler) Record(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		return
	}

	stats, ok := p.stages[name]
	if !ok {
		stats = &stageStats{minTime: duration, maxTime: duration}
		p.stages[name] = stats
	}

	stats.count++
	stats.totalTime += duration
	stats.lastTime = duration
	stats.lastCall = time.Now()
	if duration < stats.minTime {
		stats.minTime = duration
	}
	if duration > stats.maxTime {
		stats.maxTime = duration
	}
}

// Snapshot returns the current statistics, stages sorted by name.
func (p *Profiler) Snapshot() Report {
	p.mu.RLock()
	defer p.mu.RUnlock()

	report := Report{
		StartTime:     p.startTime,
		UptimeSeconds: time.Since(p.startTime).Seconds(),
		Stages:        make([]StageReport, 0, len(p.stages)),
	}

	for name, stats := range p.stages {
		avg := time.Duration(0)
		if stats.count > 0 {
			avg = stats.totalTime / time.Duration(stats.count)
		}
		report.Stages = append(report.Stages, StageReport{
			Name:     name,
			Count:    stats.count,
			AvgMs:    durationMs(avg),
			MinMs:    durationMs(stats.minTime),
			MaxMs:    durationMs(stats.maxTime),
			LastMs:   durationMs(stats.lastTime),
			TotalMs:  durationMs(stats.totalTime),
			LastCall: stats.lastCall,
		})
	}

	sort.Slice(report.Stages, func(i, j int) bool {
		return report.Stages[i].Name < report.Stages[j].Name
	})
	return report
}

// Reset clears all recorded stages and restarts the uptime clock.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = make(map[string]*stageStats)
	p.startTime = time.Now()
}

// LogSummary writes one log line per stage. Called on shutdown.
func (p *Profiler) LogSummary() {
	for _, stage := range p.Snapshot().Stages {
		slog.Info("stage timing",
			"stage", stage.Name,
			"count", stage.Count,
			"avg_ms", stage.AvgMs,
			"min_ms", stage.MinMs,
			"max_ms", stage.MaxMs,
		)
	}
}

// Enable turns recording on.
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

// Disable turns recording off. Existing statistics are kept.
func (p *Profiler) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// IsEnabled reports whether recording is on.
func (p *Profiler) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
