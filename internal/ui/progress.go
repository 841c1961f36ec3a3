package ui

import (
	"sync"
	"time"
)

// etaSmoothingFactor is the weight of a fresh ETA against the previous one.
const etaSmoothingFactor = 0.3

// speedWindow is the minimum interval between speed samples.
const speedWindow = 500 * time.Millisecond

// ProgressTracker manages progress state across stages.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu         sync.RWMutex
	stage      Stage
	current    int
	total      int
	item       string
	startTime  time.Time
	stageStart time.Time
	errors     int
	warnings   int

	lastETA       time.Duration
	lastCurrent   int
	lastSpeedCalc time.Time
	speed         float64
	avgSpeed      float64
	samples       int
	now           func() time.Time
}

// ProgressStats contains a snapshot of current progress.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	Item       string
	ErrorCount int
	WarnCount  int
	Speed      float64 // records/sec, latest sample
	AvgSpeed   float64
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		stage:         StageReading,
		startTime:     t,
		stageStart:    t,
		lastSpeedCalc: t,
		now:           now,
	}
}

// SetStage transitions to a new stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.item = ""
	p.stageStart = t
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSpeedCalc = t
	p.speed = 0
	p.avgSpeed = 0
	p.samples = 0
}

// Update updates progress within the current stage.
func (p *ProgressTracker) Update(current int, item string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if item != "" {
		p.item = item
	}

	t := p.now()
	elapsed := t.Sub(p.lastSpeedCalc)
	if elapsed < speedWindow {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		p.speed = float64(delta) / elapsed.Seconds()
		p.samples++
		if p.samples == 1 {
			p.avgSpeed = p.speed
		} else {
			p.avgSpeed = 0.2*p.speed + 0.8*p.avgSpeed
		}
	}
	p.lastCurrent = current
	p.lastSpeedCalc = t
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Elapsed returns time since tracker creation.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now().Sub(p.startTime)
}

// Stats returns a snapshot. It takes the write lock because ETA smoothing
// updates state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	return ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Progress:   progress,
		ETA:        p.eta(),
		Item:       p.item,
		ErrorCount: p.errors,
		WarnCount:  p.warnings,
		Speed:      p.speed,
		AvgSpeed:   p.avgSpeed,
	}
}

// eta must be called with the lock held.
func (p *ProgressTracker) eta() time.Duration {
	if p.current == 0 || p.total == 0 {
		return 0
	}
	progress := float64(p.current) / float64(p.total)
	if progress >= 1.0 {
		return 0
	}

	elapsed := p.now().Sub(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
