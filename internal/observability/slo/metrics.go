// Package slo tracks the matching pipeline against its service level
// objectives over a sliding window of recent passes.
package slo

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Objectives for scheduled matching passes.
const (
	// SuccessSLO is the share of passes that must complete.
	SuccessSLO = 0.95

	// LatencyP95SLO bounds the 95th percentile pass duration.
	LatencyP95SLO = 10 * time.Minute

	// DefaultWindow is the number of recent passes evaluated.
	DefaultWindow = 50
)

var (
	// SuccessRatio is the share of completed passes in the window (0-1).
	SuccessRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_match_success_ratio",
		Help: "Share of recent matching passes that completed",
	})

	// LatencyP95 is the 95th percentile pass duration in the window.
	LatencyP95 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_match_latency_p95_seconds",
		Help: "95th percentile duration of recent matching passes",
	})

	// LastSuccess is the Unix time of the newest completed pass.
	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_match_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last completed matching pass",
	})

	// Compliant is 1 while both objectives hold over the window.
	Compliant = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_match_compliant",
		Help: "1 when recent matching passes meet their objectives, 0 otherwise",
	})
)

type sample struct {
	ok       bool
	duration time.Duration
}

// Tracker keeps the last passes in a ring and republishes the SLO gauges on
// every observation. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	samples []sample
	next    int
	full    bool
	now     func() time.Time
}

// NewTracker evaluates the last window passes. window <= 0 uses
// DefaultWindow.
func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{samples: make([]sample, window), now: time.Now}
}

// Observe records one pass. ok is false for failed or interrupted passes.
func (t *Tracker) Observe(ok bool, duration time.Duration) {
	t.mu.Lock()
	t.samples[t.next] = sample{ok: ok, duration: duration}
	t.next = (t.next + 1) % len(t.samples)
	if t.next == 0 {
		t.full = true
	}
	ratio, p95 := t.computeLocked()
	t.mu.Unlock()

	SuccessRatio.Set(ratio)
	LatencyP95.Set(p95.Seconds())
	if ok {
		LastSuccess.Set(float64(t.now().Unix()))
	}
	compliant := 0.0
	if ratio >= SuccessSLO && p95 <= LatencyP95SLO {
		compliant = 1
	}
	Compliant.Set(compliant)
}

// Snapshot returns the current success ratio and p95 duration. Both are zero
// before the first observation.
func (t *Tracker) Snapshot() (ratio float64, p95 time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.computeLocked()
}

func (t *Tracker) computeLocked() (float64, time.Duration) {
	window := t.samples[:t.next]
	if t.full {
		window = t.samples
	}
	if len(window) == 0 {
		return 0, 0
	}

	ok := 0
	durations := make([]time.Duration, 0, len(window))
	for _, s := range window {
		if s.ok {
			ok++
		}
		durations = append(durations, s.duration)
	}
	slices.Sort(durations)
	// Nearest-rank percentile.
	rank := int(math.Ceil(0.95*float64(len(durations)))) - 1
	return float64(ok) / float64(len(window)), durations[rank]
}
