package build

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/conneroisu/assetkit/internal/source"
)

// BuildMetrics tracks build performance
type BuildMetrics struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	Coalesced        int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	mutex            sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild records a build result in the metrics
func (bm *BuildMetrics) RecordBuild(result Result) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += result.Duration

	if result.Err != nil {
		bm.FailedBuilds++
	} else {
		bm.SuccessfulBuilds++
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// RecordCoalesced counts a request folded into a pending follow-up build.
func (bm *BuildMetrics) RecordCoalesced() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.Coalesced++
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	return BuildMetrics{
		TotalBuilds:      bm.TotalBuilds,
		SuccessfulBuilds: bm.SuccessfulBuilds,
		FailedBuilds:     bm.FailedBuilds,
		Coalesced:        bm.Coalesced,
		AverageDuration:  bm.AverageDuration,
		TotalDuration:    bm.TotalDuration,
	}
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds = 0
	bm.SuccessfulBuilds = 0
	bm.FailedBuilds = 0
	bm.Coalesced = 0
	bm.AverageDuration = 0
	bm.TotalDuration = 0
}

// GetSuccessRate returns the success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalBuilds == 0 {
		return 0.0
	}

	return float64(bm.SuccessfulBuilds) / float64(bm.TotalBuilds) * 100.0
}

// Recorder receives build observations for export.
type Recorder interface {
	ObserveBuild(kind source.Kind, d time.Duration, err error)
	IncCoalesced(kind source.Kind)
	SetInFlight(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuild(source.Kind, time.Duration, error) {}
func (NoopRecorder) IncCoalesced(source.Kind)                      {}
func (NoopRecorder) SetInFlight(int)                               {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	coalesced     *prom.CounterVec
	inFlight      prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	pr := &PrometheusRecorder{
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetkit",
			Name:      "build_duration_seconds",
			Help:      "Duration of module compilations",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetkit",
			Name:      "builds_total",
			Help:      "Module compilations by kind and outcome",
		}, []string{"kind", "outcome"}),
		coalesced: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetkit",
			Name:      "builds_coalesced_total",
			Help:      "Build requests folded into a pending follow-up build",
		}, []string{"kind"}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: "assetkit",
			Name:      "builds_in_flight",
			Help:      "Module compilations currently running",
		}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.coalesced, pr.inFlight)

	return pr
}

func (p *PrometheusRecorder) ObserveBuild(kind source.Kind, d time.Duration, err error) {
	if p == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	p.buildDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
	p.buildOutcome.WithLabelValues(kind.String(), outcome).Inc()
}

func (p *PrometheusRecorder) IncCoalesced(kind source.Kind) {
	if p == nil {
		return
	}
	p.coalesced.WithLabelValues(kind.String()).Inc()
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil {
		return
	}
	p.inFlight.Set(float64(n))
}
