// Package metrics exposes persistence counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Reload reasons.
const (
	ReloadChanged = "changed"
	ReloadRemoved = "removed"
)

// Recorder receives persistence events.
type Recorder interface {
	ObserveSave(outcome string, duration time.Duration)
	ObserveBackup(outcome string)
	ObserveReload(reason string)
}

// Prometheus records events into counters and a histogram registered on a registerer.
type Prometheus struct {
	saves        *prometheus.CounterVec
	saveDuration prometheus.Histogram
	backups      *prometheus.CounterVec
	reloads      *prometheus.CounterVec
}

// NewPrometheus registers the collectors on registerer. A nil registerer falls back
// to the default registry.
func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)
	return &Prometheus{
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_snapshot_saves_total",
			Help: "Snapshot flushes by outcome",
		}, []string{"outcome"}),
		saveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildkeeper_snapshot_save_seconds",
			Help:    "Snapshot flush duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		backups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_backup_writes_total",
			Help: "SQLite backup dumps by outcome",
		}, []string{"outcome"}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_snapshot_reloads_total",
			Help: "Snapshot reloads triggered by external changes, by reason",
		}, []string{"reason"}),
	}
}

func (p *Prometheus) ObserveSave(outcome string, duration time.Duration) {
	p.saves.WithLabelValues(outcome).Inc()
	p.saveDuration.Observe(duration.Seconds())
}

func (p *Prometheus) ObserveBackup(outcome string) {
	p.backups.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveReload(reason string) {
	p.reloads.WithLabelValues(reason).Inc()
}

// Noop discards every event.
type Noop struct{}

func (Noop) ObserveSave(string, time.Duration) {}
func (Noop) ObserveBackup(string)              {}
func (Noop) ObserveReload(string)              {}
