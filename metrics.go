// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package rawpvt

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the collectors of a processing run
type Metrics struct {
	Epochs     *prometheus.CounterVec
	Skips      *prometheus.CounterVec
	Warnings   *prometheus.CounterVec
	Iterations prometheus.Histogram
	AdrEpochs  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Epochs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawpvt_epochs_total",
				Help: "Number of epochs processed, by result.",
			},
			[]string{"result"},
		),
		Skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawpvt_epoch_skips_total",
				Help: "Number of epochs without a solution, by reason.",
			},
			[]string{"reason"},
		),
		Warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawpvt_warnings_total",
				Help: "Number of soft numerical warnings, by kind.",
			},
			[]string{"kind"},
		),
		Iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rawpvt_wls_iterations",
				Help:    "WLS iterations per solved epoch.",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
		AdrEpochs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rawpvt_adr_epochs_total",
				Help: "Number of epochs with carrier residuals.",
			},
		),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Epochs, m.Skips, m.Warnings, m.Iterations, m.AdrEpochs}
}

// Record the outcome of a run
func (m *Metrics) observe(ests []PvtEstimate, warns map[string]int, adrEpochs int) {
	for _, e := range ests {
		if e.Valid {
			m.Epochs.WithLabelValues("solved").Inc()
			m.Iterations.Observe(float64(e.Iterations))
			continue
		}
		m.Epochs.WithLabelValues("skipped").Inc()
		m.Skips.WithLabelValues(string(e.Skip)).Inc()
	}
	for k, n := range warns {
		m.Warnings.WithLabelValues(k).Add(float64(n))
	}
	m.AdrEpochs.Add(float64(adrEpochs))
}

// Push sends the collectors once to a Pushgateway
func (m *Metrics) Push(url, job string) error {
	p := push.New(url, job)
	for _, c := range m.collectors() {
		p = p.Collector(c)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
