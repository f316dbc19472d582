// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metric provides a running average gauge that registers itself
// against a Prometheus Registerer at construction, so its value shows up
// on the same registry as the package's other gauges and counters.
package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Averager tracks a running average of observed values, exported as a
// Prometheus summary.
type Averager interface {
	Observe(value float64)
	Read() float64
}

type averager struct {
	mu  sync.RWMutex
	sum float64
	n   int64

	summary prometheus.Summary
}

// NewAverager registers a new Averager named name on reg. help is used as
// the Prometheus HELP string.
func NewAverager(name, help string, reg prometheus.Registerer) (Averager, error) {
	summary := prometheus.NewSummary(prometheus.SummaryOpts{
		Name: name,
		Help: help,
	})
	if err := reg.Register(summary); err != nil {
		return nil, fmt.Errorf("failed to register %s metric: %w", name, err)
	}
	return &averager{summary: summary}, nil
}

func (a *averager) Observe(value float64) {
	a.mu.Lock()
	a.sum += value
	a.n++
	a.mu.Unlock()
	a.summary.Observe(value)
}

func (a *averager) Read() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}
