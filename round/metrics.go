// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/bftcore/internal/metric"
)

type layerMetrics struct {
	proposalsBuilt prometheus.Counter
	votesCast      prometheus.Counter
	roundsEnded    prometheus.Counter
	roundLatency   metric.Averager
}

func newLayerMetrics(reg prometheus.Registerer) (*layerMetrics, error) {
	m := &layerMetrics{
		proposalsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "round_proposals_built_total",
			Help: "Number of Real proposals this node authored as leader.",
		}),
		votesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "round_votes_cast_total",
			Help: "Number of votes this node has broadcast, across all rounds.",
		}),
		roundsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "round_ends_total",
			Help: "Number of rounds this node has terminated.",
		}),
	}
	for _, c := range []prometheus.Collector{m.proposalsBuilt, m.votesCast, m.roundsEnded} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	avg, err := metric.NewAverager("round_duration_seconds", "Wall-clock duration of a round from round_start to round_end.", reg)
	if err != nil {
		return nil, err
	}
	m.roundLatency = avg
	return m, nil
}
