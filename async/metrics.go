// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package async

import "github.com/prometheus/client_golang/prometheus"

// metrics tracks admission outcomes as a handful of named counters/gauges
// registered against a shared Registerer rather than a bespoke exporter.
type metrics struct {
	admittedData  prometheus.Counter
	rejectedData  prometheus.Counter
	admittedVotes prometheus.Counter
	rejectedVotes prometheus.Counter
	lookAheads    prometheus.Counter
	voteTimeouts  prometheus.Counter
	proposeTimeouts prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		admittedData: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "async_admitted_data_total",
			Help: "Number of Data messages admitted into a round buffer.",
		}),
		rejectedData: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "async_rejected_data_total",
			Help: "Number of Data messages rejected by the admission predicate.",
		}),
		admittedVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "async_admitted_votes_total",
			Help: "Number of Vote messages admitted into a round buffer.",
		}),
		rejectedVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "async_rejected_votes_total",
			Help: "Number of Vote messages rejected by the admission predicate.",
		}),
		lookAheads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "async_look_aheads_total",
			Help: "Number of Data messages admitted under the candidate_num+2 look-ahead rule.",
		}),
		voteTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "async_vote_timeouts_armed_total",
			Help: "Number of synthetic NONE votes scheduled by the vote liveness timer (one per voter each time it is armed).",
		}),
		proposeTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "async_propose_timeouts_armed_total",
			Help: "Number of times the NONE-data liveness timer was armed.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.admittedData, m.rejectedData, m.admittedVotes, m.rejectedVotes,
		m.lookAheads, m.voteTimeouts, m.proposeTimeouts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
