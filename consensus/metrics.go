// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "github.com/prometheus/client_golang/prometheus"

type nodeMetrics struct {
	dupData prometheus.Counter
	dupVote prometheus.Counter
}

func newNodeMetrics(reg prometheus.Registerer) (*nodeMetrics, error) {
	m := &nodeMetrics{
		dupData: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "node_duplicate_data_total",
			Help: "Number of ReceiveData deliveries dropped as duplicates at the Node boundary.",
		}),
		dupVote: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "node_duplicate_vote_total",
			Help: "Number of ReceiveVote deliveries dropped as duplicates at the Node boundary.",
		}),
	}
	for _, c := range []prometheus.Collector{m.dupData, m.dupVote} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
