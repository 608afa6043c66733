// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "github.com/prometheus/client_golang/prometheus"

// tableMetrics holds the Prometheus collectors registered for a table
// created WithMetrics. It is entirely optional: a Table created without
// that option never imports a metric label set, registers nothing with
// the default registry, and pays no counting overhead on its hot paths.
type tableMetrics struct {
	registry *prometheus.Registry
	ops      *prometheus.CounterVec
	count    prometheus.GaugeFunc
}

// Outcome labels recorded against the "result" dimension of the ops
// counter.
const (
	resultHit          = "hit"
	resultMiss         = "miss"
	resultInserted     = "inserted"
	resultUpdated      = "updated"
	resultNoSpace      = "no_space"
	resultDeleted      = "deleted"
	resultDisplacement = "displacement"
	resultOverflow     = "overflow"
	resultReclaimed    = "reclaimed"
)

func newTableMetrics(namespace, name string, t *Table) (*tableMetrics, error) {
	constLabels := prometheus.Labels{}
	if name != "" {
		constLabels["table"] = name
	}

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "chash",
		Name:        "ops_total",
		Help:        "Count of cuckoo hash table operations by kind and result.",
		ConstLabels: constLabels,
	}, []string{"op", "result"})

	count := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "chash",
		Name:        "entries",
		Help:        "Number of keys currently stored in the table.",
		ConstLabels: constLabels,
	}, func() float64 { return float64(t.Count()) })

	reg := prometheus.NewRegistry()
	if err := reg.Register(ops); err != nil {
		return nil, err
	}
	if err := reg.Register(count); err != nil {
		return nil, err
	}

	if err := prometheus.DefaultRegisterer.Register(ops); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}
	if err := prometheus.DefaultRegisterer.Register(count); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}

	return &tableMetrics{registry: reg, ops: ops, count: count}, nil
}

func (m *tableMetrics) observe(op, result string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
}

func (m *tableMetrics) unregister() {
	if m == nil {
		return
	}
	prometheus.DefaultRegisterer.Unregister(m.ops)
	prometheus.DefaultRegisterer.Unregister(m.count)
}
