// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package poolmetrics exports pool checkout events as Prometheus metrics.
package poolmetrics

import (
	"time"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/pool"
	"github.com/bufbuild/httppools/poolconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "httppools"
	subsystem = "pool"
)

// Prometheus implements [pool.Metrics] with Prometheus collectors. Every
// series is labeled with the destination and protocol of the pool group.
type Prometheus struct {
	checkouts *prometheus.CounterVec
	failures  *prometheus.CounterVec
	wait      *prometheus.HistogramVec
	inUse     *prometheus.GaugeVec
}

var _ pool.Metrics = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg. It
// panics if any of them is already registered, like promauto does.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkouts_total",
				Help:      "Total number of connections checked out",
			},
			[]string{"destination", "protocol"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_failures_total",
				Help:      "Total number of failed checkouts",
			},
			[]string{"destination", "protocol", "reason"},
		),
		wait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_wait_seconds",
				Help:      "Time spent waiting for a pool connection",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"destination", "protocol"},
		),
		inUse: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "in_use",
				Help:      "Connections currently checked out",
			},
			[]string{"destination", "protocol"},
		),
	}
}

// CheckedOut implements pool.Metrics.
func (p *Prometheus) CheckedOut(dest destination.Key, protocol poolconfig.Protocol, wait time.Duration) {
	labels := []string{dest.String(), string(protocol)}
	p.checkouts.WithLabelValues(labels...).Inc()
	p.wait.WithLabelValues(labels...).Observe(wait.Seconds())
	p.inUse.WithLabelValues(labels...).Inc()
}

// CheckoutFailed implements pool.Metrics.
func (p *Prometheus) CheckoutFailed(dest destination.Key, protocol poolconfig.Protocol, reason string) {
	p.failures.WithLabelValues(dest.String(), string(protocol), reason).Inc()
}

// Released implements pool.Metrics.
func (p *Prometheus) Released(dest destination.Key, protocol poolconfig.Protocol) {
	p.inUse.WithLabelValues(dest.String(), string(protocol)).Dec()
}
