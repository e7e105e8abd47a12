// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package testbed

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "mptestbed"
	metricsSubsystem = "testbed"

	resultLabel   = "result"
	blockingLabel = "blocking"
)

// Metrics publishes build statistics to prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	builds   *prometheus.CounterVec
	duration prometheus.Histogram
	sessions prometheus.Gauge
	commands *prometheus.CounterVec
}

// NewMetrics creates the build metrics and registers them with the given registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "builds_total",
			Help:      "Number of topology builds by result",
		}, []string{resultLabel}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "build_duration_seconds",
			Help:      "Duration of topology builds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions",
			Help:      "Number of sessions up",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "node_commands_total",
			Help:      "Number of commands run on nodes",
		}, []string{blockingLabel}),
	}
	for _, collector := range []prometheus.Collector{m.builds, m.duration, m.sessions, m.commands} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) built(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.builds.WithLabelValues(result).Inc()
	m.duration.Observe(duration.Seconds())
}

func (m *Metrics) sessionUp() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) sessionDown() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) command(blocking bool) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(strconv.FormatBool(blocking)).Inc()
}
