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

package ipam

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "mptestbed"
	metricsSubsystem = "ipam"

	roleLabel = "role"
)

// Metrics publishes allocation statistics to prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	subnets     prometheus.Gauge
	allocations *prometheus.CounterVec
	exhaustions *prometheus.CounterVec
}

// NewMetrics creates the IPAM metrics and registers them with the given registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		subnets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "subnets",
			Help:      "Number of subnets allocated by the current build",
		}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "allocations_total",
			Help:      "Number of interface allocations by role",
		}, []string{roleLabel}),
		exhaustions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "exhausted_total",
			Help:      "Number of allocations rejected because a subnet ran out of addresses",
		}, []string{roleLabel}),
	}
	for _, collector := range []prometheus.Collector{m.subnets, m.allocations, m.exhaustions} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) allocated(role Role) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(role.String()).Inc()
}

func (m *Metrics) exhausted(role Role) {
	if m == nil {
		return
	}
	m.exhaustions.WithLabelValues(role.String()).Inc()
}

func (m *Metrics) setSubnets(count int) {
	if m == nil {
		return
	}
	m.subnets.Set(float64(count))
}
