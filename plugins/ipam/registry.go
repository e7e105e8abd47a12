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
	"net"
	"sync"

	"github.com/ligato/cn-infra/logging"
)

// Registry creates one SubnetIPAM per broadcast domain of a build.
// Subnet IDs start at 0 after every Reset and never repeat in between.
type Registry struct {
	Log logging.Logger

	mutex sync.Mutex

	ipv4Base   *net.IPNet
	ipv6Prefix string

	// ID of the last created subnet, -1 right after reset
	lastSubnetID int
	subnets      []*SubnetIPAM

	metrics *Metrics
}

// NewRegistry creates a registry for the given addressing plan.
// Metrics may be nil.
func NewRegistry(config *Config, log logging.Logger, metrics *Metrics) (*Registry, error) {
	if config == nil {
		config = DefaultConfig()
	}
	ipv4Base, ipv6Prefix, err := config.parse()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		Log:        log,
		ipv4Base:   ipv4Base,
		ipv6Prefix: ipv6Prefix,
		metrics:    metrics,
	}
	r.Reset()
	return r, nil
}

// Reset forgets all subnets, the next one created gets ID 0.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.lastSubnetID = -1
	r.subnets = nil
	r.metrics.setSubnets(0)
}

// NewSubnet creates the allocator of the next subnet.
func (r *Registry) NewSubnet() (*SubnetIPAM, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	subnet, err := newSubnetIPAM(r.lastSubnetID+1, r.ipv4Base, r.ipv6Prefix, r.metrics)
	if err != nil {
		return nil, err
	}
	r.lastSubnetID = subnet.ID()
	r.subnets = append(r.subnets, subnet)
	r.metrics.setSubnets(len(r.subnets))

	ipv4, ipv6 := subnet.Subnet()
	r.Log.Debugf("Created subnet %d: %v %v", subnet.ID(), ipv4, ipv6)
	return subnet, nil
}

// Subnets returns subnets created since the last reset, ordered by ID.
func (r *Registry) Subnets() []*SubnetIPAM {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]*SubnetIPAM(nil), r.subnets...)
}
