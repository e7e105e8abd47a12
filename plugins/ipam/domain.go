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
	"sort"

	"github.com/ligato/cn-infra/logging"

	"github.com/contiv/mptestbed/plugins/topology"
)

// DomainResolver selects the subnet of each link. Switches and wireless
// LANs are pinned to the subnet of the first link they appear in, so all
// their links end up in one broadcast domain. Any other link gets a subnet
// of its own.
type DomainResolver struct {
	Log logging.Logger

	registry *Registry
	// node name -> subnet, switches and WLANs only
	pinned map[string]*SubnetIPAM
}

// NewDomainResolver creates a resolver allocating new subnets from the registry.
func NewDomainResolver(registry *Registry, log logging.Logger) *DomainResolver {
	return &DomainResolver{
		Log:      log,
		registry: registry,
		pinned:   make(map[string]*SubnetIPAM),
	}
}

// Resolve returns the subnet of the link between a and b. The subnet pinned
// to a wins over the one pinned to b; without a pin a new subnet is created.
// Afterwards every switch or WLAN endpoint that is not pinned yet is pinned
// to the selected subnet.
func (d *DomainResolver) Resolve(a, b *topology.Node) (*SubnetIPAM, error) {
	subnet := d.pinned[a.Name]
	if subnet == nil {
		subnet = d.pinned[b.Name]
	}
	if subnet == nil {
		var err error
		if subnet, err = d.registry.NewSubnet(); err != nil {
			return nil, err
		}
	}
	d.pinIfAbsent(a, subnet)
	d.pinIfAbsent(b, subnet)
	return subnet, nil
}

func (d *DomainResolver) pinIfAbsent(node *topology.Node, subnet *SubnetIPAM) {
	if !node.Model.IsBroadcastDomain() {
		return
	}
	current, pinned := d.pinned[node.Name]
	if !pinned {
		d.pinned[node.Name] = subnet
		return
	}
	if current != subnet {
		// two independently pinned segments linked together, the link
		// stays in the first segment's subnet
		d.Log.Warnf("%s %s already belongs to subnet %d, link bridges it with subnet %d",
			node.Model, node.Name, current.ID(), subnet.ID())
	}
}

// Domain returns the subnet pinned to the node, nil if there is none.
func (d *DomainResolver) Domain(node string) *SubnetIPAM {
	return d.pinned[node]
}

// Domains returns the node name to subnet ID mapping of all pinned nodes.
func (d *DomainResolver) Domains() map[string]int {
	domains := make(map[string]int, len(d.pinned))
	for _, name := range d.PinnedNodes() {
		domains[name] = d.Domain(name).ID()
	}
	return domains
}

// PinnedNodes returns names of all pinned nodes, sorted.
func (d *DomainResolver) PinnedNodes() []string {
	names := make([]string, 0, len(d.pinned))
	for name := range d.pinned {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
