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
	"time"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/routing"
)

// Plan describes what a build allocated and configured.
type Plan struct {
	Session  string    `json:"session"`
	Topology string    `json:"topology"`
	Engine   string    `json:"engine"`
	Created  time.Time `json:"created"`

	Subnets []*Subnet `json:"subnets"`
	Links   []*Link   `json:"links"`
	// Domains maps switches and WLANs to the ID of their subnet.
	Domains map[string]int        `json:"domains,omitempty"`
	Hosts   []*routing.HostPolicy `json:"hosts,omitempty"`
	// Islands lists disconnected parts of the topology, empty if connected.
	Islands [][]string `json:"islands,omitempty"`
}

// Subnet is a subnet created during the build.
type Subnet struct {
	ID       int    `json:"id"`
	IPv4     string `json:"ip4"`
	IPv6     string `json:"ip6"`
	Hosts    int    `json:"hosts"`
	Gateways int    `json:"gateways"`
}

// Link is a placed link with the interfaces of both ends.
type Link struct {
	Name       string          `json:"name"`
	Node1      string          `json:"node1"`
	Node2      string          `json:"node2"`
	Subnet     int             `json:"subnet"`
	Interface1 *ipam.Interface `json:"interface1"`
	Interface2 *ipam.Interface `json:"interface2"`
}

// Host returns the policy of the host, nil if it has none.
func (p *Plan) Host(name string) *routing.HostPolicy {
	for _, host := range p.Hosts {
		if host.Host == name {
			return host
		}
	}
	return nil
}

// Interfaces returns interfaces of the node in the order they were created.
func (p *Plan) Interfaces(node string) []*ipam.Interface {
	var ifaces []*ipam.Interface
	for _, link := range p.Links {
		if link.Node1 == node {
			ifaces = append(ifaces, link.Interface1)
		}
		if link.Node2 == node {
			ifaces = append(ifaces, link.Interface2)
		}
	}
	return ifaces
}

func subnetsOf(registry *ipam.Registry) []*Subnet {
	var subnets []*Subnet
	for _, allocator := range registry.Subnets() {
		ipv4, ipv6 := allocator.Subnet()
		hosts, gateways := allocator.Allocated()
		subnets = append(subnets, &Subnet{
			ID:       allocator.ID(),
			IPv4:     ipv4.String(),
			IPv6:     ipv6.String(),
			Hosts:    hosts,
			Gateways: gateways,
		})
	}
	return subnets
}
