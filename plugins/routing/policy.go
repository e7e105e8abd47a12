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

package routing

import (
	"net"
	"text/template"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

// Path is one multipath route of a host: an interface, its address and
// the gateway of the subnet it is attached to.
type Path struct {
	Table     int    `json:"table"`
	Link      string `json:"link"`
	Interface string `json:"interface"`
	Subnet    int    `json:"subnet"`

	IPv4     net.IP `json:"ip4"`
	Network4 string `json:"network4"`
	Gateway4 net.IP `json:"gateway4"`

	IPv6     net.IP `json:"ip6,omitempty"`
	Network6 string `json:"network6,omitempty"`
	Gateway6 net.IP `json:"gateway6,omitempty"`
}

// HostPolicy is the routing policy of one host.
type HostPolicy struct {
	Host        string     `json:"host"`
	PathManager string     `json:"path_manager"`
	Paths       []*Path    `json:"paths"`
	Commands    []*Command `json:"commands"`

	node *topology.Node
}

// PolicyBuilder accumulates paths of hosts while links are placed and
// renders the per-host commands once all links are known.
type PolicyBuilder struct {
	Log logging.Logger

	config    *Config
	daemonCmd *template.Template

	// host policies in the order hosts got their first path
	hosts []*HostPolicy
	index map[string]*HostPolicy
}

// NewPolicyBuilder creates a builder with no paths.
func NewPolicyBuilder(config *Config, log logging.Logger) (*PolicyBuilder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	tmpl, err := parseDaemonCommand(config.DaemonCommand)
	if err != nil {
		return nil, err
	}
	return &PolicyBuilder{
		Log:       log,
		config:    config,
		daemonCmd: tmpl,
		index:     make(map[string]*HostPolicy),
	}, nil
}

// AddLink records the path a link contributes to its host endpoint.
// Only links with exactly one host endpoint that do not opt out of
// multipath form a path, for other links nil is returned.
func (b *PolicyBuilder) AddLink(link *topology.Link, n1, n2 *topology.Node,
	if1, if2 *ipam.Interface, subnet ipam.Allocator) (*Path, error) {

	if n1.Model.IsHost() == n2.Model.IsHost() {
		return nil, nil
	}
	if !link.MPTCPEnabled() {
		b.Log.Debugf("Link %s opts out of multipath, no policy", link.Name)
		return nil, nil
	}

	self, iface := n1, if1
	if n2.Model.IsHost() {
		self, iface = n2, if2
	}
	if iface.IPv4 == nil {
		return nil, errors.Errorf("host %s has no address on link %s", self.Name, link.Name)
	}

	policy := b.index[self.Name]
	if policy == nil {
		policy = &HostPolicy{Host: self.Name, node: self}
		b.index[self.Name] = policy
		b.hosts = append(b.hosts, policy)
	}

	network4, network6 := subnet.Subnet()
	gateway4, gateway6 := subnet.GatewayIP()
	path := &Path{
		Table:     len(policy.Paths) + 1,
		Link:      link.Name,
		Interface: iface.Name,
		Subnet:    subnet.ID(),
		IPv4:      iface.IPv4,
		Network4:  network4.String(),
		Gateway4:  gateway4,
	}
	if iface.IPv6 != nil {
		path.IPv6 = iface.IPv6
		path.Network6 = network6.String()
		path.Gateway6 = gateway6
	}
	policy.Paths = append(policy.Paths, path)

	b.Log.Debugf("Host %s: path %d via %s (%s) gateway %s", self.Name, path.Table, path.Interface, path.IPv4, path.Gateway4)
	return path, nil
}

// Policy returns the policy of the host, nil if it has no path.
func (b *PolicyBuilder) Policy(host string) *HostPolicy {
	return b.index[host]
}

// Policies renders the commands of every host with at least one path.
func (b *PolicyBuilder) Policies() ([]*HostPolicy, error) {
	for _, policy := range b.hosts {
		if err := b.render(policy); err != nil {
			return nil, err
		}
	}
	return b.hosts, nil
}

func (b *PolicyBuilder) render(policy *HostPolicy) error {
	params := b.hostParams(policy.node)

	policy.PathManager = policy.node.PathManager
	if policy.PathManager == "" {
		policy.PathManager = b.config.PathManager
	}
	var pm pathManager
	switch policy.PathManager {
	case topology.PathManagerKernel, "":
		policy.PathManager = topology.PathManagerKernel
		pm = &kernelPathManager{params: params}
	case topology.PathManagerDaemon:
		pm = &daemonPathManager{params: params, setup: b.config.DaemonPreamble, tmpl: b.daemonCmd}
	default:
		return topology.NewConfigurationError("host %s: unknown path manager '%s'", policy.Host, policy.PathManager)
	}

	cmds := pm.preamble(policy)
	for _, path := range policy.Paths {
		cmds = append(cmds, routeCommands(path, params.ipv6)...)
	}
	for _, path := range policy.Paths {
		cmds = append(cmds, pm.path(policy, path)...)
	}
	last, err := pm.finish(policy)
	if err != nil {
		return err
	}
	policy.Commands = append(cmds, last...)
	return nil
}

// routeCommands renders the source routing entries of one path.
func routeCommands(path *Path, ipv6 bool) []*Command {
	_, network4, _ := net.ParseCIDR(path.Network4)
	cmds := []*Command{
		blocking("%s", formatRule(sourceRule(path.IPv4, path.Table))),
		blocking("%s", formatRoute(subnetRoute(network4, path.Table), path.Interface)),
		blocking("%s", formatRoute(defaultRoute(path.Gateway4, path.Table), path.Interface)),
	}
	if !ipv6 || path.IPv6 == nil {
		return cmds
	}
	_, network6, _ := net.ParseCIDR(path.Network6)
	return append(cmds,
		blocking("%s", formatRule(sourceRule(path.IPv6, path.Table))),
		blocking("%s", formatRoute(subnetRoute(network6, path.Table), path.Interface)),
		blocking("%s", formatRoute(defaultRoute(path.Gateway6, path.Table), path.Interface)),
	)
}
