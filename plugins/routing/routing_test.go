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
	"testing"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

var logger = logrus.DefaultLogger()

// place runs the allocation of all links and feeds them to the builder
func place(topo *topology.Topology, builder *PolicyBuilder) []*Path {
	registry, err := ipam.NewRegistry(ipam.DefaultConfig(), logger, nil)
	Expect(err).To(BeNil())
	resolver := ipam.NewDomainResolver(registry, logger)
	assigner := ipam.NewInterfaceAssigner()

	var paths []*Path
	for _, link := range topo.Links {
		n1, n2 := topo.Node(link.Node1), topo.Node(link.Node2)
		subnet, err := resolver.Resolve(n1, n2)
		Expect(err).To(BeNil())
		if1, err := assigner.Assign(subnet, n1)
		Expect(err).To(BeNil())
		if2, err := assigner.Assign(subnet, n2)
		Expect(err).To(BeNil())
		path, err := builder.AddLink(link, n1, n2, if1, if2, subnet)
		Expect(err).To(BeNil())
		paths = append(paths, path)
	}
	return paths
}

func parse(doc string) *topology.Topology {
	topo, err := topology.Parse([]byte(doc), topology.FormatYAML, "test")
	Expect(err).To(BeNil())
	return topo
}

func cmds(policy *HostPolicy) []string {
	var out []string
	for _, cmd := range policy.Commands {
		out = append(out, cmd.Cmd)
	}
	return out
}

const star = `
nodes:
  - {name: r1, model: router}
  - {name: s1, model: switch}
  - {name: h1, model: PC}
  - {name: h2, model: PC}
links:
  - {node1: r1, node2: s1}
  - {node1: s1, node2: h1}
  - {node1: s1, node2: h2}
`

func TestStarScenario(t *testing.T) {
	RegisterTestingT(t)

	config := DefaultConfig()
	config.EnableIPv6 = false
	builder, err := NewPolicyBuilder(config, logger)
	Expect(err).To(BeNil())

	paths := place(parse(star), builder)
	Expect(paths[0]).To(BeNil())

	policies, err := builder.Policies()
	Expect(err).To(BeNil())
	Expect(policies).To(HaveLen(2))

	h1 := builder.Policy("h1")
	Expect(h1.PathManager).To(Equal(topology.PathManagerKernel))
	Expect(h1.Paths).To(HaveLen(1))
	Expect(h1.Paths[0].Table).To(Equal(1))
	Expect(h1.Paths[0].Subnet).To(Equal(0))
	Expect(h1.Paths[0].IPv4.String()).To(Equal("10.0.0.20"))
	Expect(h1.Paths[0].Gateway4.String()).To(Equal("10.0.0.1"))
	Expect(cmds(h1)).To(Equal([]string{
		"ip mptcp limits set subflows 8 add_addr_accepted 8",
		"ip rule add from 10.0.0.20 table 1",
		"ip route add 10.0.0.0/24 dev eth1 scope link table 1",
		"ip route add default via 10.0.0.1 dev eth1 table 1",
		"ip mptcp endpoint add 10.0.0.20 dev eth1 subflow signal",
	}))

	h2 := builder.Policy("h2")
	Expect(h2.Paths[0].Table).To(Equal(1))
	Expect(h2.Paths[0].IPv4.String()).To(Equal("10.0.0.21"))
	Expect(cmds(h2)).To(ContainElement("ip route add default via 10.0.0.1 dev eth1 table 1"))
	for _, cmd := range h2.Commands {
		Expect(cmd.Blocking).To(BeTrue())
	}
}

func TestIPv6Entries(t *testing.T) {
	RegisterTestingT(t)

	builder, err := NewPolicyBuilder(DefaultConfig(), logger)
	Expect(err).To(BeNil())
	place(parse(star), builder)
	_, err = builder.Policies()
	Expect(err).To(BeNil())

	Expect(cmds(builder.Policy("h2"))).To(Equal([]string{
		"ip mptcp limits set subflows 8 add_addr_accepted 8",
		"ip rule add from 10.0.0.21 table 1",
		"ip route add 10.0.0.0/24 dev eth1 scope link table 1",
		"ip route add default via 10.0.0.1 dev eth1 table 1",
		"ip -6 rule add from 2001::21 table 1",
		"ip -6 route add 2001::/64 dev eth1 scope link table 1",
		"ip -6 route add default via 2001::1 dev eth1 table 1",
		"ip mptcp endpoint add 10.0.0.21 dev eth1 subflow signal",
		"ip mptcp endpoint add 2001::21 dev eth1 subflow signal",
	}))
}

func TestTablesPerHostInLinkOrder(t *testing.T) {
	RegisterTestingT(t)

	config := DefaultConfig()
	config.EnableIPv6 = false
	builder, err := NewPolicyBuilder(config, logger)
	Expect(err).To(BeNil())

	place(parse(`
nodes:
  - {name: h1, model: PC, mptcp_flags: "subflow backup", subflows: 2, add_addr_accepted: 0}
  - {name: r1}
  - {name: r2}
  - {name: w1, model: wlan}
  - {name: h2, model: PC}
links:
  - {node1: h1, node2: r1}
  - {node1: r2, node2: h1}
  - {node1: h1, node2: w1}
  - {node1: h1, node2: h2}
  - {node1: w1, node2: r2}
`), builder)
	policies, err := builder.Policies()
	Expect(err).To(BeNil())
	// host to host link forms no path, h2 has none
	Expect(policies).To(HaveLen(1))
	Expect(builder.Policy("h2")).To(BeNil())

	h1 := builder.Policy("h1")
	Expect(h1.Paths).To(HaveLen(3))
	for i, path := range h1.Paths {
		Expect(path.Table).To(Equal(i + 1))
		Expect(path.Subnet).To(Equal(i))
		Expect(path.Interface).To(Equal(ipam.InterfaceName(i + 1)))
	}
	// wlan subnet has no router interface yet when h1 joins, the gateway is still .1
	Expect(h1.Paths[2].Gateway4.String()).To(Equal("10.0.2.1"))
	Expect(cmds(h1)).To(Equal([]string{
		"ip mptcp limits set subflows 2 add_addr_accepted 0",
		"ip rule add from 10.0.0.20 table 1",
		"ip route add 10.0.0.0/24 dev eth1 scope link table 1",
		"ip route add default via 10.0.0.1 dev eth1 table 1",
		"ip rule add from 10.0.1.20 table 2",
		"ip route add 10.0.1.0/24 dev eth2 scope link table 2",
		"ip route add default via 10.0.1.1 dev eth2 table 2",
		"ip rule add from 10.0.2.20 table 3",
		"ip route add 10.0.2.0/24 dev eth3 scope link table 3",
		"ip route add default via 10.0.2.1 dev eth3 table 3",
		"ip mptcp endpoint add 10.0.0.20 dev eth1 subflow backup",
		"ip mptcp endpoint add 10.0.1.20 dev eth2 subflow backup",
		"ip mptcp endpoint add 10.0.2.20 dev eth3 subflow backup",
	}))
}

func TestOptOutLink(t *testing.T) {
	RegisterTestingT(t)

	builder, err := NewPolicyBuilder(DefaultConfig(), logger)
	Expect(err).To(BeNil())
	paths := place(parse(`
nodes:
  - {name: h1, model: PC}
  - {name: r1}
links:
  - {node1: h1, node2: r1, use_mptcp: false}
`), builder)
	Expect(paths).To(Equal([]*Path{nil}))
	policies, err := builder.Policies()
	Expect(err).To(BeNil())
	Expect(policies).To(BeEmpty())
	Expect(builder.Policy("h1")).To(BeNil())
}

func TestDaemonPathManager(t *testing.T) {
	RegisterTestingT(t)

	config := DefaultConfig()
	config.EnableIPv6 = false
	builder, err := NewPolicyBuilder(config, logger)
	Expect(err).To(BeNil())
	place(parse(`
nodes:
  - {name: h1, model: PC, path_manager: mptcpd}
  - {name: r1}
  - {name: r2}
links:
  - {node1: h1, node2: r1}
  - {node1: h1, node2: r2}
`), builder)
	_, err = builder.Policies()
	Expect(err).To(BeNil())

	h1 := builder.Policy("h1")
	Expect(h1.PathManager).To(Equal(topology.PathManagerDaemon))
	Expect(h1.Commands[0]).To(Equal(&Command{Cmd: "sysctl -w net.mptcp.pm_type=1", Blocking: true}))
	last := h1.Commands[len(h1.Commands)-1]
	Expect(last.Blocking).To(BeFalse())
	Expect(last.Cmd).To(Equal("mptcpd --path-manager=addr_adv --addr-flags=subflow,signal " +
		"--notify-flags=existing,skip_link_local,skip_loopback"))
	Expect(h1.Commands).To(HaveLen(1 + 2*3 + 1))
	for _, cmd := range cmds(h1) {
		Expect(cmd).ToNot(HavePrefix("ip mptcp"))
	}
}

func TestDaemonTemplateGetsAllPaths(t *testing.T) {
	RegisterTestingT(t)

	config := DefaultConfig()
	config.PathManager = topology.PathManagerDaemon
	config.DaemonPreamble = nil
	config.DaemonCommand = "pm-daemon --host {{.Host}} --ifaces {{join .Interfaces \",\"}} " +
		"--addrs {{join .Addresses \",\"}} --addrs6 {{join .Addresses6 \",\"}} --limits {{.Subflows}}/{{.AddAddrAccepted}}"
	builder, err := NewPolicyBuilder(config, logger)
	Expect(err).To(BeNil())
	place(parse(`
nodes:
  - {name: h1, model: PC}
  - {name: r1}
  - {name: r2}
links:
  - {node1: r1, node2: h1}
  - {node1: r2, node2: h1}
`), builder)
	_, err = builder.Policies()
	Expect(err).To(BeNil())

	h1 := builder.Policy("h1")
	Expect(h1.Commands).To(HaveLen(2*6 + 1))
	Expect(h1.Commands[len(h1.Commands)-1].Cmd).To(Equal(
		"pm-daemon --host h1 --ifaces eth1,eth2 --addrs 10.0.0.20,10.0.1.20 --addrs6 2001::20,2001:1::20 --limits 8/8"))
}

func TestConfigValidate(t *testing.T) {
	RegisterTestingT(t)

	Expect(DefaultConfig().Validate()).To(Succeed())

	config := DefaultConfig()
	config.PathManager = "ndiffports"
	Expect(config.Validate()).ToNot(Succeed())

	config = DefaultConfig()
	config.Subflows = 9
	Expect(config.Validate()).ToNot(Succeed())

	config = DefaultConfig()
	config.DaemonCommand = "mptcpd {{.Host"
	Expect(config.Validate()).ToNot(Succeed())
	_, err := NewPolicyBuilder(config, logger)
	Expect(err).ToNot(BeNil())

	config = DefaultConfig()
	config.EndpointFlags = "signal,bogus"
	Expect(config.Validate()).ToNot(Succeed())
}

func TestRuleAndRouteFormatting(t *testing.T) {
	RegisterTestingT(t)

	path := &Path{
		Table: 4, Interface: "eth2",
		IPv4: parseIP("192.168.7.30"), Network4: "192.168.7.0/24", Gateway4: parseIP("192.168.7.1"),
		IPv6: parseIP("fd00:7::30"), Network6: "fd00:7::/64", Gateway6: parseIP("fd00:7::1"),
	}
	var out []string
	for _, cmd := range routeCommands(path, true) {
		out = append(out, cmd.Cmd)
	}
	Expect(out).To(Equal([]string{
		"ip rule add from 192.168.7.30 table 4",
		"ip route add 192.168.7.0/24 dev eth2 scope link table 4",
		"ip route add default via 192.168.7.1 dev eth2 table 4",
		"ip -6 rule add from fd00:7::30 table 4",
		"ip -6 route add fd00:7::/64 dev eth2 scope link table 4",
		"ip -6 route add default via fd00:7::1 dev eth2 table 4",
	}))
	Expect(endpointAdd(parseIP("10.0.0.20"), "eth1", nil)).To(Equal("ip mptcp endpoint add 10.0.0.20 dev eth1"))
}

func parseIP(addr string) net.IP {
	return net.ParseIP(addr)
}
