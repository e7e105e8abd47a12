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

package emulator

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

var logger = logrus.DefaultLogger()

func node(name string, model topology.NodeModel) *topology.Node {
	return &topology.Node{Name: name, ModelName: model.String(), Model: model}
}

func iface(id int, role ipam.Role, ip4, ip6 string) *ipam.Interface {
	i := &ipam.Interface{Role: role, ID: id, Name: ipam.InterfaceName(id)}
	if ip4 != "" {
		i.IPv4, i.IPv4Mask = net.ParseIP(ip4), 24
		i.IPv6, i.IPv6Mask = net.ParseIP(ip6), 64
	}
	return i
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func float64Ptr(v float64) *float64 {
	return &v
}

func newTestNetns(t *testing.T) (*Netns, *mockLinuxCalls, *mockRunner, string) {
	RegisterTestingT(t)
	dir, err := ioutil.TempDir("", "netns-test-")
	Expect(err).To(BeNil())
	calls := newMockLinuxCalls()
	runner := &mockRunner{}
	engine, err := newNetns(NetnsConfig{WorkDir: dir}, logger, calls, runner)
	Expect(err).To(BeNil())
	return engine, calls, runner, dir
}

func TestNetnsNodes(t *testing.T) {
	engine, calls, runner, dir := newTestNetns(t)
	defer os.RemoveAll(dir)
	ctx := context.Background()

	r1, err := engine.AddNode(ctx, node("r1", topology.Router))
	Expect(err).To(BeNil())
	Expect(r1.ID).To(Equal(1))
	h1, err := engine.AddNode(ctx, node("h1", topology.Host))
	Expect(err).To(BeNil())
	s1, err := engine.AddNode(ctx, node("s1", topology.Switch))
	Expect(err).To(BeNil())
	Expect(s1.ID).To(Equal(3))

	_, err = engine.AddNode(ctx, node("h1", topology.Host))
	Expect(err).NotTo(BeNil())

	Expect(calls.named).To(HaveKey("mpt-r1"))
	Expect(calls.named).To(HaveKey("mpt-h1"))
	Expect(calls.named).NotTo(HaveKey("mpt-s1"))
	Expect(calls.linkIn("", "mpbr3")).NotTo(BeNil())
	Expect(calls.up[calls.linkIn("/var/run/netns/mpt-h1", "lo")]).To(BeTrue())

	// forwarding is enabled on routers only
	Expect(runner.run).To(HaveLen(2))
	Expect(runner.run[0][:4]).To(Equal([]string{"ip", "netns", "exec", "mpt-r1"}))
	Expect(shellCommands(runner.run)).To(Equal(forwardingCommands))
	Expect(filepath.Join(dir, "h1")).To(BeADirectory())
	Expect(h1.Model).To(Equal(topology.Host))
}

func TestNetnsLinks(t *testing.T) {
	engine, calls, _, dir := newTestNetns(t)
	defer os.RemoveAll(dir)
	ctx := context.Background()

	r1, _ := engine.AddNode(ctx, node("r1", topology.Router))
	h1, _ := engine.AddNode(ctx, node("h1", topology.Host))
	s1, _ := engine.AddNode(ctx, node("s1", topology.Switch))

	params := &topology.LinkParams{Delay: uint64Ptr(1000), Bandwidth: uint64Ptr(10000000)}
	if1 := iface(1, ipam.RoleHost, "10.0.0.20", "2001::20")
	if2 := iface(1, ipam.RoleGateway, "10.0.0.1", "2001::1")
	got1, got2, err := engine.AddLink(ctx, h1, r1, if1, if2, params)
	Expect(err).To(BeNil())
	Expect(got1).To(Equal(if1))
	Expect(got2).To(Equal(if2))

	h1ns := "/var/run/netns/mpt-h1"
	Expect(calls.linkIn(h1ns, "eth1")).NotTo(BeNil())
	Expect(calls.linkIn("/var/run/netns/mpt-r1", "eth1")).NotTo(BeNil())
	Expect(calls.linkIn("", "mpv1a")).To(BeNil())

	addrs := calls.addrs[h1ns+"/eth1"]
	Expect(addrs).To(HaveLen(2))
	Expect(addrs[0].IPNet.String()).To(Equal("10.0.0.20/24"))
	Expect(addrs[1].IPNet.String()).To(Equal("2001::20/64"))
	Expect(addrs[1].Flags & unix.IFA_F_NODAD).NotTo(BeZero())
	Expect(calls.noCsum).To(HaveKey(h1ns + "/eth1"))

	qdiscs := calls.qdiscs[h1ns+"/eth1"]
	Expect(qdiscs).To(HaveLen(2))
	netem := qdiscs[0].(*netlink.Netem)
	Expect(netem.Parent).To(Equal(uint32(netlink.HANDLE_ROOT)))
	Expect(netem.Handle).To(Equal(netlink.MakeHandle(1, 0)))
	tbf := qdiscs[1].(*netlink.Tbf)
	Expect(tbf.Parent).To(Equal(netlink.MakeHandle(1, 1)))
	Expect(tbf.Handle).To(Equal(netlink.MakeHandle(2, 0)))
	Expect(tbf.Rate).To(Equal(uint64(1250000)))
	Expect(tbf.Buffer).To(Equal(uint32(5000)))
	Expect(tbf.Limit).To(Equal(uint32(67500)))

	// switch side stays in the root namespace enslaved to the bridge
	_, _, err = engine.AddLink(ctx, h1, s1, iface(2, ipam.RoleHost, "10.0.1.20", "2001:1::20"),
		iface(1, ipam.RoleUnaddressed, "", ""), nil)
	Expect(err).To(BeNil())
	Expect(calls.masters).To(HaveKeyWithValue("mpv2b", "mpbr3"))
	Expect(calls.linkIn(h1ns, "eth2")).NotTo(BeNil())
	Expect(calls.addrs).NotTo(HaveKey("mpv2b"))
	Expect(calls.qdiscs).NotTo(HaveKey(h1ns + "/eth2"))

	_, _, err = engine.AddLink(ctx, h1, &NodeHandle{Name: "nope"}, if1, if2, nil)
	Expect(err).NotTo(BeNil())
}

func TestNetnsLinkFailure(t *testing.T) {
	engine, calls, _, dir := newTestNetns(t)
	defer os.RemoveAll(dir)
	ctx := context.Background()

	r1, _ := engine.AddNode(ctx, node("r1", topology.Router))
	h1, _ := engine.AddNode(ctx, node("h1", topology.Host))
	calls.failLinkAdd = os.ErrPermission
	_, _, err := engine.AddLink(ctx, h1, r1, iface(1, ipam.RoleHost, "10.0.0.20", "2001::20"),
		iface(1, ipam.RoleGateway, "10.0.0.1", "2001::1"), nil)
	Expect(err).NotTo(BeNil())
}

func TestNetnsCommands(t *testing.T) {
	engine, _, runner, dir := newTestNetns(t)
	defer os.RemoveAll(dir)
	ctx := context.Background()

	h1, _ := engine.AddNode(ctx, node("h1", topology.Host))
	s1, _ := engine.AddNode(ctx, node("s1", topology.Switch))

	out, err := engine.NodeCommand(ctx, h1, "ip rule add from 10.0.0.20 table 1", true)
	Expect(err).To(BeNil())
	Expect(out).To(Equal("ok"))
	Expect(runner.run[0]).To(Equal([]string{"ip", "netns", "exec", "mpt-h1", "sh", "-c",
		"ip rule add from 10.0.0.20 table 1"}))
	Expect(runner.dirs[0]).To(Equal(filepath.Join(dir, "h1")))

	_, err = engine.NodeCommand(ctx, h1, "iperf3 -s", false)
	Expect(err).To(BeNil())
	Expect(shellCommands(runner.started)).To(Equal([]string{"iperf3 -s"}))

	_, err = engine.NodeCommand(ctx, s1, "true", true)
	Expect(err).NotTo(BeNil())

	runner.failOn = "false"
	_, err = engine.NodeCommand(ctx, h1, "false", true)
	Expect(err).NotTo(BeNil())
}

func TestNetnsCopyFile(t *testing.T) {
	engine, _, _, dir := newTestNetns(t)
	defer os.RemoveAll(dir)
	ctx := context.Background()

	src := filepath.Join(dir, "client.sh")
	Expect(ioutil.WriteFile(src, []byte("echo hi\n"), 0755)).To(Succeed())
	h1, _ := engine.AddNode(ctx, node("h1", topology.Host))
	s1, _ := engine.AddNode(ctx, node("s1", topology.Switch))

	Expect(engine.CopyFile(ctx, h1, src, "script.sh")).To(Succeed())
	content, err := ioutil.ReadFile(filepath.Join(dir, "h1", "script.sh"))
	Expect(err).To(BeNil())
	Expect(string(content)).To(Equal("echo hi\n"))

	Expect(engine.CopyFile(ctx, h1, src, "etc/conf/client.sh")).To(Succeed())
	Expect(filepath.Join(dir, "h1", "etc", "conf", "client.sh")).To(BeARegularFile())

	Expect(engine.CopyFile(ctx, h1, filepath.Join(dir, "missing"), "x")).NotTo(Succeed())
	Expect(engine.CopyFile(ctx, s1, src, "x")).NotTo(Succeed())
}

func TestNetnsShutdown(t *testing.T) {
	engine, calls, runner, dir := newTestNetns(t)
	defer os.RemoveAll(dir)
	ctx := context.Background()

	r1, _ := engine.AddNode(ctx, node("r1", topology.Router))
	s1, _ := engine.AddNode(ctx, node("s1", topology.Switch))
	_, _, err := engine.AddLink(ctx, r1, s1, iface(1, ipam.RoleGateway, "10.0.0.1", "2001::1"),
		iface(1, ipam.RoleUnaddressed, "", ""), nil)
	Expect(err).To(BeNil())
	Expect(engine.Instantiate(ctx)).To(Succeed())

	Expect(engine.Shutdown(ctx)).To(Succeed())
	Expect(runner.closed).To(BeTrue())
	Expect(calls.named).To(BeEmpty())
	Expect(calls.linkIn("", "mpbr2")).To(BeNil())
	Expect(calls.linkIn("", "mpv1b")).To(BeNil())

	// working directory given in configuration is kept
	Expect(dir).To(BeADirectory())
}

func TestShapeRateOnly(t *testing.T) {
	RegisterTestingT(t)
	calls := newMockLinuxCalls()
	p := newPlumber(calls, logger)

	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: "d0"}}
	Expect(calls.LinkAdd(link)).To(Succeed())
	Expect(p.shape(link, &topology.LinkParams{Bandwidth: uint64Ptr(64000)})).To(Succeed())

	qdiscs := calls.qdiscs["d0"]
	Expect(qdiscs).To(HaveLen(1))
	tbf := qdiscs[0].(*netlink.Tbf)
	Expect(tbf.Parent).To(Equal(uint32(netlink.HANDLE_ROOT)))
	Expect(tbf.Buffer).To(Equal(uint32(tbfMinBurst)))

	Expect(p.shape(link, &topology.LinkParams{})).To(Succeed())
	Expect(p.shape(link, nil)).To(Succeed())
	Expect(calls.qdiscs["d0"]).To(HaveLen(1))
}

func TestWLANParams(t *testing.T) {
	RegisterTestingT(t)
	wlan := node("wlan1", topology.WLAN)
	wlan.RangeModel = topology.RangeModel{
		Range:     float64Ptr(275),
		Bandwidth: uint64Ptr(54000000),
		Delay:     uint64Ptr(5000),
		Error:     float64Ptr(2),
	}

	merged := wlanParams(nil, wlan)
	Expect(*merged.Bandwidth).To(Equal(uint64(54000000)))
	Expect(*merged.Delay).To(Equal(uint64(5000)))
	Expect(*merged.Loss).To(Equal(2.0))
	Expect(merged.Jitter).To(BeNil())

	merged = wlanParams(&topology.LinkParams{Delay: uint64Ptr(1000), Dup: float64Ptr(1)}, wlan)
	Expect(*merged.Delay).To(Equal(uint64(1000)))
	Expect(*merged.Bandwidth).To(Equal(uint64(54000000)))
	Expect(*merged.Dup).To(Equal(1.0))

	Expect(wlanParams(nil, node("wlan2", topology.WLAN)).IsZero()).To(BeTrue())
}

func TestBridgeName(t *testing.T) {
	RegisterTestingT(t)
	Expect(bridgeName(&NodeHandle{ID: 12, Name: "s1"})).To(Equal("mpbr12"))
}
