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
	"fmt"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

const (
	bridgeNameFormat = "mpbr%d"
	vethNameFormat   = "mpv%d%c"

	// tbf burst is sized for a 250Hz timer, queue limit for 50ms of traffic
	tbfHz        = 250
	tbfMinBurst  = 1600
	tbfLatencyMs = 50
)

// portEnd is one end of a veth pair: either moved into the namespace of a
// node and addressed, or left in the root namespace and enslaved to the
// bridge of a switch or WLAN.
type portEnd struct {
	node   string
	nsPath string
	bridge string
	iface  *ipam.Interface
	// shaping of the egress direction of this end
	params *topology.LinkParams
}

// plumber wires nodes together with veth pairs and Linux bridges.
type plumber struct {
	Log   logging.Logger
	calls linuxCalls

	lastVethID int
	// links created in the root namespace, removed on cleanup
	rootLinks []string
}

func newPlumber(calls linuxCalls, log logging.Logger) *plumber {
	if calls == nil {
		calls = &hostCalls{}
	}
	return &plumber{Log: log, calls: calls}
}

// bridgeName returns the name of the bridge backing an L2 node.
func bridgeName(handle *NodeHandle) string {
	return fmt.Sprintf(bridgeNameFormat, handle.ID)
}

// addBridge creates an L2 segment in the root namespace.
func (p *plumber) addBridge(name string) error {
	bridge := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := p.calls.LinkAdd(bridge); err != nil {
		return errors.Wrapf(err, "failed to create bridge %s", name)
	}
	p.rootLinks = append(p.rootLinks, name)
	if err := p.calls.LinkSetUp(bridge); err != nil {
		return errors.Wrapf(err, "failed to set bridge %s up", name)
	}
	p.Log.Debugf("Created bridge %s", name)
	return nil
}

// setLoopbackUp brings up the loopback of a fresh namespace.
func (p *plumber) setLoopbackUp(nsPath string) error {
	return p.calls.WithNetNSPath(nsPath, func(ns.NetNS) error {
		lo, err := p.calls.LinkByName("lo")
		if err != nil {
			return err
		}
		return p.calls.LinkSetUp(lo)
	})
}

// connect creates a veth pair between the two ends.
func (p *plumber) connect(end1, end2 *portEnd) error {
	p.lastVethID++
	name1 := fmt.Sprintf(vethNameFormat, p.lastVethID, 'a')
	name2 := fmt.Sprintf(vethNameFormat, p.lastVethID, 'b')

	veth := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: name1}, PeerName: name2}
	if err := p.calls.LinkAdd(veth); err != nil {
		return errors.Wrapf(err, "failed to create veth pair %s-%s", end1.node, end2.node)
	}

	for _, port := range []struct {
		end  *portEnd
		name string
	}{{end1, name1}, {end2, name2}} {
		if err := p.attach(port.end, port.name); err != nil {
			if delErr := p.calls.LinkDel(veth); delErr != nil {
				p.Log.Warnf("Failed to remove veth %s: %v", name1, delErr)
			}
			return errors.Wrapf(err, "failed to attach %s of %s", port.end.iface.Name, port.end.node)
		}
	}
	p.Log.Debugf("Connected %s %s <-> %s %s", end1.node, end1.iface.Name, end2.node, end2.iface.Name)
	return nil
}

func (p *plumber) attach(end *portEnd, rootName string) error {
	link, err := p.calls.LinkByName(rootName)
	if err != nil {
		return err
	}

	if end.bridge != "" {
		bridge, err := p.calls.LinkByName(end.bridge)
		if err != nil {
			return err
		}
		if err := p.calls.LinkSetMaster(link, bridge); err != nil {
			return err
		}
		p.rootLinks = append(p.rootLinks, rootName)
		if err := p.calls.LinkSetUp(link); err != nil {
			return err
		}
		return p.shape(link, end.params)
	}

	netNS, err := p.calls.GetNS(end.nsPath)
	if err != nil {
		return err
	}
	defer netNS.Close()
	if err := p.calls.LinkSetNsFd(link, int(netNS.Fd())); err != nil {
		return err
	}

	return p.calls.WithNetNSPath(end.nsPath, func(ns.NetNS) error {
		link, err := p.calls.LinkByName(rootName)
		if err != nil {
			return err
		}
		if err := p.calls.LinkSetName(link, end.iface.Name); err != nil {
			return err
		}
		if link, err = p.calls.LinkByName(end.iface.Name); err != nil {
			return err
		}
		if ipv4 := end.iface.IPv4Net(); ipv4 != nil {
			if err := p.calls.AddrAdd(link, &netlink.Addr{IPNet: ipv4}); err != nil {
				return errors.Wrapf(err, "failed to add %v", ipv4)
			}
		}
		if ipv6 := end.iface.IPv6Net(); ipv6 != nil {
			// skip DAD, paths are configured right after the link is up
			if err := p.calls.AddrAdd(link, &netlink.Addr{IPNet: ipv6, Flags: unix.IFA_F_NODAD}); err != nil {
				return errors.Wrapf(err, "failed to add %v", ipv6)
			}
		}
		if err := p.calls.DisableTxChecksum(end.iface.Name); err != nil {
			p.Log.Warnf("Failed to disable TX checksum offload of %s on %s: %v", end.iface.Name, end.node, err)
		}
		if err := p.calls.LinkSetUp(link); err != nil {
			return err
		}
		return p.shape(link, end.params)
	})
}

// shape installs netem for delay, jitter, loss and duplication, and tbf
// below it for the rate limit.
func (p *plumber) shape(link netlink.Link, params *topology.LinkParams) error {
	if params == nil || params.IsZero() {
		return nil
	}
	index := link.Attrs().Index
	parent := uint32(netlink.HANDLE_ROOT)

	if params.Delay != nil || params.Jitter != nil || params.Loss != nil || params.Dup != nil {
		attrs := netlink.NetemQdiscAttrs{}
		if params.Delay != nil {
			attrs.Latency = uint32(*params.Delay)
		}
		if params.Jitter != nil {
			attrs.Jitter = uint32(*params.Jitter)
		}
		if params.Loss != nil {
			attrs.Loss = float32(*params.Loss)
		}
		if params.Dup != nil {
			attrs.Duplicate = float32(*params.Dup)
		}
		netem := netlink.NewNetem(netlink.QdiscAttrs{
			LinkIndex: index,
			Handle:    netlink.MakeHandle(1, 0),
			Parent:    netlink.HANDLE_ROOT,
		}, attrs)
		if err := p.calls.QdiscAdd(netem); err != nil {
			return errors.Wrapf(err, "failed to add netem to %s", link.Attrs().Name)
		}
		parent = netlink.MakeHandle(1, 1)
	}

	if params.Bandwidth != nil {
		rate := *params.Bandwidth / 8
		burst := rate / tbfHz
		if burst < tbfMinBurst {
			burst = tbfMinBurst
		}
		tbf := &netlink.Tbf{
			QdiscAttrs: netlink.QdiscAttrs{
				LinkIndex: index,
				Handle:    netlink.MakeHandle(2, 0),
				Parent:    parent,
			},
			Rate:   rate,
			Buffer: uint32(burst),
			Limit:  uint32(burst + rate*tbfLatencyMs/1000),
		}
		if err := p.calls.QdiscAdd(tbf); err != nil {
			return errors.Wrapf(err, "failed to add tbf to %s", link.Attrs().Name)
		}
	}
	return nil
}

// cleanup removes the bridges and root namespace veth ends.
func (p *plumber) cleanup() error {
	var failed []string
	for i := len(p.rootLinks) - 1; i >= 0; i-- {
		link, err := p.calls.LinkByName(p.rootLinks[i])
		if err != nil {
			// veth ends go away together with their peer
			continue
		}
		if err := p.calls.LinkDel(link); err != nil {
			failed = append(failed, p.rootLinks[i])
		}
	}
	p.rootLinks = nil
	if len(failed) > 0 {
		return errors.Errorf("failed to remove links %v", failed)
	}
	return nil
}

// wlanParams merges the range model of a WLAN into the link parameters,
// explicit link parameters win.
func wlanParams(link *topology.LinkParams, wlan *topology.Node) *topology.LinkParams {
	merged := topology.LinkParams{
		Bandwidth: wlan.RangeModel.Bandwidth,
		Delay:     wlan.RangeModel.Delay,
		Jitter:    wlan.RangeModel.Jitter,
		Loss:      wlan.RangeModel.Error,
	}
	if link == nil {
		return &merged
	}
	if link.Bandwidth != nil {
		merged.Bandwidth = link.Bandwidth
	}
	if link.Delay != nil {
		merged.Delay = link.Delay
	}
	if link.Jitter != nil {
		merged.Jitter = link.Jitter
	}
	if link.Loss != nil {
		merged.Loss = link.Loss
	}
	merged.Dup = link.Dup
	return &merged
}
