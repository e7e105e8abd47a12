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
	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// linuxCalls allow to mock linux calls in test.
type linuxCalls interface {
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkByName(name string) (netlink.Link, error)
	LinkSetUp(link netlink.Link) error
	LinkSetName(link netlink.Link, name string) error
	LinkSetMaster(link netlink.Link, master netlink.Link) error
	LinkSetNsFd(link netlink.Link, fd int) error
	AddrAdd(link netlink.Link, addr *netlink.Addr) error
	QdiscAdd(qdisc netlink.Qdisc) error

	// DisableTxChecksum turns off TX checksum offload of a veth end, must be
	// called in the namespace the interface lives in.
	DisableTxChecksum(ifName string) error

	NewNamedNS(name string) error
	DeleteNamedNS(name string) error
	GetNS(nspath string) (ns.NetNS, error)
	WithNetNSPath(nspath string, toRun func(ns ns.NetNS) error) error
}

type hostCalls struct {
}

func (l *hostCalls) LinkAdd(link netlink.Link) error {
	return netlink.LinkAdd(link)
}

func (l *hostCalls) LinkDel(link netlink.Link) error {
	return netlink.LinkDel(link)
}

func (l *hostCalls) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (l *hostCalls) LinkSetUp(link netlink.Link) error {
	return netlink.LinkSetUp(link)
}

func (l *hostCalls) LinkSetName(link netlink.Link, name string) error {
	return netlink.LinkSetName(link, name)
}

func (l *hostCalls) LinkSetMaster(link netlink.Link, master netlink.Link) error {
	return netlink.LinkSetMaster(link, master)
}

func (l *hostCalls) LinkSetNsFd(link netlink.Link, fd int) error {
	return netlink.LinkSetNsFd(link, fd)
}

func (l *hostCalls) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrAdd(link, addr)
}

func (l *hostCalls) QdiscAdd(qdisc netlink.Qdisc) error {
	return netlink.QdiscAdd(qdisc)
}

func (l *hostCalls) DisableTxChecksum(ifName string) error {
	tool, err := ethtool.NewEthtool()
	if err != nil {
		return err
	}
	defer tool.Close()
	return tool.Change(ifName, map[string]bool{"tx-checksum-ip-generic": false})
}

// NewNamedNS creates a named namespace. netns.NewNamed also switches the
// calling thread into it, so the thread is restored before returning.
func (l *hostCalls) NewNamedNS(name string) error {
	return withThreadNS(func() error {
		handle, err := netns.NewNamed(name)
		if err != nil {
			return err
		}
		return handle.Close()
	})
}

func (l *hostCalls) DeleteNamedNS(name string) error {
	return netns.DeleteNamed(name)
}

func (l *hostCalls) GetNS(nspath string) (ns.NetNS, error) {
	return ns.GetNS(nspath)
}

func (l *hostCalls) WithNetNSPath(nspath string, toRun func(ns ns.NetNS) error) error {
	return ns.WithNetNSPath(nspath, toRun)
}
