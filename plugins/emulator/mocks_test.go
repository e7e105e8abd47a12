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
	"strings"
	"sync"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

// mockLinuxCalls keeps links per namespace path, "" being the root namespace.
type mockLinuxCalls struct {
	current    string
	lastIndex  int
	lastFd     uintptr
	namespaces map[string]map[string]netlink.Link
	fds        map[uintptr]string
	named      map[string]bool

	up      map[netlink.Link]bool
	masters map[string]string
	addrs   map[string][]*netlink.Addr
	qdiscs  map[string][]netlink.Qdisc
	noCsum  map[string]bool

	failLinkAdd error
}

func newMockLinuxCalls() *mockLinuxCalls {
	return &mockLinuxCalls{
		namespaces: map[string]map[string]netlink.Link{"": {"lo": &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "lo"}}}},
		fds:        make(map[uintptr]string),
		named:      make(map[string]bool),
		up:         make(map[netlink.Link]bool),
		masters:    make(map[string]string),
		addrs:      make(map[string][]*netlink.Addr),
		qdiscs:     make(map[string][]netlink.Qdisc),
		noCsum:     make(map[string]bool),
	}
}

func (m *mockLinuxCalls) links() map[string]netlink.Link {
	links, ok := m.namespaces[m.current]
	if !ok {
		lo := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "lo"}}
		links = map[string]netlink.Link{"lo": lo}
		m.namespaces[m.current] = links
	}
	return links
}

func (m *mockLinuxCalls) nextIndex() int {
	m.lastIndex++
	return m.lastIndex
}

func (m *mockLinuxCalls) LinkAdd(link netlink.Link) error {
	if m.failLinkAdd != nil {
		return m.failLinkAdd
	}
	links := m.links()
	attrs := link.Attrs()
	if _, exists := links[attrs.Name]; exists {
		return errors.Errorf("link %s exists", attrs.Name)
	}
	attrs.Index = m.nextIndex()
	links[attrs.Name] = link
	if veth, ok := link.(*netlink.Veth); ok {
		links[veth.PeerName] = &netlink.Veth{
			LinkAttrs: netlink.LinkAttrs{Name: veth.PeerName, Index: m.nextIndex()},
			PeerName:  attrs.Name,
		}
	}
	return nil
}

func (m *mockLinuxCalls) LinkDel(link netlink.Link) error {
	links := m.links()
	name := link.Attrs().Name
	if _, exists := links[name]; !exists {
		return errors.Errorf("link %s not found", name)
	}
	delete(links, name)
	if veth, ok := link.(*netlink.Veth); ok {
		for _, nsLinks := range m.namespaces {
			delete(nsLinks, veth.PeerName)
		}
	}
	return nil
}

func (m *mockLinuxCalls) LinkByName(name string) (netlink.Link, error) {
	link, exists := m.links()[name]
	if !exists {
		return nil, errors.Errorf("link %s not found", name)
	}
	return link, nil
}

func (m *mockLinuxCalls) LinkSetUp(link netlink.Link) error {
	m.up[link] = true
	return nil
}

func (m *mockLinuxCalls) LinkSetName(link netlink.Link, name string) error {
	links := m.links()
	delete(links, link.Attrs().Name)
	link.Attrs().Name = name
	links[name] = link
	return nil
}

func (m *mockLinuxCalls) LinkSetMaster(link netlink.Link, master netlink.Link) error {
	m.masters[link.Attrs().Name] = master.Attrs().Name
	return nil
}

func (m *mockLinuxCalls) LinkSetNsFd(link netlink.Link, fd int) error {
	target, ok := m.fds[uintptr(fd)]
	if !ok {
		return errors.New("bad namespace fd")
	}
	delete(m.links(), link.Attrs().Name)
	current := m.current
	m.current = target
	m.links()[link.Attrs().Name] = link
	m.current = current
	return nil
}

func (m *mockLinuxCalls) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	key := m.key(link.Attrs().Name)
	m.addrs[key] = append(m.addrs[key], addr)
	return nil
}

func (m *mockLinuxCalls) QdiscAdd(qdisc netlink.Qdisc) error {
	for name, link := range m.links() {
		if link.Attrs().Index == qdisc.Attrs().LinkIndex {
			key := m.key(name)
			m.qdiscs[key] = append(m.qdiscs[key], qdisc)
			return nil
		}
	}
	return errors.New("no link with the qdisc index")
}

func (m *mockLinuxCalls) DisableTxChecksum(ifName string) error {
	m.noCsum[m.key(ifName)] = true
	return nil
}

func (m *mockLinuxCalls) NewNamedNS(name string) error {
	if m.named[name] {
		return errors.Errorf("namespace %s exists", name)
	}
	m.named[name] = true
	return nil
}

func (m *mockLinuxCalls) DeleteNamedNS(name string) error {
	if !m.named[name] {
		return errors.Errorf("namespace %s not found", name)
	}
	delete(m.named, name)
	delete(m.namespaces, netnsRunDir+"/"+name)
	return nil
}

func (m *mockLinuxCalls) GetNS(nspath string) (ns.NetNS, error) {
	m.lastFd++
	m.fds[m.lastFd] = nspath
	return &mockNetNS{path: nspath, fd: m.lastFd}, nil
}

func (m *mockLinuxCalls) WithNetNSPath(nspath string, toRun func(ns ns.NetNS) error) error {
	previous := m.current
	m.current = nspath
	defer func() { m.current = previous }()
	return toRun(&mockNetNS{path: nspath})
}

// key identifies an interface as "<ns path>/<name>", root interfaces by name only.
func (m *mockLinuxCalls) key(name string) string {
	if m.current == "" {
		return name
	}
	return m.current + "/" + name
}

// linkIn returns the link from the namespace, nil if there is none.
func (m *mockLinuxCalls) linkIn(nsPath, name string) netlink.Link {
	return m.namespaces[nsPath][name]
}

type mockNetNS struct {
	path string
	fd   uintptr
}

func (n *mockNetNS) Do(toRun func(ns.NetNS) error) error { return toRun(n) }
func (n *mockNetNS) Set() error                          { return nil }
func (n *mockNetNS) Path() string                        { return n.path }
func (n *mockNetNS) Fd() uintptr                         { return n.fd }
func (n *mockNetNS) Close() error                        { return nil }

// mockRunner records commands instead of executing them.
type mockRunner struct {
	sync.Mutex

	run     [][]string
	started [][]string
	dirs    []string
	closed  bool
	failOn  string
}

func (r *mockRunner) Run(ctx context.Context, dir string, argv []string) (string, error) {
	r.Lock()
	defer r.Unlock()
	r.run = append(r.run, argv)
	r.dirs = append(r.dirs, dir)
	if r.failOn != "" && strings.Contains(strings.Join(argv, " "), r.failOn) {
		return "", errors.Errorf("%s failed", r.failOn)
	}
	return "ok", nil
}

func (r *mockRunner) Start(dir string, argv []string) error {
	r.Lock()
	defer r.Unlock()
	r.started = append(r.started, argv)
	r.dirs = append(r.dirs, dir)
	return nil
}

func (r *mockRunner) Close() error {
	r.Lock()
	defer r.Unlock()
	r.closed = true
	return nil
}

// shellCommands returns the "sh -c" arguments of the recorded commands.
func shellCommands(cmds [][]string) []string {
	var out []string
	for _, argv := range cmds {
		out = append(out, argv[len(argv)-1])
	}
	return out
}
