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

package topology

import (
	"sort"
	"strconv"
	"strings"
)

// Path manager kinds a host can declare.
const (
	// PathManagerKernel registers every path as an in-kernel MPTCP endpoint.
	PathManagerKernel = "kernel"
	// PathManagerDaemon starts a user-space path manager once all paths are known.
	PathManagerDaemon = "mptcpd"
)

const (
	defaultPosition = 100

	// upper bound of the kernel MPTCP limits (MPTCP_PM_ADDR_MAX)
	maxMPTCPLimit = 8
)

// endpoint flags accepted by "ip mptcp endpoint add"
var knownEndpointFlags = map[string]struct{}{
	"signal":   {},
	"subflow":  {},
	"backup":   {},
	"fullmesh": {},
}

// Topology is a validated topology description. Nodes and Links keep
// the declaration order of the source file.
type Topology struct {
	Name  string  `json:"name"`
	Nodes []*Node `json:"nodes"`
	Links []*Link `json:"links"`

	nodeIndex map[string]*Node
}

// Node describes one node of the topology.
type Node struct {
	Name      string   `json:"name" toml:"-"`
	ModelName string   `json:"model,omitempty" toml:"model"`
	PosX      *float64 `json:"posX,omitempty" toml:"posX"`
	PosY      *float64 `json:"posY,omitempty" toml:"posY"`

	// Services are long-running commands started on the node once the
	// session is up.
	Services []string `json:"services,omitempty" toml:"services"`
	// Files are copied into the node before the session is instantiated.
	Files []*File `json:"files,omitempty" toml:"files"`
	// Script is copied into the node as script.sh and executed with bash.
	Script     string `json:"script,omitempty" toml:"script"`
	Background bool   `json:"background,omitempty" toml:"background"`

	// multipath parameters, hosts only
	PathManager     string `json:"path_manager,omitempty" toml:"path_manager"`
	MPTCPFlags      string `json:"mptcp_flags,omitempty" toml:"mptcp_flags"`
	Subflows        *int   `json:"subflows,omitempty" toml:"subflows"`
	AddAddrAccepted *int   `json:"add_addr_accepted,omitempty" toml:"add_addr_accepted"`

	// wireless range model, WLAN only
	RangeModel

	// Model is set by Validate from ModelName.
	Model NodeModel `json:"-" toml:"-"`
}

// RangeModel is the basic range model of a wireless LAN.
type RangeModel struct {
	Range     *float64 `json:"range,omitempty" toml:"range"`
	Bandwidth *uint64  `json:"bandwidth,omitempty" toml:"bandwidth"`
	Delay     *uint64  `json:"delay,omitempty" toml:"delay"`
	Jitter    *uint64  `json:"jitter,omitempty" toml:"jitter"`
	Error     *float64 `json:"error,omitempty" toml:"error"`
}

// File is a file copied from the local filesystem into a node.
type File struct {
	Src string `json:"src" toml:"src"`
	Dst string `json:"dst" toml:"dst"`
}

// Link connects two nodes.
type Link struct {
	Name  string `json:"name,omitempty" toml:"-"`
	Node1 string `json:"node1" toml:"node1"`
	Node2 string `json:"node2" toml:"node2"`

	LinkParams

	// UseMPTCP set to false excludes the link from routing policy.
	UseMPTCP *bool `json:"use_mptcp,omitempty" toml:"use_mptcp"`
}

// LinkParams are the link impairments applied by the emulation engine.
type LinkParams struct {
	Bandwidth *uint64  `json:"bandwidth,omitempty" toml:"bandwidth"`
	Delay     *uint64  `json:"delay,omitempty" toml:"delay"`
	Dup       *float64 `json:"dup,omitempty" toml:"dup"`
	Loss      *float64 `json:"loss,omitempty" toml:"loss"`
	Jitter    *uint64  `json:"jitter,omitempty" toml:"jitter"`
}

// IsZero returns true when no impairment is set.
func (p *LinkParams) IsZero() bool {
	return p.Bandwidth == nil && p.Delay == nil && p.Dup == nil && p.Loss == nil && p.Jitter == nil
}

// MPTCPEnabled returns false only when the link explicitly opts out.
func (l *Link) MPTCPEnabled() bool {
	return l.UseMPTCP == nil || *l.UseMPTCP
}

// Position returns the declared canvas position of the node.
func (n *Node) Position() (x, y float64) {
	x, y = defaultPosition, defaultPosition
	if n.PosX != nil {
		x = *n.PosX
	}
	if n.PosY != nil {
		y = *n.PosY
	}
	return x, y
}

// EndpointFlags returns the declared endpoint flags split into words.
func (n *Node) EndpointFlags() []string {
	return strings.Fields(strings.Replace(n.MPTCPFlags, ",", " ", -1))
}

// Node returns the node with the given name, nil if there is none.
func (t *Topology) Node(name string) *Node {
	if t.nodeIndex == nil {
		t.reindex()
	}
	return t.nodeIndex[name]
}

// Link returns the link with the given name, nil if there is none.
func (t *Topology) Link(name string) *Link {
	for _, link := range t.Links {
		if link.Name == name {
			return link
		}
	}
	return nil
}

// Hosts returns the host nodes in declaration order.
func (t *Topology) Hosts() []*Node {
	var hosts []*Node
	for _, node := range t.Nodes {
		if node.Model.IsHost() {
			hosts = append(hosts, node)
		}
	}
	return hosts
}

func (t *Topology) reindex() {
	t.nodeIndex = make(map[string]*Node, len(t.Nodes))
	for _, node := range t.Nodes {
		t.nodeIndex[node.Name] = node
	}
}

// Validate checks the whole description and resolves node models.
// It must succeed before anything is created in the emulation engine.
func (t *Topology) Validate() error {
	t.nodeIndex = make(map[string]*Node, len(t.Nodes))
	for _, node := range t.Nodes {
		if err := node.validate(); err != nil {
			return err
		}
		if _, duplicate := t.nodeIndex[node.Name]; duplicate {
			return NewConfigurationError("duplicate node '%s'", node.Name)
		}
		t.nodeIndex[node.Name] = node
	}

	linkNames := make(map[string]struct{}, len(t.Links))
	for i, link := range t.Links {
		if link.Name == "" {
			link.Name = link.Node1 + "-" + link.Node2
			if _, taken := linkNames[link.Name]; taken {
				link.Name = link.Name + "-" + strconv.Itoa(i)
			}
		} else if _, duplicate := linkNames[link.Name]; duplicate {
			return NewConfigurationError("duplicate link '%s'", link.Name)
		}
		linkNames[link.Name] = struct{}{}

		if err := t.validateLink(link); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return NewConfigurationError("node without a name")
	}
	if n.ModelName == "" {
		n.ModelName = DefaultModelName
	}
	model, err := ParseNodeModel(n.ModelName)
	if err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	n.Model = model

	switch n.PathManager {
	case "", PathManagerKernel, PathManagerDaemon:
	default:
		return NewConfigurationError("node '%s': unknown path manager '%s'", n.Name, n.PathManager)
	}
	for _, flag := range n.EndpointFlags() {
		if _, ok := knownEndpointFlags[flag]; !ok {
			return NewConfigurationError("node '%s': unknown MPTCP endpoint flag '%s'", n.Name, flag)
		}
	}
	if err := checkLimit(n.Name, "subflows", n.Subflows); err != nil {
		return err
	}
	if err := checkLimit(n.Name, "add_addr_accepted", n.AddAddrAccepted); err != nil {
		return err
	}
	if (n.Script != "" || len(n.Services) > 0 || len(n.Files) > 0) && !n.Model.RunsCommands() {
		return NewConfigurationError("node '%s': %s nodes cannot run scripts, services or hold files", n.Name, n.Model)
	}
	for _, file := range n.Files {
		if file == nil || file.Src == "" || file.Dst == "" {
			return NewConfigurationError("node '%s': file entries need both src and dst", n.Name)
		}
	}
	if n.Range != nil && *n.Range < 0 {
		return NewConfigurationError("node '%s': negative range", n.Name)
	}
	if n.Error != nil && (*n.Error < 0 || *n.Error > 100) {
		return NewConfigurationError("node '%s': error rate must be within 0-100%%", n.Name)
	}
	return nil
}

func checkLimit(node, name string, value *int) error {
	if value != nil && (*value < 0 || *value > maxMPTCPLimit) {
		return NewConfigurationError("node '%s': %s must be within 0-%d", node, name, maxMPTCPLimit)
	}
	return nil
}

func (t *Topology) validateLink(link *Link) error {
	for _, endpoint := range []string{link.Node1, link.Node2} {
		if endpoint == "" {
			return NewConfigurationError("link '%s': both node1 and node2 are required", link.Name)
		}
		if _, ok := t.nodeIndex[endpoint]; !ok {
			return NewConfigurationError("link '%s': unknown node '%s'", link.Name, endpoint)
		}
	}
	if link.Node1 == link.Node2 {
		return NewConfigurationError("link '%s': node '%s' linked to itself", link.Name, link.Node1)
	}
	for name, pct := range map[string]*float64{"loss": link.Loss, "dup": link.Dup} {
		if pct != nil && (*pct < 0 || *pct > 100) {
			return NewConfigurationError("link '%s': %s must be within 0-100%%", link.Name, name)
		}
	}
	return nil
}

// Neighbours returns names of all nodes linked to the given node, sorted.
func (t *Topology) Neighbours(name string) []string {
	seen := make(map[string]struct{})
	for _, link := range t.Links {
		switch name {
		case link.Node1:
			seen[link.Node2] = struct{}{}
		case link.Node2:
			seen[link.Node1] = struct{}{}
		}
	}
	var names []string
	for neighbour := range seen {
		names = append(names, neighbour)
	}
	sort.Strings(names)
	return names
}
