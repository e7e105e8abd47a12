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
	"fmt"
	"net"
	"strings"

	"github.com/contiv/mptestbed/plugins/topology"
)

// Role decides which counter of a subnet an interface is addressed from.
type Role int

const (
	// RoleHost is an end system address (.20 and above).
	RoleHost Role = iota
	// RoleGateway is a router address (.1 to .19).
	RoleGateway
	// RoleUnaddressed is a port of a shared L2 segment, no address.
	RoleUnaddressed
)

var roleNames = map[Role]string{
	RoleHost:        "host",
	RoleGateway:     "gateway",
	RoleUnaddressed: "unaddressed",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	for role, name := range roleNames {
		if strings.EqualFold(name, string(text)) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown interface role '%s'", text)
}

// RoleForModel maps a node model to the role its interfaces are addressed with.
func RoleForModel(model topology.NodeModel) Role {
	switch model {
	case topology.Router:
		return RoleGateway
	case topology.Switch, topology.WLAN:
		return RoleUnaddressed
	case topology.Host:
		return RoleHost
	}
	return RoleHost
}

// Interface is the result of one allocation: the addressing of one end
// of a link.
type Interface struct {
	Role Role `json:"role"`
	// ID is the per-node interface number, Name is derived from it (eth<ID>).
	ID   int    `json:"id"`
	Name string `json:"name"`
	// Subnet is the ID of the subnet the interface belongs to.
	Subnet int `json:"subnet"`

	IPv4     net.IP `json:"ip4,omitempty"`
	IPv4Mask int    `json:"ip4_mask"`
	IPv6     net.IP `json:"ip6,omitempty"`
	IPv6Mask int    `json:"ip6_mask"`
}

// Addressed returns false for unaddressed interfaces.
func (i *Interface) Addressed() bool {
	return i.IPv4 != nil || i.IPv6 != nil
}

// IPv4Net returns the IPv4 address with its mask, nil if unaddressed.
func (i *Interface) IPv4Net() *net.IPNet {
	if i.IPv4 == nil {
		return nil
	}
	return &net.IPNet{IP: i.IPv4, Mask: net.CIDRMask(i.IPv4Mask, 8*net.IPv4len)}
}

// IPv6Net returns the IPv6 address with its mask, nil if unaddressed.
func (i *Interface) IPv6Net() *net.IPNet {
	if i.IPv6 == nil {
		return nil
	}
	return &net.IPNet{IP: i.IPv6, Mask: net.CIDRMask(i.IPv6Mask, 8*net.IPv6len)}
}

// String provides human-readable representation of the interface.
func (i *Interface) String() string {
	if !i.Addressed() {
		return fmt.Sprintf("<%s subnet=%d %s>", i.Name, i.Subnet, i.Role)
	}
	return fmt.Sprintf("<%s subnet=%d %s ip4=%s ip6=%s>", i.Name, i.Subnet, i.Role, i.IPv4Net(), i.IPv6Net())
}

// Allocator hands out addresses within one subnet.
type Allocator interface {
	// ID returns the subnet number.
	ID() int

	// Subnet returns the IPv4 and IPv6 networks of the subnet.
	Subnet() (ipv4 *net.IPNet, ipv6 *net.IPNet)

	// GatewayIP returns the first gateway address of the subnet without
	// consuming it, so that default routes can point at it even when no
	// router interface was allocated.
	GatewayIP() (ipv4 net.IP, ipv6 net.IP)

	// Allocate returns the next interface addressing for the given role.
	// Unaddressed interfaces carry masks only. The interface name is left
	// to the caller.
	Allocate(role Role) (*Interface, error)
}
