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
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"
)

// Command is a shell command executed on a host.
type Command struct {
	Cmd string `json:"cmd"`
	// Blocking commands are waited for, the others are started in background.
	Blocking bool `json:"blocking"`
}

func blocking(format string, args ...interface{}) *Command {
	return &Command{Cmd: fmt.Sprintf(format, args...), Blocking: true}
}

// sourceRule builds the rule sending traffic sourced from addr to the table.
func sourceRule(addr net.IP, table int) *netlink.Rule {
	rule := netlink.NewRule()
	rule.Family = family(addr)
	rule.Src = &net.IPNet{IP: addr, Mask: hostMask(addr)}
	rule.Table = table
	return rule
}

// subnetRoute builds the link-scope route of the path subnet.
func subnetRoute(subnet *net.IPNet, table int) *netlink.Route {
	return &netlink.Route{
		Dst:   subnet,
		Scope: netlink.SCOPE_LINK,
		Table: table,
	}
}

// defaultRoute builds the default route via the subnet gateway.
func defaultRoute(gateway net.IP, table int) *netlink.Route {
	return &netlink.Route{
		Gw:    gateway,
		Table: table,
	}
}

// formatRule renders the rule as an "ip rule add" command.
func formatRule(rule *netlink.Rule) string {
	return fmt.Sprintf("%s rule add from %s table %d", ipCommand(rule.Family), rule.Src.IP, rule.Table)
}

// formatRoute renders the route as an "ip route add" command via the device.
func formatRoute(route *netlink.Route, dev string) string {
	var addr net.IP
	dst := "default"
	if route.Dst != nil {
		addr = route.Dst.IP
		dst = route.Dst.String()
	} else {
		addr = route.Gw
	}

	cmd := []string{ipCommand(family(addr)), "route add", dst}
	if route.Gw != nil {
		cmd = append(cmd, "via", route.Gw.String())
	}
	cmd = append(cmd, "dev", dev)
	if route.Scope == netlink.SCOPE_LINK {
		cmd = append(cmd, "scope link")
	}
	cmd = append(cmd, "table", fmt.Sprint(route.Table))
	return strings.Join(cmd, " ")
}

// endpointAdd renders the kernel path manager endpoint registration.
func endpointAdd(addr net.IP, dev string, flags []string) string {
	cmd := fmt.Sprintf("ip mptcp endpoint add %s dev %s", addr, dev)
	if len(flags) > 0 {
		cmd += " " + strings.Join(flags, " ")
	}
	return cmd
}

// limitsSet renders the kernel path manager limits.
func limitsSet(subflows, addAddrAccepted int) string {
	return fmt.Sprintf("ip mptcp limits set subflows %d add_addr_accepted %d", subflows, addAddrAccepted)
}

func ipCommand(fam int) string {
	if fam == netlink.FAMILY_V6 {
		return "ip -6"
	}
	return "ip"
}

func family(addr net.IP) int {
	if addr.To4() == nil {
		return netlink.FAMILY_V6
	}
	return netlink.FAMILY_V4
}

func hostMask(addr net.IP) net.IPMask {
	if addr.To4() == nil {
		return net.CIDRMask(8*net.IPv6len, 8*net.IPv6len)
	}
	return net.CIDRMask(8*net.IPv4len, 8*net.IPv4len)
}
