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

// Package ipam allocates subnets and interface addresses for a testbed
// topology.
//
// Every broadcast domain gets its own subnet. A switch or wireless LAN pools
// all of its links into one domain, any other link (router to router,
// router to host) forms a domain of its own. Subnets are numbered from 0 in
// the order their first link is declared:
//
//	subnet N:  IPv4 10.0.N.0/24   IPv6 2001:N::/64
//
// Inside one subnet, addresses are handed out by role:
//		- routers get gateway addresses, starting with .1 (::1), up to .19
//		- hosts get host addresses, starting with .20 (::20), up to .254
//		- switch and WLAN ports stay unaddressed (mask only)
//
// The IPv4 base network and the IPv6 prefix are configurable. The IPv6
// address is built textually as <prefix>:<N>::<counter> so that both
// families carry the same visible numbering.
//
// Example (r1 router, s1 switch, h1 and h2 hosts, links r1-s1, s1-h1, s1-h2):
//
//	r1 eth1  10.0.0.1/24   2001::1/64
//	h1 eth1  10.0.0.20/24  2001::20/64
//	h2 eth1  10.0.0.21/24  2001::21/64
//
// Allocation is deterministic: a Registry reset before each build makes
// repeated builds of the same topology produce the same addressing.
package ipam
