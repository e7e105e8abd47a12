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

// Package routing computes the multipath routing policy of testbed hosts.
//
// Every link between a host and a router, switch or WLAN is one path of
// the host. Links between two hosts, and links declared with
// use_mptcp = false, are not. Each path gets its own routing table,
// numbered per host from 1 in link order, holding:
//
//	ip rule add from <path address> table <n>
//	ip route add <path subnet> dev <iface> scope link table <n>
//	ip route add default via <subnet gateway> dev <iface> table <n>
//
// with the same entries for IPv6 prefixed by "ip -6". The path manager
// declared by the host then registers the paths:
//
//	kernel: ip mptcp limits set subflows <s> add_addr_accepted <a>
//	        ip mptcp endpoint add <address> dev <iface> <flags>
//	mptcpd: the user-space path manager daemon, started once after all
//	        paths of the host are known
//
// Commands are produced as plain strings, executing them is up to the
// emulation engine.
package routing
