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

// Package topology loads and validates testbed topology descriptions.
//
// A description declares nodes (routers, switches, wireless LANs and hosts)
// and the links between them. Two file formats are supported, selected
// by the file extension:
//
//	TOML (.toml), nodes and links are tables keyed by name:
//
//	  [nodes.r1]
//	  model = "router"
//
//	  [nodes.h1]
//	  model = "PC"
//	  path_manager = "kernel"
//
//	  [links.r1-h1]
//	  node1 = "r1"
//	  node2 = "h1"
//	  bandwidth = 10000000
//	  delay = 5000
//
//	YAML (.yaml, .yml), nodes and links are lists:
//
//	  nodes:
//	    - name: r1
//	      model: router
//	    - name: h1
//	      model: PC
//	      script: scripts/iperf.sh
//	  links:
//	    - node1: r1
//	      node2: h1
//	      loss: 1.5
//
// Declaration order is preserved in both formats. Subnet numbering and
// routing table indices depend on it, so the same file always produces
// the same addressing.
//
// Link bandwidth is given in bits per second, delay and jitter in
// microseconds, loss and duplication in percent.
package topology
