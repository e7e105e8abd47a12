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

// Package emulator contains the engines a testbed topology is instantiated
// in. An engine creates nodes and links, executes commands on nodes and
// tears the whole session down again.
//
// Three engines are provided:
//		- dryrun records every call without touching the system, used to
//		  print build plans and in tests
//		- netns runs every router and host in its own Linux network namespace
//		- docker runs every router and host in its own container
//
// Both netns and docker represent switches and wireless LANs as Linux
// bridges in the root namespace and connect nodes with veth pairs shaped
// with netem and tbf queueing disciplines.
package emulator
