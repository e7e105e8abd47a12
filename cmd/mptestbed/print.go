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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/store"
	"github.com/contiv/mptestbed/plugins/testbed"
	"github.com/contiv/mptestbed/plugins/topology"
)

// output formats of plan and show
const (
	outputText = "text"
	outputYAML = "yaml"
	outputJSON = "json"
)

func newTabWriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 8, 4, '\t', 0)
}

func printValidation(out io.Writer, topo *topology.Topology, islands [][]string) {
	fmt.Fprintf(out, "Topology %s is valid: %d nodes (%d hosts), %d links\n",
		topo.Name, len(topo.Nodes), len(topo.Hosts()), len(topo.Links))
	if hosts := topo.Hosts(); len(hosts) > 0 {
		w := newTabWriter(out)
		fmt.Fprintf(w, "HOST\tMODEL\tNEIGHBOURS\n")
		for _, host := range hosts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", host.Name, host.Model, strings.Join(topo.Neighbours(host.Name), ","))
		}
		w.Flush()
	}
	if len(islands) > 1 {
		fmt.Fprintf(out, "Warning: topology is not connected, %d islands:\n", len(islands))
		for _, island := range islands {
			fmt.Fprintf(out, "    %s\n", strings.Join(island, ", "))
		}
	}
}

func printPlan(out io.Writer, plan *testbed.Plan, format string) error {
	switch format {
	case outputText, "":
		printPlanText(out, plan)
		return nil
	case outputYAML:
		data, err := yaml.Marshal(plan)
		if err != nil {
			return errors.Wrap(err, "failed to marshal plan")
		}
		_, err = out.Write(data)
		return err
	case outputJSON:
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal plan")
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	return topology.NewConfigurationError("unknown output format '%s'", format)
}

// printSummary prints the one-paragraph result of a build.
func printSummary(out io.Writer, plan *testbed.Plan) {
	paths := 0
	for _, host := range plan.Hosts {
		paths += len(host.Paths)
	}
	fmt.Fprintf(out, "Session %s: topology %s built in %s engine\n", plan.Session, plan.Topology, plan.Engine)
	fmt.Fprintf(out, "%d subnets, %d links, %d hosts with %d paths\n",
		len(plan.Subnets), len(plan.Links), len(plan.Hosts), paths)
}

func printPlanText(out io.Writer, plan *testbed.Plan) {
	printSummary(out, plan)

	fmt.Fprintln(out, "\nSubnets:")
	w := newTabWriter(out)
	fmt.Fprintf(w, "ID\tIPv4\tIPv6\tHOSTS\tGATEWAYS\tDOMAIN\n")
	domains := domainsBySubnet(plan.Domains)
	for _, subnet := range plan.Subnets {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", subnet.ID, subnet.IPv4, subnet.IPv6,
			subnet.Hosts, subnet.Gateways, strings.Join(domains[subnet.ID], ","))
	}
	w.Flush()

	fmt.Fprintln(out, "\nLinks:")
	w = newTabWriter(out)
	fmt.Fprintf(w, "LINK\tSUBNET\tNODE1\tIF1\tNODE2\tIF2\n")
	for _, link := range plan.Links {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", link.Name, link.Subnet,
			link.Node1, interfaceText(link.Interface1), link.Node2, interfaceText(link.Interface2))
	}
	w.Flush()

	for _, host := range plan.Hosts {
		fmt.Fprintf(out, "\nHost %s (%s path manager):\n", host.Host, host.PathManager)
		w = newTabWriter(out)
		fmt.Fprintf(w, "TABLE\tINTERFACE\tADDRESS\tGATEWAY\tLINK\n")
		for _, path := range host.Paths {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", path.Table, path.Interface, path.IPv4, path.Gateway4, path.Link)
		}
		w.Flush()
		for _, cmd := range host.Commands {
			suffix := ""
			if !cmd.Blocking {
				suffix = " &"
			}
			fmt.Fprintf(out, "    %s%s\n", cmd.Cmd, suffix)
		}
	}

	for _, island := range plan.Islands {
		fmt.Fprintf(out, "\nIsland: %s", strings.Join(island, ", "))
	}
	if len(plan.Islands) > 0 {
		fmt.Fprintln(out)
	}
}

func interfaceText(iface *ipam.Interface) string {
	if iface == nil {
		return "-"
	}
	if !iface.Addressed() {
		return iface.Name
	}
	return fmt.Sprintf("%s %s", iface.Name, iface.IPv4Net())
}

// domainsBySubnet inverts the domain map, names are sorted.
func domainsBySubnet(domains map[string]int) map[int][]string {
	bySubnet := make(map[int][]string)
	for name, subnet := range domains {
		bySubnet[subnet] = append(bySubnet[subnet], name)
	}
	for _, names := range bySubnet {
		sort.Strings(names)
	}
	return bySubnet
}

func printSessions(out io.Writer, summaries []*store.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No stored sessions")
		return
	}
	w := newTabWriter(out)
	fmt.Fprintf(w, "SESSION\tTOPOLOGY\tENGINE\tCREATED\tSUBNETS\tHOSTS\n")
	for _, summary := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", summary.Session, summary.Topology, summary.Engine,
			summary.Created.Local().Format(time.RFC3339), summary.Subnets, summary.Hosts)
	}
	w.Flush()
}
