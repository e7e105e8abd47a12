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

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Islands returns the connected components of the topology as sorted
// lists of node names. A well formed testbed has exactly one island;
// more than one means some hosts can never reach each other.
func (t *Topology) Islands() [][]string {
	g := simple.NewUndirectedGraph()
	ids := make(map[string]int64, len(t.Nodes))
	for i, node := range t.Nodes {
		ids[node.Name] = int64(i)
		g.AddNode(simple.Node(i))
	}
	for _, link := range t.Links {
		from, ok1 := ids[link.Node1]
		to, ok2 := ids[link.Node2]
		if !ok1 || !ok2 || from == to {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
	}

	var islands [][]string
	for _, component := range topo.ConnectedComponents(g) {
		islands = append(islands, t.names(component))
	}
	sort.Slice(islands, func(i, j int) bool {
		return islands[i][0] < islands[j][0]
	})
	return islands
}

func (t *Topology) names(nodes []graph.Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, t.Nodes[n.ID()].Name)
	}
	sort.Strings(names)
	return names
}
