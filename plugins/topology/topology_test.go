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
	"testing"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"
)

func names(nodes []*Node) []string {
	var out []string
	for _, node := range nodes {
		out = append(out, node.Name)
	}
	return out
}

func TestParseNodeModel(t *testing.T) {
	RegisterTestingT(t)

	for name, expected := range map[string]NodeModel{
		"":       Router,
		"router": Router,
		"switch": Switch,
		"wlan":   WLAN,
		"PC":     Host,
		"host":   Host,
	} {
		model, err := ParseNodeModel(name)
		Expect(err).To(BeNil())
		Expect(model).To(Equal(expected))
	}

	_, err := ParseNodeModel("hub")
	Expect(err).ToNot(BeNil())
	Expect(Host.String()).To(Equal("PC"))
	Expect(Switch.IsBroadcastDomain()).To(BeTrue())
	Expect(WLAN.IsBroadcastDomain()).To(BeTrue())
	Expect(Router.IsBroadcastDomain()).To(BeFalse())
	Expect(WLAN.RunsCommands()).To(BeFalse())
}

func TestLoadTOMLKeepsDeclarationOrder(t *testing.T) {
	RegisterTestingT(t)

	loader := NewLoader("testdata", logrus.DefaultLogger())
	topo, err := loader.Load("star")
	Expect(err).To(BeNil())
	Expect(topo.Name).To(Equal("star"))
	Expect(names(topo.Nodes)).To(Equal([]string{"r1", "s1", "h1", "h2"}))
	Expect(topo.Links).To(HaveLen(3))
	Expect(topo.Links[0].Name).To(Equal("r1-s1"))
	Expect(topo.Links[2].Node2).To(Equal("h2"))

	Expect(topo.Node("s1").Model).To(Equal(Switch))
	Expect(topo.Node("h1").PathManager).To(Equal(PathManagerKernel))
	Expect(*topo.Links[0].Bandwidth).To(BeEquivalentTo(100000000))
	Expect(*topo.Links[1].Loss).To(Equal(0.5))
	Expect(topo.Links[1].MPTCPEnabled()).To(BeTrue())

	x, y := topo.Node("r1").Position()
	Expect(x).To(Equal(200.0))
	Expect(y).To(Equal(150.0))
	x, y = topo.Node("h2").Position()
	Expect(x).To(Equal(100.0))
	Expect(y).To(Equal(100.0))

	// dotted keys instead of tables
	dotted := "nodes.r1.model = \"router\"\nnodes.h1.model = \"PC\"\n" +
		"links.l1.node1 = \"r1\"\nlinks.l1.node2 = \"h1\"\nlinks.l1.delay = 10\n"
	topo, err = Parse([]byte(dotted), FormatTOML, "dotted")
	Expect(err).To(BeNil())
	Expect(names(topo.Nodes)).To(Equal([]string{"r1", "h1"}))
	Expect(topo.Node("h1").Model).To(Equal(Host))
	Expect(topo.Links).To(HaveLen(1))
	Expect(topo.Links[0].Name).To(Equal("l1"))
	Expect(topo.Links[0].Node2).To(Equal("h1"))
	Expect(*topo.Links[0].Delay).To(BeEquivalentTo(10))
}

func TestLoadYAMLMatchesTOML(t *testing.T) {
	RegisterTestingT(t)

	loader := NewLoader("testdata", logrus.DefaultLogger())
	fromTOML, err := loader.Load("star.toml")
	Expect(err).To(BeNil())
	fromYAML, err := loader.Load("star.yaml")
	Expect(err).To(BeNil())

	Expect(names(fromYAML.Nodes)).To(Equal(names(fromTOML.Nodes)))
	Expect(fromYAML.Links).To(HaveLen(len(fromTOML.Links)))
	for i := range fromTOML.Links {
		Expect(fromYAML.Links[i].Node1).To(Equal(fromTOML.Links[i].Node1))
		Expect(fromYAML.Links[i].Node2).To(Equal(fromTOML.Links[i].Node2))
		Expect(fromYAML.Links[i].LinkParams).To(Equal(fromTOML.Links[i].LinkParams))
	}
	// YAML links are named after their endpoints
	Expect(fromYAML.Links[1].Name).To(Equal("s1-h1"))
}

func TestLoadMultipathParameters(t *testing.T) {
	RegisterTestingT(t)

	topo, err := NewLoader("testdata", logrus.DefaultLogger()).Load("dualhomed")
	Expect(err).To(BeNil())

	client := topo.Node("client")
	Expect(client.Model).To(Equal(Host))
	Expect(client.PathManager).To(Equal(PathManagerDaemon))
	Expect(client.EndpointFlags()).To(Equal([]string{"subflow"}))
	Expect(*client.Subflows).To(Equal(4))
	Expect(*client.AddAddrAccepted).To(Equal(2))

	Expect(topo.Node("r1").Model).To(Equal(Router))
	Expect(topo.Node("r1").ModelName).To(Equal(DefaultModelName))

	wlan := topo.Node("wlan1")
	Expect(wlan.Model).To(Equal(WLAN))
	Expect(*wlan.Range).To(Equal(275.0))
	Expect(*wlan.RangeModel.Bandwidth).To(BeEquivalentTo(54000000))

	Expect(topo.Node("server").Services).To(Equal([]string{"iperf3 -s"}))
	Expect(topo.Link("r2-server").MPTCPEnabled()).To(BeFalse())
	Expect(names(topo.Hosts())).To(Equal([]string{"client", "server"}))
}

func TestMissingTopology(t *testing.T) {
	RegisterTestingT(t)

	_, err := NewLoader("testdata", logrus.DefaultLogger()).Load("nonexistent")
	Expect(err).ToNot(BeNil())
	Expect(IsResourceNotFound(err)).To(BeTrue())
	Expect(IsConfigurationError(err)).To(BeFalse())
}

func TestUnknownModel(t *testing.T) {
	RegisterTestingT(t)

	_, err := NewLoader("testdata", logrus.DefaultLogger()).Load("bad_model")
	Expect(err).ToNot(BeNil())
	Expect(IsConfigurationError(err)).To(BeTrue())
	Expect(err.Error()).To(Equal("Configuration Error: unknown 'hub' model"))
}

func TestDanglingLink(t *testing.T) {
	RegisterTestingT(t)

	_, err := NewLoader("testdata", logrus.DefaultLogger()).Load("dangling")
	Expect(IsConfigurationError(err)).To(BeTrue())
	Expect(err.Error()).To(ContainSubstring("unknown node 'h9'"))
}

func TestValidate(t *testing.T) {
	RegisterTestingT(t)

	tooMany := 9
	badLoss := 101.0
	cases := map[string]string{
		"nodes:\n  - name: a\n  - name: a\n":                                                    "duplicate node 'a'",
		"nodes:\n  - name: a\nlinks:\n  - node1: a\n    node2: a\n":                             "linked to itself",
		"nodes:\n  - name: a\n    path_manager: ndiffports\n":                                   "unknown path manager",
		"nodes:\n  - name: a\n    mptcp_flags: subflow,turbo\n":                                 "unknown MPTCP endpoint flag 'turbo'",
		"nodes:\n  - name: s\n    model: switch\n    script: x.sh\n":                            "cannot run scripts",
		"nodes:\n  - model: router\n":                                                           "node without a name",
		"nodes:\n  - name: a\n    files:\n      - src: a\n":                                     "need both src and dst",
		"nodes:\n  - name: a\n  - name: b\nlinks:\n  - node1: a\n    node2: b\n    loss: 101\n": "loss must be within 0-100%",
	}
	for doc, reason := range cases {
		_, err := Parse([]byte(doc), FormatYAML, "case")
		Expect(err).ToNot(BeNil(), doc)
		Expect(IsConfigurationError(err)).To(BeTrue(), doc)
		Expect(err.Error()).To(ContainSubstring(reason), doc)
	}

	topo := &Topology{
		Nodes: []*Node{{Name: "h1", ModelName: "PC", Subflows: &tooMany}},
	}
	Expect(IsConfigurationError(topo.Validate())).To(BeTrue())

	topo = &Topology{
		Nodes: []*Node{{Name: "a"}, {Name: "b"}},
		Links: []*Link{{Node1: "a", Node2: "b", LinkParams: LinkParams{Dup: &badLoss}}},
	}
	Expect(IsConfigurationError(topo.Validate())).To(BeTrue())
}

func TestParallelLinksGetDistinctNames(t *testing.T) {
	RegisterTestingT(t)

	topo, err := Parse([]byte(`
nodes:
  - name: h1
    model: PC
  - name: r1
links:
  - node1: h1
    node2: r1
  - node1: h1
    node2: r1
`), FormatYAML, "parallel")
	Expect(err).To(BeNil())
	Expect(topo.Links[0].Name).To(Equal("h1-r1"))
	Expect(topo.Links[1].Name).To(Equal("h1-r1-1"))
	Expect(topo.Neighbours("h1")).To(Equal([]string{"r1"}))
}

func TestIslands(t *testing.T) {
	RegisterTestingT(t)

	topo, err := NewLoader("testdata", logrus.DefaultLogger()).Load("dualhomed")
	Expect(err).To(BeNil())
	Expect(topo.Islands()).To(HaveLen(1))

	topo, err = Parse([]byte(`
nodes:
  - name: a
  - name: b
  - name: c
    model: PC
links:
  - node1: b
    node2: a
`), FormatYAML, "split")
	Expect(err).To(BeNil())
	Expect(topo.Islands()).To(Equal([][]string{{"a", "b"}, {"c"}}))
}

func TestFormatFromPath(t *testing.T) {
	RegisterTestingT(t)

	format, err := FormatFromPath("x/topo.TOML")
	Expect(err).To(BeNil())
	Expect(format).To(Equal(FormatTOML))
	format, err = FormatFromPath("topo.yml")
	Expect(err).To(BeNil())
	Expect(format).To(Equal(FormatYAML))
	_, err = FormatFromPath("topo.xml")
	Expect(IsConfigurationError(err)).To(BeTrue())
}
