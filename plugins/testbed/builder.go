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

package testbed

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/emulator"
	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/routing"
	"github.com/contiv/mptestbed/plugins/topology"
)

const (
	// ScriptName is the name of the node script inside the node.
	ScriptName = "script.sh"
	// ScriptCommand runs the node script.
	ScriptCommand = "bash " + ScriptName
)

// Deps groups the dependencies of the Builder.
type Deps struct {
	Log      logging.Logger
	Engine   emulator.Engine
	Registry *ipam.Registry
	// Routing holds multipath defaults, nil means routing.DefaultConfig().
	Routing *routing.Config
	// Metrics may be nil.
	Metrics *Metrics
}

// Builder instantiates topologies in the engine.
type Builder struct {
	Deps

	// EngineType is recorded in plans.
	EngineType string
}

// NewBuilder creates a builder over the given engine and registry.
func NewBuilder(deps Deps, engineType string) *Builder {
	return &Builder{Deps: deps, EngineType: engineType}
}

// build is the state of one Build call.
type build struct {
	*Builder
	ctx     context.Context
	session *Session

	resolver *ipam.DomainResolver
	assigner *ipam.InterfaceAssigner
	policy   *routing.PolicyBuilder
}

// Build creates all nodes and links of the topology, configures routing
// policy of every host, copies node files and starts scripts and services.
// Relative file and script paths are resolved against dir.
//
// Nothing is rolled back on error, Shutdown of the engine removes whatever
// was created.
func (b *Builder) Build(ctx context.Context, topo *topology.Topology, dir string) (session *Session, err error) {
	start := time.Now()
	defer func() {
		b.Metrics.built(err, time.Since(start))
	}()

	if err := topo.Validate(); err != nil {
		return nil, err
	}
	islands := topo.Islands()
	if len(islands) > 1 {
		b.Log.Warnf("Topology %s is not connected, islands: %v", topo.Name, islands)
	}

	b.Registry.Reset()
	policy, err := routing.NewPolicyBuilder(b.Routing, b.Log)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	bld := &build{
		Builder: b,
		ctx:     ctx,
		session: &Session{
			ID:      id,
			Log:     b.Log,
			engine:  b.Engine,
			metrics: b.Metrics,
			nodes:   make(map[string]*emulator.NodeHandle),
			Plan: &Plan{
				Session:  id,
				Topology: topo.Name,
				Engine:   b.EngineType,
				Created:  time.Now().UTC(),
			},
		},
		resolver: ipam.NewDomainResolver(b.Registry, b.Log),
		assigner: ipam.NewInterfaceAssigner(),
		policy:   policy,
	}
	if len(islands) > 1 {
		bld.session.Plan.Islands = islands
	}
	b.Log.WithField("session", id).Infof("Building topology %s: %d nodes, %d links",
		topo.Name, len(topo.Nodes), len(topo.Links))

	for _, node := range topo.Nodes {
		if err := bld.addNode(node); err != nil {
			return nil, err
		}
	}
	for _, link := range topo.Links {
		if err := bld.addLink(link, topo.Node(link.Node1), topo.Node(link.Node2)); err != nil {
			return nil, err
		}
	}
	if err := bld.configureHosts(); err != nil {
		return nil, err
	}
	for _, node := range topo.Nodes {
		if err := bld.copyFiles(node, dir); err != nil {
			return nil, err
		}
	}
	if err := b.Engine.Instantiate(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to instantiate session")
	}
	for _, node := range topo.Nodes {
		if err := bld.startNode(node); err != nil {
			return nil, err
		}
	}

	b.Metrics.sessionUp()
	b.Log.WithField("session", id).Infof("Topology %s built: %d subnets", topo.Name, len(bld.session.Plan.Subnets))
	return bld.session, nil
}

func (b *build) addNode(node *topology.Node) error {
	handle, err := b.Engine.AddNode(b.ctx, node)
	if err != nil {
		return errors.Wrapf(err, "failed to create node %s", node.Name)
	}
	b.session.nodes[node.Name] = handle
	return nil
}

// addLink selects the subnet of the link, assigns interfaces of both ends,
// creates the link and records the path it gives to a host endpoint.
func (b *build) addLink(link *topology.Link, n1, n2 *topology.Node) error {
	subnet, err := b.resolver.Resolve(n1, n2)
	if err != nil {
		return capacityError(link, err)
	}
	if1, err := b.assigner.Assign(subnet, n1)
	if err != nil {
		return capacityError(link, err)
	}
	if2, err := b.assigner.Assign(subnet, n2)
	if err != nil {
		return capacityError(link, err)
	}

	if1, if2, err = b.Engine.AddLink(b.ctx, b.session.nodes[n1.Name], b.session.nodes[n2.Name],
		if1, if2, &link.LinkParams)
	if err != nil {
		return errors.Wrapf(err, "failed to create link %s", link.Name)
	}
	b.session.Plan.Links = append(b.session.Plan.Links, &Link{
		Name:       link.Name,
		Node1:      n1.Name,
		Node2:      n2.Name,
		Subnet:     subnet.ID(),
		Interface1: if1,
		Interface2: if2,
	})
	b.Log.Debugf("Link %s in subnet %d: %s %v, %s %v", link.Name, subnet.ID(), n1.Name, if1, n2.Name, if2)

	_, err = b.policy.AddLink(link, n1, n2, if1, if2, subnet)
	return err
}

// configureHosts renders the routing policy and runs it on every host.
func (b *build) configureHosts() error {
	b.session.Plan.Domains = b.resolver.Domains()
	b.session.Plan.Subnets = subnetsOf(b.Registry)

	hosts, err := b.policy.Policies()
	if err != nil {
		return err
	}
	b.session.Plan.Hosts = hosts
	for _, host := range hosts {
		for _, cmd := range host.Commands {
			if _, err := b.session.Command(b.ctx, host.Host, cmd.Cmd, cmd.Blocking); err != nil {
				return errors.Wrapf(err, "failed to configure routing of %s", host.Host)
			}
		}
		b.Log.Infof("Host %s: %d paths, %s path manager", host.Host, len(host.Paths), host.PathManager)
	}
	return nil
}

func (b *build) copyFiles(node *topology.Node, dir string) error {
	handle := b.session.nodes[node.Name]
	for _, file := range node.Files {
		if err := b.Engine.CopyFile(b.ctx, handle, resolvePath(dir, file.Src), file.Dst); err != nil {
			return errors.Wrapf(err, "failed to copy %s to %s", file.Src, node.Name)
		}
	}
	if node.Script == "" {
		return nil
	}
	if err := b.Engine.CopyFile(b.ctx, handle, resolvePath(dir, node.Script), ScriptName); err != nil {
		return errors.Wrapf(err, "failed to copy script of %s", node.Name)
	}
	return nil
}

// startNode runs the node script and starts its services.
func (b *build) startNode(node *topology.Node) error {
	if node.Script != "" {
		output, err := b.session.Command(b.ctx, node.Name, ScriptCommand, !node.Background)
		if err != nil {
			return errors.Wrapf(err, "script of %s failed", node.Name)
		}
		if output != "" {
			b.Log.Debugf("Script of %s: %s", node.Name, output)
		}
	}
	for _, service := range node.Services {
		if _, err := b.session.Command(b.ctx, node.Name, service, false); err != nil {
			return errors.Wrapf(err, "failed to start service '%s' on %s", service, node.Name)
		}
	}
	return nil
}

// capacityError reports exhausted address space as a configuration error.
func capacityError(link *topology.Link, err error) error {
	switch errors.Cause(err) {
	case ipam.ErrHostRangeExhausted, ipam.ErrGatewayRangeExhausted, ipam.ErrSubnetSpaceExhausted:
		return topology.NewConfigurationError("link '%s': %v", link.Name, err)
	}
	return errors.Wrapf(err, "failed to allocate addresses of link %s", link.Name)
}

func resolvePath(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
