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

package emulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

// Operations recorded by the dry-run engine.
const (
	OpAddNode     = "add-node"
	OpAddLink     = "add-link"
	OpNodeCommand = "node-command"
	OpCopyFile    = "copy-file"
	OpInstantiate = "instantiate"
	OpShutdown    = "shutdown"
)

// Call is one recorded engine call.
type Call struct {
	Op       string   `json:"op"`
	Nodes    []string `json:"nodes,omitempty"`
	Args     []string `json:"args,omitempty"`
	Blocking bool     `json:"blocking,omitempty"`
}

func (c *Call) String() string {
	return fmt.Sprintf("%s %v %v", c.Op, c.Nodes, c.Args)
}

// DryRun is an engine that only records what it is asked to do.
type DryRun struct {
	Log logging.Logger

	mutex      sync.Mutex
	calls      []*Call
	lastNodeID int
	nodes      map[string]*NodeHandle
	running    bool
}

// NewDryRun creates an empty dry-run engine.
func NewDryRun(log logging.Logger) *DryRun {
	return &DryRun{Log: log, nodes: make(map[string]*NodeHandle)}
}

// AddNode records the node and returns a handle numbered from 1.
func (d *DryRun) AddNode(ctx context.Context, node *topology.Node) (*NodeHandle, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.nodes[node.Name]; exists {
		return nil, errors.Errorf("node %s already exists", node.Name)
	}
	d.lastNodeID++
	handle := &NodeHandle{ID: d.lastNodeID, Name: node.Name, Model: node.Model}
	d.nodes[node.Name] = handle

	x, y := node.Position()
	d.record(&Call{Op: OpAddNode, Nodes: []string{node.Name},
		Args: []string{node.Model.String(), fmt.Sprintf("%g,%g", x, y)}})
	return handle, nil
}

// AddLink records the link and echoes the interfaces.
func (d *DryRun) AddLink(ctx context.Context, n1, n2 *NodeHandle, if1, if2 *ipam.Interface,
	params *topology.LinkParams) (*ipam.Interface, *ipam.Interface, error) {

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.checkNodes(n1, n2); err != nil {
		return nil, nil, err
	}
	d.record(&Call{Op: OpAddLink, Nodes: []string{n1.Name, n2.Name},
		Args: []string{if1.String(), if2.String(), formatParams(params)}})
	return if1, if2, nil
}

// NodeCommand records the command, the output is always empty.
func (d *DryRun) NodeCommand(ctx context.Context, node *NodeHandle, cmd string, blocking bool) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.checkNodes(node); err != nil {
		return "", err
	}
	if !node.Model.RunsCommands() {
		return "", errors.Errorf("%s %s cannot run commands", node.Model, node.Name)
	}
	d.record(&Call{Op: OpNodeCommand, Nodes: []string{node.Name}, Args: []string{cmd}, Blocking: blocking})
	return "", nil
}

// CopyFile records the copy.
func (d *DryRun) CopyFile(ctx context.Context, node *NodeHandle, src, dst string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.checkNodes(node); err != nil {
		return err
	}
	d.record(&Call{Op: OpCopyFile, Nodes: []string{node.Name}, Args: []string{src, dst}})
	return nil
}

// Instantiate records the session start.
func (d *DryRun) Instantiate(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.running = true
	d.record(&Call{Op: OpInstantiate})
	return nil
}

// Shutdown records the teardown and forgets all nodes.
func (d *DryRun) Shutdown(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.running = false
	d.nodes = make(map[string]*NodeHandle)
	d.record(&Call{Op: OpShutdown})
	return nil
}

// Calls returns all recorded calls in order.
func (d *DryRun) Calls() []*Call {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]*Call(nil), d.calls...)
}

// Commands returns the commands recorded for the node, in order.
func (d *DryRun) Commands(node string) []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var cmds []string
	for _, call := range d.calls {
		if call.Op == OpNodeCommand && call.Nodes[0] == node {
			cmds = append(cmds, call.Args[0])
		}
	}
	return cmds
}

// Running returns true between Instantiate and Shutdown.
func (d *DryRun) Running() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.running
}

func (d *DryRun) record(call *Call) {
	d.calls = append(d.calls, call)
	d.Log.Debugf("dry-run: %v", call)
}

func (d *DryRun) checkNodes(nodes ...*NodeHandle) error {
	for _, node := range nodes {
		if node == nil {
			return errors.New("nil node handle")
		}
		if known, ok := d.nodes[node.Name]; !ok || known != node {
			return errors.Errorf("unknown node %s", node.Name)
		}
	}
	return nil
}

// formatParams renders link parameters the way tc would describe them.
func formatParams(params *topology.LinkParams) string {
	if params == nil || params.IsZero() {
		return "unshaped"
	}
	var out string
	if params.Bandwidth != nil {
		out += fmt.Sprintf(" rate %dbit", *params.Bandwidth)
	}
	if params.Delay != nil {
		out += fmt.Sprintf(" delay %dus", *params.Delay)
	}
	if params.Jitter != nil {
		out += fmt.Sprintf(" jitter %dus", *params.Jitter)
	}
	if params.Loss != nil {
		out += fmt.Sprintf(" loss %g%%", *params.Loss)
	}
	if params.Dup != nil {
		out += fmt.Sprintf(" duplicate %g%%", *params.Dup)
	}
	return out[1:]
}
