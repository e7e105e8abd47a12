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
	"sync"

	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/emulator"
	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

// MockEngine is a scriptable emulation engine for tests.
type MockEngine struct {
	sync.Mutex

	lastID   int
	nodes    map[string]*emulator.NodeHandle
	links    []string
	commands map[string][]string
	files    map[string]map[string]string
	failures map[string]error

	instantiated bool
	shutdown     bool

	// LinkHook, if set, replaces the interfaces echoed by AddLink.
	LinkHook func(if1, if2 *ipam.Interface) (*ipam.Interface, *ipam.Interface)
	// Output is returned by every blocking command.
	Output string
}

// NewMockEngine is a constructor for MockEngine.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		nodes:    make(map[string]*emulator.NodeHandle),
		commands: make(map[string][]string),
		files:    make(map[string]map[string]string),
		failures: make(map[string]error),
	}
}

// FailOn makes the operation fail with err. Name is the node name for node
// operations, "<node1>-<node2>" for links and empty for session operations.
func (m *MockEngine) FailOn(op, name string, err error) {
	m.Lock()
	defer m.Unlock()
	m.failures[op+"/"+name] = err
}

// Nodes returns names of created nodes.
func (m *MockEngine) Nodes() []string {
	m.Lock()
	defer m.Unlock()
	names := make([]string, 0, len(m.nodes))
	for i := 1; i <= m.lastID; i++ {
		for name, handle := range m.nodes {
			if handle.ID == i {
				names = append(names, name)
			}
		}
	}
	return names
}

// Links returns "<node1>-<node2>" of created links in order.
func (m *MockEngine) Links() []string {
	m.Lock()
	defer m.Unlock()
	return append([]string(nil), m.links...)
}

// Commands returns commands run on the node in order.
func (m *MockEngine) Commands(node string) []string {
	m.Lock()
	defer m.Unlock()
	return append([]string(nil), m.commands[node]...)
}

// Files returns copied files of the node, destination to source.
func (m *MockEngine) Files(node string) map[string]string {
	m.Lock()
	defer m.Unlock()
	return m.files[node]
}

// Instantiated returns true if Instantiate was called.
func (m *MockEngine) Instantiated() bool {
	m.Lock()
	defer m.Unlock()
	return m.instantiated
}

// IsShutdown returns true if Shutdown was called.
func (m *MockEngine) IsShutdown() bool {
	m.Lock()
	defer m.Unlock()
	return m.shutdown
}

// AddNode creates a node handle.
func (m *MockEngine) AddNode(ctx context.Context, node *topology.Node) (*emulator.NodeHandle, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.failure(emulator.OpAddNode, node.Name); err != nil {
		return nil, err
	}
	m.lastID++
	handle := &emulator.NodeHandle{ID: m.lastID, Name: node.Name, Model: node.Model}
	m.nodes[node.Name] = handle
	return handle, nil
}

// AddLink echoes the interfaces, through LinkHook if set.
func (m *MockEngine) AddLink(ctx context.Context, n1, n2 *emulator.NodeHandle, if1, if2 *ipam.Interface,
	params *topology.LinkParams) (*ipam.Interface, *ipam.Interface, error) {

	m.Lock()
	defer m.Unlock()
	name := n1.Name + "-" + n2.Name
	if err := m.failure(emulator.OpAddLink, name); err != nil {
		return nil, nil, err
	}
	if m.nodes[n1.Name] == nil || m.nodes[n2.Name] == nil {
		return nil, nil, errors.Errorf("unknown node in link %s", name)
	}
	m.links = append(m.links, name)
	if m.LinkHook != nil {
		if1, if2 = m.LinkHook(if1, if2)
	}
	return if1, if2, nil
}

// NodeCommand records the command.
func (m *MockEngine) NodeCommand(ctx context.Context, node *emulator.NodeHandle, cmd string, blocking bool) (string, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.failure(emulator.OpNodeCommand, node.Name); err != nil {
		return "", err
	}
	m.commands[node.Name] = append(m.commands[node.Name], cmd)
	if !blocking {
		return "", nil
	}
	return m.Output, nil
}

// CopyFile records the copy.
func (m *MockEngine) CopyFile(ctx context.Context, node *emulator.NodeHandle, src, dst string) error {
	m.Lock()
	defer m.Unlock()
	if err := m.failure(emulator.OpCopyFile, node.Name); err != nil {
		return err
	}
	if m.files[node.Name] == nil {
		m.files[node.Name] = make(map[string]string)
	}
	m.files[node.Name][dst] = src
	return nil
}

// Instantiate marks the session instantiated.
func (m *MockEngine) Instantiate(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()
	if err := m.failure(emulator.OpInstantiate, ""); err != nil {
		return err
	}
	m.instantiated = true
	return nil
}

// Shutdown marks the session down.
func (m *MockEngine) Shutdown(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()
	m.shutdown = true
	return m.failure(emulator.OpShutdown, "")
}

func (m *MockEngine) failure(op, name string) error {
	return m.failures[op+"/"+name]
}
