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

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

// Engine types selectable in configuration.
const (
	DryRunEngine = "dryrun"
	NetnsEngine  = "netns"
	DockerEngine = "docker"
)

// Engine instantiates a topology.
type Engine interface {
	// AddNode creates a node.
	AddNode(ctx context.Context, node *topology.Node) (*NodeHandle, error)

	// AddLink connects two nodes with the given interfaces. The engine
	// returns the interfaces as it created them, which may differ from the
	// requested ones.
	AddLink(ctx context.Context, n1, n2 *NodeHandle, if1, if2 *ipam.Interface,
		params *topology.LinkParams) (*ipam.Interface, *ipam.Interface, error)

	// NodeCommand runs a shell command on the node. Blocking commands
	// return their output, the others are started and left running.
	NodeCommand(ctx context.Context, node *NodeHandle, cmd string, blocking bool) (string, error)

	// CopyFile copies a local file into the node. Relative destinations are
	// relative to the node's working directory.
	CopyFile(ctx context.Context, node *NodeHandle, src, dst string) error

	// Instantiate starts the session once all nodes and links exist.
	Instantiate(ctx context.Context) error

	// Shutdown removes everything the engine created.
	Shutdown(ctx context.Context) error
}

// NodeHandle identifies a node created by an engine.
type NodeHandle struct {
	ID    int                `json:"id"`
	Name  string             `json:"name"`
	Model topology.NodeModel `json:"model"`
}

func (h *NodeHandle) String() string {
	return fmt.Sprintf("%s(%d)", h.Name, h.ID)
}
