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

package ipam

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/topology"
)

const interfaceNamePrefix = "eth"

// InterfaceAssigner creates the interfaces of link endpoints. It picks the
// allocation role from the node model and numbers interfaces of each node
// in link order: eth1, eth2, ...
type InterfaceAssigner struct {
	mutex sync.Mutex
	// node name -> last assigned interface ID
	lastIfID map[string]int
}

// NewInterfaceAssigner creates an assigner with no interfaces assigned.
func NewInterfaceAssigner() *InterfaceAssigner {
	return &InterfaceAssigner{lastIfID: make(map[string]int)}
}

// Assign allocates an interface of the node from the subnet.
func (a *InterfaceAssigner) Assign(subnet Allocator, node *topology.Node) (*Interface, error) {
	iface, err := subnet.Allocate(RoleForModel(node.Model))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to address interface of %s %s", node.Model, node.Name)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.lastIfID[node.Name]++
	iface.ID = a.lastIfID[node.Name]
	iface.Name = InterfaceName(iface.ID)
	return iface, nil
}

// Interfaces returns the number of interfaces assigned to the node.
func (a *InterfaceAssigner) Interfaces(node string) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.lastIfID[node]
}

// InterfaceName returns the name of the interface with the given ID.
func InterfaceName(id int) string {
	return fmt.Sprintf("%s%d", interfaceNamePrefix, id)
}
