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
	"fmt"
	"strings"
)

// NodeModel is the closed set of node kinds a topology can contain.
type NodeModel int

const (
	// Router forwards between subnets and owns gateway addresses.
	Router NodeModel = iota
	// Switch is a shared L2 segment; all its ports belong to one subnet.
	Switch
	// WLAN is a shared wireless segment with a range model.
	WLAN
	// Host is an end system running multipath transport (model "PC").
	Host
)

// DefaultModelName is used for nodes that do not declare a model.
const DefaultModelName = "router"

var modelNames = map[NodeModel]string{
	Router: "router",
	Switch: "switch",
	WLAN:   "wlan",
	Host:   "PC",
}

// ParseNodeModel converts the model name used in topology files into NodeModel.
// Empty name means router. "host" is accepted as an alias of "PC".
func ParseNodeModel(name string) (NodeModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "router":
		return Router, nil
	case "switch":
		return Switch, nil
	case "wlan":
		return WLAN, nil
	case "pc", "host":
		return Host, nil
	}
	return Router, fmt.Errorf("unknown '%s' model", name)
}

// String returns the model name as written in topology files.
func (m NodeModel) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("NodeModel(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m NodeModel) MarshalText() ([]byte, error) {
	if _, ok := modelNames[m]; !ok {
		return nil, fmt.Errorf("invalid node model %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *NodeModel) UnmarshalText(text []byte) error {
	model, err := ParseNodeModel(string(text))
	if err != nil {
		return err
	}
	*m = model
	return nil
}

// IsBroadcastDomain returns true for models that pool all their links
// into a single subnet.
func (m NodeModel) IsBroadcastDomain() bool {
	switch m {
	case Switch, WLAN:
		return true
	case Router, Host:
		return false
	}
	return false
}

// IsHost returns true for end systems.
func (m NodeModel) IsHost() bool {
	return m == Host
}

// RunsCommands returns true for models backed by a full network stack
// that can execute commands. L2 segments cannot.
func (m NodeModel) RunsCommands() bool {
	return !m.IsBroadcastDomain()
}
