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

package routing

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/topology"
)

const (
	// DefaultEndpointFlags are used for kernel endpoints of hosts without mptcp_flags.
	DefaultEndpointFlags = "subflow signal"
	// DefaultLimit is the default of both kernel MPTCP limits.
	DefaultLimit = 8

	// DefaultDaemonCommand starts mptcpd with the address advertising plugin.
	DefaultDaemonCommand = "mptcpd --path-manager=addr_adv --addr-flags={{join .Flags \",\"}} " +
		"--notify-flags=existing,skip_link_local,skip_loopback"
)

// DefaultDaemonPreamble switches the kernel to the user-space path manager.
var DefaultDaemonPreamble = []string{"sysctl -w net.mptcp.pm_type=1"}

// Config holds defaults of the multipath configuration. Hosts override them
// with their own path_manager, mptcp_flags, subflows and add_addr_accepted.
type Config struct {
	// PathManager used by hosts that do not declare one.
	PathManager string `json:"path_manager,omitempty"`
	// EnableIPv6 adds "ip -6" rules and routes for every path.
	EnableIPv6 bool `json:"enable_ipv6"`

	EndpointFlags   string `json:"endpoint_flags,omitempty"`
	Subflows        int    `json:"subflows"`
	AddAddrAccepted int    `json:"add_addr_accepted"`

	// DaemonCommand is a text/template rendered with DaemonParams.
	DaemonCommand string `json:"daemon_command,omitempty"`
	// DaemonPreamble runs before any path of a daemon-managed host is configured.
	DaemonPreamble []string `json:"daemon_preamble,omitempty"`
}

// DefaultConfig returns the kernel path manager configuration.
func DefaultConfig() *Config {
	return &Config{
		PathManager:     topology.PathManagerKernel,
		EnableIPv6:      true,
		EndpointFlags:   DefaultEndpointFlags,
		Subflows:        DefaultLimit,
		AddAddrAccepted: DefaultLimit,
		DaemonCommand:   DefaultDaemonCommand,
		DaemonPreamble:  DefaultDaemonPreamble,
	}
}

// Validate checks the configuration by validating it as a host would be.
func (c *Config) Validate() error {
	probe := &topology.Node{
		Name:            "defaults",
		ModelName:       topology.Host.String(),
		PathManager:     c.PathManager,
		MPTCPFlags:      c.EndpointFlags,
		Subflows:        &c.Subflows,
		AddAddrAccepted: &c.AddAddrAccepted,
	}
	topo := &topology.Topology{Nodes: []*topology.Node{probe}}
	if err := topo.Validate(); err != nil {
		return errors.Wrap(err, "invalid MPTCP defaults")
	}
	if _, err := parseDaemonCommand(c.DaemonCommand); err != nil {
		return err
	}
	return nil
}

func parseDaemonCommand(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultDaemonCommand
	}
	tmpl, err := template.New("daemon").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "invalid path manager daemon command")
	}
	return tmpl, nil
}
