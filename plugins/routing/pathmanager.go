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
	"bytes"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/topology"
)

// pathManager produces the commands registering paths of one host.
type pathManager interface {
	// preamble runs before any routing entry of the host
	preamble(host *HostPolicy) []*Command
	// path registers a single path
	path(host *HostPolicy, path *Path) []*Command
	// finish runs after all paths of the host are registered
	finish(host *HostPolicy) ([]*Command, error)
}

// hostParams are the multipath parameters of one host after applying defaults.
type hostParams struct {
	flags           []string
	subflows        int
	addAddrAccepted int
	ipv6            bool
}

func (b *PolicyBuilder) hostParams(node *topology.Node) *hostParams {
	params := &hostParams{
		flags:           node.EndpointFlags(),
		subflows:        b.config.Subflows,
		addAddrAccepted: b.config.AddAddrAccepted,
		ipv6:            b.config.EnableIPv6,
	}
	if node.MPTCPFlags == "" {
		params.flags = strings.Fields(strings.Replace(b.config.EndpointFlags, ",", " ", -1))
	}
	if node.Subflows != nil {
		params.subflows = *node.Subflows
	}
	if node.AddAddrAccepted != nil {
		params.addAddrAccepted = *node.AddAddrAccepted
	}
	return params
}

// kernelPathManager registers every path as an in-kernel endpoint.
type kernelPathManager struct {
	params *hostParams
}

func (pm *kernelPathManager) preamble(host *HostPolicy) []*Command {
	return []*Command{blocking("%s", limitsSet(pm.params.subflows, pm.params.addAddrAccepted))}
}

func (pm *kernelPathManager) path(host *HostPolicy, path *Path) []*Command {
	cmds := []*Command{blocking("%s", endpointAdd(path.IPv4, path.Interface, pm.params.flags))}
	if pm.params.ipv6 && path.IPv6 != nil {
		cmds = append(cmds, blocking("%s", endpointAdd(path.IPv6, path.Interface, pm.params.flags)))
	}
	return cmds
}

func (pm *kernelPathManager) finish(host *HostPolicy) ([]*Command, error) {
	return nil, nil
}

// DaemonParams is the data the daemon command template is rendered with.
type DaemonParams struct {
	Host            string
	Interfaces      []string
	Addresses       []string
	Addresses6      []string
	Flags           []string
	Subflows        int
	AddAddrAccepted int
}

// daemonPathManager starts a user-space path manager with the full list of paths.
type daemonPathManager struct {
	params *hostParams
	setup  []string
	tmpl   *template.Template
}

func (pm *daemonPathManager) preamble(host *HostPolicy) []*Command {
	var cmds []*Command
	for _, cmd := range pm.setup {
		cmds = append(cmds, blocking("%s", cmd))
	}
	return cmds
}

func (pm *daemonPathManager) path(host *HostPolicy, path *Path) []*Command {
	return nil
}

func (pm *daemonPathManager) finish(host *HostPolicy) ([]*Command, error) {
	params := &DaemonParams{
		Host:            host.Host,
		Flags:           pm.params.flags,
		Subflows:        pm.params.subflows,
		AddAddrAccepted: pm.params.addAddrAccepted,
	}
	for _, path := range host.Paths {
		params.Interfaces = append(params.Interfaces, path.Interface)
		params.Addresses = append(params.Addresses, path.IPv4.String())
		if path.IPv6 != nil {
			params.Addresses6 = append(params.Addresses6, path.IPv6.String())
		}
	}

	var buf bytes.Buffer
	if err := pm.tmpl.Execute(&buf, params); err != nil {
		return nil, errors.Wrapf(err, "failed to render path manager command of host %s", host.Host)
	}
	return []*Command{{Cmd: strings.TrimSpace(buf.String()), Blocking: false}}, nil
}
