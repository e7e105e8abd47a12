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
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

const (
	// directory where named network namespaces are mounted
	netnsRunDir = "/var/run/netns"

	// DefaultNamePrefix is prepended to names of namespaces and containers.
	DefaultNamePrefix = "mpt-"
)

// commands enabling forwarding on router nodes
var forwardingCommands = []string{
	"sysctl -qw net.ipv4.ip_forward=1",
	"sysctl -qw net.ipv6.conf.all.forwarding=1",
}

// NetnsConfig configures the network namespace engine.
type NetnsConfig struct {
	// NamePrefix is prepended to namespace names.
	NamePrefix string
	// WorkDir holds one working directory per node. Empty means a fresh
	// temporary directory removed on shutdown.
	WorkDir string
	// Workers bounds the number of background commands.
	Workers int
}

// Netns runs routers and hosts in named Linux network namespaces.
type Netns struct {
	Log logging.Logger

	config  NetnsConfig
	calls   linuxCalls
	plumber *plumber
	runner  commandRunner

	mutex      sync.Mutex
	lastNodeID int
	nodes      map[string]*netnsNode
	order      []*netnsNode
	ownWorkDir bool
}

type netnsNode struct {
	handle *NodeHandle
	node   *topology.Node
	nsName string
	bridge string
	dir    string
}

func (n *netnsNode) nsPath() string {
	return filepath.Join(netnsRunDir, n.nsName)
}

// NewNetns creates the engine.
func NewNetns(config NetnsConfig, log logging.Logger) (*Netns, error) {
	runner, err := newProcessRunner(config.Workers, log)
	if err != nil {
		return nil, err
	}
	return newNetns(config, log, &hostCalls{}, runner)
}

func newNetns(config NetnsConfig, log logging.Logger, calls linuxCalls, runner commandRunner) (*Netns, error) {
	if config.NamePrefix == "" {
		config.NamePrefix = DefaultNamePrefix
	}
	engine := &Netns{
		Log:     log,
		config:  config,
		calls:   calls,
		plumber: newPlumber(calls, log),
		runner:  runner,
		nodes:   make(map[string]*netnsNode),
	}
	if config.WorkDir == "" {
		dir, err := ioutil.TempDir("", "mptestbed-")
		if err != nil {
			return nil, errors.Wrap(err, "failed to create working directory")
		}
		engine.config.WorkDir = dir
		engine.ownWorkDir = true
	}
	return engine, nil
}

// AddNode creates a namespace for routers and hosts and a bridge for
// switches and WLANs.
func (e *Netns) AddNode(ctx context.Context, node *topology.Node) (*NodeHandle, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if _, exists := e.nodes[node.Name]; exists {
		return nil, errors.Errorf("node %s already exists", node.Name)
	}
	e.lastNodeID++
	state := &netnsNode{
		handle: &NodeHandle{ID: e.lastNodeID, Name: node.Name, Model: node.Model},
		node:   node,
	}

	// registered before setup so that shutdown removes partial state
	e.nodes[node.Name] = state
	e.order = append(e.order, state)

	if node.Model.IsBroadcastDomain() {
		state.bridge = bridgeName(state.handle)
		if err := e.plumber.addBridge(state.bridge); err != nil {
			return nil, err
		}
		if node.Model == topology.WLAN && node.Range != nil {
			e.Log.Debugf("WLAN %s: range %g is not emulated, all stations are in range", node.Name, *node.Range)
		}
	} else {
		state.nsName = e.config.NamePrefix + node.Name
		if err := e.calls.NewNamedNS(state.nsName); err != nil {
			state.nsName = ""
			return nil, errors.Wrapf(err, "failed to create namespace %s", e.config.NamePrefix+node.Name)
		}
		if err := e.plumber.setLoopbackUp(state.nsPath()); err != nil {
			return nil, errors.Wrapf(err, "failed to set loopback of %s up", node.Name)
		}
		state.dir = filepath.Join(e.config.WorkDir, node.Name)
		if err := os.MkdirAll(state.dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create working directory of %s", node.Name)
		}
		if node.Model == topology.Router {
			for _, cmd := range forwardingCommands {
				if _, err := e.runner.Run(ctx, state.dir, e.argv(state, cmd)); err != nil {
					return nil, err
				}
			}
		}
	}

	e.Log.Infof("Created %s %s", node.Model, node.Name)
	return state.handle, nil
}

// AddLink connects the nodes with a veth pair. Interfaces are created as requested.
func (e *Netns) AddLink(ctx context.Context, n1, n2 *NodeHandle, if1, if2 *ipam.Interface,
	params *topology.LinkParams) (*ipam.Interface, *ipam.Interface, error) {

	e.mutex.Lock()
	defer e.mutex.Unlock()

	s1, s2 := e.nodes[n1.Name], e.nodes[n2.Name]
	if s1 == nil || s2 == nil {
		return nil, nil, errors.Errorf("unknown node in link %s-%s", n1.Name, n2.Name)
	}
	if err := e.plumber.connect(portOf(s1.node, s1.nsPath(), s1.bridge, if1, params),
		portOf(s2.node, s2.nsPath(), s2.bridge, if2, params)); err != nil {
		return nil, nil, err
	}
	return if1, if2, nil
}

// NodeCommand runs the command with "ip netns exec" in the node's working directory.
func (e *Netns) NodeCommand(ctx context.Context, node *NodeHandle, cmd string, blocking bool) (string, error) {
	state, err := e.commandNode(node)
	if err != nil {
		return "", err
	}
	e.Log.Debugf("%s: %s", node.Name, cmd)
	if !blocking {
		return "", e.runner.Start(state.dir, e.argv(state, cmd))
	}
	return e.runner.Run(ctx, state.dir, e.argv(state, cmd))
}

// CopyFile copies the file into the node's working directory.
func (e *Netns) CopyFile(ctx context.Context, node *NodeHandle, src, dst string) error {
	state, err := e.commandNode(node)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(dst) {
		dst = filepath.Join(state.dir, dst)
	}
	return copyFile(src, dst)
}

// Instantiate has nothing left to do, nodes and links are live once created.
func (e *Netns) Instantiate(ctx context.Context) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.Log.Infof("Session running: %d nodes in %s", len(e.nodes), e.config.WorkDir)
	return nil
}

// Shutdown stops background commands and removes namespaces, bridges and
// working directories.
func (e *Netns) Shutdown(ctx context.Context) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	var failed []error
	if err := e.runner.Close(); err != nil {
		failed = append(failed, err)
	}
	for i := len(e.order) - 1; i >= 0; i-- {
		state := e.order[i]
		if state.nsName == "" {
			continue
		}
		if err := e.calls.DeleteNamedNS(state.nsName); err != nil {
			failed = append(failed, errors.Wrapf(err, "failed to delete namespace %s", state.nsName))
		}
	}
	if err := e.plumber.cleanup(); err != nil {
		failed = append(failed, err)
	}
	if e.ownWorkDir {
		if err := os.RemoveAll(e.config.WorkDir); err != nil {
			failed = append(failed, err)
		}
	}
	e.nodes = make(map[string]*netnsNode)
	e.order = nil

	if len(failed) > 0 {
		return errors.Errorf("shutdown incomplete: %v", failed)
	}
	e.Log.Info("Session removed")
	return nil
}

func (e *Netns) commandNode(node *NodeHandle) (*netnsNode, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	state := e.nodes[node.Name]
	if state == nil {
		return nil, errors.Errorf("unknown node %s", node.Name)
	}
	if state.nsName == "" {
		return nil, errors.Errorf("%s %s cannot run commands", node.Model, node.Name)
	}
	return state, nil
}

func (e *Netns) argv(state *netnsNode, cmd string) []string {
	return []string{"ip", "netns", "exec", state.nsName, "sh", "-c", cmd}
}

// portOf describes the end of a link at the given node.
func portOf(node *topology.Node, nsPath, bridge string, iface *ipam.Interface, params *topology.LinkParams) *portEnd {
	end := &portEnd{node: node.Name, iface: iface, params: params}
	if bridge != "" {
		end.bridge = bridge
		if node.Model == topology.WLAN {
			end.params = wlanParams(params, node)
		}
		return end
	}
	end.nsPath = nsPath
	return end
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to copy %s to %s", src, dst)
	}
	return out.Close()
}
