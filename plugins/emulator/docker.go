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
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"sync"

	"github.com/fsouza/go-dockerclient"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/topology"
)

const (
	// labels attached to containers of a session
	labelNode    = "mptestbed.node"
	labelSession = "mptestbed.session"

	// DefaultImage is the container image used for routers and hosts.
	DefaultImage = "mptestbed/node:latest"
	// DefaultContainerWorkDir is the working directory inside containers.
	DefaultContainerWorkDir = "/root"

	procNetNSFormat = "/proc/%d/ns/net"
)

// DockerClient defines API of a Docker client needed by the docker engine.
// It is satisfied by *docker.Client.
type DockerClient interface {
	// Ping pings the docker server.
	Ping() error
	// ListContainers returns a slice of containers matching the given criteria.
	ListContainers(opts docker.ListContainersOptions) ([]docker.APIContainers, error)
	// InspectContainerWithOptions returns information about a container.
	InspectContainerWithOptions(opts docker.InspectContainerOptions) (*docker.Container, error)
	CreateContainer(opts docker.CreateContainerOptions) (*docker.Container, error)
	StartContainer(id string, hostConfig *docker.HostConfig) error
	RemoveContainer(opts docker.RemoveContainerOptions) error
	CreateExec(opts docker.CreateExecOptions) (*docker.Exec, error)
	StartExec(id string, opts docker.StartExecOptions) error
	InspectExec(id string) (*docker.ExecInspect, error)
	UploadToContainer(id string, opts docker.UploadToContainerOptions) error
}

// DockerConfig configures the docker engine.
type DockerConfig struct {
	Image      string
	NamePrefix string
	// Session labels the containers, containers left over from the same
	// session name are removed before the first node is created.
	Session string
}

// Docker runs routers and hosts as privileged containers without networking
// and plumbs links into their network namespaces.
type Docker struct {
	Log logging.Logger

	config  DockerConfig
	client  DockerClient
	plumber *plumber

	mutex      sync.Mutex
	lastNodeID int
	nodes      map[string]*dockerNode
	order      []*dockerNode
	purged     bool
}

type dockerNode struct {
	handle      *NodeHandle
	node        *topology.Node
	containerID string
	nsPath      string
	bridge      string
}

// NewDocker connects to the docker daemon configured by the environment.
func NewDocker(config DockerConfig, log logging.Logger) (*Docker, error) {
	client, err := docker.NewClientFromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}
	return NewDockerWithClient(config, client, log, &hostCalls{})
}

// NewDockerWithClient creates the engine over the given client.
func NewDockerWithClient(config DockerConfig, client DockerClient, log logging.Logger, calls linuxCalls) (*Docker, error) {
	if err := client.Ping(); err != nil {
		return nil, errors.Wrap(err, "docker daemon unreachable")
	}
	if config.Image == "" {
		config.Image = DefaultImage
	}
	if config.NamePrefix == "" {
		config.NamePrefix = DefaultNamePrefix
	}
	return &Docker{
		Log:     log,
		config:  config,
		client:  client,
		plumber: newPlumber(calls, log),
		nodes:   make(map[string]*dockerNode),
	}, nil
}

// AddNode starts a container for routers and hosts and creates a bridge
// for switches and WLANs.
func (d *Docker) AddNode(ctx context.Context, node *topology.Node) (*NodeHandle, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.nodes[node.Name]; exists {
		return nil, errors.Errorf("node %s already exists", node.Name)
	}
	if !d.purged {
		d.purge(ctx)
		d.purged = true
	}
	d.lastNodeID++
	state := &dockerNode{
		handle: &NodeHandle{ID: d.lastNodeID, Name: node.Name, Model: node.Model},
		node:   node,
	}
	d.nodes[node.Name] = state
	d.order = append(d.order, state)

	if node.Model.IsBroadcastDomain() {
		state.bridge = bridgeName(state.handle)
		if err := d.plumber.addBridge(state.bridge); err != nil {
			return nil, err
		}
		return state.handle, nil
	}

	sysctls := map[string]string{"net.mptcp.enabled": "1"}
	if node.Model == topology.Router {
		sysctls["net.ipv4.ip_forward"] = "1"
		sysctls["net.ipv6.conf.all.forwarding"] = "1"
	}
	container, err := d.client.CreateContainer(docker.CreateContainerOptions{
		Name: d.config.NamePrefix + node.Name,
		Config: &docker.Config{
			Image:      d.config.Image,
			Hostname:   node.Name,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: DefaultContainerWorkDir,
			Labels: map[string]string{
				labelNode:    node.Name,
				labelSession: d.config.Session,
			},
		},
		HostConfig: &docker.HostConfig{
			NetworkMode: "none",
			Privileged:  true,
			Sysctls:     sysctls,
		},
		Context: ctx,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create container for %s", node.Name)
	}
	state.containerID = container.ID

	if err := d.client.StartContainer(container.ID, nil); err != nil {
		return nil, errors.Wrapf(err, "failed to start container of %s", node.Name)
	}
	inspected, err := d.client.InspectContainerWithOptions(docker.InspectContainerOptions{ID: container.ID, Context: ctx})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect container of %s", node.Name)
	}
	if inspected.State.Pid == 0 {
		return nil, errors.Errorf("container of %s is not running", node.Name)
	}
	state.nsPath = fmt.Sprintf(procNetNSFormat, inspected.State.Pid)
	if err := d.plumber.setLoopbackUp(state.nsPath); err != nil {
		return nil, errors.Wrapf(err, "failed to set loopback of %s up", node.Name)
	}

	d.Log.WithFields(map[string]interface{}{"container": container.ID, "pid": inspected.State.Pid}).
		Infof("Created %s %s", node.Model, node.Name)
	return state.handle, nil
}

// AddLink connects the nodes with a veth pair.
func (d *Docker) AddLink(ctx context.Context, n1, n2 *NodeHandle, if1, if2 *ipam.Interface,
	params *topology.LinkParams) (*ipam.Interface, *ipam.Interface, error) {

	d.mutex.Lock()
	defer d.mutex.Unlock()

	s1, s2 := d.nodes[n1.Name], d.nodes[n2.Name]
	if s1 == nil || s2 == nil {
		return nil, nil, errors.Errorf("unknown node in link %s-%s", n1.Name, n2.Name)
	}
	if err := d.plumber.connect(portOf(s1.node, s1.nsPath, s1.bridge, if1, params),
		portOf(s2.node, s2.nsPath, s2.bridge, if2, params)); err != nil {
		return nil, nil, err
	}
	return if1, if2, nil
}

// NodeCommand executes the command with "sh -c" inside the container.
func (d *Docker) NodeCommand(ctx context.Context, node *NodeHandle, cmd string, blocking bool) (string, error) {
	state, err := d.commandNode(node)
	if err != nil {
		return "", err
	}
	exec, err := d.client.CreateExec(docker.CreateExecOptions{
		Container:    state.containerID,
		Cmd:          []string{"sh", "-c", cmd},
		WorkingDir:   DefaultContainerWorkDir,
		AttachStdout: blocking,
		AttachStderr: blocking,
		Privileged:   true,
		Context:      ctx,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create exec on %s", node.Name)
	}
	d.Log.Debugf("%s: %s", node.Name, cmd)

	if !blocking {
		return "", d.client.StartExec(exec.ID, docker.StartExecOptions{Detach: true, Context: ctx})
	}
	var output bytes.Buffer
	if err := d.client.StartExec(exec.ID, docker.StartExecOptions{
		OutputStream: &output,
		ErrorStream:  &output,
		Context:      ctx,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to run '%s' on %s", cmd, node.Name)
	}
	inspect, err := d.client.InspectExec(exec.ID)
	if err != nil {
		return "", err
	}
	if inspect.ExitCode != 0 {
		return output.String(), errors.Errorf("'%s' on %s exited with %d: %s",
			cmd, node.Name, inspect.ExitCode, output.String())
	}
	return output.String(), nil
}

// CopyFile uploads the file as a single entry tar archive.
func (d *Docker) CopyFile(ctx context.Context, node *NodeHandle, src, dst string) error {
	state, err := d.commandNode(node)
	if err != nil {
		return err
	}
	if !path.IsAbs(dst) {
		dst = path.Join(DefaultContainerWorkDir, dst)
	}
	archive, err := tarFile(src, path.Base(dst))
	if err != nil {
		return err
	}
	err = d.client.UploadToContainer(state.containerID, docker.UploadToContainerOptions{
		InputStream: archive,
		Path:        path.Dir(dst),
		Context:     ctx,
	})
	return errors.Wrapf(err, "failed to copy %s to %s:%s", src, node.Name, dst)
}

// Instantiate only logs, containers are running since AddNode.
func (d *Docker) Instantiate(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Log.Infof("Session %s running: %d nodes", d.config.Session, len(d.nodes))
	return nil
}

// Shutdown removes containers and bridges.
func (d *Docker) Shutdown(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var failed []error
	for i := len(d.order) - 1; i >= 0; i-- {
		state := d.order[i]
		if state.containerID == "" {
			continue
		}
		err := d.client.RemoveContainer(docker.RemoveContainerOptions{
			ID:            state.containerID,
			Force:         true,
			RemoveVolumes: true,
			Context:       ctx,
		})
		if err != nil {
			failed = append(failed, errors.Wrapf(err, "failed to remove container of %s", state.node.Name))
		}
	}
	if err := d.plumber.cleanup(); err != nil {
		failed = append(failed, err)
	}
	d.nodes = make(map[string]*dockerNode)
	d.order = nil

	if len(failed) > 0 {
		return errors.Errorf("shutdown incomplete: %v", failed)
	}
	d.Log.Info("Session removed")
	return nil
}

// purge removes containers left over from a previous run of the same session.
func (d *Docker) purge(ctx context.Context) {
	if d.config.Session == "" {
		return
	}
	containers, err := d.client.ListContainers(docker.ListContainersOptions{
		All:     true,
		Filters: map[string][]string{"label": {labelSession + "=" + d.config.Session}},
		Context: ctx,
	})
	if err != nil {
		d.Log.Warnf("Failed to list stale containers: %v", err)
		return
	}
	for _, container := range containers {
		d.Log.Warnf("Removing stale container %s of node %s", container.ID, container.Labels[labelNode])
		err := d.client.RemoveContainer(docker.RemoveContainerOptions{ID: container.ID, Force: true, Context: ctx})
		if err != nil {
			d.Log.Warnf("Failed to remove container %s: %v", container.ID, err)
		}
	}
}

func (d *Docker) commandNode(node *NodeHandle) (*dockerNode, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	state := d.nodes[node.Name]
	if state == nil {
		return nil, errors.Errorf("unknown node %s", node.Name)
	}
	if state.containerID == "" {
		return nil, errors.Errorf("%s %s cannot run commands", node.Model, node.Name)
	}
	return state, nil
}

func tarFile(src, name string) (*bytes.Buffer, error) {
	content, err := ioutil.ReadFile(src)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", src)
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writer := tar.NewWriter(&buf)
	header := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		Size:    int64(len(content)),
		ModTime: info.ModTime(),
	}
	if err := writer.WriteHeader(header); err != nil {
		return nil, err
	}
	if _, err := writer.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
