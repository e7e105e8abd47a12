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

package dockerclient

import (
	"archive/tar"
	"errors"
	"io"
	"io/ioutil"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/fsouza/go-dockerclient"
)

// MockDockerClient is a mock for Docker client.
type MockDockerClient struct {
	sync.Mutex

	connected  bool
	lastID     int
	lastPid    int
	containers map[string]*Container
	execs      map[string]*Exec

	// ExitCodes maps command substrings to the exit code of execs running them.
	ExitCodes map[string]int
	// Output is written to the output stream of every attached exec.
	Output string
}

// Container is a container created through the mock.
type Container struct {
	ID         string
	Name       string
	Config     *docker.Config
	HostConfig *docker.HostConfig
	Pid        int
	Running    bool
	// Files uploaded into the container by absolute path.
	Files map[string][]byte
}

// Exec is an exec created through the mock.
type Exec struct {
	ID        string
	Container string
	Cmd       []string
	Detached  bool
	ExitCode  int
	Started   bool
}

// NewMockDockerClient is a constructor for MockDockerClient.
func NewMockDockerClient() *MockDockerClient {
	return &MockDockerClient{
		connected:  true,
		lastPid:    1000,
		containers: make(map[string]*Container),
		execs:      make(map[string]*Exec),
		ExitCodes:  make(map[string]int),
	}
}

// Connect puts the mock Docker client into the connected state.
func (m *MockDockerClient) Connect() {
	m.Lock()
	defer m.Unlock()
	m.connected = true
}

// Disconnect puts the mock Docker client into the disconnected state.
func (m *MockDockerClient) Disconnect() {
	m.Lock()
	defer m.Unlock()
	m.connected = false
}

// AddContainer simulates a container created outside of the mock.
func (m *MockDockerClient) AddContainer(name string, labels map[string]string) string {
	m.Lock()
	defer m.Unlock()
	return m.addContainer(name, &docker.Config{Labels: labels}, nil).ID
}

// Containers returns containers that were not removed.
func (m *MockDockerClient) Containers() []*Container {
	m.Lock()
	defer m.Unlock()

	var containers []*Container
	for i := 1; i <= m.lastID; i++ {
		if container, ok := m.containers[containerID(i)]; ok {
			containers = append(containers, container)
		}
	}
	return containers
}

// ContainerByName returns the container with the given name or nil.
func (m *MockDockerClient) ContainerByName(name string) *Container {
	m.Lock()
	defer m.Unlock()
	for _, container := range m.containers {
		if container.Name == name {
			return container
		}
	}
	return nil
}

// Execs returns commands executed in the container, in order.
func (m *MockDockerClient) Execs(containerID string) []*Exec {
	m.Lock()
	defer m.Unlock()

	var execs []*Exec
	for i := 1; i <= len(m.execs); i++ {
		if exec := m.execs["exec"+strconv.Itoa(i)]; exec.Container == containerID {
			execs = append(execs, exec)
		}
	}
	return execs
}

// Ping pings the docker server.
func (m *MockDockerClient) Ping() error {
	if !m.connected {
		return errors.New("docker client is not connected")
	}
	return nil
}

// ListContainers returns containers matching the label filters.
func (m *MockDockerClient) ListContainers(opts docker.ListContainersOptions) ([]docker.APIContainers, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.Ping(); err != nil {
		return nil, err
	}

	var containers []docker.APIContainers
	for i := 1; i <= m.lastID; i++ {
		container, ok := m.containers[containerID(i)]
		if !ok || !matchLabels(container.Config.Labels, opts.Filters["label"]) {
			continue
		}
		containers = append(containers, docker.APIContainers{
			ID:     container.ID,
			Names:  []string{"/" + container.Name},
			Labels: container.Config.Labels,
		})
	}
	return containers, nil
}

// InspectContainerWithOptions returns information about a container by its ID.
func (m *MockDockerClient) InspectContainerWithOptions(opts docker.InspectContainerOptions) (*docker.Container, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.Ping(); err != nil {
		return nil, err
	}
	container, exists := m.containers[opts.ID]
	if !exists {
		return nil, &docker.NoSuchContainer{ID: opts.ID}
	}
	state := docker.State{Running: container.Running}
	if container.Running {
		state.Pid = container.Pid
	}
	return &docker.Container{ID: container.ID, Name: container.Name, State: state}, nil
}

// CreateContainer registers a new stopped container.
func (m *MockDockerClient) CreateContainer(opts docker.CreateContainerOptions) (*docker.Container, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.Ping(); err != nil {
		return nil, err
	}
	for _, container := range m.containers {
		if container.Name == opts.Name {
			return nil, docker.ErrContainerAlreadyExists
		}
	}
	container := m.addContainer(opts.Name, opts.Config, opts.HostConfig)
	return &docker.Container{ID: container.ID, Name: container.Name}, nil
}

// StartContainer assigns the container a PID.
func (m *MockDockerClient) StartContainer(id string, hostConfig *docker.HostConfig) error {
	m.Lock()
	defer m.Unlock()
	container, exists := m.containers[id]
	if !exists {
		return &docker.NoSuchContainer{ID: id}
	}
	m.lastPid++
	container.Pid = m.lastPid
	container.Running = true
	return nil
}

// RemoveContainer forgets the container.
func (m *MockDockerClient) RemoveContainer(opts docker.RemoveContainerOptions) error {
	m.Lock()
	defer m.Unlock()
	if _, exists := m.containers[opts.ID]; !exists {
		return &docker.NoSuchContainer{ID: opts.ID}
	}
	delete(m.containers, opts.ID)
	return nil
}

// CreateExec registers the command.
func (m *MockDockerClient) CreateExec(opts docker.CreateExecOptions) (*docker.Exec, error) {
	m.Lock()
	defer m.Unlock()
	container, exists := m.containers[opts.Container]
	if !exists || !container.Running {
		return nil, &docker.NoSuchContainer{ID: opts.Container}
	}
	exec := &Exec{ID: "exec" + strconv.Itoa(len(m.execs)+1), Container: opts.Container, Cmd: opts.Cmd}
	m.execs[exec.ID] = exec
	return &docker.Exec{ID: exec.ID}, nil
}

// StartExec "runs" the command, its exit code is looked up in ExitCodes.
func (m *MockDockerClient) StartExec(id string, opts docker.StartExecOptions) error {
	m.Lock()
	defer m.Unlock()
	exec, exists := m.execs[id]
	if !exists {
		return &docker.NoSuchExec{ID: id}
	}
	exec.Started = true
	exec.Detached = opts.Detach
	cmd := strings.Join(exec.Cmd, " ")
	for pattern, code := range m.ExitCodes {
		if strings.Contains(cmd, pattern) {
			exec.ExitCode = code
		}
	}
	if opts.OutputStream != nil && m.Output != "" {
		io.WriteString(opts.OutputStream, m.Output)
	}
	return nil
}

// InspectExec returns the exit code of the exec.
func (m *MockDockerClient) InspectExec(id string) (*docker.ExecInspect, error) {
	m.Lock()
	defer m.Unlock()
	exec, exists := m.execs[id]
	if !exists {
		return nil, &docker.NoSuchExec{ID: id}
	}
	return &docker.ExecInspect{ID: id, ExitCode: exec.ExitCode, ContainerID: exec.Container}, nil
}

// UploadToContainer extracts the tar archive into the container's files.
func (m *MockDockerClient) UploadToContainer(id string, opts docker.UploadToContainerOptions) error {
	m.Lock()
	defer m.Unlock()
	container, exists := m.containers[id]
	if !exists {
		return &docker.NoSuchContainer{ID: id}
	}
	reader := tar.NewReader(opts.InputStream)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		content, err := ioutil.ReadAll(reader)
		if err != nil {
			return err
		}
		container.Files[path.Join(opts.Path, header.Name)] = content
	}
}

func (m *MockDockerClient) addContainer(name string, config *docker.Config, hostConfig *docker.HostConfig) *Container {
	m.lastID++
	if config == nil {
		config = &docker.Config{}
	}
	container := &Container{
		ID:         containerID(m.lastID),
		Name:       name,
		Config:     config,
		HostConfig: hostConfig,
		Files:      make(map[string][]byte),
	}
	m.containers[container.ID] = container
	return container
}

func containerID(i int) string {
	return "container" + strconv.Itoa(i)
}

func matchLabels(labels map[string]string, filters []string) bool {
	for _, filter := range filters {
		kv := strings.SplitN(filter, "=", 2)
		value, ok := labels[kv[0]]
		if !ok || (len(kv) == 2 && value != kv[1]) {
			return false
		}
	}
	return true
}
