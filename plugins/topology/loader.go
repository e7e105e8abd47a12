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
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ghodss/yaml"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
)

// Format is a topology file format.
type Format int

const (
	// FormatTOML is the table-keyed format, nodes and links keyed by name.
	FormatTOML Format = iota
	// FormatYAML is the list format. JSON files are read as YAML.
	FormatYAML
)

// extensions tried, in order, when a topology is referenced without one
var knownExtensions = []string{".toml", ".yaml", ".yml", ".json"}

// FormatFromPath selects the format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	}
	return FormatTOML, NewConfigurationError("unsupported topology file '%s'", filepath.Base(path))
}

// Loader reads topology descriptions from a directory.
type Loader struct {
	Log logging.Logger
	// Dir is searched for topologies referenced by bare name.
	Dir string
}

// NewLoader returns a loader for the given topology directory.
func NewLoader(dir string, log logging.Logger) *Loader {
	return &Loader{Dir: dir, Log: log}
}

// Resolve finds the file for a topology reference. The reference is either
// a path to an existing file or a name looked up in the topology directory,
// with or without extension.
func (l *Loader) Resolve(ref string) (string, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return ref, nil
	}
	candidates := []string{filepath.Join(l.Dir, ref)}
	if filepath.Ext(ref) == "" {
		for _, ext := range knownExtensions {
			candidates = append(candidates, filepath.Join(l.Dir, ref+ext))
		}
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", &ResourceNotFoundError{Name: ref, Path: l.Dir}
}

// Load resolves, parses and validates a topology.
func (l *Loader) Load(ref string) (*Topology, error) {
	path, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read topology %s", path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	topo, undecoded, err := parse(data, format, name)
	if err != nil {
		return nil, err
	}
	for _, key := range undecoded {
		l.Log.Warnf("Topology %s: unknown key '%s' ignored", name, key)
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	l.Log.Infof("Loaded topology %s from %s: %d nodes, %d links", name, path, len(topo.Nodes), len(topo.Links))
	return topo, nil
}

// Parse decodes and validates a topology description.
func Parse(data []byte, format Format, name string) (*Topology, error) {
	topo, _, err := parse(data, format, name)
	if err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return topo, nil
}

func parse(data []byte, format Format, name string) (topo *Topology, undecoded []string, err error) {
	switch format {
	case FormatTOML:
		return parseTOML(data, name)
	case FormatYAML:
		topo, err = parseYAML(data, name)
		return topo, nil, err
	}
	return nil, nil, errors.Errorf("unsupported topology format %d", format)
}

type tomlDescription struct {
	Nodes map[string]*Node `toml:"nodes"`
	Links map[string]*Link `toml:"links"`
}

func parseTOML(data []byte, name string) (*Topology, []string, error) {
	desc := &tomlDescription{}
	md, err := toml.Decode(string(data), desc)
	if err != nil {
		return nil, nil, &ConfigurationError{Reason: err.Error()}
	}

	// tables are maps once decoded, the metadata keeps the file order
	topo := &Topology{Name: name}
	seen := make(map[string]struct{})
	add := func(table, name string) {
		id := table + "." + name
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		switch table {
		case "nodes":
			node := desc.Nodes[name]
			if node == nil {
				node = &Node{}
			}
			node.Name = name
			topo.Nodes = append(topo.Nodes, node)
		case "links":
			link := desc.Links[name]
			if link == nil {
				link = &Link{}
			}
			link.Name = name
			topo.Links = append(topo.Links, link)
		}
	}
	// dotted keys (nodes.r1.model = ...) only appear with their full path
	for _, key := range md.Keys() {
		if len(key) >= 2 {
			add(key[0], key[1])
		}
	}
	for _, name := range sortedKeys(desc.Nodes) {
		add("nodes", name)
	}
	for _, name := range sortedKeys(desc.Links) {
		add("links", name)
	}

	var undecoded []string
	for _, key := range md.Undecoded() {
		undecoded = append(undecoded, key.String())
	}
	return topo, undecoded, nil
}

func sortedKeys[V any](table map[string]V) []string {
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type yamlDescription struct {
	Nodes []*Node `json:"nodes"`
	Links []*Link `json:"links"`
}

func parseYAML(data []byte, name string) (*Topology, error) {
	desc := &yamlDescription{}
	if err := yaml.Unmarshal(data, desc); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	topo := &Topology{Name: name}
	for _, node := range desc.Nodes {
		if node == nil {
			return nil, NewConfigurationError("empty node entry")
		}
		topo.Nodes = append(topo.Nodes, node)
	}
	for _, link := range desc.Links {
		if link == nil {
			return nil, NewConfigurationError("empty link entry")
		}
		topo.Links = append(topo.Links, link)
	}
	return topo, nil
}
