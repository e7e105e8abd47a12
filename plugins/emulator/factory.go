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
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
)

// Config selects and configures the emulation engine.
type Config struct {
	// Type is one of dryrun, netns or docker.
	Type string `json:"type"`
	// NamePrefix is prepended to namespace and container names.
	NamePrefix string `json:"name_prefix,omitempty"`
	// WorkDir holds per-node working directories of the netns engine.
	WorkDir string `json:"work_dir,omitempty"`
	// Workers bounds the number of background commands of the netns engine.
	Workers int `json:"workers,omitempty"`
	// Image is the container image of the docker engine.
	Image string `json:"image,omitempty"`
}

// DefaultConfig returns configuration of the dry-run engine.
func DefaultConfig() Config {
	return Config{
		Type:       DryRunEngine,
		NamePrefix: DefaultNamePrefix,
		Workers:    DefaultCommandWorkers,
		Image:      DefaultImage,
	}
}

// Validate checks the engine type.
func (c *Config) Validate() error {
	switch c.Type {
	case DryRunEngine, NetnsEngine, DockerEngine:
	default:
		return errors.Errorf("unknown engine type '%s'", c.Type)
	}
	if c.Workers < 0 {
		return errors.New("number of workers cannot be negative")
	}
	return nil
}

// New creates the configured engine for the session.
func New(config Config, session string, log logging.Logger) (Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log.Debugf("Creating %s engine for session %s", config.Type, session)
	switch config.Type {
	case NetnsEngine:
		return NewNetns(NetnsConfig{
			NamePrefix: config.NamePrefix,
			WorkDir:    config.WorkDir,
			Workers:    config.Workers,
		}, log)
	case DockerEngine:
		return NewDocker(DockerConfig{
			Image:      config.Image,
			NamePrefix: config.NamePrefix,
			Session:    session,
		}, log)
	}
	return NewDryRun(log), nil
}
