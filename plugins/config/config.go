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

// Package config loads the configuration file of the testbed tool.
//
// The file is YAML, every section is optional and missing fields keep
// their defaults:
//
//	log:
//	  level: debug
//	  file: testbed.log
//	topologies_dir: topologies
//	engine:
//	  type: netns
//	ipam:
//	  ipv4_base: 10.0.0.0/16
//	  ipv6_prefix: "2001:db8"
//	mptcp:
//	  path_manager: kernel
//	  enable_ipv6: true
//	store:
//	  path: /var/lib/mptestbed/plans.db
//	rest:
//	  listen: 127.0.0.1:9191
package config

import (
	"io/ioutil"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/contiv/mptestbed/plugins/emulator"
	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/routing"
	"github.com/contiv/mptestbed/plugins/store"
)

const (
	// EnvConfigFile names the environment variable holding the config file path.
	EnvConfigFile = "MPTESTBED_CONFIG"
	// DefaultConfigFile is loaded from the working directory if it exists.
	DefaultConfigFile = "mptestbed.yaml"

	// DefaultLogFile is created in the topologies directory.
	DefaultLogFile = "testbed.log"
)

// Config is the configuration of the testbed tool.
type Config struct {
	Log           LogConfig       `json:"log"`
	TopologiesDir string          `json:"topologies_dir"`
	Engine        emulator.Config `json:"engine"`
	IPAM          ipam.Config     `json:"ipam"`
	MPTCP         routing.Config  `json:"mptcp"`
	Store         StoreConfig     `json:"store"`
	REST          RESTConfig      `json:"rest"`
}

// LogConfig configures logging to the console and to a rotated file.
type LogConfig struct {
	Level string `json:"level"`
	// File is relative to the topologies directory, empty disables file logging.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// StoreConfig configures the plan store.
type StoreConfig struct {
	Path     string `json:"path"`
	Disabled bool   `json:"disabled"`
}

// RESTConfig configures the REST server, it is disabled if Listen is empty.
type RESTConfig struct {
	Listen string `json:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			File:       DefaultLogFile,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		TopologiesDir: ".",
		Engine:        emulator.DefaultConfig(),
		IPAM:          *ipam.DefaultConfig(),
		MPTCP:         *routing.DefaultConfig(),
		Store:         StoreConfig{Path: store.DefaultPath},
	}
}

// Load reads the configuration from path. Without a path the file named by
// MPTESTBED_CONFIG is read, then mptestbed.yaml if it exists; with neither
// the defaults are returned.
func Load(path string) (*Config, error) {
	config := Default()
	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path == "" {
		path, explicit = DefaultConfigFile, false
	}

	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return config, config.Validate()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return config, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.New("log rotation limits cannot be negative")
	}
	if c.TopologiesDir == "" {
		return errors.New("topologies_dir cannot be empty")
	}
	if err := c.Engine.Validate(); err != nil {
		return errors.Wrap(err, "engine")
	}
	if err := c.IPAM.Validate(); err != nil {
		return errors.Wrap(err, "ipam")
	}
	if err := c.MPTCP.Validate(); err != nil {
		return errors.Wrap(err, "mptcp")
	}
	if !c.Store.Disabled && c.Store.Path == "" {
		return errors.New("store path cannot be empty")
	}
	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return 0, errors.Wrap(err, "log level")
	}
	if level > logrus.DebugLevel {
		return 0, errors.Errorf("log level %s is not supported", c.Log.Level)
	}
	return level, nil
}
