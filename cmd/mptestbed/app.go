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

package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/pkg/errors"
	lg "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/contiv/mptestbed/plugins/config"
	"github.com/contiv/mptestbed/plugins/store"
	"github.com/contiv/mptestbed/plugins/topology"
)

// options are the global command line flags.
type options struct {
	configFile    string
	logLevel      string
	topologiesDir string
	engine        string
}

// app is the state shared by all commands.
type app struct {
	config  *config.Config
	log     logging.Logger
	logFile *lumberjack.Logger
	loader  *topology.Loader
}

func newApp(opts *options) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.topologiesDir != "" {
		cfg.TopologiesDir = opts.topologiesDir
	}
	if opts.engine != "" {
		cfg.Engine.Type = opts.engine
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{config: cfg}
	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	a.loader = topology.NewLoader(cfg.TopologiesDir, a.log)
	return a, nil
}

// setupLogging logs to stderr and, if configured, to a rotated file in the
// topologies directory.
func (a *app) setupLogging() error {
	level, err := a.config.LogLevel()
	if err != nil {
		return err
	}
	logger := logrus.NewLogger("mptestbed")
	logger.SetLevel(logLevel(level))

	var output io.Writer = os.Stderr
	if a.config.Log.File != "" {
		path := a.config.Log.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.config.TopologiesDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.Wrap(err, "failed to create log directory")
		}
		a.logFile = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    a.config.Log.MaxSizeMB,
			MaxBackups: a.config.Log.MaxBackups,
			MaxAge:     a.config.Log.MaxAgeDays,
		}
		output = io.MultiWriter(os.Stderr, a.logFile)
	}
	logger.SetOutput(output)
	a.log = logger
	return nil
}

// logLevel converts the parsed level to the cn-infra one.
func logLevel(level lg.Level) logging.LogLevel {
	switch level {
	case lg.PanicLevel:
		return logging.PanicLevel
	case lg.FatalLevel:
		return logging.FatalLevel
	case lg.ErrorLevel:
		return logging.ErrorLevel
	case lg.WarnLevel:
		return logging.WarnLevel
	case lg.DebugLevel:
		return logging.DebugLevel
	}
	return logging.InfoLevel
}

func (a *app) openStore() (*store.PlanStore, error) {
	if a.config.Store.Disabled {
		return nil, errors.New("plan store is disabled in configuration")
	}
	return store.Open(a.config.Store.Path, a.log)
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}
