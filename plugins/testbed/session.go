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

package testbed

import (
	"context"
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/emulator"
)

// Session is a built topology running in an engine.
type Session struct {
	Log logging.Logger

	ID   string
	Plan *Plan

	mutex   sync.Mutex
	engine  emulator.Engine
	metrics *Metrics
	nodes   map[string]*emulator.NodeHandle
	closed  bool
}

// Node returns the engine handle of the node, nil if there is none.
func (s *Session) Node(name string) *emulator.NodeHandle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.nodes[name]
}

// Command runs a command on the node.
func (s *Session) Command(ctx context.Context, node, cmd string, blocking bool) (string, error) {
	s.mutex.Lock()
	handle, closed := s.nodes[node], s.closed
	s.mutex.Unlock()

	if closed {
		return "", errors.Errorf("session %s is shut down", s.ID)
	}
	if handle == nil {
		return "", errors.Errorf("unknown node %s", node)
	}
	s.metrics.command(blocking)
	return s.engine.NodeCommand(ctx, handle, cmd, blocking)
}

// Shutdown removes the session from the engine. Further calls do nothing.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.metrics.sessionDown()
	s.Log.Infof("Shutting down session %s", s.ID)
	return s.engine.Shutdown(ctx)
}
