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
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// DefaultCommandWorkers bounds the number of background commands per session.
const DefaultCommandWorkers = 64

// commandRunner executes processes on behalf of an engine.
type commandRunner interface {
	// Run executes the command and waits for it.
	Run(ctx context.Context, dir string, argv []string) (string, error)
	// Start executes the command in background. It is killed on Close.
	Start(dir string, argv []string) error
	// Close stops background commands and waits for them.
	Close() error
}

// processRunner runs commands as local processes, background ones on an
// ants pool.
type processRunner struct {
	Log logging.Logger

	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newProcessRunner(workers int, log logging.Logger) (*processRunner, error) {
	if workers <= 0 {
		workers = DefaultCommandWorkers
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create command pool")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &processRunner{Log: log, pool: pool, ctx: ctx, cancel: cancel}, nil
}

func (r *processRunner) Run(ctx context.Context, dir string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return output.String(), errors.Wrapf(err, "%s: %s", strings.Join(argv, " "), strings.TrimSpace(output.String()))
	}
	return output.String(), nil
}

func (r *processRunner) Start(dir string, argv []string) error {
	cmd := exec.CommandContext(r.ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", strings.Join(argv, " "))
	}
	r.wg.Add(1)
	err := r.pool.Submit(func() {
		defer r.wg.Done()
		if err := cmd.Wait(); err != nil && r.ctx.Err() == nil {
			r.Log.Warnf("Background command %s exited: %v", strings.Join(argv, " "), err)
		}
	})
	if err != nil {
		r.wg.Done()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return errors.Wrap(err, "too many background commands")
	}
	return nil
}

func (r *processRunner) Close() error {
	r.cancel()
	r.wg.Wait()
	r.pool.Release()
	return nil
}
