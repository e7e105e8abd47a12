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

// mptestbed builds MPTCP testbeds from topology descriptions.
//
//	mptestbed validate <topology>        check a topology description
//	mptestbed plan <topology>            print allocations and host commands without building
//	mptestbed build <topology> [--wait]  build the topology in the configured engine
//	mptestbed sessions                   list plans of previous builds
//	mptestbed show <session>             print the plan of a previous build
//	mptestbed delete <session>           remove the plan of a previous build
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/contiv/mptestbed/plugins/store"
	"github.com/contiv/mptestbed/plugins/topology"
)

const (
	exitFailure       = 1
	exitConfiguration = 2
	exitNotFound      = 3
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case topology.IsConfigurationError(err):
		return exitConfiguration
	case topology.IsResourceNotFound(err), errors.Cause(err) == store.ErrNotFound:
		return exitNotFound
	}
	return exitFailure
}
