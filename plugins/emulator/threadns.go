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
	"runtime"

	"github.com/pkg/errors"
	"github.com/vishvananda/netns"
)

// withThreadNS runs f on a locked OS thread and restores the thread's
// network namespace afterwards.
func withThreadNS(f func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origin, err := netns.Get()
	if err != nil {
		return errors.Wrap(err, "failed to get current network namespace")
	}
	defer origin.Close()

	ferr := f()
	if err := netns.Set(origin); err != nil {
		return errors.Wrap(err, "failed to restore network namespace")
	}
	return ferr
}
