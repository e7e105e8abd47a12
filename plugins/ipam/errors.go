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

package ipam

import (
	"github.com/go-errors/errors"
)

var (
	// ErrGatewayRangeExhausted is returned when a subnet has no gateway address left.
	ErrGatewayRangeExhausted = errors.New("gateway address range exhausted")

	// ErrHostRangeExhausted is returned when a subnet has no host address left.
	ErrHostRangeExhausted = errors.New("host address range exhausted")

	// ErrSubnetSpaceExhausted is returned when the IPv4 base network cannot hold another subnet.
	ErrSubnetSpaceExhausted = errors.New("subnet space exhausted")
)
