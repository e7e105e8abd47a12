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

// Package testbed builds a topology in an emulation engine: nodes first,
// then links with their subnets and interfaces, then the multipath
// routing policy of every host, node files and scripts.
//
// The result of a build is a Session holding the engine and the Plan, a
// serializable description of every allocation made during the build.
// Plans are exposed over REST while a session is up and saved to the
// plan store.
package testbed
