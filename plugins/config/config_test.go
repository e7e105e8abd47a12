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

package config

import (
	"os"
	"testing"

	"github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/contiv/mptestbed/plugins/emulator"
	"github.com/contiv/mptestbed/plugins/topology"
)

func TestDefaults(t *testing.T) {
	gomega.RegisterTestingT(t)
	os.Unsetenv(EnvConfigFile)

	config, err := Load("")
	gomega.Expect(err).To(gomega.BeNil())
	gomega.Expect(config).To(gomega.Equal(Default()))
	gomega.Expect(config.Engine.Type).To(gomega.Equal(emulator.DryRunEngine))
	gomega.Expect(config.IPAM.IPv6Prefix).To(gomega.Equal("2001"))
	gomega.Expect(config.MPTCP.PathManager).To(gomega.Equal(topology.PathManagerKernel))
	gomega.Expect(config.REST.Listen).To(gomega.BeEmpty())

	level, err := config.LogLevel()
	gomega.Expect(err).To(gomega.BeNil())
	gomega.Expect(level).To(gomega.Equal(logrus.InfoLevel))
}

func TestLoadOverlaysDefaults(t *testing.T) {
	gomega.RegisterTestingT(t)

	config, err := Load("testdata/full.yaml")
	gomega.Expect(err).To(gomega.BeNil())
	gomega.Expect(config.Log.File).To(gomega.BeEmpty())
	gomega.Expect(config.Log.MaxBackups).To(gomega.Equal(3))
	gomega.Expect(config.TopologiesDir).To(gomega.Equal("/srv/topologies"))
	gomega.Expect(config.Engine.Type).To(gomega.Equal(emulator.DockerEngine))
	gomega.Expect(config.Engine.Image).To(gomega.Equal("mptcp/node:6.8"))
	gomega.Expect(config.Engine.NamePrefix).To(gomega.Equal(emulator.DefaultNamePrefix))
	gomega.Expect(config.IPAM.IPv4Base).To(gomega.Equal("10.10.0.0/16"))
	gomega.Expect(config.MPTCP.PathManager).To(gomega.Equal(topology.PathManagerDaemon))
	gomega.Expect(config.MPTCP.EnableIPv6).To(gomega.BeFalse())
	gomega.Expect(config.MPTCP.Subflows).To(gomega.Equal(4))
	gomega.Expect(config.MPTCP.AddAddrAccepted).To(gomega.Equal(8))
	gomega.Expect(config.REST.Listen).To(gomega.Equal("127.0.0.1:9191"))

	level, err := config.LogLevel()
	gomega.Expect(err).To(gomega.BeNil())
	gomega.Expect(level).To(gomega.Equal(logrus.DebugLevel))
}

func TestLoadFromEnvironment(t *testing.T) {
	gomega.RegisterTestingT(t)
	os.Setenv(EnvConfigFile, "testdata/full.yaml")
	defer os.Unsetenv(EnvConfigFile)

	config, err := Load("")
	gomega.Expect(err).To(gomega.BeNil())
	gomega.Expect(config.Engine.Type).To(gomega.Equal(emulator.DockerEngine))
}

func TestInvalidConfigs(t *testing.T) {
	gomega.RegisterTestingT(t)

	for _, file := range []string{
		"testdata/bad_engine.yaml",
		"testdata/bad_mptcp.yaml",
		"testdata/bad_level.yaml",
		"testdata/missing.yaml",
	} {
		_, err := Load(file)
		gomega.Expect(err).NotTo(gomega.BeNil(), file)
	}

	config := Default()
	config.Store.Path = ""
	gomega.Expect(config.Validate()).NotTo(gomega.Succeed())
	config.Store.Disabled = true
	gomega.Expect(config.Validate()).To(gomega.Succeed())

	config.IPAM.IPv6Prefix = "2001::"
	gomega.Expect(config.Validate()).NotTo(gomega.Succeed())
}
