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
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"
)

const (
	// sequence IDs reserved for router interfaces, the first one is the subnet gateway
	firstGatewaySeqID = 1
	lastGatewaySeqID  = 19

	// sequence IDs available to hosts
	firstHostSeqID = 20
	lastHostSeqID  = 254

	subnetPrefixLenV4 = 24
	subnetPrefixLenV6 = 64

	// DefaultIPv4Base is the network subnets are carved from.
	DefaultIPv4Base = "10.0.0.0/16"
	// DefaultIPv6Prefix is the textual prefix of IPv6 subnets.
	DefaultIPv6Prefix = "2001"
)

// Config is the addressing plan of a testbed.
type Config struct {
	// IPv4Base is split into /24 subnets numbered from 0.
	IPv4Base string `json:"ipv4_base,omitempty"`
	// IPv6Prefix holds up to three leading groups of the IPv6 subnets,
	// subnet N is <IPv6Prefix>:N::/64.
	IPv6Prefix string `json:"ipv6_prefix,omitempty"`
}

// DefaultConfig returns the addressing used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		IPv4Base:   DefaultIPv4Base,
		IPv6Prefix: DefaultIPv6Prefix,
	}
}

// Validate checks the configured networks.
func (c *Config) Validate() error {
	_, _, err := c.parse()
	return err
}

func (c *Config) parse() (ipv4Base *net.IPNet, ipv6Prefix string, err error) {
	base := c.IPv4Base
	if base == "" {
		base = DefaultIPv4Base
	}
	_, ipv4Base, err = net.ParseCIDR(base)
	if err != nil {
		return nil, "", errors.Wrapf(err, "invalid IPv4 base network %q", base)
	}
	ones, bits := ipv4Base.Mask.Size()
	if bits != 8*net.IPv4len || ones > subnetPrefixLenV4 {
		return nil, "", errors.Errorf("IPv4 base network %s must be an IPv4 network of /%d or shorter", base, subnetPrefixLenV4)
	}

	ipv6Prefix = strings.TrimSuffix(c.IPv6Prefix, ":")
	if ipv6Prefix == "" {
		ipv6Prefix = DefaultIPv6Prefix
	}
	groups := strings.Split(ipv6Prefix, ":")
	if len(groups) > 3 || strings.Contains(ipv6Prefix, "::") {
		return nil, "", errors.Errorf("IPv6 prefix %q must consist of at most three groups", c.IPv6Prefix)
	}
	if net.ParseIP(ipv6Prefix+"::") == nil {
		return nil, "", errors.Errorf("invalid IPv6 prefix %q", c.IPv6Prefix)
	}
	return ipv4Base, ipv6Prefix, nil
}

// SubnetIPAM is the address allocator of one subnet. It keeps separate
// counters for gateway and host addresses. Counters only grow.
type SubnetIPAM struct {
	mutex sync.Mutex

	id int

	ipv4Subnet *net.IPNet
	ipv6Subnet *net.IPNet
	// textual IPv6 prefix of this subnet, <prefix>:<id>
	ipv6Group string

	// last assigned sequence IDs
	lastHostSeqID    int
	lastGatewaySeqID int

	metrics *Metrics
}

func newSubnetIPAM(id int, ipv4Base *net.IPNet, ipv6Prefix string, metrics *Metrics) (*SubnetIPAM, error) {
	ones, _ := ipv4Base.Mask.Size()
	ipv4Subnet, err := cidr.Subnet(ipv4Base, subnetPrefixLenV4-ones, id)
	if err != nil {
		return nil, errors.Wrapf(ErrSubnetSpaceExhausted, "subnet %d does not fit into %s", id, ipv4Base)
	}

	ipv6Group := fmt.Sprintf("%s:%d", ipv6Prefix, id)
	_, ipv6Subnet, err := net.ParseCIDR(fmt.Sprintf("%s::/%d", ipv6Group, subnetPrefixLenV6))
	if err != nil {
		return nil, errors.Wrapf(ErrSubnetSpaceExhausted, "subnet %d does not fit under IPv6 prefix %s", id, ipv6Prefix)
	}

	return &SubnetIPAM{
		id:               id,
		ipv4Subnet:       ipv4Subnet,
		ipv6Subnet:       ipv6Subnet,
		ipv6Group:        ipv6Group,
		lastHostSeqID:    firstHostSeqID - 1,
		lastGatewaySeqID: firstGatewaySeqID - 1,
		metrics:          metrics,
	}, nil
}

// ID returns the subnet number.
func (s *SubnetIPAM) ID() int {
	return s.id
}

// Subnet returns the IPv4 and IPv6 networks of the subnet.
func (s *SubnetIPAM) Subnet() (ipv4 *net.IPNet, ipv6 *net.IPNet) {
	return newIPNet(s.ipv4Subnet), newIPNet(s.ipv6Subnet)
}

// GatewayIP returns the first gateway address without consuming it.
func (s *SubnetIPAM) GatewayIP() (ipv4 net.IP, ipv6 net.IP) {
	return s.address(firstGatewaySeqID)
}

// NextHostIP allocates the next host address.
func (s *SubnetIPAM) NextHostIP() (ipv4 net.IP, ipv6 net.IP, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.lastHostSeqID >= lastHostSeqID {
		s.metrics.exhausted(RoleHost)
		return nil, nil, errors.Wrapf(ErrHostRangeExhausted, "subnet %d (%s) has no host address left", s.id, s.ipv4Subnet)
	}
	s.lastHostSeqID++
	s.metrics.allocated(RoleHost)
	ipv4, ipv6 = s.address(s.lastHostSeqID)
	return ipv4, ipv6, nil
}

// NextGatewayIP allocates the next gateway address.
func (s *SubnetIPAM) NextGatewayIP() (ipv4 net.IP, ipv6 net.IP, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.lastGatewaySeqID >= lastGatewaySeqID {
		s.metrics.exhausted(RoleGateway)
		return nil, nil, errors.Wrapf(ErrGatewayRangeExhausted, "subnet %d (%s) has no gateway address left", s.id, s.ipv4Subnet)
	}
	s.lastGatewaySeqID++
	s.metrics.allocated(RoleGateway)
	ipv4, ipv6 = s.address(s.lastGatewaySeqID)
	return ipv4, ipv6, nil
}

// Allocate returns the addressing of a new interface with the given role.
func (s *SubnetIPAM) Allocate(role Role) (*Interface, error) {
	iface := &Interface{
		Role:     role,
		Subnet:   s.id,
		IPv4Mask: subnetPrefixLenV4,
		IPv6Mask: subnetPrefixLenV6,
	}

	var err error
	switch role {
	case RoleHost:
		iface.IPv4, iface.IPv6, err = s.NextHostIP()
	case RoleGateway:
		iface.IPv4, iface.IPv6, err = s.NextGatewayIP()
	case RoleUnaddressed:
		s.metrics.allocated(RoleUnaddressed)
	default:
		err = errors.Errorf("unsupported interface role %v", role)
	}
	if err != nil {
		return nil, err
	}
	return iface, nil
}

// Allocated returns the number of host and gateway addresses handed out.
func (s *SubnetIPAM) Allocated() (hosts int, gateways int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastHostSeqID - firstHostSeqID + 1, s.lastGatewaySeqID - firstGatewaySeqID + 1
}

// String provides human-readable representation of the subnet.
func (s *SubnetIPAM) String() string {
	return fmt.Sprintf("<subnet=%d ip4=%s ip6=%s>", s.id, s.ipv4Subnet, s.ipv6Subnet)
}

// address computes the address with the given sequence ID in both families
func (s *SubnetIPAM) address(seqID int) (ipv4 net.IP, ipv6 net.IP) {
	ipv4, err := cidr.Host(s.ipv4Subnet, seqID)
	if err != nil {
		// sequence IDs are bounded by the /24 host part
		panic(err)
	}
	ipv6 = net.ParseIP(fmt.Sprintf("%s::%d", s.ipv6Group, seqID))
	return ipv4.To4(), ipv6
}
