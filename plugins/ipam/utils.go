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
	"net"
)

// newIPNet is simple utility function to create defend copy of net.IPNet.
func newIPNet(ipNet *net.IPNet) *net.IPNet {
	if ipNet == nil {
		return nil
	}
	return &net.IPNet{
		IP:   newIP(ipNet.IP),
		Mask: append(net.IPMask(nil), ipNet.Mask...),
	}
}

// newIP is simple utility function to create defend copy of net.IP.
func newIP(ip net.IP) net.IP {
	if ip4 := ip.To4(); ip4 != nil {
		return net.IPv4(ip4[0], ip4[1], ip4[2], ip4[3]).To4()
	}
	return append(net.IP(nil), ip...)
}
