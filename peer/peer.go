// Copyright 2019 The go-ultiledger Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package peer

import (
	"errors"
	"net"

	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrInvalidIP   = errors.New("invalid peer ip")
	ErrInvalidPort = errors.New("invalid peer port")
)

const (
	MinPort = 1
	MaxPort = 65535
)

// ValidateAddr checks that ip is an ip address and port is in range.
func ValidateAddr(ip string, port int) error {
	if net.ParseIP(ip) == nil {
		return ErrInvalidIP
	}
	if port < MinPort || port > MaxPort {
		return ErrInvalidPort
	}
	return nil
}

// IsLoopback tells whether the ip is a loopback address.
func IsLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

func key(ip string, port int) string {
	p := types.Peer{IP: ip, Port: port}
	return p.Addr()
}
