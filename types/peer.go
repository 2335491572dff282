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

package types

import (
	"net"
	"strconv"
)

// PeerState is the admission state of a remote node.
type PeerState uint8

const (
	PeerBanned PeerState = iota
	PeerUnknown
	PeerConnected
)

func (s PeerState) String() string {
	switch s {
	case PeerBanned:
		return "banned"
	case PeerUnknown:
		return "unknown"
	case PeerConnected:
		return "connected"
	}
	return "invalid"
}

// Peer is a remote node identified by ip and port.
type Peer struct {
	IP        string    `json:"ip" codec:"ip"`
	Port      int       `json:"port" codec:"port"`
	Version   string    `json:"version" codec:"version"`
	OS        string    `json:"os,omitempty" codec:"os"`
	SharePort bool      `json:"sharePort" codec:"sharePort"`
	State     PeerState `json:"state" codec:"state"`
	// unix seconds, zero when the peer is not banned
	BanUntil int64 `json:"banUntil,omitempty" codec:"banUntil"`
}

// Addr returns the ip:port network address of the peer.
func (p *Peer) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}
