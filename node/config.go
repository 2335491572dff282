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

package node

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/ultiledger/go-ultidpos/ledger"
	"github.com/ultiledger/go-ultidpos/peer"
	"github.com/ultiledger/go-ultidpos/transport"
)

const (
	DefaultMaxPeers         = 100
	DefaultQueueSize        = 1000
	DefaultMessageRetention = time.Hour
	DefaultBroadcastLimit   = 20
	DefaultGenesisID        = "1"
)

// Seed is the address of an initial peer.
type Seed struct {
	IP   string
	Port int
}

// Genesis describes the first block of the chain and its balances.
type Genesis struct {
	ID        string
	Timestamp int64
	Accounts  []ledger.Allocation
}

type Config struct {
	// listen port of the http server
	Port int
	// protocol version peers must match
	Version string
	// os reported to peers
	OS string
	// whether peers may share our port
	SharePort bool
	// database backend
	DBBackend string
	// database file path
	DBPath string
	// initial peers
	Peers []Seed
	// maximum number of peers to track
	MaxPeers int
	// capacity of the mutation sequence
	QueueSize int
	// how long a relayed message is remembered
	MessageRetention time.Duration
	// peers a transaction or block is relayed to
	BroadcastLimit int
	// genesis block
	Genesis Genesis
	// enable debug logging
	Debug bool
}

func NewConfig(v *viper.Viper) (*Config, error) {
	if v.GetInt("port") == 0 {
		return nil, errors.New("network port is missing")
	}
	if v.GetString("version") == "" {
		return nil, errors.New("protocol version is missing")
	}
	if len(v.GetString("version")) > transport.MaxVersionLength {
		return nil, errors.New("protocol version is too long")
	}
	if v.GetString("db_backend") == "" {
		return nil, errors.New("db backend is empty")
	}
	if v.GetString("db_path") == "" {
		return nil, errors.New("db path is empty")
	}

	v.SetDefault("max_peers", DefaultMaxPeers)
	v.SetDefault("queue_size", DefaultQueueSize)
	v.SetDefault("message_retention", DefaultMessageRetention)
	v.SetDefault("broadcast_limit", DefaultBroadcastLimit)
	v.SetDefault("genesis.id", DefaultGenesisID)

	port := v.GetInt("port")
	if port < peer.MinPort || port > peer.MaxPort {
		return nil, fmt.Errorf("port %d is out of range", port)
	}
	if v.GetInt("max_peers") <= 0 {
		return nil, errors.New("max peers is not positive")
	}
	if v.GetInt("queue_size") <= 0 {
		return nil, errors.New("queue size is not positive")
	}
	if v.GetDuration("message_retention") <= 0 {
		return nil, errors.New("message retention is not positive")
	}

	seeds, err := parseSeeds(v.GetStringSlice("peers"))
	if err != nil {
		return nil, fmt.Errorf("parse peers failed: %v", err)
	}

	var accounts []ledger.Allocation
	if err := v.UnmarshalKey("genesis.accounts", &accounts); err != nil {
		return nil, fmt.Errorf("parse genesis accounts failed: %v", err)
	}
	for i, a := range accounts {
		if a.Address == "" && a.PublicKey == "" {
			return nil, fmt.Errorf("genesis account %d has neither address nor public key", i)
		}
		if a.Balance < 0 {
			return nil, fmt.Errorf("genesis account %d has a negative balance", i)
		}
	}

	c := Config{
		Port:             port,
		Version:          v.GetString("version"),
		OS:               v.GetString("os"),
		SharePort:        v.GetBool("share_port"),
		DBBackend:        v.GetString("db_backend"),
		DBPath:           v.GetString("db_path"),
		Peers:            seeds,
		MaxPeers:         v.GetInt("max_peers"),
		QueueSize:        v.GetInt("queue_size"),
		MessageRetention: v.GetDuration("message_retention"),
		BroadcastLimit:   v.GetInt("broadcast_limit"),
		Genesis: Genesis{
			ID:        v.GetString("genesis.id"),
			Timestamp: v.GetInt64("genesis.timestamp"),
			Accounts:  accounts,
		},
		Debug: v.GetBool("debug"),
	}
	return &c, nil
}

func parseSeeds(addrs []string) ([]Seed, error) {
	var seeds []Seed
	for _, addr := range addrs {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in %s", addr)
		}
		if err := peer.ValidateAddr(host, port); err != nil {
			return nil, fmt.Errorf("invalid peer %s: %v", addr, err)
		}
		seeds = append(seeds, Seed{IP: host, Port: port})
	}
	return seeds, nil
}
