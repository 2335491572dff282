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

package transport

import (
	"math/rand"

	"github.com/ultiledger/go-ultidpos/bus"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/peer"
	"github.com/ultiledger/go-ultidpos/tx"
	"github.com/ultiledger/go-ultidpos/types"
	"github.com/ultiledger/go-ultidpos/util"
)

// Broadcaster relays accepted transactions, applied blocks and
// application messages to a random subset of peers.
type Broadcaster struct {
	pm     *peer.Manager
	client *Client
	limit  int
}

func NewBroadcaster(pm *peer.Manager, client *Client, limit int) *Broadcaster {
	return &Broadcaster{pm: pm, client: client, limit: limit}
}

// Subscribe attaches the broadcaster to the bus topics it relays.
func (b *Broadcaster) Subscribe(bs *bus.Bus) {
	bs.Subscribe(bus.TopicUnconfirmedTransaction, func(data interface{}) {
		u, ok := data.(*tx.Unconfirmed)
		if !ok || !u.Broadcast {
			return
		}
		b.each(func(p *types.Peer) error { return b.client.PostTransaction(p, u.Tx) })
	})
	bs.Subscribe(bus.TopicNewBlock, func(data interface{}) {
		block, ok := data.(*types.Block)
		if !ok {
			return
		}
		b.each(func(p *types.Peer) error { return b.client.PostBlock(p, block) })
	})
	bs.Subscribe(bus.TopicMessage, func(data interface{}) {
		m, ok := data.(*Message)
		if !ok {
			return
		}
		b.each(func(p *types.Peer) error { return b.client.PostMessage(p, m) })
	})
}

// Peers picks up to limit random peers.
func (b *Broadcaster) Peers() []*types.Peer {
	peers := b.pm.List(-1, 0)
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if b.limit >= 0 {
		peers = peers[:util.MinInt(b.limit, len(peers))]
	}
	return peers
}

func (b *Broadcaster) each(send func(p *types.Peer) error) {
	for _, p := range b.Peers() {
		if err := send(p); err != nil {
			log.Debugw("relay to peer failed", "peer", p.Addr(), "err", err)
		}
	}
}
