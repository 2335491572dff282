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
	"errors"

	"github.com/ultiledger/go-ultidpos/ledger"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/peer"
	"github.com/ultiledger/go-ultidpos/sequence"
	"github.com/ultiledger/go-ultidpos/types"
	"github.com/ultiledger/go-ultidpos/util"
)

var (
	ErrNoPeers       = errors.New("no peers to load blocks from")
	ErrNoCommonBlock = errors.New("no common block with peer")
)

// Loader downloads missing blocks from peers and applies them in order
// through the mutation sequence.
type Loader struct {
	pm     *peer.Manager
	client *Client
	ledger *ledger.Manager
	seq    *sequence.Sequence
	picker *Broadcaster
}

func NewLoader(pm *peer.Manager, client *Client, lm *ledger.Manager, seq *sequence.Sequence) *Loader {
	return &Loader{
		pm:     pm,
		client: client,
		ledger: lm,
		seq:    seq,
		picker: NewBroadcaster(pm, client, 1),
	}
}

// Sync loads blocks from one random peer until the local chain reaches
// the height the peer reported.
func (l *Loader) Sync() error {
	peers := l.picker.Peers()
	if len(peers) == 0 {
		return ErrNoPeers
	}
	p := peers[0]

	height, err := l.client.Height(p)
	if err != nil {
		return err
	}
	log.Infow("loading blocks", "peer", p.Addr(), "remote", height, "local", l.ledger.Height())

	for l.ledger.Height() < height {
		n, err := l.loadRound(p)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// loadRound downloads the blocks following the common block and returns
// how many were applied.
func (l *Loader) loadRound(p *types.Peer) (int, error) {
	ids, err := l.ledger.RecentIDs(MaxCommonIDs)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ledger.ErrNoGenesis
	}
	head := l.ledger.Height()
	min := head - util.MinUint64(head-1, uint64(len(ids)-1))
	common, err := l.client.CommonBlock(p, ids, min, head)
	if err != nil {
		return 0, err
	}
	if common == nil {
		return 0, ErrNoCommonBlock
	}

	blocks, err := l.client.Blocks(p, common.ID)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, b := range blocks {
		block, err := l.ledger.NormalizeBlock(b)
		if err != nil {
			if err := l.pm.Ban(p.IP, p.Port, BanSeconds); err != nil {
				log.Warnw("ban peer failed", "peer", p.Addr(), "err", err)
			}
			return applied, err
		}
		if err := l.seq.Add(func() error { return l.ledger.ProcessBlock(block) }); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
