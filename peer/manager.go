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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ultiledger/go-ultidpos/db"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/types"
)

const peerBucket = "PEERS"

// ManagerContext represents contextual information peer Manager needs
type ManagerContext struct {
	Database db.Database      // database instance
	Version  string           // protocol version peers must match
	MaxPeers int              // max number of peers to track
	Clock    func() time.Time // defaults to time.Now
}

func ValidateManagerContext(mc *ManagerContext) error {
	if mc == nil {
		return fmt.Errorf("peer context is nil")
	}
	if mc.Database == nil {
		return fmt.Errorf("database instance is nil")
	}
	if mc.Version == "" {
		return fmt.Errorf("version is empty")
	}
	if mc.MaxPeers <= 0 {
		return fmt.Errorf("max peers is not positive")
	}
	return nil
}

// Manager manages the CRUD of peers
type Manager struct {
	database db.Database
	version  string
	maxPeers int
	now      func() time.Time

	lock  sync.RWMutex
	peers map[string]*types.Peer
}

// NewManager creates the peer registry and loads the persisted peers.
func NewManager(ctx *ManagerContext) (*Manager, error) {
	if err := ValidateManagerContext(ctx); err != nil {
		return nil, fmt.Errorf("peer manager context is invalid: %v", err)
	}
	if err := ctx.Database.NewBucket(peerBucket); err != nil {
		return nil, fmt.Errorf("create peer bucket failed: %v", err)
	}
	pm := &Manager{
		database: ctx.Database,
		version:  ctx.Version,
		maxPeers: ctx.MaxPeers,
		now:      ctx.Clock,
		peers:    make(map[string]*types.Peer),
	}
	if pm.now == nil {
		pm.now = time.Now
	}
	vals, err := pm.database.GetAll(peerBucket, nil)
	if err != nil {
		return nil, fmt.Errorf("load peers failed: %v", err)
	}
	for _, v := range vals {
		p := &types.Peer{}
		if err := types.Decode(v, p); err != nil {
			return nil, fmt.Errorf("decode peer failed: %v", err)
		}
		pm.peers[p.Addr()] = p
	}
	return pm, nil
}

func (pm *Manager) Version() string {
	return pm.version
}

// Update upserts the peer. Peers with a different protocol version are
// dropped silently and an active ban survives the update. The returned
// bool reports whether the peer was stored.
func (pm *Manager) Update(p *types.Peer) (bool, error) {
	if err := ValidateAddr(p.IP, p.Port); err != nil {
		return false, err
	}
	if p.Version != pm.version {
		log.Debugw("drop peer with mismatched version", "peer", p.Addr(), "version", p.Version)
		return false, nil
	}

	pm.lock.Lock()
	defer pm.lock.Unlock()
	k := key(p.IP, p.Port)
	next := *p
	if old, ok := pm.peers[k]; ok {
		if pm.banned(old) {
			next.State = types.PeerBanned
			next.BanUntil = old.BanUntil
		}
	} else if len(pm.peers) >= pm.maxPeers {
		return false, nil
	}
	if next.State == types.PeerBanned && next.BanUntil == 0 {
		next.State = types.PeerUnknown
	}
	if err := pm.save(&next); err != nil {
		return false, err
	}
	return true, nil
}

// Ban bans the peer for secs seconds, unknown peers are recorded.
func (pm *Manager) Ban(ip string, port int, secs int64) error {
	if err := ValidateAddr(ip, port); err != nil {
		return err
	}
	pm.lock.Lock()
	defer pm.lock.Unlock()
	p := &types.Peer{IP: ip, Port: port}
	if old, ok := pm.peers[key(ip, port)]; ok {
		c := *old
		p = &c
	}
	p.State = types.PeerBanned
	p.BanUntil = pm.now().Unix() + secs
	if err := pm.save(p); err != nil {
		return err
	}
	log.Infow("peer banned", "ip", ip, "port", port, "until", p.BanUntil)
	return nil
}

func (pm *Manager) save(p *types.Peer) error {
	b, err := types.Encode(p)
	if err != nil {
		return fmt.Errorf("encode peer failed: %v", err)
	}
	if err := pm.database.Put(peerBucket, []byte(p.Addr()), b); err != nil {
		return fmt.Errorf("save peer in db failed: %v", err)
	}
	pm.peers[p.Addr()] = p
	return nil
}

func (pm *Manager) banned(p *types.Peer) bool {
	return p.State == types.PeerBanned && p.BanUntil > pm.now().Unix()
}

// view returns a copy of the peer with an expired ban read back as
// unknown.
func (pm *Manager) view(p *types.Peer) *types.Peer {
	c := *p
	if c.State == types.PeerBanned && !pm.banned(p) {
		c.State = types.PeerUnknown
		c.BanUntil = 0
	}
	return &c
}

func (pm *Manager) Get(ip string, port int) (*types.Peer, bool) {
	pm.lock.RLock()
	defer pm.lock.RUnlock()
	p, ok := pm.peers[key(ip, port)]
	if !ok {
		return nil, false
	}
	return pm.view(p), true
}

// IsBanned reports whether the peer is under an active ban.
func (pm *Manager) IsBanned(ip string, port int) bool {
	pm.lock.RLock()
	defer pm.lock.RUnlock()
	p, ok := pm.peers[key(ip, port)]
	return ok && pm.banned(p)
}

// List returns non-banned peers ordered by address.
func (pm *Manager) List(limit, offset int) []*types.Peer {
	pm.lock.RLock()
	var peers []*types.Peer
	for _, p := range pm.peers {
		if pm.banned(p) {
			continue
		}
		peers = append(peers, pm.view(p))
	}
	pm.lock.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].Addr() < peers[j].Addr() })
	if offset < 0 {
		offset = 0
	}
	if offset >= len(peers) {
		return []*types.Peer{}
	}
	peers = peers[offset:]
	if limit >= 0 && limit < len(peers) {
		peers = peers[:limit]
	}
	return peers
}

// Count returns the number of non-banned peers.
func (pm *Manager) Count() int {
	pm.lock.RLock()
	defer pm.lock.RUnlock()
	n := 0
	for _, p := range pm.peers {
		if !pm.banned(p) {
			n++
		}
	}
	return n
}
