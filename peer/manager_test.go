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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultidpos/db/memdb"
	"github.com/ultiledger/go-ultidpos/types"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, c *clock) *Manager {
	pm, err := NewManager(&ManagerContext{
		Database: memdb.New(),
		Version:  "0.1.0",
		MaxPeers: 10,
		Clock:    c.Now,
	})
	assert.NoError(t, err)
	return pm
}

func TestUpdateVersionGate(t *testing.T) {
	pm := newTestManager(t, &clock{now: time.Unix(1000, 0)})

	ok, err := pm.Update(&types.Peer{IP: "10.0.0.1", Port: 7000, Version: "0.2.0"})
	assert.NoError(t, err)
	assert.False(t, ok)
	_, found := pm.Get("10.0.0.1", 7000)
	assert.False(t, found)

	ok, err = pm.Update(&types.Peer{IP: "10.0.0.1", Port: 7000, Version: "0.1.0", State: types.PeerConnected})
	assert.NoError(t, err)
	assert.True(t, ok)
	p, found := pm.Get("10.0.0.1", 7000)
	assert.True(t, found)
	assert.Equal(t, types.PeerConnected, p.State)

	_, err = pm.Update(&types.Peer{IP: "10.0.0.1", Port: 0, Version: "0.1.0"})
	assert.Equal(t, ErrInvalidPort, err)
	_, err = pm.Update(&types.Peer{IP: "nope", Port: 1, Version: "0.1.0"})
	assert.Equal(t, ErrInvalidIP, err)
}

func TestBan(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	pm := newTestManager(t, c)

	pm.Update(&types.Peer{IP: "10.0.0.2", Port: 7000, Version: "0.1.0", State: types.PeerConnected})
	assert.NoError(t, pm.Ban("10.0.0.2", 7000, 3600))

	p, _ := pm.Get("10.0.0.2", 7000)
	assert.Equal(t, types.PeerBanned, p.State)
	assert.Equal(t, int64(4600), p.BanUntil)
	assert.True(t, pm.IsBanned("10.0.0.2", 7000))

	// an update keeps the ban
	pm.Update(&types.Peer{IP: "10.0.0.2", Port: 7000, Version: "0.1.0", State: types.PeerConnected})
	p, _ = pm.Get("10.0.0.2", 7000)
	assert.Equal(t, types.PeerBanned, p.State)
	assert.Empty(t, pm.List(100, 0))

	// expired bans read back as unknown
	c.now = time.Unix(4601, 0)
	p, _ = pm.Get("10.0.0.2", 7000)
	assert.Equal(t, types.PeerUnknown, p.State)
	assert.Equal(t, int64(0), p.BanUntil)
	assert.Len(t, pm.List(100, 0), 1)

	// unknown peers can be banned
	assert.NoError(t, pm.Ban("10.0.0.3", 7000, 60))
	assert.True(t, pm.IsBanned("10.0.0.3", 7000))
}

func TestList(t *testing.T) {
	pm := newTestManager(t, &clock{now: time.Unix(1000, 0)})
	for i := 0; i < 12; i++ {
		pm.Update(&types.Peer{IP: fmt.Sprintf("10.0.1.%d", i), Port: 7000, Version: "0.1.0"})
	}
	// max peers caps the registry
	assert.Equal(t, 10, pm.Count())

	all := pm.List(100, 0)
	assert.Len(t, all, 10)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Addr() < all[i].Addr())
	}
	page := pm.List(3, 2)
	assert.Equal(t, all[2:5], page)
	assert.Empty(t, pm.List(3, 20))
}

func TestReload(t *testing.T) {
	database := memdb.New()
	ctx := &ManagerContext{Database: database, Version: "0.1.0", MaxPeers: 10}
	pm, err := NewManager(ctx)
	assert.NoError(t, err)
	pm.Update(&types.Peer{IP: "::1", Port: 7000, Version: "0.1.0"})

	pm, err = NewManager(ctx)
	assert.NoError(t, err)
	_, found := pm.Get("::1", 7000)
	assert.True(t, found)
	assert.True(t, IsLoopback("::1"))
	assert.True(t, IsLoopback("127.0.0.1"))
	assert.False(t, IsLoopback("10.0.0.1"))
}
