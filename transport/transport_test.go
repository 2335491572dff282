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
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emicklei/go-restful"
	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/bus"
	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/db/memdb"
	"github.com/ultiledger/go-ultidpos/ledger"
	"github.com/ultiledger/go-ultidpos/peer"
	"github.com/ultiledger/go-ultidpos/sequence"
	"github.com/ultiledger/go-ultidpos/tx"
	"github.com/ultiledger/go-ultidpos/tx/op"
	"github.com/ultiledger/go-ultidpos/types"
)

const (
	remoteIP   = "192.0.2.1"
	remotePort = 4000
	version    = "0.1.0"
)

var now = time.Unix(1500000000, 0)

type fixture struct {
	t         *testing.T
	transport *Transport
	container *restful.Container
	pm        *peer.Manager
	lm        *ledger.Manager
	seq       *sequence.Sequence
	am        *account.Manager
	tm        *tx.Manager
	pool      *tx.Pool
	bus       *bus.Bus
	dapps     *LocalDapps
	voter     *crypto.Keypair
}

type echoDapp struct{}

func (echoDapp) Message(body json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"echo": string(body)}, nil
}

func (echoDapp) Request(method, path string, query map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"route": method + " " + path}, nil
}

func newFixture(t *testing.T) *fixture {
	database := memdb.New()
	am, err := account.NewManager(database, 100)
	assert.NoError(t, err)
	registry := tx.NewRegistry()
	rounds := op.NewRounds()
	assert.NoError(t, op.Register(registry, &op.Context{AM: am, Checker: op.NewDelegateChecker(am, nil), Rounds: rounds}))
	tm, err := tx.NewManager(&tx.ManagerContext{Database: database, AM: am, Registry: registry, Rounds: rounds})
	assert.NoError(t, err)
	b := bus.New()
	pool, err := tx.NewPool(&tx.PoolContext{TM: tm, AM: am, Bus: b})
	assert.NoError(t, err)
	lm, err := ledger.NewManager(&ledger.ManagerContext{Database: database, AM: am, TM: tm, Pool: pool, Bus: b})
	assert.NoError(t, err)
	voter := crypto.KeypairFromSecret("voter")
	assert.NoError(t, lm.CreateGenesis(&types.Block{ID: "1"}, []ledger.Allocation{
		{PublicKey: voter.PublicKeyHex(), Balance: 10 * types.FixedPoint},
	}))
	pm, err := peer.NewManager(&peer.ManagerContext{
		Database: database,
		Version:  version,
		MaxPeers: 10,
		Clock:    func() time.Time { return now },
	})
	assert.NoError(t, err)

	seq := sequence.New(16)
	t.Cleanup(seq.Stop)

	dapps := &LocalDapps{}
	dapps.Install("d1", echoDapp{})

	tp, err := New(&Context{
		Version:   version,
		OS:        "linux",
		Port:      7000,
		PM:        pm,
		TM:        tm,
		Pool:      pool,
		Ledger:    lm,
		Seq:       seq,
		Bus:       b,
		Dapps:     dapps,
		Retention: time.Hour,
	})
	assert.NoError(t, err)
	tp.SetLoaded(true)

	container := restful.NewContainer()
	tp.Register(container)

	return &fixture{
		t:         t,
		transport: tp,
		container: container,
		pm:        pm,
		lm:        lm,
		seq:       seq,
		am:        am,
		tm:        tm,
		pool:      pool,
		bus:       b,
		dapps:     dapps,
		voter:     voter,
	}
}

func peerHeaders(port string) map[string]string {
	return map[string]string{
		"port":       port,
		"share-port": "0",
		"version":    version,
		"os":         "linux",
	}
}

func (f *fixture) do(method, path, body string, headers map[string]string) (int, map[string]interface{}) {
	return f.doFrom(fmt.Sprintf("%s:%d", remoteIP, 50000), method, path, body, headers)
}

func (f *fixture) doFrom(remoteAddr, method, path, body string, headers map[string]string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.container.ServeHTTP(rec, req)

	out := make(map[string]interface{})
	if rec.Body.Len() > 0 {
		assert.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestGate(t *testing.T) {
	f := newFixture(t)
	f.transport.SetLoaded(false)

	code, out := f.do(http.MethodGet, "/peer/height", "", peerHeaders("4000"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Blockchain is loading", out["error"])

	f.transport.SetLoaded(true)
	code, out = f.do(http.MethodGet, "/peer/height", "", peerHeaders("4000"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), out["height"])
}

func TestLocalHeaders(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/peer/height", nil)
	for k, v := range peerHeaders("4000") {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.container.ServeHTTP(rec, req)
	assert.Equal(t, "7000", rec.Header().Get("port"))
	assert.Equal(t, version, rec.Header().Get("version"))
	assert.Equal(t, "linux", rec.Header().Get("os"))
	assert.Equal(t, "0", rec.Header().Get("share-port"))
}

func TestHeaderValidation(t *testing.T) {
	f := newFixture(t)

	bad := []map[string]string{
		{"port": "0", "share-port": "0", "version": version},
		{"port": "70000", "share-port": "0", "version": version},
		{"port": "4000", "share-port": "2", "version": version},
		{"port": "4000", "share-port": "0"},
		{"port": "4000", "share-port": "0", "version": "0.1.0-too-long"},
		{"port": "4000", "share-port": "0", "version": version, "os": strings.Repeat("x", 65)},
	}
	for _, h := range bad {
		code, out := f.do(http.MethodGet, "/peer/height", "", h)
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, false, out["success"])
	}
	// schema failures are never penalized
	assert.False(t, f.pm.IsBanned(remoteIP, remotePort))
	assert.Equal(t, 0, f.pm.Count())

	code, _ := f.do(http.MethodGet, "/peer/height", "", peerHeaders("4000"))
	assert.Equal(t, http.StatusOK, code)
	p, ok := f.pm.Get(remoteIP, remotePort)
	assert.True(t, ok)
	assert.Equal(t, types.PeerConnected, p.State)
	assert.Equal(t, "linux", p.OS)

	// a peer speaking another version is served but not admitted
	h := peerHeaders("4001")
	h["version"] = "0.2.0"
	code, _ = f.do(http.MethodGet, "/peer/height", "", h)
	assert.Equal(t, http.StatusOK, code)
	_, ok = f.pm.Get(remoteIP, 4001)
	assert.False(t, ok)
}

func TestLoopbackSkipsHeaders(t *testing.T) {
	f := newFixture(t)
	code, out := f.doFrom("127.0.0.1:50000", http.MethodGet, "/peer/list", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, out["peers"])
}

func TestForwardedFor(t *testing.T) {
	f := newFixture(t)

	// a remote node cannot claim to be local
	code, out := f.do(http.MethodGet, "/peer/list", "", map[string]string{"X-Forwarded-For": "127.0.0.1"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, false, out["success"])

	// a local proxy forwards the address of the remote node
	headers := peerHeaders("4000")
	headers["X-Forwarded-For"] = "198.51.100.7, 127.0.0.1"
	code, _ = f.doFrom("127.0.0.1:50000", http.MethodGet, "/peer/height", "", headers)
	assert.Equal(t, http.StatusOK, code)
	_, ok := f.pm.Get("198.51.100.7", 4000)
	assert.True(t, ok)
	_, ok = f.pm.Get("127.0.0.1", 4000)
	assert.False(t, ok)
}

func TestPostMalformedBlock(t *testing.T) {
	f := newFixture(t)
	var received int32
	f.bus.Subscribe(bus.TopicReceiveBlock, func(interface{}) { atomic.AddInt32(&received, 1) })

	code, out := f.do(http.MethodPost, "/peer/blocks", `{"block":{"id":"not a block id","height":2}}`, peerHeaders("4000"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	p, ok := f.pm.Get(remoteIP, remotePort)
	assert.True(t, ok)
	assert.Equal(t, types.PeerBanned, p.State)
	assert.Equal(t, now.Unix()+BanSeconds, p.BanUntil)

	f.bus.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&received))
}

func TestPostBlock(t *testing.T) {
	f := newFixture(t)
	received := make(chan *types.Block, 1)
	f.bus.Subscribe(bus.TopicReceiveBlock, func(data interface{}) { received <- data.(*types.Block) })

	code, out := f.do(http.MethodPost, "/peer/blocks", `{"block":{"id":"22","height":2,"previousBlock":"1"}}`, peerHeaders("4000"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	f.bus.Wait()
	block := <-received
	assert.Equal(t, "22", block.ID)
	assert.False(t, f.pm.IsBanned(remoteIP, remotePort))
}

func TestCommonBlock(t *testing.T) {
	f := newFixture(t)

	code, out := f.do(http.MethodGet, "/peer/blocks/common?ids=1,99&min=1&max=5", "", peerHeaders("4000"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	common := out["common"].(map[string]interface{})
	assert.Equal(t, "1", common["id"])

	_, out = f.do(http.MethodGet, "/peer/blocks/common?ids=99&min=1&max=5", "", peerHeaders("4000"))
	assert.Equal(t, true, out["success"])
	assert.Nil(t, out["common"])
	assert.False(t, f.pm.IsBanned(remoteIP, remotePort))

	// missing bounds are rejected without a ban
	_, out = f.do(http.MethodGet, "/peer/blocks/common?ids=1", "", peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.False(t, f.pm.IsBanned(remoteIP, remotePort))

	_, out = f.do(http.MethodGet, "/peer/blocks/common?ids=abc,x1&min=1&max=5", "", peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Invalid block id sequence", out["error"])
	assert.True(t, f.pm.IsBanned(remoteIP, remotePort))
}

func TestCommonBlockIDLimit(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, MaxCommonIDs)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}

	_, out := f.do(http.MethodGet, "/peer/blocks/common?min=1&max=5&ids="+strings.Join(ids, ","), "", peerHeaders("4000"))
	assert.Equal(t, true, out["success"])
	assert.False(t, f.pm.IsBanned(remoteIP, remotePort))

	ids = append(ids, "6")
	_, out = f.do(http.MethodGet, "/peer/blocks/common?min=1&max=6&ids="+strings.Join(ids, ","), "", peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Too many block ids", out["error"])
	assert.True(t, f.pm.IsBanned(remoteIP, remotePort))
}

func TestGetBlocks(t *testing.T) {
	f := newFixture(t)
	_, out := f.do(http.MethodGet, "/peer/blocks", "", peerHeaders("4000"))
	assert.Len(t, out["blocks"], 1)

	_, out = f.do(http.MethodGet, "/peer/blocks?lastBlockId=1", "", peerHeaders("4000"))
	assert.Len(t, out["blocks"], 0)

	_, out = f.do(http.MethodGet, "/peer/blocks?lastBlockId=404", "", peerHeaders("4000"))
	assert.Len(t, out["blocks"], 0)
}

func TestPostTransaction(t *testing.T) {
	f := newFixture(t)
	sender, err := f.am.Get(account.Filter{PublicKey: f.voter.PublicKeyHex()})
	assert.NoError(t, err)
	trs, err := f.tm.Create(&tx.CreateData{
		Type:      types.TxVote,
		Sender:    sender,
		Keypair:   f.voter,
		Timestamp: 10,
		Votes:     []string{"+" + crypto.KeypairFromSecret("delegate").PublicKeyHex()},
	})
	assert.NoError(t, err)
	body, err := json.Marshal(&transactionBody{Transaction: trs})
	assert.NoError(t, err)

	_, out := f.do(http.MethodPost, "/peer/transactions", string(body), peerHeaders("4000"))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 1, f.pool.Count())

	_, out = f.do(http.MethodGet, "/peer/transactions", "", peerHeaders("4000"))
	assert.Len(t, out["transactions"], 1)

	// replaying the same transaction is harmless
	_, out = f.do(http.MethodPost, "/peer/transactions", string(body), peerHeaders("4000"))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 1, f.pool.Count())
	assert.False(t, f.pm.IsBanned(remoteIP, remotePort))

	_, out = f.do(http.MethodPost, "/peer/transactions", `{"transaction":{"type":3,"id":"x"}}`, peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Invalid transaction body", out["message"])
	assert.True(t, f.pm.IsBanned(remoteIP, remotePort))
}

func TestSignatures(t *testing.T) {
	f := newFixture(t)

	_, out := f.do(http.MethodPost, "/peer/signatures", `{"signature":{"transaction":"1"}}`, peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Validation error", out["error"])

	_, out = f.do(http.MethodPost, "/peer/signatures", `{"signature":{"transaction":"1","signature":"00"}}`, peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Process signature error", out["error"])

	_, out = f.do(http.MethodGet, "/peer/signatures", "", peerHeaders("4000"))
	assert.Equal(t, true, out["success"])
	assert.Empty(t, out["signatures"])
}

func message(dappID string, body string, timestamp int64) string {
	hash := crypto.MessageHash([]byte(body), timestamp)
	return fmt.Sprintf(`{"dappid":%q,"timestamp":%d,"hash":%q,"body":%s}`, dappID, timestamp, hash, body)
}

func TestDappMessageReplay(t *testing.T) {
	f := newFixture(t)
	var published int32
	f.bus.Subscribe(bus.TopicMessage, func(interface{}) { atomic.AddInt32(&published, 1) })

	msg := message("d1", `{"a":1}`, 42)
	code, out := f.do(http.MethodPost, "/peer/dapp/message", msg, peerHeaders("4000"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, `{"a":1}`, out["echo"])

	code, out = f.do(http.MethodPost, "/peer/dapp/message", msg, peerHeaders("4000"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	assert.Nil(t, out["echo"])

	f.bus.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&published))
}

func TestDappMessageRejected(t *testing.T) {
	f := newFixture(t)
	var published int32
	f.bus.Subscribe(bus.TopicMessage, func(interface{}) { atomic.AddInt32(&published, 1) })

	_, out := f.do(http.MethodPost, "/peer/dapp/message", `{"timestamp":1,"hash":"x","body":{}}`, peerHeaders("4000"))
	assert.Equal(t, "missed dappid", out["message"])

	_, out = f.do(http.MethodPost, "/peer/dapp/message", `{"dappid":"d1","body":{}}`, peerHeaders("4000"))
	assert.Equal(t, "missed hash sum", out["message"])

	_, out = f.do(http.MethodPost, "/peer/dapp/message", `{"dappid":"d1","timestamp":1,"hash":"x","body":{}}`, peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "wrong hash sum", out["message"])
	assert.False(t, f.pm.IsBanned(remoteIP, remotePort))

	_, out = f.do(http.MethodPost, "/peer/dapp/message", message("nope", `{"a":1}`, 7), peerHeaders("4000"))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, ErrUnknownDapp.Error(), out["message"])

	f.bus.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&published))
}

func TestDappRequest(t *testing.T) {
	f := newFixture(t)
	msg := message("d1", `{"method":"get","path":"/status","query":{}}`, 9)
	_, out := f.do(http.MethodPost, "/peer/dapp/request", msg, peerHeaders("4000"))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "get /status", out["route"])
}

func TestMessageVerify(t *testing.T) {
	m := &Message{DappID: "d1", Timestamp: 5, Body: json.RawMessage("{ \"a\" : 1 }")}
	m.Hash = crypto.MessageHash([]byte(`{"a":1}`), 5)
	assert.NoError(t, m.Verify())

	m.Timestamp = 6
	assert.True(t, types.IsKind(m.Verify(), types.HashMismatch))
}

func TestSeenSet(t *testing.T) {
	s := newSeenSet(time.Hour)
	assert.True(t, s.Add("h1"))
	assert.False(t, s.Add("h1"))
	assert.True(t, s.Add("h2"))
}

func TestEndpointNotFound(t *testing.T) {
	f := newFixture(t)
	code, out := f.do(http.MethodGet, "/peer/nowhere", "", peerHeaders("4000"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "API endpoint not found", out["error"])
}

func TestListPeers(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/peer/height", "", peerHeaders("4000"))
	_, out := f.do(http.MethodGet, "/peer/list", "", peerHeaders("4000"))
	peers := out["peers"].([]interface{})
	assert.Len(t, peers, 1)
	assert.Equal(t, remoteIP, peers[0].(map[string]interface{})["ip"])
}

func serverPeer(t *testing.T, srv *httptest.Server) *types.Peer {
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	assert.NoError(t, err)
	p := &types.Peer{IP: host, Version: version, State: types.PeerConnected}
	p.Port, err = strconv.Atoi(port)
	assert.NoError(t, err)
	return p
}

func TestClientAgainstServer(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.container)
	defer srv.Close()
	p := serverPeer(t, srv)

	c := NewClient(Headers{Port: 7001, Version: version}, time.Second)
	height, err := c.Height(p)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), height)

	common, err := c.CommonBlock(p, []string{"1"}, 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, "1", common.ID)

	blocks, err := c.Blocks(p, "1")
	assert.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestLoaderSync(t *testing.T) {
	remote := newFixture(t)
	prev := "1"
	for h := uint64(2); h <= 4; h++ {
		id := strconv.FormatUint(h*11, 10)
		assert.NoError(t, remote.lm.ProcessBlock(&types.Block{ID: id, Height: h, PreviousBlock: prev}))
		prev = id
	}
	srv := httptest.NewServer(remote.container)
	defer srv.Close()

	local := newFixture(t)
	c := NewClient(local.transport.Headers(), time.Second)
	loader := NewLoader(local.pm, c, local.lm, local.seq)
	assert.Equal(t, ErrNoPeers, loader.Sync())

	admitted, err := local.pm.Update(serverPeer(t, srv))
	assert.NoError(t, err)
	assert.True(t, admitted)

	assert.NoError(t, loader.Sync())
	assert.Equal(t, uint64(4), local.lm.Height())
	assert.Equal(t, "44", local.lm.LastBlock().ID)

	// nothing left to load
	assert.NoError(t, loader.Sync())
	assert.Equal(t, uint64(4), local.lm.Height())
}
