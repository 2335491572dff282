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
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/emicklei/go-restful"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/api"
	"github.com/ultiledger/go-ultidpos/bus"
	"github.com/ultiledger/go-ultidpos/db"
	_ "github.com/ultiledger/go-ultidpos/db/badgerdb"
	_ "github.com/ultiledger/go-ultidpos/db/boltdb"
	_ "github.com/ultiledger/go-ultidpos/db/leveldb"
	_ "github.com/ultiledger/go-ultidpos/db/memdb"
	"github.com/ultiledger/go-ultidpos/future"
	"github.com/ultiledger/go-ultidpos/ledger"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/peer"
	"github.com/ultiledger/go-ultidpos/sequence"
	"github.com/ultiledger/go-ultidpos/transport"
	"github.com/ultiledger/go-ultidpos/tx"
	"github.com/ultiledger/go-ultidpos/tx/op"
	"github.com/ultiledger/go-ultidpos/types"
)

const (
	// accounts kept in the account cache
	accountCacheSize = 10000
	// timeout of a request to a peer
	peerTimeout = 5 * time.Second
)

// Node is the central controller of the ledger node
type Node struct {
	config   *Config
	database db.Database

	am          *account.Manager
	tm          *tx.Manager
	pool        *tx.Pool
	pm          *peer.Manager
	lm          *ledger.Manager
	seq         *sequence.Sequence
	bus         *bus.Bus
	transport   *transport.Transport
	broadcaster *transport.Broadcaster
	loader      *transport.Loader
	server      *http.Server

	// start time of the node
	startTime int64

	// channel for stopping all the subroutines
	stopChan chan struct{}

	// futures for task with error responses
	blockFuture chan *future.Block
	peerFuture  chan *future.Peer
}

// NewNode wires every component of the node from the config
func NewNode(conf *Config) (*Node, error) {
	if conf.Debug {
		log.OpenDebug()
	}

	database, err := db.Open(conf.DBBackend, conf.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %v", err)
	}

	am, err := account.NewManager(database, accountCacheSize)
	if err != nil {
		return nil, err
	}

	// transaction types depend on the account manager
	registry := tx.NewRegistry()
	rounds := op.NewRounds()
	opCtx := &op.Context{
		AM:      am,
		Checker: op.NewDelegateChecker(am, nil),
		Rounds:  rounds,
	}
	if err := op.Register(registry, opCtx); err != nil {
		return nil, err
	}

	tm, err := tx.NewManager(&tx.ManagerContext{
		Database: database,
		AM:       am,
		Registry: registry,
		Rounds:   rounds,
	})
	if err != nil {
		return nil, err
	}

	b := bus.New()
	pool, err := tx.NewPool(&tx.PoolContext{TM: tm, AM: am, Bus: b})
	if err != nil {
		return nil, err
	}

	lm, err := ledger.NewManager(&ledger.ManagerContext{
		Database: database,
		AM:       am,
		TM:       tm,
		Pool:     pool,
		Bus:      b,
	})
	if err != nil {
		return nil, err
	}

	pm, err := peer.NewManager(&peer.ManagerContext{
		Database: database,
		Version:  conf.Version,
		MaxPeers: conf.MaxPeers,
	})
	if err != nil {
		return nil, err
	}

	seq := sequence.New(conf.QueueSize)

	tp, err := transport.New(&transport.Context{
		Version:   conf.Version,
		OS:        conf.OS,
		Port:      conf.Port,
		SharePort: conf.SharePort,
		PM:        pm,
		TM:        tm,
		Pool:      pool,
		Ledger:    lm,
		Seq:       seq,
		Bus:       b,
		Retention: conf.MessageRetention,
	})
	if err != nil {
		return nil, err
	}
	client := transport.NewClient(tp.Headers(), peerTimeout)
	broadcaster := transport.NewBroadcaster(pm, client, conf.BroadcastLimit)
	loader := transport.NewLoader(pm, client, lm, seq)

	accounts, err := api.NewAccounts(am, tp)
	if err != nil {
		return nil, err
	}

	container := restful.NewContainer()
	tp.Register(container)
	container.Add(accounts.WebService())

	node := &Node{
		config:      conf,
		database:    database,
		am:          am,
		tm:          tm,
		pool:        pool,
		pm:          pm,
		lm:          lm,
		seq:         seq,
		bus:         b,
		transport:   tp,
		broadcaster: broadcaster,
		loader:      loader,
		server: &http.Server{
			Addr:    ":" + strconv.Itoa(conf.Port),
			Handler: container,
		},
		startTime:   time.Now().Unix(),
		stopChan:    make(chan struct{}),
		blockFuture: make(chan *future.Block),
		peerFuture:  make(chan *future.Peer),
	}
	return node, nil
}

// Start creates the genesis block of an empty chain, starts the
// subroutines and serves the http endpoints.
func (n *Node) Start() error {
	genesis := &types.Block{
		ID:        n.config.Genesis.ID,
		Height:    1,
		Timestamp: n.config.Genesis.Timestamp,
	}
	if err := n.lm.CreateGenesis(genesis, n.config.Genesis.Accounts); err != nil {
		return fmt.Errorf("create genesis block failed: %v", err)
	}

	n.bus.Subscribe(bus.TopicReceiveBlock, n.receiveBlock)
	n.broadcaster.Subscribe(n.bus)

	go n.eventLoop()

	for _, s := range n.config.Peers {
		pf := &future.Peer{Peer: &types.Peer{
			IP:      s.IP,
			Port:    s.Port,
			Version: n.config.Version,
			State:   types.PeerUnknown,
		}}
		pf.Init()
		n.peerFuture <- pf
		if err := pf.Error(); err != nil {
			log.Warnw("add seed peer failed", "ip", s.IP, "port", s.Port, "err", err)
		}
	}

	go n.serve()
	go n.load()
	return nil
}

// load syncs the chain from peers before opening the gate.
func (n *Node) load() {
	if err := n.loader.Sync(); err != nil {
		log.Warnw("initial block loading incomplete", "err", err)
	}
	n.transport.SetLoaded(true)
	log.Infow("blockchain ready", "height", n.lm.Height())
}

func (n *Node) receiveBlock(data interface{}) {
	block, ok := data.(*types.Block)
	if !ok {
		return
	}
	bf := &future.Block{Block: block}
	bf.Init()
	select {
	case n.blockFuture <- bf:
	case <-n.stopChan:
		return
	}
	if err := bf.Error(); err != nil {
		log.Warnw("process received block failed", "id", block.ID, "height", block.Height, "err", err)
	}
}

// Event loop for processing blocks and peers discovered at runtime.
func (n *Node) eventLoop() {
	for {
		select {
		case bf := <-n.blockFuture:
			err := n.seq.Add(func() error { return n.lm.ProcessBlock(bf.Block) })
			bf.Respond(err)
		case pf := <-n.peerFuture:
			_, err := n.pm.Update(pf.Peer)
			pf.Respond(err)
		case <-n.stopChan:
			log.Info("shutdown event loop")
			return
		}
	}
}

func (n *Node) serve() {
	log.Infof("start to serve http server on %s", n.server.Addr)
	if err := n.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("serve http failed: %v", err)
	}
}

// Stop shuts the node down by signaling all the goroutines to stop
func (n *Node) Stop() {
	close(n.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), peerTimeout)
	defer cancel()
	if err := n.server.Shutdown(ctx); err != nil {
		log.Errorf("shutdown http server failed: %v", err)
	}

	n.seq.Stop()
	n.bus.Wait()
	if err := n.database.Close(); err != nil {
		log.Errorf("close database failed: %v", err)
	}
	log.Infow("node stopped", "uptime", time.Now().Unix()-n.startTime)
}
