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

// Package transport implements the peer protocol of the node: the
// /peer HTTP endpoints, peer admission and ban policy, and the relay of
// blocks, transactions and application messages to other peers.
package transport

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emicklei/go-restful"

	"github.com/ultiledger/go-ultidpos/ledger"
	"github.com/ultiledger/go-ultidpos/peer"
	"github.com/ultiledger/go-ultidpos/sequence"
	"github.com/ultiledger/go-ultidpos/tx"
)

const (
	// seconds a misbehaving peer stays banned
	BanSeconds   = 3600
	// peers returned by /list
	ListLimit    = 100
	// blocks returned by /blocks
	BlocksLimit  = 1440
	// block ids accepted by /blocks/common
	MaxCommonIDs = 5

	MaxVersionLength = 11
	MaxOSLength      = 64
)

// Context represents contextual information Transport needs
type Context struct {
	Version   string // protocol version
	OS        string // os reported to peers
	Port      int    // port reported to peers
	SharePort bool   // whether peers may share our port

	PM     *peer.Manager
	TM     *tx.Manager
	Pool   *tx.Pool
	Ledger *ledger.Manager
	Seq    *sequence.Sequence
	Bus    tx.Publisher
	Dapps  Dapps

	// retention window of the message seen-set
	Retention time.Duration
}

func ValidateContext(ctx *Context) error {
	if ctx == nil {
		return fmt.Errorf("transport context is nil")
	}
	if ctx.Version == "" || len(ctx.Version) > MaxVersionLength {
		return fmt.Errorf("invalid version %q", ctx.Version)
	}
	if ctx.Port < peer.MinPort || ctx.Port > peer.MaxPort {
		return fmt.Errorf("invalid port %d", ctx.Port)
	}
	if ctx.PM == nil {
		return fmt.Errorf("peer manager is nil")
	}
	if ctx.TM == nil {
		return fmt.Errorf("tx manager is nil")
	}
	if ctx.Pool == nil {
		return fmt.Errorf("tx pool is nil")
	}
	if ctx.Ledger == nil {
		return fmt.Errorf("ledger manager is nil")
	}
	if ctx.Seq == nil {
		return fmt.Errorf("sequence is nil")
	}
	if ctx.Bus == nil {
		return fmt.Errorf("bus is nil")
	}
	if ctx.Retention <= 0 {
		return fmt.Errorf("message retention is not positive")
	}
	return nil
}

// Transport serves the peer protocol.
type Transport struct {
	pm     *peer.Manager
	tm     *tx.Manager
	pool   *tx.Pool
	ledger *ledger.Manager
	seq    *sequence.Sequence
	bus    tx.Publisher
	dapps  Dapps

	// headers sent with every response and request
	headers Headers

	// inter-node messages already accepted
	seen *seenSet

	// set once the chain finished loading
	loaded int32
}

func New(ctx *Context) (*Transport, error) {
	if err := ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("transport context is invalid: %v", err)
	}
	t := &Transport{
		pm:     ctx.PM,
		tm:     ctx.TM,
		pool:   ctx.Pool,
		ledger: ctx.Ledger,
		seq:    ctx.Seq,
		bus:    ctx.Bus,
		dapps:  ctx.Dapps,
		headers: Headers{
			Port:      ctx.Port,
			OS:        ctx.OS,
			Version:   ctx.Version,
			SharePort: ctx.SharePort,
		},
		seen: newSeenSet(ctx.Retention),
	}
	if t.dapps == nil {
		t.dapps = &LocalDapps{}
	}
	return t, nil
}

// SetLoaded opens or closes the bootstrap gate.
func (t *Transport) SetLoaded(loaded bool) {
	var v int32
	if loaded {
		v = 1
	}
	atomic.StoreInt32(&t.loaded, v)
}

func (t *Transport) Loaded() bool {
	return atomic.LoadInt32(&t.loaded) == 1
}

// Headers returns the headers the node announces itself with.
func (t *Transport) Headers() Headers {
	return t.headers
}

// WebService builds the /peer web service.
func (t *Transport) WebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/peer").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	ws.Filter(t.localHeadersFilter)
	ws.Filter(t.gateFilter)
	ws.Filter(t.headerFilter)

	ws.Route(ws.GET("/list").To(t.listPeers))
	ws.Route(ws.GET("/blocks/common").To(t.commonBlock))
	ws.Route(ws.GET("/blocks").To(t.getBlocks))
	ws.Route(ws.POST("/blocks").To(t.postBlock))
	ws.Route(ws.GET("/signatures").To(t.getSignatures))
	ws.Route(ws.POST("/signatures").To(t.postSignature))
	ws.Route(ws.GET("/transactions").To(t.getTransactions))
	ws.Route(ws.POST("/transactions").To(t.postTransaction))
	ws.Route(ws.GET("/height").To(t.getHeight))
	ws.Route(ws.POST("/dapp/message").To(t.dappMessage))
	ws.Route(ws.POST("/dapp/request").To(t.dappRequest))
	return ws
}

// Headers is the header contract every peer request carries.
type Headers struct {
	Port      int
	OS        string
	Version   string
	SharePort bool
}

// Map renders the headers as HTTP header values.
func (h Headers) Map() map[string]string {
	sharePort := "0"
	if h.SharePort {
		sharePort = "1"
	}
	return map[string]string{
		"port":       strconv.Itoa(h.Port),
		"os":         h.OS,
		"version":    h.Version,
		"share-port": sharePort,
	}
}

// Register adds the /peer web service to the container.
func (t *Transport) Register(container *restful.Container) {
	container.Add(t.WebService())
	container.ServiceErrorHandler(notFound)
}
