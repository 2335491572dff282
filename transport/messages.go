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
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/emicklei/go-restful"
	"github.com/wunderlist/ttlcache"

	"github.com/ultiledger/go-ultidpos/bus"
	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrUnknownDapp  = errors.New("unknown dapp")
	ErrHashMismatch = types.NewError(types.HashMismatch, "wrong hash sum")
)

// DappHandler serves the messages and requests addressed to one
// application.
type DappHandler interface {
	Message(body json.RawMessage) (map[string]interface{}, error)
	Request(method, path string, query map[string]interface{}) (map[string]interface{}, error)
}

// Dapps routes inter-node application traffic.
type Dapps interface {
	Message(dappID string, body json.RawMessage) (map[string]interface{}, error)
	Request(dappID, method, path string, query map[string]interface{}) (map[string]interface{}, error)
}

// LocalDapps dispatches to the applications installed on this node.
type LocalDapps struct {
	mu       sync.RWMutex
	handlers map[string]DappHandler
}

func (d *LocalDapps) Install(dappID string, h DappHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[string]DappHandler)
	}
	d.handlers[dappID] = h
}

func (d *LocalDapps) handler(dappID string) (DappHandler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[dappID]
	if !ok {
		return nil, ErrUnknownDapp
	}
	return h, nil
}

func (d *LocalDapps) Message(dappID string, body json.RawMessage) (map[string]interface{}, error) {
	h, err := d.handler(dappID)
	if err != nil {
		return nil, err
	}
	return h.Message(body)
}

func (d *LocalDapps) Request(dappID, method, path string, query map[string]interface{}) (map[string]interface{}, error) {
	h, err := d.handler(dappID)
	if err != nil {
		return nil, err
	}
	return h.Request(method, path, query)
}

// Message is an inter-node application message, Hash covers the
// compacted Body followed by the decimal Timestamp.
type Message struct {
	DappID    string          `json:"dappid"`
	Timestamp int64           `json:"timestamp"`
	Hash      string          `json:"hash"`
	Body      json.RawMessage `json:"body"`
}

// Verify checks the integrity hash of the message.
func (m *Message) Verify() error {
	var compacted bytes.Buffer
	if len(m.Body) > 0 {
		if err := json.Compact(&compacted, m.Body); err != nil {
			return err
		}
	}
	if crypto.MessageHash(compacted.Bytes(), m.Timestamp) != m.Hash {
		return ErrHashMismatch
	}
	return nil
}

// seenSet remembers message hashes for a retention window.
type seenSet struct {
	mu    sync.Mutex
	cache *ttlcache.Cache
}

func newSeenSet(retention time.Duration) *seenSet {
	return &seenSet{cache: ttlcache.NewCache(retention)}
}

// Add records hash and reports whether it was not seen before.
func (s *seenSet) Add(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Get(hash); ok {
		return false
	}
	s.cache.Set(hash, hash)
	return true
}

// readMessage decodes and checks a message, a non-nil entity is the
// rejection to answer with.
func readMessage(req *restful.Request) (*Message, map[string]interface{}) {
	m := &Message{}
	if err := req.ReadEntity(m); err != nil {
		return nil, map[string]interface{}{"success": false, "message": err.Error()}
	}
	if m.DappID == "" {
		return nil, map[string]interface{}{"success": false, "message": "missed dappid"}
	}
	if m.Timestamp == 0 || m.Hash == "" {
		return nil, map[string]interface{}{"success": false, "message": "missed hash sum"}
	}
	if err := m.Verify(); err != nil {
		return nil, map[string]interface{}{"success": false, "message": "wrong hash sum"}
	}
	return m, nil
}

func merged(body map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	out["success"] = true
	return out
}

func (t *Transport) dappMessage(req *restful.Request, resp *restful.Response) {
	m, reject := readMessage(req)
	if reject != nil {
		writeOK(resp, reject)
		return
	}
	if !t.seen.Add(m.Hash) {
		writeOK(resp, map[string]interface{}{"success": true})
		return
	}
	body, err := t.dapps.Message(m.DappID, m.Body)
	if err != nil {
		log.Debugw("dapp message rejected", "dappid", m.DappID, "err", err)
		writeOK(resp, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	t.bus.Publish(bus.TopicMessage, m)
	writeOK(resp, merged(body))
}

type requestBody struct {
	Method string                 `json:"method"`
	Path   string                 `json:"path"`
	Query  map[string]interface{} `json:"query"`
}

func (t *Transport) dappRequest(req *restful.Request, resp *restful.Response) {
	m, reject := readMessage(req)
	if reject != nil {
		writeOK(resp, reject)
		return
	}
	if !t.seen.Add(m.Hash) {
		writeOK(resp, map[string]interface{}{"success": true})
		return
	}
	rb := &requestBody{}
	if err := json.Unmarshal(m.Body, rb); err != nil {
		writeOK(resp, map[string]interface{}{"success": false, "message": "invalid request body"})
		return
	}
	body, err := t.dapps.Request(m.DappID, rb.Method, rb.Path, rb.Query)
	if err != nil {
		log.Debugw("dapp request rejected", "dappid", m.DappID, "err", err)
		writeOK(resp, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	writeOK(resp, merged(body))
}
