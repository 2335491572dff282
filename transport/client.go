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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrPeerRejected = errors.New("peer rejected the request")
)

// Client talks to the /peer endpoints of remote nodes.
type Client struct {
	http    *http.Client
	headers Headers
	timeout time.Duration
}

func NewClient(headers Headers, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{},
		headers: headers,
		timeout: timeout,
	}
}

func (c *Client) do(p *types.Peer, method, path string, query url.Values, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	u := url.URL{Scheme: "http", Host: p.Addr(), Path: "/peer" + path}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encode request failed: %v", err)
		}
	}
	req, err := http.NewRequest(method, u.String(), &body)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers.Map() {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer %s answered %d: %v", p.Addr(), resp.StatusCode, ErrPeerRejected)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response failed: %v", err)
	}
	return nil
}

// Height queries the chain height of the peer.
func (c *Client) Height(p *types.Peer) (uint64, error) {
	out := struct {
		Height uint64 `json:"height"`
	}{}
	if err := c.do(p, http.MethodGet, "/height", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Height, nil
}

// CommonBlock asks the peer for the highest block among ids within
// [min, max], nil means no block is shared.
func (c *Client) CommonBlock(p *types.Peer, ids []string, min, max uint64) (*types.Block, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("min", strconv.FormatUint(min, 10))
	query.Set("max", strconv.FormatUint(max, 10))
	out := struct {
		Success bool         `json:"success"`
		Common  *types.Block `json:"common"`
	}{}
	if err := c.do(p, http.MethodGet, "/blocks/common", query, nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, ErrPeerRejected
	}
	return out.Common, nil
}

// Blocks downloads the blocks following lastID.
func (c *Client) Blocks(p *types.Peer, lastID string) ([]*types.Block, error) {
	query := url.Values{}
	query.Set("lastBlockId", lastID)
	out := struct {
		Blocks []*types.Block `json:"blocks"`
	}{}
	if err := c.do(p, http.MethodGet, "/blocks", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Blocks, nil
}

func (c *Client) PostTransaction(p *types.Peer, trs *types.Transaction) error {
	return c.do(p, http.MethodPost, "/transactions", nil, &transactionBody{Transaction: trs}, nil)
}

func (c *Client) PostBlock(p *types.Peer, block *types.Block) error {
	return c.do(p, http.MethodPost, "/blocks", nil, &blockBody{Block: block}, nil)
}

func (c *Client) PostMessage(p *types.Peer, m *Message) error {
	return c.do(p, http.MethodPost, "/dapp/message", nil, m, nil)
}
