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
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/emicklei/go-restful"

	"github.com/ultiledger/go-ultidpos/bus"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/types"
)

var blockIDPattern = regexp.MustCompile(`^[0-9]+$`)

type blockBody struct {
	Block *types.Block `json:"block"`
}

type transactionBody struct {
	Transaction *types.Transaction `json:"transaction"`
}

type signatureBody struct {
	Signature *struct {
		Transaction string `json:"transaction"`
		Signature   string `json:"signature"`
	} `json:"signature"`
}

func writeOK(resp *restful.Response, entity map[string]interface{}) {
	resp.SetRequestAccepts(restful.MIME_JSON)
	resp.WriteHeaderAndEntity(http.StatusOK, entity)
}

func (t *Transport) listPeers(req *restful.Request, resp *restful.Response) {
	writeOK(resp, map[string]interface{}{"peers": t.pm.List(ListLimit, 0)})
}

func (t *Transport) commonBlock(req *restful.Request, resp *restful.Response) {
	max, errMax := strconv.ParseUint(req.QueryParameter("max"), 10, 64)
	min, errMin := strconv.ParseUint(req.QueryParameter("min"), 10, 64)
	idsParam := req.QueryParameter("ids")
	if errMax != nil || errMin != nil || idsParam == "" {
		writeOK(resp, map[string]interface{}{"success": false, "error": "max, min and ids are required"})
		return
	}

	parts := strings.Split(idsParam, ",")
	if len(parts) > MaxCommonIDs {
		t.ban(req, types.NewError(types.ProtocolViolation, "too many block ids"))
		writeOK(resp, map[string]interface{}{"success": false, "error": "Too many block ids"})
		return
	}
	var ids []string
	for _, id := range parts {
		if blockIDPattern.MatchString(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		t.ban(req, types.NewError(types.ProtocolViolation, "invalid block id sequence"))
		writeOK(resp, map[string]interface{}{"success": false, "error": "Invalid block id sequence"})
		return
	}

	common, err := t.ledger.CommonBlock(ids, min, max)
	if err != nil {
		log.Errorw("lookup common block failed", "err", err)
		writeOK(resp, map[string]interface{}{"success": false, "error": "Error in db"})
		return
	}
	writeOK(resp, map[string]interface{}{"success": true, "common": common})
}

func (t *Transport) getBlocks(req *restful.Request, resp *restful.Response) {
	lastID := req.QueryParameter("lastBlockId")
	if lastID != "" && !blockIDPattern.MatchString(lastID) {
		writeOK(resp, map[string]interface{}{"blocks": []*types.Block{}})
		return
	}
	blocks, err := t.ledger.LoadBlocks(lastID, BlocksLimit)
	if err != nil {
		log.Debugw("load blocks failed", "lastBlockId", lastID, "err", err)
		blocks = []*types.Block{}
	}
	writeOK(resp, map[string]interface{}{"blocks": blocks})
}

// postBlock answers success for malformed blocks too, the sender is
// banned instead.
func (t *Transport) postBlock(req *restful.Request, resp *restful.Response) {
	body := &blockBody{}
	if err := req.ReadEntity(body); err != nil || body.Block == nil {
		t.ban(req, types.NewError(types.ProtocolViolation, "undecodable block"))
		writeOK(resp, map[string]interface{}{"success": true})
		return
	}
	block, err := t.ledger.NormalizeBlock(body.Block)
	if err != nil {
		t.ban(req, err)
		writeOK(resp, map[string]interface{}{"success": true})
		return
	}
	t.bus.Publish(bus.TopicReceiveBlock, block)
	writeOK(resp, map[string]interface{}{"success": true})
}

func (t *Transport) postSignature(req *restful.Request, resp *restful.Response) {
	body := &signatureBody{}
	if err := req.ReadEntity(body); err != nil || body.Signature == nil ||
		body.Signature.Transaction == "" || body.Signature.Signature == "" {
		writeOK(resp, map[string]interface{}{"success": false, "error": "Validation error"})
		return
	}
	sig := body.Signature
	err := t.seq.Add(func() error {
		return t.pool.ProcessSignature(sig.Transaction, sig.Signature)
	})
	if err != nil {
		log.Debugw("process signature failed", "tx", sig.Transaction, "err", err)
		writeOK(resp, map[string]interface{}{"success": false, "error": "Process signature error"})
		return
	}
	writeOK(resp, map[string]interface{}{"success": true})
}

func (t *Transport) getSignatures(req *restful.Request, resp *restful.Response) {
	writeOK(resp, map[string]interface{}{"success": true, "signatures": t.pool.Signatures()})
}

func (t *Transport) getTransactions(req *restful.Request, resp *restful.Response) {
	writeOK(resp, map[string]interface{}{"transactions": t.pool.List()})
}

func (t *Transport) postTransaction(req *restful.Request, resp *restful.Response) {
	body := &transactionBody{}
	if err := req.ReadEntity(body); err != nil || body.Transaction == nil {
		t.ban(req, types.NewError(types.ProtocolViolation, "undecodable transaction"))
		writeOK(resp, map[string]interface{}{"success": false, "message": "Invalid transaction body"})
		return
	}
	trs, err := t.tm.ObjectNormalize(body.Transaction)
	if err != nil {
		t.ban(req, err)
		writeOK(resp, map[string]interface{}{"success": false, "message": "Invalid transaction body"})
		return
	}
	err = t.seq.Add(func() error {
		return t.pool.ReceiveTransactions([]*types.Transaction{trs}, true)
	})
	if err != nil {
		log.Debugw("receive transaction failed", "tx", trs.ID, "err", err)
		writeOK(resp, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	writeOK(resp, map[string]interface{}{"success": true})
}

func (t *Transport) getHeight(req *restful.Request, resp *restful.Response) {
	writeOK(resp, map[string]interface{}{"height": t.ledger.Height()})
}
