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

// Package api serves the read-only accounts API of the node.
package api

import (
	"fmt"
	"net/http"

	"github.com/emicklei/go-restful"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/tx/op"
	"github.com/ultiledger/go-ultidpos/types"
)

// Gate tells whether the chain finished loading.
type Gate interface {
	Loaded() bool
}

// Accounts serves /api/accounts.
type Accounts struct {
	am   *account.Manager
	gate Gate
}

func NewAccounts(am *account.Manager, gate Gate) (*Accounts, error) {
	if am == nil {
		return nil, fmt.Errorf("account manager is nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("gate is nil")
	}
	return &Accounts{am: am, gate: gate}, nil
}

type secretBody struct {
	Secret string `json:"secret"`
}

func (a *Accounts) WebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/api/accounts").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	ws.Filter(a.gateFilter)

	ws.Route(ws.GET("/").To(a.getAccount))
	ws.Route(ws.GET("/getBalance").To(a.getBalance))
	ws.Route(ws.GET("/getPublicKey").To(a.getPublicKey))
	ws.Route(ws.POST("/generatePublicKey").To(a.generatePublicKey))
	ws.Route(ws.GET("/delegates").To(a.getDelegates))
	ws.Route(ws.GET("/delegates/fee").To(a.getDelegatesFee))
	ws.Route(ws.GET("/username/get").To(a.getByUsername))
	ws.Route(ws.GET("/username/fee").To(a.getUsernameFee))
	ws.Route(ws.GET("/count").To(a.getCount))
	return ws
}

func writeError(resp *restful.Response, status int, msg string) {
	resp.SetRequestAccepts(restful.MIME_JSON)
	resp.WriteHeaderAndEntity(status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

func writeOK(resp *restful.Response, entity map[string]interface{}) {
	resp.SetRequestAccepts(restful.MIME_JSON)
	entity["success"] = true
	resp.WriteHeaderAndEntity(http.StatusOK, entity)
}

func (a *Accounts) gateFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if !a.gate.Loaded() {
		writeError(resp, http.StatusInternalServerError, "Blockchain is loading")
		return
	}
	chain.ProcessFilter(req, resp)
}

// lookup resolves the account named by the address query parameter,
// it writes the failure itself and returns nil then.
func (a *Accounts) lookup(req *restful.Request, resp *restful.Response) *types.Account {
	address := req.QueryParameter("address")
	if !crypto.IsAddress(address) {
		writeError(resp, http.StatusOK, "Invalid address")
		return nil
	}
	acc, err := a.am.Get(account.Filter{Address: address})
	if err != nil {
		log.Errorw("get account failed", "address", address, "err", err)
		writeError(resp, http.StatusOK, "Error in db")
		return nil
	}
	if acc == nil {
		writeError(resp, http.StatusOK, "Account not found")
		return nil
	}
	return acc
}

func (a *Accounts) getAccount(req *restful.Request, resp *restful.Response) {
	if acc := a.lookup(req, resp); acc != nil {
		writeOK(resp, map[string]interface{}{"account": acc})
	}
}

func (a *Accounts) getBalance(req *restful.Request, resp *restful.Response) {
	address := req.QueryParameter("address")
	if !crypto.IsAddress(address) {
		writeError(resp, http.StatusOK, "Invalid address")
		return
	}
	acc, err := a.am.Get(account.Filter{Address: address})
	if err != nil {
		writeError(resp, http.StatusOK, "Error in db")
		return
	}
	// unknown accounts hold nothing
	var balance, unconfirmed int64
	if acc != nil {
		balance, unconfirmed = acc.Balance, acc.UBalance
	}
	writeOK(resp, map[string]interface{}{
		"balance":            account.FormatBalance(balance),
		"unconfirmedBalance": account.FormatBalance(unconfirmed),
	})
}

func (a *Accounts) getPublicKey(req *restful.Request, resp *restful.Response) {
	acc := a.lookup(req, resp)
	if acc == nil {
		return
	}
	if acc.PublicKey == "" {
		writeError(resp, http.StatusOK, "Account does not have a public key")
		return
	}
	writeOK(resp, map[string]interface{}{"publicKey": acc.PublicKey})
}

func (a *Accounts) generatePublicKey(req *restful.Request, resp *restful.Response) {
	body := &secretBody{}
	if err := req.ReadEntity(body); err != nil || body.Secret == "" || len(body.Secret) > 100 {
		writeError(resp, http.StatusOK, "Invalid secret")
		return
	}
	kp := crypto.KeypairFromSecret(body.Secret)
	writeOK(resp, map[string]interface{}{"publicKey": kp.PublicKeyHex()})
}

func (a *Accounts) getDelegates(req *restful.Request, resp *restful.Response) {
	acc := a.lookup(req, resp)
	if acc == nil {
		return
	}
	delegates := acc.Delegates
	if delegates == nil {
		delegates = []string{}
	}
	writeOK(resp, map[string]interface{}{"delegates": delegates})
}

func (a *Accounts) getDelegatesFee(req *restful.Request, resp *restful.Response) {
	writeOK(resp, map[string]interface{}{"fee": op.VoteFee})
}

func (a *Accounts) getByUsername(req *restful.Request, resp *restful.Response) {
	username := req.QueryParameter("username")
	if username == "" || len(username) > op.MaxAliasLength {
		writeError(resp, http.StatusOK, "Invalid username")
		return
	}
	acc, err := a.am.Get(account.Filter{Username: username})
	if err != nil {
		writeError(resp, http.StatusOK, "Error in db")
		return
	}
	if acc == nil {
		writeError(resp, http.StatusOK, "Account not found")
		return
	}
	writeOK(resp, map[string]interface{}{"account": acc})
}

func (a *Accounts) getUsernameFee(req *restful.Request, resp *restful.Response) {
	writeOK(resp, map[string]interface{}{"fee": op.UsernameFee})
}

func (a *Accounts) getCount(req *restful.Request, resp *restful.Response) {
	n, err := a.am.Count()
	if err != nil {
		writeError(resp, http.StatusOK, "Error in db")
		return
	}
	writeOK(resp, map[string]interface{}{"count": n})
}
