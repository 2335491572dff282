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
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/emicklei/go-restful"

	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/peer"
	"github.com/ultiledger/go-ultidpos/types"
)

// request attribute holding the origin of a peer request
const originAttr = "origin"

// origin identifies the remote node of a request.
type origin struct {
	IP   string
	Port int
}

func (o *origin) loopback() bool {
	return peer.IsLoopback(o.IP)
}

// requestIP resolves the ip of the remote node. X-Forwarded-For is only
// honored when the socket peer is a local reverse proxy.
func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !peer.IsLoopback(host) {
		return host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return host
}

// parseHeaders validates the header contract of a peer request.
func parseHeaders(h http.Header) (*Headers, error) {
	port, err := strconv.Atoi(h.Get("port"))
	if err != nil || port < peer.MinPort || port > peer.MaxPort {
		return nil, types.NewError(types.SchemaViolation, "header port must be an integer in 1..65535")
	}
	sharePort, err := strconv.Atoi(h.Get("share-port"))
	if err != nil || (sharePort != 0 && sharePort != 1) {
		return nil, types.NewError(types.SchemaViolation, "header share-port must be 0 or 1")
	}
	version := h.Get("version")
	if version == "" || len(version) > MaxVersionLength {
		return nil, types.NewError(types.SchemaViolation, "header version is missing or too long")
	}
	os := h.Get("os")
	if len(os) > MaxOSLength {
		return nil, types.NewError(types.SchemaViolation, "header os is too long")
	}
	return &Headers{
		Port:      port,
		OS:        os,
		Version:   version,
		SharePort: sharePort == 1,
	}, nil
}

func writeError(resp *restful.Response, status int, msg string) {
	resp.SetRequestAccepts(restful.MIME_JSON)
	resp.WriteHeaderAndEntity(status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

func (t *Transport) localHeadersFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	for k, v := range t.headers.Map() {
		resp.AddHeader(k, v)
	}
	chain.ProcessFilter(req, resp)
}

func (t *Transport) gateFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if !t.Loaded() {
		writeError(resp, http.StatusInternalServerError, "Blockchain is loading")
		return
	}
	chain.ProcessFilter(req, resp)
}

// headerFilter validates the headers of non-loopback requests and
// admits the sender into the peer registry.
func (t *Transport) headerFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	ip := requestIP(req.Request)
	if ip == "" {
		writeError(resp, http.StatusInternalServerError, "Wrong header data")
		return
	}
	o := &origin{IP: ip}
	o.Port, _ = strconv.Atoi(req.HeaderParameter("port"))
	req.SetAttribute(originAttr, o)

	if o.loopback() {
		chain.ProcessFilter(req, resp)
		return
	}

	headers, err := parseHeaders(req.Request.Header)
	if err != nil {
		log.Debugw("invalid peer headers", "ip", ip, "err", err)
		writeError(resp, http.StatusInternalServerError, err.Error())
		return
	}

	p := &types.Peer{
		IP:        ip,
		Port:      headers.Port,
		Version:   headers.Version,
		OS:        headers.OS,
		SharePort: headers.SharePort,
		State:     types.PeerConnected,
	}
	if _, err := t.pm.Update(p); err != nil {
		log.Warnw("admit peer failed", "ip", ip, "port", headers.Port, "err", err)
	}
	chain.ProcessFilter(req, resp)
}

// ban penalizes the origin of the request.
func (t *Transport) ban(req *restful.Request, reason error) {
	o, ok := req.Attribute(originAttr).(*origin)
	if !ok {
		return
	}
	log.Warnw("banning peer", "ip", o.IP, "port", o.Port, "reason", reason)
	if err := t.pm.Ban(o.IP, o.Port, BanSeconds); err != nil {
		log.Warnw("ban peer failed", "ip", o.IP, "port", o.Port, "err", err)
	}
}

// notFound answers requests no route matched.
func notFound(serr restful.ServiceError, req *restful.Request, resp *restful.Response) {
	if serr.Code == http.StatusNotFound {
		writeError(resp, http.StatusInternalServerError, "API endpoint not found")
		return
	}
	writeError(resp, serr.Code, serr.Message)
}
