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
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/types"
)

func baseConfig(port int) *viper.Viper {
	v := viper.New()
	v.Set("port", port)
	v.Set("version", "0.1.0")
	v.Set("db_backend", "memdb")
	v.Set("db_path", "unused")
	return v
}

func TestNewConfig(t *testing.T) {
	v := baseConfig(7000)
	v.Set("peers", []string{"10.0.0.1:7000", "10.0.0.2:7001"})
	v.Set("message_retention", "30m")
	v.Set("genesis.accounts", []map[string]interface{}{
		{"public_key": crypto.KeypairFromSecret("g").PublicKeyHex(), "balance": 100},
	})

	c, err := NewConfig(v)
	assert.NoError(t, err)
	assert.Equal(t, 7000, c.Port)
	assert.Equal(t, DefaultMaxPeers, c.MaxPeers)
	assert.Equal(t, DefaultQueueSize, c.QueueSize)
	assert.Equal(t, DefaultBroadcastLimit, c.BroadcastLimit)
	assert.Equal(t, 30*time.Minute, c.MessageRetention)
	assert.Equal(t, []Seed{{IP: "10.0.0.1", Port: 7000}, {IP: "10.0.0.2", Port: 7001}}, c.Peers)
	assert.Equal(t, DefaultGenesisID, c.Genesis.ID)
	assert.Len(t, c.Genesis.Accounts, 1)
	assert.Equal(t, int64(100), c.Genesis.Accounts[0].Balance)
}

func TestNewConfigRejects(t *testing.T) {
	missing := []string{"port", "version", "db_backend", "db_path"}
	for _, key := range missing {
		v := baseConfig(7000)
		v.Set(key, "")
		_, err := NewConfig(v)
		assert.Error(t, err, key)
	}

	v := baseConfig(70000)
	_, err := NewConfig(v)
	assert.Error(t, err)

	v = baseConfig(7000)
	v.Set("peers", []string{"nohost"})
	_, err = NewConfig(v)
	assert.Error(t, err)

	v = baseConfig(7000)
	v.Set("peers", []string{"10.0.0.1:0"})
	_, err = NewConfig(v)
	assert.Error(t, err)

	v = baseConfig(7000)
	v.Set("genesis.accounts", []map[string]interface{}{{"balance": 1}})
	_, err = NewConfig(v)
	assert.Error(t, err)
}

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNodeLifecycle(t *testing.T) {
	port := freePort(t)
	kp := crypto.KeypairFromSecret("genesis")
	v := baseConfig(port)
	v.Set("genesis.accounts", []map[string]interface{}{
		{"public_key": kp.PublicKeyHex(), "balance": 5 * types.FixedPoint},
	})
	conf, err := NewConfig(v)
	assert.NoError(t, err)

	n, err := NewNode(conf)
	assert.NoError(t, err)
	assert.NoError(t, n.Start())
	defer n.Stop()

	assert.Equal(t, uint64(1), n.lm.Height())
	acc, err := n.am.Get(account.Filter{PublicKey: kp.PublicKeyHex()})
	assert.NoError(t, err)
	assert.Equal(t, 5*types.FixedPoint, acc.Balance)

	// the gate opens once loading finished, without peers it is immediate
	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/api/accounts/count"
	var out map[string]interface{}
	for i := 0; i < 50; i++ {
		resp, err := http.Get(url)
		if err == nil {
			out = nil
			json.NewDecoder(resp.Body).Decode(&out)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(1), out["count"])
}
