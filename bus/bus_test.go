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

package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublish(t *testing.T) {
	b := New()

	var mu sync.Mutex
	got := make(map[string][]interface{})
	record := func(name string) Handler {
		return func(data interface{}) {
			mu.Lock()
			defer mu.Unlock()
			got[name] = append(got[name], data)
		}
	}
	b.Subscribe(TopicNewBlock, record("a"))
	b.Subscribe(TopicNewBlock, record("b"))
	b.Subscribe(TopicMessage, record("c"))

	b.Publish(TopicNewBlock, 1)
	b.Publish(TopicReceiveBlock, 2)
	b.Wait()

	assert.Equal(t, []interface{}{1}, got["a"])
	assert.Equal(t, []interface{}{1}, got["b"])
	assert.Empty(t, got["c"])
}
