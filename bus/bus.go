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

// Package bus is the in-process application message bus. Handlers of a
// topic run asynchronously so a publisher never waits for consumers.
package bus

import (
	"sync"
)

const (
	// a normalized block received from a peer
	TopicReceiveBlock = "receiveBlock"
	// an inter-node application message
	TopicMessage = "message"
	// a transaction accepted into the unconfirmed pool
	TopicUnconfirmedTransaction = "unconfirmedTransaction"
	// a block applied to the ledger
	TopicNewBlock = "newBlock"
)

type Handler func(data interface{})

type Bus struct {
	lock     sync.RWMutex
	handlers map[string][]Handler

	// running handlers
	wg sync.WaitGroup
}

func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(topic string, h Handler) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish dispatches data to every handler of the topic in its own
// goroutine and returns immediately.
func (b *Bus) Publish(topic string, data interface{}) {
	b.lock.RLock()
	handlers := b.handlers[topic]
	b.lock.RUnlock()
	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(data)
		}(h)
	}
}

// Wait blocks until every dispatched handler returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}
