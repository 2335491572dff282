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

// Package sequence serializes every ledger mutation through a single
// FIFO queue. Operations run one at a time to completion in the order
// they were added, read-only queries bypass the queue.
package sequence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ultiledger/go-ultidpos/future"
	"github.com/ultiledger/go-ultidpos/log"
)

var (
	ErrStopped = errors.New("sequence stopped")
)

type Sequence struct {
	queue chan *future.Mutation

	// guards stopped against concurrent Add
	lock    sync.RWMutex
	stopped bool

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(size int) *Sequence {
	s := &Sequence{
		queue:    make(chan *future.Mutation, size),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go s.run()
	return s
}

// Add enqueues fn and blocks until it finished, the error of fn is
// returned. A panic inside fn is recovered and reported as an error so
// that the queue keeps serving subsequent operations.
func (s *Sequence) Add(fn func() error) error {
	m := &future.Mutation{Fn: fn}
	m.Init()
	s.lock.RLock()
	if s.stopped {
		s.lock.RUnlock()
		return ErrStopped
	}
	s.queue <- m
	s.lock.RUnlock()
	return m.Error()
}

// Stop stops the worker, operations still queued fail with ErrStopped.
func (s *Sequence) Stop() {
	s.stopOnce.Do(func() {
		s.lock.Lock()
		s.stopped = true
		s.lock.Unlock()
		close(s.stopChan)
		<-s.doneChan
	})
}

func (s *Sequence) run() {
	defer close(s.doneChan)
	for {
		select {
		case <-s.stopChan:
			s.drain()
			return
		case m := <-s.queue:
			m.Respond(execute(m.Fn))
		}
	}
}

func (s *Sequence) drain() {
	for {
		select {
		case m := <-s.queue:
			m.Respond(ErrStopped)
		default:
			return
		}
	}
}

func execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("sequence operation panicked", "panic", r)
			err = fmt.Errorf("sequence operation panicked: %v", r)
		}
	}()
	return fn()
}
