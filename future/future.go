// Package future defines some futures as messages
// to communicate between the transport, the sequence and the node.
package future

import (
	"github.com/ultiledger/go-ultidpos/types"
)

type Future interface {
	Error() error
}

// Allow a future to respond an error in the future
type deferError struct {
	err       error
	errChan   chan error
	responded bool
}

// Every future should call this method to initialize
// underlying error channel
func (d *deferError) Init() {
	d.errChan = make(chan error, 1)
}

// Each future should respond error once and multiple
// calling with different error on the same future will
// have no effects.
func (d *deferError) Respond(err error) {
	if d.errChan == nil || d.responded {
		return
	}
	d.errChan <- err
	close(d.errChan)
	d.responded = true
}

// Error always return the first responded error
func (d *deferError) Error() error {
	if d.err != nil {
		return d.err
	}
	if d.errChan == nil {
		panic("waiting for response on nil channel")
	}
	d.err = <-d.errChan
	return d.err
}

// Future for the sequence to run a state mutation
type Mutation struct {
	deferError
	Fn func() error
}

// Future for the node to process a block received from a peer
type Block struct {
	deferError
	Block *types.Block
}

// Future for the node to register a discovered peer
type Peer struct {
	deferError
	Peer *types.Peer
}
