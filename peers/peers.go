// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package peers provides support code for managing and testing nodes.
package peers

import (
	"context"
	"errors"
	"net"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/channel"
	"github.com/creachadair/taskgroup"
)

// Local is a pair of in-memory connected nodes, suitable for testing.
type Local struct {
	A *fibre.Node
	B *fibre.Node
}

// Stop shuts down both the nodes and blocks until both have exited.
func (p *Local) Stop() error {
	aerr := p.A.Stop()
	berr := p.B.Stop()
	if aerr != nil {
		return aerr
	}
	return berr
}

// NewLocal creates a pair of in-memory connected nodes, that communicate via a
// direct channel without encoding.
func NewLocal() *Local {
	a2b, b2a := channel.Direct()
	return &Local{
		A: fibre.NewNode().Start(a2b),
		B: fibre.NewNode().Start(b2a),
	}
}

// NewLocalWith is like NewLocal, but uses nodes constructed by newNode, which
// must return unstarted nodes. This allows the caller to register endpoints
// and set options before the nodes begin serving.
func NewLocalWith(newNode func() *fibre.Node) *Local {
	a2b, b2a := channel.Direct()
	return &Local{
		A: newNode().Start(a2b),
		B: newNode().Start(b2a),
	}
}

// An Accepter accepts channels from remote nodes.
type Accepter interface {
	Accept(context.Context) (fibre.Channel, error)
}

// Loop accepts connections from acc and starts a node constructed by newNode
// for each one in a goroutine. Loop continues until acc closes or ctx ends.
//
// When ctx terminates, all running nodes are stopped. When acc closes, the
// loop waits for running nodes to exit before returning.
func Loop(ctx context.Context, acc Accepter, newNode func() *fibre.Node) error {
	g := taskgroup.New(nil)
	for {
		ch, err := acc.Accept(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
			g.Wait()
			return err
		}

		g.Go(func() error {
			sctx, cancel := context.WithCancel(ctx)
			defer cancel()

			node := newNode().Start(ch)
			go func() { <-sctx.Done(); node.Stop() }()
			return node.Wait()
		})
	}
}

// NetAccepter adapts a net.Listener to the Accepter interface. Each accepted
// connection is wrapped in an IO channel whose received frames carry at most
// maxPayload bytes; if maxPayload ≤ 0 the limit is [fibre.MaxPayload].
func NetAccepter(lst net.Listener, maxPayload int) Accepter {
	return netAccepter{Listener: lst, max: maxPayload}
}

type netAccepter struct {
	net.Listener
	max int
}

func (n netAccepter) Accept(ctx context.Context) (fibre.Channel, error) {
	// A net.Listener does not obey a context, so simulate it by closing the
	// listener if ctx ends. The ok channel allows the context watcher to clean
	// up when we return before ctx ends.
	ok := make(chan struct{})
	defer close(ok)
	taskgroup.Go(func() error {
		select {
		case <-ctx.Done():
			n.Listener.Close()
		case <-ok:
			// release the waiter
		}
		return nil
	})

	conn, err := n.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return channel.IO(conn, conn).WithLimit(n.max), nil
}
