// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package channel provides implementations of the fibre.Channel interface.
package channel

import (
	"bufio"
	"io"
	"net"

	"github.com/creachadair/fibre"
)

// Direct constructs a connected pair of in-memory channels that pass frames
// directly without encoding into binary. Frames sent to A are received by B
// and vice versa.
func Direct() (A, B fibre.Channel) {
	a2b := make(chan *fibre.Frame)
	b2a := make(chan *fibre.Frame)
	A = direct{a2b: a2b, b2a: b2a}
	B = direct{a2b: b2a, b2a: a2b}
	return
}

type direct struct {
	a2b chan<- *fibre.Frame
	b2a <-chan *fibre.Frame
}

// Send implements a method of the [fibre.Channel] interface.
func (d direct) Send(f *fibre.Frame) (err error) {
	defer safeClose(&err)
	d.a2b <- f
	return nil
}

// Recv implements a method of the [fibre.Channel] interface.
func (d direct) Recv() (*fibre.Frame, error) {
	f, ok := <-d.b2a
	if !ok {
		return nil, net.ErrClosed
	}
	return f, nil
}

// Close implements a method of the [fibre.Channel] interface.
func (d direct) Close() (err error) {
	defer safeClose(&err)
	close(d.a2b)
	return nil
}

func safeClose(err *error) {
	if x := recover(); x != nil && *err == nil {
		*err = net.ErrClosed
	}
}

// IO constructs a channel that receives from r and sends to wc. Received
// frames may carry at most [fibre.MaxPayload] bytes of payload.
func IO(r io.Reader, wc io.WriteCloser) IOChannel {
	// N.B. The bufio package will reuse existing buffers if possible.
	return IOChannel{r: bufio.NewReader(r), w: bufio.NewWriter(wc), c: wc, max: fibre.MaxPayload}
}

// An IOChannel sends and receives frames on a reader and a writer.
type IOChannel struct {
	r   *bufio.Reader
	w   *bufio.Writer
	c   io.Closer
	max int
}

// WithLimit returns a copy of c that rejects received frames whose payload
// exceeds n bytes. If n ≤ 0, the limit is [fibre.MaxPayload].
func (c IOChannel) WithLimit(n int) IOChannel {
	if n <= 0 {
		n = fibre.MaxPayload
	}
	c.max = n
	return c
}

// Send implements a method of the [fibre.Channel] interface.
func (c IOChannel) Send(f *fibre.Frame) error {
	if _, err := f.WriteTo(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

// Recv implements a method of the [fibre.Channel] interface.
func (c IOChannel) Recv() (*fibre.Frame, error) {
	var f fibre.Frame
	if _, err := f.ReadLimit(c.r, c.max); err != nil {
		return nil, err
	}
	return &f, nil
}

// Close implements a method of the [fibre.Channel] interface.
func (c IOChannel) Close() error { return c.c.Close() }
