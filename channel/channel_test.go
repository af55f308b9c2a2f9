// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package channel_test

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/channel"
	"github.com/creachadair/taskgroup"
	"github.com/google/go-cmp/cmp"
)

func TestDirect(t *testing.T) {
	c, s := channel.Direct()

	g := taskgroup.New(nil)
	g.Go(func() error {
		f := &fibre.Frame{Type: fibre.FrameCancel, Payload: []byte{1, 0, 0, 0}}
		if err := c.Send(f); err != nil {
			t.Errorf("A Send: %v", err)
		}
		got, err := c.Recv()
		if err != nil {
			t.Errorf("A Recv: %v", err)
		}
		if got != f {
			t.Errorf("Frame: got %v, want %v", got, f)
		}
		return nil
	})
	g.Go(func() error {
		f, err := s.Recv()
		if err != nil {
			t.Errorf("B Recv: %v", err)
		}
		if err := s.Send(f); err != nil {
			t.Errorf("B Send: %v", err)
		}
		return nil
	})
	g.Wait()

	if err := c.Close(); err != nil {
		t.Errorf("c.Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("s.Close: %v", err)
	}

	if err := c.Send(nil); err == nil {
		t.Error("c.Send after close did not report an error")
	}
	if f, err := c.Recv(); err == nil {
		t.Errorf("c.Recv after close: got %+v", f)
	} else {
		t.Logf("Error OK: %v", err)
	}
	if f, err := s.Recv(); err == nil {
		t.Errorf("s.Recv after close: got %+v", f)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func TestIO(t *testing.T) {
	var buf bytes.Buffer
	ch := channel.IO(&buf, nopCloser{&buf})

	frames := []*fibre.Frame{
		{Type: fibre.FrameCall, Payload: fibre.CallFrame{
			CallID: 1, EndpointID: 0xabcdef01, Flags: fibre.FlagFinal, Data: []byte("hi"),
		}.Encode()},
		{Type: fibre.FrameData, Payload: fibre.DataFrame{CallID: 1, Data: []byte("more")}.Encode()},
		{Type: fibre.FrameResult, Payload: fibre.Result{CallID: 1, Code: fibre.CodeSuccess}.Encode()},
	}
	for _, f := range frames {
		if err := ch.Send(f); err != nil {
			t.Fatalf("Send %v: %v", f, err)
		}
	}
	for _, want := range frames {
		got, err := ch.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Frame (-want, +got):\n%s", diff)
		}
	}
	if f, err := ch.Recv(); err == nil {
		t.Errorf("Recv at end: got %v, want error", f)
	}
}

func TestIOLimit(t *testing.T) {
	var buf bytes.Buffer
	ch := channel.IO(&buf, nopCloser{&buf}).WithLimit(4)

	if err := ch.Send(&fibre.Frame{Type: fibre.FrameData, Payload: []byte("0123456789")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	f, err := ch.Recv()
	if err == nil || !strings.Contains(err.Error(), "too long") {
		t.Errorf("Recv: got (%v, %v), want payload too long", f, err)
	}
}

func TestIONet(t *testing.T) {
	c1, c2 := net.Pipe()
	a, b := channel.IO(c1, c1), channel.IO(c2, c2)

	want := &fibre.Frame{Type: fibre.FrameCancel, Payload: fibre.CancelFrame{CallID: 25}.Encode()}
	g := taskgroup.New(nil)
	g.Go(func() error { return a.Send(want) })

	got, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Frame (-want, +got):\n%s", diff)
	}

	a.Close()
	if f, err := b.Recv(); err == nil {
		t.Errorf("Recv after close: got %v, want error", f)
	}
}
