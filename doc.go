// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package fibre exposes ordinary Go functions as remotely callable endpoints
// over a compact little-endian binary wire format.
//
// # Signatures
//
// Every endpoint is described by a [Signature]: a function name and an ordered
// list of slots. Each slot has a name, a [Mode], and a [codec.Codec] that
// defines how its values appear on the wire:
//
//	sig := fibre.MustSignature("move_to",
//	   fibre.In("x", codec.Int32),
//	   fibre.In("y", codec.Int32),
//	   fibre.Out("moved", codec.Bool),
//	   fibre.Ret("dist", codec.Uint32),
//	)
//
// Input slots are decoded from the request; Output slots are storage the
// function fills through pointer parameters; ReturnValue slots are the
// function's own results. The response carries every Output value in slot
// order, followed by every ReturnValue in slot order.
//
// A signature has a cached JSON descriptor, reported by [Signature.JSON], and
// a stable [ID] derived from its full contents.
//
// # Endpoints
//
// An [Endpoint] binds a Go function to a signature:
//
//	ep := fibre.MustEndpoint(func(x, y int32, moved *bool) uint32 {
//	   *moved = x != 0 || y != 0
//	   return uint32(x*x + y*y)
//	}, sig)
//
// The function may accept a leading [context.Context] and may report a
// trailing error; neither is part of the signature. The function is called
// only after every input has been decoded. Inputs may arrive in any number of
// pieces; a [Call] tracks the progress of one invocation.
//
// # Nodes
//
// A [Node] serves endpoints to, and calls endpoints of, a remote node over a
// [Channel]. To create a node, register an endpoint, and start it:
//
//	n := fibre.NewNode()
//	n.Handle(ep)
//	n.Start(ch)
//
// The node runs until [Node.Stop] is called, the channel is closed by the
// remote node, or a protocol fatal error occurs. Call [Node.Wait] to wait for
// the node to exit and return its status.
//
// To call an endpoint of the remote node, use [Node.Invoke] with the same
// signature the remote node registered:
//
//	vals, err := n.Invoke(ctx, sig, int32(3), int32(4))
//	// vals == []any{true, uint32(25)}
//
// Errors returned by Invoke and [Node.Call] have concrete type [*CallError].
//
// An endpoint function that accepts a context may call back to the remote
// node using [ContextNode].
//
// # Metrics
//
// Nodes maintain a collection of metrics while running. Use [Node.Metrics] to
// obtain an [expvar.Map] of the metrics exported by the node. By default,
// metrics are shared among all nodes; use [Node.Detach] to give a node its
// own. The metrics currently exported include:
//
//   - frames_received: counter of frames received
//   - frames_sent: counter of frames sent
//   - frames_dropped: counter of frames received and discarded
//   - calls_in: counter of inbound calls received
//   - calls_in_failed: counter of inbound calls resulting in errors
//   - calls_active: gauge of inbound calls currently invoking
//   - calls_aborted: counter of inbound calls abandoned before invocation
//   - decode_failed: counter of inbound calls with malformed inputs
//   - encode_failed: counter of inbound calls whose results did not encode
//   - calls_out: counter of outbound calls sent
//   - calls_out_failed: counter of outbound calls resulting in errors
//   - cancels_in: counter of cancellations received
//   - calls_pending: gauge of outbound calls currently pending
package fibre
