// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package fibre

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/fibre/codec"
	"github.com/creachadair/mds/value"
	"github.com/creachadair/taskgroup"
	"go.uber.org/zap"
)

// A Channel is a reliable ordered stream of frames shared by two nodes.
//
// The methods of an implementation must be safe for concurrent use by one
// sender and one receiver.
type Channel interface {
	// Send the frame in binary format to the receiver.
	Send(*Frame) error

	// Receive the next available frame from the channel.
	Recv() (*Frame, error)

	// Close the channel, causing any pending send or receive operations to
	// terminate and report an error. After a channel is closed, all further
	// operations on it must report an error.
	Close() error
}

// A FrameLogger logs a frame exchanged with the remote node.
type FrameLogger func(FrameInfo)

// A FrameInfo combines a frame and a flag indicating whether the frame was
// sent or received.
type FrameInfo struct {
	*Frame      // the frame being logged
	Sent   bool // whether the frame was sent (true) or received (false)
}

func (f FrameInfo) String() string {
	return fmt.Sprintf("%v %v", value.Cond(f.Sent, "send", "recv"), f.Frame)
}

// DefaultMaxInput is the default limit on the total encoded size of the
// inputs of an inbound call, summed over all its frames.
const DefaultMaxInput = MaxPayload

// DefaultMaxResult is the default limit on the encoded size of the results of
// an inbound call.
const DefaultMaxResult = MaxPayload - 5

// A Node serves calls to its endpoints from a remote node, and issues calls
// to the endpoints of the remote node. A zero-valued Node is ready for use,
// but must not be copied after any method has been called.
//
// Call Start with a channel to start the service routine for the node. Once
// started, a node runs until Stop is called, the channel closes, or a
// protocol fatal error occurs. Use Wait to wait for the node to exit and
// report its status.
//
// Input for an inbound call may arrive in several frames. The node feeds each
// frame to the decoding state of its call as it arrives, and the function of
// the endpoint runs in its own goroutine only once every input is decoded. A
// call canceled before that point never reaches the function.
//
// Call Handle to add endpoints to the node. Use Call or Invoke to call an
// endpoint of the remote node. Both of these methods are safe for concurrent
// use by multiple goroutines.
type Node struct {
	in  interface{ Recv() (*Frame, error) }
	out struct {
		// Must hold the lock to send to or set ch.
		sync.Mutex
		ch Channel
	}
	tasks *taskgroup.Group

	μ sync.Mutex

	err       error                  // protocol fatal error
	ocall     map[uint32]pending     // outbound calls pending results
	osend     map[uint32]bool        // outbound calls still sending input
	nexto     uint32                 // next unused outbound call ID
	icall     map[uint32]*inbound    // call ID → inbound call state
	eps       map[ID]*Endpoint       // endpoint ID → endpoint
	base      func() context.Context // return a new base context
	log       *zap.Logger            // if nil, use the package logger
	chunk     int                    // outbound input bytes per frame; 0 means no limit
	maxInput  int                    // limit on inbound input size; 0 means default
	maxResult int                    // limit on inbound result size; 0 means default

	flog  atomic.Pointer[FrameLogger] // what it says on the tin
	stats atomic.Pointer[nodeMetrics] // if nil, use rootMetrics

	onExit func(error)
}

// inbound is the state of an inbound call.
type inbound struct {
	call   *Call
	nread  int                // total input bytes received
	cancel context.CancelFunc // set once the call is invoked
	fault  *Result            // if set, reported instead of the outcome of the call
}

// NewNode constructs a new unstarted node.
func NewNode() *Node { return new(Node) }

// Start starts the node running on the given channel. The node runs until the
// channel closes or a protocol fatal error occurs. Start does not block; call
// Wait to wait for the node to exit and report its status.
func (n *Node) Start(ch Channel) *Node {
	if n.in != nil {
		panic("node is already started")
	}

	g := taskgroup.New(nil)
	n.μ.Lock()
	n.in = ch
	n.tasks = g
	n.out.ch = ch
	n.err = nil
	n.ocall = make(map[uint32]pending)
	n.osend = make(map[uint32]bool)
	n.nexto = 0
	n.icall = make(map[uint32]*inbound)
	if n.base == nil {
		n.base = context.Background
	}
	n.μ.Unlock()

	g.Go(func() error {
		for {
			f, err := ch.Recv()
			if err != nil {
				n.fail(err)
				return nil
			}
			n.metrics().frameRecv.Add(1)
			if err := n.dispatchFrame(f); err != nil {
				n.fail(err)
				return nil
			}
		}
	})

	return n
}

// Metrics returns a metrics map for the node. It is safe for the caller to add
// additional metrics to the map while the node is active.
//
// By default, metrics are shared among all nodes. Use [Node.Detach] to give a
// node its own metrics.
func (n *Node) Metrics() *expvar.Map { return n.metrics().emap }

// Detach gives n its own metrics, separate from those shared by other nodes,
// and returns n to permit chaining. Counts recorded before Detach remain in
// the shared metrics.
func (n *Node) Detach() *Node {
	n.stats.Store(newNodeMetrics())
	return n
}

func (n *Node) metrics() *nodeMetrics {
	if m := n.stats.Load(); m != nil {
		return m
	}
	return rootMetrics
}

func (n *Node) logger() *zap.Logger {
	if n.log == nil {
		return Logger()
	}
	return n.log
}

// Stop closes the channel and terminates the node. It blocks until the node
// has exited and returns its status. After Stop completes it is safe to
// restart the node with a new channel.
func (n *Node) Stop() error { n.closeOut(); return n.Wait() }

func treatErrorAsSuccess(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// waitTasks blocks until the service routines have finished, and reports
// whether the node was running.
func (n *Node) waitTasks() bool {
	n.μ.Lock()
	t := n.tasks
	n.μ.Unlock()
	if t == nil {
		return false
	}
	t.Wait()
	return true
}

// Wait blocks until n terminates and reports the error that caused it to
// stop. After Wait completes it is safe to restart the node with a new
// channel.
//
// If n is not running, or has stopped because of a closed channel, Wait
// returns nil; otherwise it returns the error that triggered protocol failure.
func (n *Node) Wait() error {
	if !n.waitTasks() {
		return nil // the node is not running
	}

	// Clean up node state so it can be garbage collected.
	n.μ.Lock()
	defer n.μ.Unlock()
	n.in = nil
	n.tasks = nil
	n.out.Lock()
	n.out.ch = nil
	n.out.Unlock()
	n.ocall = nil
	n.icall = nil

	if treatErrorAsSuccess(n.err) {
		return nil
	}
	return n.err
}

// Handle registers ep to serve inbound calls for its ID. It is safe to call
// this while the node is running. Handle reports an error if a different
// endpoint with the same ID is already registered.
func (n *Node) Handle(ep *Endpoint) error {
	n.μ.Lock()
	defer n.μ.Unlock()
	if n.eps == nil {
		n.eps = make(map[ID]*Endpoint)
	}
	if old, ok := n.eps[ep.ID()]; ok && old != ep {
		return fmt.Errorf("endpoint %q: ID %v is already used by %q", ep.Name(), ep.ID(), old.Name())
	}
	n.eps[ep.ID()] = ep
	return nil
}

// Unhandle removes the endpoint registered for id, if any, and returns n to
// permit chaining. Calls already in progress are not affected.
func (n *Node) Unhandle(id ID) *Node {
	n.μ.Lock()
	defer n.μ.Unlock()
	delete(n.eps, id)
	return n
}

// Endpoint returns the endpoint registered on n for id, if any.
func (n *Node) Endpoint(id ID) (*Endpoint, bool) {
	n.μ.Lock()
	defer n.μ.Unlock()
	ep, ok := n.eps[id]
	return ep, ok
}

// LogFrames registers a callback that will be invoked for each frame
// exchanged with the remote node, regardless of type, including frames to be
// discarded.
//
// Passing a nil callback disables frame logging. The frame logger is invoked
// synchronously with dispatch, prior to sending or processing a frame.
func (n *Node) LogFrames(log FrameLogger) *Node {
	if log == nil {
		n.flog.Store(nil)
	} else {
		n.flog.Store(&log)
	}
	return n
}

// SetLogger sets the logger used by n for call failures. If l == nil, n uses
// the package logger. SetLogger returns n to permit chaining.
func (n *Node) SetLogger(l *zap.Logger) *Node {
	n.μ.Lock()
	defer n.μ.Unlock()
	n.log = l
	return n
}

// SetChunkSize sets the maximum number of input bytes n sends in a single
// frame for an outbound call. Longer inputs are split across a call frame
// and one or more data frames. If size ≤ 0, inputs are not split.
// SetChunkSize returns n to permit chaining.
func (n *Node) SetChunkSize(size int) *Node {
	n.μ.Lock()
	defer n.μ.Unlock()
	n.chunk = max(size, 0)
	return n
}

// SetMaxInput sets the maximum total size of the encoded inputs of an inbound
// call, over all the frames that carry them. A call whose inputs exceed this
// size fails with CodeDecodeFailed. If size ≤ 0, [DefaultMaxInput] is used.
// SetMaxInput returns n to permit chaining.
func (n *Node) SetMaxInput(size int) *Node {
	n.μ.Lock()
	defer n.μ.Unlock()
	n.maxInput = max(size, 0)
	return n
}

// SetMaxResult sets the maximum encoded size of the results of an inbound
// call. A call whose results exceed this size fails with CodeEncodeFailed.
// If size ≤ 0, [DefaultMaxResult] is used. SetMaxResult returns n to permit
// chaining.
func (n *Node) SetMaxResult(size int) *Node {
	n.μ.Lock()
	defer n.μ.Unlock()
	n.maxResult = max(size, 0)
	return n
}

// OnExit registers a callback to be invoked when the node terminates. The
// callback is executed synchronously during shutdown, with the same error
// value that would be reported by the Wait method.
//
// Only one exit callback can be registered at a time; if f == nil the callback
// is removed.
func (n *Node) OnExit(f func(error)) *Node {
	n.μ.Lock()
	defer n.μ.Unlock()
	n.onExit = f
	return n
}

// NewContext registers a function that will be called to create a new base
// context for endpoint functions. If it is not set a background context is
// used.
func (n *Node) NewContext(base func() context.Context) *Node {
	n.μ.Lock()
	defer n.μ.Unlock()
	n.base = value.Cond(base == nil, context.Background, base)
	return n
}

// Call sends a call to the remote node for the specified endpoint ID with
// the encoded inputs in data, and blocks until ctx ends or until the result
// is received. If ctx ends before the remote node replies, the call is
// automatically canceled. An error reported by Call has concrete type
// *CallError.
func (n *Node) Call(ctx context.Context, id ID, data []byte) (_ *Result, err error) {
	stats := n.metrics()
	stats.callOut.Add(1)
	defer func() {
		if err != nil {
			stats.callOutErr.Add(1)
		}
	}()

	cid, pc, err := n.sendCall(id, data)
	if err != nil {
		return nil, callError(err)
	}
	stats.callPending.Add(1)
	defer stats.callPending.Add(-1)

	done := ctx.Done()
	for {
		select {
		case <-done:
			// The local context ended, push a cancellation to the remote node,
			// then resume waiting for the result. Set done to nil so that we
			// will not recur on this case.
			n.sendCancel(cid)
			done = nil

			// Set a watchdog timer to ensure the call eventually gives up and
			// reports an error, even if we don't get a reply.
			ct := time.AfterFunc(50*time.Millisecond, func() {
				n.μ.Lock()
				defer n.μ.Unlock()

				// The call may have completed while we were waiting. If not, do
				// not release the call ID, otherwise a later call may reuse it
				// and get a spurious duplicate ID error because the remote node
				// has not yet yielded it.
				if pc, ok := n.ocall[cid]; ok {
					n.ocall[cid] = nil // pin the ID
					pc.deliver(&Result{CallID: cid, Code: CodeCanceled})
				}
			})
			defer ct.Stop()
			continue

		case rsp, ok := <-pc:
			if ok {
				if rsp.Code == CodeSuccess {
					return rsp, nil
				} else if rsp.Code == CodeCanceled {
					return nil, &CallError{Err: context.Canceled, Result: rsp}
				}
				ce := &CallError{Result: rsp}

				// Try to decode the error data, but if that fails use the string
				// from the failure message so the caller has a way to debug.
				if err := ce.ErrorData.Decode(rsp.Data); err != nil {
					ce.Message = err.Error()
				}
				return nil, ce
			}

			// Closed without a result means there was a protocol fatal error.
			n.waitTasks()
			return nil, callError(fmt.Errorf("call terminated: %w", n.err))
		}
	}
}

// Invoke calls the endpoint of the remote node described by sig with the
// given input values, and returns the values of its outputs followed by its
// return values. The arguments must match the Input slots of sig in number
// and type. An error reported by Invoke has concrete type *CallError.
func (n *Node) Invoke(ctx context.Context, sig *Signature, args ...any) ([]any, error) {
	var buf bytes.Buffer
	if _, err := codec.NewEncoderChain(sig.Inputs()...).Encode(&buf, args); err != nil {
		return nil, callError(fmt.Errorf("invoke %q: %w", sig.Name(), err))
	}
	rsp, err := n.Call(ctx, sig.ID(), buf.Bytes())
	if err != nil {
		return nil, err
	}
	vals, err := DecodeResults(sig, rsp.Data)
	if err != nil {
		return nil, &CallError{Err: err, Result: rsp}
	}
	return vals, nil
}

// DecodeResults decodes the outputs and return values of a successful call
// to an endpoint with the given signature.
func DecodeResults(sig *Signature, data []byte) ([]any, error) {
	dc := codec.NewDecoderChain(sig.Outputs()...)
	nr, err := dc.Feed(data)
	if err != nil {
		return nil, fmt.Errorf("results of %q: %w", sig.Name(), err)
	} else if nr < len(data) {
		return nil, fmt.Errorf("results of %q: %d extra bytes", sig.Name(), len(data)-nr)
	} else if err := dc.Finish(); err != nil {
		return nil, fmt.Errorf("results of %q: %w", sig.Name(), err)
	}
	return dc.Values()
}

// Exec executes the (local) endpoint on n for id, if one exists, with the
// encoded inputs in data, and returns its encoded results. Exec does not send
// any frames to the remote node.
func (n *Node) Exec(ctx context.Context, id ID, data []byte) ([]byte, error) {
	ep, ok := n.Endpoint(id)
	if !ok {
		return nil, fmt.Errorf("exec: unknown endpoint %v", id)
	}
	c := ep.NewCall()
	if nr, err := c.Feed(data); err != nil {
		return nil, err
	} else if nr < len(data) {
		return nil, fmt.Errorf("exec %q: %d extra input bytes", ep.Name(), len(data)-nr)
	} else if err := c.CloseInput(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := c.Finish(context.WithValue(ctx, nodeContextKey{}, n), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fail terminates all pending calls and updates the failure status.
func (n *Node) fail(err error) {
	n.closeOut()

	n.μ.Lock()
	defer n.μ.Unlock()

	// Terminate all incomplete pending (outbound) calls.
	for _, pc := range n.ocall {
		pc.close()
	}
	n.ocall = nil

	// Terminate all incomplete active (inbound) calls. Calls that have not
	// been invoked are abandoned.
	for _, in := range n.icall {
		if in.cancel != nil {
			in.cancel()
		} else {
			in.call.Abort()
			n.metrics().callAborted.Add(1)
		}
	}
	n.icall = nil

	n.err = err
	if n.onExit != nil {
		if treatErrorAsSuccess(err) {
			err = nil
		}
		n.onExit(err)
	}
}

func (n *Node) sendResult(rsp *Result) {
	n.μ.Lock()
	if in, ok := n.icall[rsp.CallID]; ok && in.fault != nil {
		rsp = &Result{CallID: rsp.CallID, Code: in.fault.Code, Data: in.fault.Data}
	}
	delete(n.icall, rsp.CallID)
	err := n.err
	n.μ.Unlock()

	if rsp.Code != CodeSuccess {
		n.metrics().callInErr.Add(1)
	}
	if err != nil {
		return
	}

	if err := n.sendOut(&Frame{
		Type:    FrameResult,
		Payload: rsp.Encode(),
	}); err != nil {
		n.closeOut()
	}
}

// sendCall sends the frames for a call to the given endpoint with the given
// input data. It blocks until the sends complete, but does not wait for the
// reply. The result will be delivered on the returned pending channel.
func (n *Node) sendCall(eid ID, data []byte) (uint32, pending, error) {
	// Phase 1: Check for fatal errors and acquire state.
	n.μ.Lock()
	if err := n.err; err != nil {
		n.μ.Unlock()
		return 0, nil, err
	} else if n.ocall == nil {
		n.μ.Unlock()
		return 0, nil, errors.New("node is not running")
	}
	n.nexto++
	id := n.nexto
	pc := make(pending, 1)
	n.ocall[id] = pc
	n.osend[id] = true
	chunk := n.chunk
	n.μ.Unlock()

	// Send the frames to the remote node. Note we MUST NOT hold the state lock
	// while doing this, as that will block the receiver from dispatching frames.
	err := n.sendInput(id, eid, data, chunk)

	// Phase 2: Check for an error in the send, and update state if it failed.
	n.μ.Lock()
	defer n.μ.Unlock()
	delete(n.osend, id)
	if err != nil {
		n.releaseIDLocked(id)
		return 0, nil, err
	} else if p, ok := n.ocall[id]; ok && p == nil {
		// The result arrived before the input was all sent.
		n.releaseIDLocked(id)
	}
	return id, pc, nil
}

// sendInput sends a call frame followed by zero or more data frames carrying
// data in pieces of at most chunk bytes. The last frame is marked final.
func (n *Node) sendInput(id uint32, eid ID, data []byte, chunk int) error {
	head, rest := data, []byte(nil)
	if chunk > 0 && len(data) > chunk {
		head, rest = data[:chunk], data[chunk:]
	}
	if err := n.sendOut(&Frame{
		Type: FrameCall,
		Payload: CallFrame{
			CallID:     id,
			EndpointID: eid,
			Flags:      value.Cond(len(rest) == 0, FlagFinal, 0),
			Data:       head,
		}.Encode(),
	}); err != nil {
		return err
	}
	for len(rest) != 0 {
		next := rest[:min(chunk, len(rest))]
		rest = rest[len(next):]
		if err := n.sendOut(&Frame{
			Type: FrameData,
			Payload: DataFrame{
				CallID: id,
				Flags:  value.Cond(len(rest) == 0, FlagFinal, 0),
				Data:   next,
			}.Encode(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// sendCancel sends a cancellation for id to the remote node.
func (n *Node) sendCancel(id uint32) {
	if err := n.sendOut(&Frame{
		Type:    FrameCancel,
		Payload: CancelFrame{CallID: id}.Encode(),
	}); err != nil {
		n.closeOut() // protocol fatal
	}
}

// dispatchCallLocked begins an inbound call. It reports an error back to the
// caller for a duplicate call ID or an unknown endpoint.
func (n *Node) dispatchCallLocked(cf *CallFrame) error {
	stats := n.metrics()
	stats.callIn.Add(1)

	// Report duplicate call ID without failing the existing call.
	if _, ok := n.icall[cf.CallID]; ok {
		stats.callInErr.Add(1)
		return n.sendOut(&Frame{
			Type:    FrameResult,
			Payload: Result{CallID: cf.CallID, Code: CodeDuplicateID}.Encode(),
		})
	}

	ep, ok := n.eps[cf.EndpointID]
	if !ok {
		stats.callInErr.Add(1)
		return n.sendOut(&Frame{
			Type:    FrameResult,
			Payload: Result{CallID: cf.CallID, Code: CodeUnknownEndpoint}.Encode(),
		})
	}

	in := &inbound{call: ep.NewCall()}
	n.icall[cf.CallID] = in
	return n.feedLocked(cf.CallID, in, cf.Data, cf.Flags)
}

// feedLocked delivers input data to an inbound call, and invokes the call
// once its inputs are complete.
func (n *Node) feedLocked(id uint32, in *inbound, data []byte, flags Flags) error {
	if in.cancel != nil {
		// The inputs were already complete, so this data is surplus. The call
		// is already running, so stop it and report the error in its place.
		if len(data) != 0 && in.fault == nil {
			err := fmt.Errorf("%d extra input bytes", len(data))
			in.fault = &Result{Code: CodeProtocolError, Data: ErrorData{Message: err.Error()}.Encode()}
			in.cancel()
			n.logger().Debug("extra input for invoked call", zap.Uint32("call", id), zap.Error(err))
		}
		return nil
	}

	in.nread += len(data)
	if limit := value.Cond(n.maxInput > 0, n.maxInput, DefaultMaxInput); in.nread > limit {
		in.call.Abort()
		n.metrics().decodeErr.Add(1)
		return n.failCallLocked(id, CodeDecodeFailed, fmt.Errorf("inputs exceed %d bytes", limit))
	}
	nr, err := in.call.Feed(data)
	if err != nil {
		n.metrics().decodeErr.Add(1)
		return n.failCallLocked(id, CodeDecodeFailed, err)
	} else if nr < len(data) {
		in.call.Abort()
		return n.failCallLocked(id, CodeProtocolError, fmt.Errorf("%d extra input bytes", len(data)-nr))
	}
	if flags&FlagFinal != 0 {
		if err := in.call.CloseInput(); err != nil {
			n.metrics().decodeErr.Add(1)
			return n.failCallLocked(id, CodeDecodeFailed, err)
		}
	}
	if in.call.State() == InputsComplete {
		n.invokeLocked(id, in)
	}
	return nil
}

// failCallLocked ends an inbound call that was not invoked, and reports code
// and err to the caller.
func (n *Node) failCallLocked(id uint32, code ResultCode, err error) error {
	delete(n.icall, id)
	n.metrics().callInErr.Add(1)
	n.logger().Debug("inbound call failed",
		zap.Uint32("call", id), zap.Stringer("code", code), zap.Error(err))
	return n.sendOut(&Frame{
		Type: FrameResult,
		Payload: Result{
			CallID: id,
			Code:   code,
			Data:   ErrorData{Message: err.Error()}.Encode(),
		}.Encode(),
	})
}

// invokeLocked starts a goroutine to run an inbound call whose inputs are
// complete. The goroutine handles cancellation and result delivery.
func (n *Node) invokeLocked(id uint32, in *inbound) {
	pctx := context.WithValue(n.base(), nodeContextKey{}, n)
	ctx, cancel := context.WithCancel(pctx)
	in.cancel = cancel
	stats := n.metrics()
	stats.callActive.Add(1)

	call := in.call
	sink := &resultSink{max: value.Cond(n.maxResult > 0, n.maxResult, DefaultMaxResult)}
	log := n.logger().With(zap.Uint32("call", id), zap.String("endpoint", call.Endpoint().Name()))
	n.tasks.Go(func() error {
		defer cancel()
		defer stats.callActive.Add(-1)

		_, err := call.Finish(ctx, sink)

		rsp := &Result{CallID: id}
		var ie *InvokeError
		var ee *codec.EncodeError
		if ctx.Err() != nil {
			// If the context terminated, treat this as a cancellation even if
			// the function succeeded. The remote node sent a cancellation that
			// the function did not observe, or the node is shutting down.
			rsp.Code = CodeCanceled
		} else if err == nil {
			rsp.Code = CodeSuccess
			rsp.Data = sink.buf.Bytes()
		} else if errors.As(err, &ie) {
			rsp.Code = CodeServiceError
			rsp.Data = serviceErrorData(ie.Err).Encode()
			log.Debug("endpoint reported an error", zap.Error(ie.Err))
		} else if errors.As(err, &ee) {
			rsp.Code = CodeEncodeFailed
			rsp.Data = ErrorData{Message: ee.Error()}.Encode()
			stats.encodeErr.Add(1)
			log.Warn("encoding results failed", zap.Error(ee))
		} else {
			rsp.Code = CodeServiceError
			rsp.Data = ErrorData{Message: err.Error()}.Encode()
			log.Warn("call failed", zap.Error(err))
		}
		n.sendResult(rsp)
		return nil
	})
}

// serviceErrorData converts an error reported by an endpoint function into
// the error data for its result. A function may report an ErrorData or
// *ErrorData to control the code and auxiliary data.
func serviceErrorData(err error) ErrorData {
	var edp *ErrorData
	var ed ErrorData
	if errors.As(err, &edp) && edp != nil {
		return *edp
	} else if errors.As(err, &ed) {
		return ed
	}
	return ErrorData{Message: err.Error()}
}

// dispatchFrame routes an inbound frame from the remote node.
// Any error it reports is protocol fatal.
func (n *Node) dispatchFrame(f *Frame) error {
	if flog := n.flog.Load(); flog != nil {
		(*flog)(FrameInfo{Frame: f, Sent: false})
	}
	if f.Version != 0 {
		n.metrics().frameDropped.Add(1)
		return nil // ignore frames from other protocol versions
	}

	switch f.Type {
	case FrameCall:
		var cf CallFrame
		if err := cf.Decode(f.Payload); err != nil {
			return fmt.Errorf("invalid call frame: %w", err)
		}
		n.μ.Lock()
		defer n.μ.Unlock()
		return n.dispatchCallLocked(&cf)

	case FrameData:
		var df DataFrame
		if err := df.Decode(f.Payload); err != nil {
			return fmt.Errorf("invalid data frame: %w", err)
		}
		n.μ.Lock()
		defer n.μ.Unlock()
		in, ok := n.icall[df.CallID]
		if !ok {
			// Discard input for a call that has already ended.
			n.metrics().frameDropped.Add(1)
			return nil
		}
		return n.feedLocked(df.CallID, in, df.Data, df.Flags)

	case FrameCancel:
		var cf CancelFrame
		if err := cf.Decode(f.Payload); err != nil {
			return fmt.Errorf("invalid cancel frame: %w", err)
		}
		n.metrics().cancelIn.Add(1)
		n.μ.Lock()
		defer n.μ.Unlock()

		in, ok := n.icall[cf.CallID]
		if !ok {
			return nil
		} else if in.cancel != nil {
			// The call is running; signal it to stop. The invocation goroutine
			// will figure out how to reply and clean up.
			in.cancel()
			return nil
		}

		// The inputs are not complete, so the function was never called.
		in.call.Abort()
		delete(n.icall, cf.CallID)
		n.metrics().callAborted.Add(1)
		return n.sendOut(&Frame{
			Type:    FrameResult,
			Payload: Result{CallID: cf.CallID, Code: CodeCanceled}.Encode(),
		})

	case FrameResult:
		var rsp Result
		if err := rsp.Decode(f.Payload); err != nil {
			return fmt.Errorf("invalid result frame: %w", err)
		}
		n.μ.Lock()
		defer n.μ.Unlock()

		pc, ok := n.ocall[rsp.CallID]
		if !ok {
			// Silently discard a result for an unknown call ID.
			return nil
		}

		if n.osend[rsp.CallID] {
			// The caller is still sending input under this ID, so keep it
			// reserved until the send completes.
			n.ocall[rsp.CallID] = nil
		} else {
			n.releaseIDLocked(rsp.CallID)
		}
		pc.deliver(&rsp) // does not block

	default:
		n.metrics().frameDropped.Add(1)
	}
	return nil
}

// releaseIDLocked releases the call state for the specified outbound call id.
func (n *Node) releaseIDLocked(id uint32) {
	delete(n.ocall, id)
	if len(n.ocall) == 0 {
		n.nexto = 0
	}
}

func (n *Node) sendOut(f *Frame) error {
	n.out.Lock()
	defer n.out.Unlock()
	if n.out.ch == nil {
		return net.ErrClosed
	}
	n.metrics().frameSent.Add(1)
	if flog := n.flog.Load(); flog != nil {
		(*flog)(FrameInfo{Frame: f, Sent: true})
	}
	return n.out.ch.Send(f)
}

func (n *Node) closeOut() {
	n.out.Lock()
	defer n.out.Unlock()
	if n.out.ch != nil {
		n.out.ch.Close()
	}
}

// resultSink is the output sink for the results of an inbound call.
// It accepts at most max bytes in total.
type resultSink struct {
	buf bytes.Buffer
	max int
}

func (r *resultSink) Write(p []byte) (int, error) {
	if room := r.max - r.buf.Len(); len(p) > room {
		r.buf.Write(p[:room])
		return room, nil // short write
	}
	return r.buf.Write(p)
}

type pending chan *Result

func (p pending) close() {
	if p != nil {
		close(p)
	}
}

func (p pending) deliver(r *Result) {
	if p != nil {
		p <- r
		close(p)
	}
}

func callError(err error) *CallError { return &CallError{Err: err} }

// CallError is the concrete type of errors reported by the Call and Invoke
// methods of a Node. For errors reported by the remote node, the Err field is
// nil and the ErrorData contains the error details. For errors arising from a
// result, the Result field contains the complete result.
type CallError struct {
	ErrorData
	Err    error   // nil for errors reported by the remote node
	Result *Result // set if the error came from a call result
}

// Unwrap reports the underlying error of c. If c.Err == nil, this is nil.
func (c *CallError) Unwrap() error { return c.Err }

// Error satisfies the error interface.
func (c *CallError) Error() string {
	if c.Err != nil {
		return c.Err.Error()
	} else if c.Result.Code == CodeServiceError {
		return fmt.Sprintf("service error: %v", c.ErrorData.Error())
	} else if c.Message != "" {
		return fmt.Sprintf("call %d: %s: %s", c.Result.CallID, c.Result.Code, c.Message)
	}
	return fmt.Sprintf("call %d: %s", c.Result.CallID, c.Result.Code)
}

type nodeContextKey struct{}

// ContextNode returns the Node associated with the given context, or nil if
// none is defined. The context passed to an endpoint function has this value.
func ContextNode(ctx context.Context) *Node {
	if v := ctx.Value(nodeContextKey{}); v != nil {
		return v.(*Node)
	}
	return nil
}

// SplitAddress parses an address string to guess a network type and target.
//
// The assignment of a network type uses the following heuristics:
//
// If s does not have the form [host]:port, the network is assigned as "unix".
// The network "unix" is also assigned if port == "", port contains characters
// other than ASCII letters, digits, and "-", or if host contains a "/".
//
// Otherwise, the network is assigned as "tcp". Note that this function does
// not verify whether the address is lexically valid.
func SplitAddress(s string) (network, address string) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "unix", s
	}
	host, port := s[:i], s[i+1:]
	if port == "" || !isServiceName(port) {
		return "unix", s
	} else if strings.IndexByte(host, '/') >= 0 {
		return "unix", s
	}
	return "tcp", s
}

// isServiceName reports whether s looks like a legal service name from the
// services(5) file. The grammar of such names is not well-defined, but for our
// purposes it includes letters, digits, and "-".
func isServiceName(s string) bool {
	for _, b := range s {
		if b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b == '-' {
			continue
		}
		return false
	}
	return true
}
