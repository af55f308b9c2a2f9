// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package fibre

import "expvar"

// nodeMetrics record node activity counters.
type nodeMetrics struct {
	frameRecv    expvar.Int
	frameSent    expvar.Int
	frameDropped expvar.Int
	callIn       expvar.Int // number of inbound calls received
	callInErr    expvar.Int // number of inbound calls reporting an error
	callOut      expvar.Int // number of outbound calls initiated
	callOutErr   expvar.Int // number of outbound calls reporting an error
	cancelIn     expvar.Int // number of cancellations received
	callAborted  expvar.Int // inbound calls abandoned before invocation
	decodeErr    expvar.Int // inbound calls with malformed inputs
	encodeErr    expvar.Int // inbound calls whose results failed to encode
	callActive   expvar.Int // inbound
	callPending  expvar.Int // outbound

	emap *expvar.Map
}

var rootMetrics = newNodeMetrics()

func newNodeMetrics() *nodeMetrics {
	nm := &nodeMetrics{emap: new(expvar.Map)}
	nm.emap.Set("frames_received", &nm.frameRecv)
	nm.emap.Set("frames_sent", &nm.frameSent)
	nm.emap.Set("frames_dropped", &nm.frameDropped)
	nm.emap.Set("calls_in", &nm.callIn)
	nm.emap.Set("calls_in_failed", &nm.callInErr)
	nm.emap.Set("calls_active", &nm.callActive)
	nm.emap.Set("calls_aborted", &nm.callAborted)
	nm.emap.Set("decode_failed", &nm.decodeErr)
	nm.emap.Set("encode_failed", &nm.encodeErr)
	nm.emap.Set("calls_out", &nm.callOut)
	nm.emap.Set("calls_out_failed", &nm.callOutErr)
	nm.emap.Set("cancels_in", &nm.cancelIn)
	nm.emap.Set("calls_pending", &nm.callPending)
	return nm
}
