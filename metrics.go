// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package chainrpc

import "expvar"

// peerMetrics record peer activity counters.
type peerMetrics struct {
	packetRecv    expvar.Int
	packetSent    expvar.Int
	packetDropped expvar.Int
	callIn        expvar.Int // number of inbound calls received
	callInErr     expvar.Int // number of inbound calls reporting an error
	callOut       expvar.Int // number of outbound awaited calls initiated
	callOutErr    expvar.Int // number of outbound calls reporting an error
	notifyOut     expvar.Int // number of fire-and-forget calls sent
	callTimeout   expvar.Int // number of outbound calls that timed out
	callActive    expvar.Int // inbound
	callPending   expvar.Int // outbound

	emap *expvar.Map
}

var rootMetrics = newPeerMetrics()

func newPeerMetrics() *peerMetrics {
	pm := &peerMetrics{emap: new(expvar.Map)}
	pm.emap.Set("packets_received", &pm.packetRecv)
	pm.emap.Set("packets_sent", &pm.packetSent)
	pm.emap.Set("packets_dropped", &pm.packetDropped)
	pm.emap.Set("calls_in", &pm.callIn)
	pm.emap.Set("calls_in_failed", &pm.callInErr)
	pm.emap.Set("calls_active", &pm.callActive)
	pm.emap.Set("calls_out", &pm.callOut)
	pm.emap.Set("calls_out_failed", &pm.callOutErr)
	pm.emap.Set("calls_pending", &pm.callPending)
	pm.emap.Set("calls_timed_out", &pm.callTimeout)
	pm.emap.Set("notifies_out", &pm.notifyOut)
	return pm
}
