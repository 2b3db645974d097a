// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import "expvar"

// connMetrics record message and connection activity counters, shared by all
// servers, clients, and endpoints in the process.
type metrics struct {
	messagesReceived expvar.Int // stream messages decoded and queued
	messagesSent     expvar.Int // stream messages framed and written
	framesOversize   expvar.Int // frames rejected for exceeding the size ceiling
	connsAccepted    expvar.Int // connections admitted by accept loops
	connsClosed      expvar.Int // connections released
	datagramsIn      expvar.Int // datagrams received and queued
	datagramsOut     expvar.Int // datagrams sent

	emap *expvar.Map
}

var connMetrics = newMetrics()

func newMetrics() *metrics {
	m := &metrics{emap: new(expvar.Map)}
	m.emap.Set("messages_received", &m.messagesReceived)
	m.emap.Set("messages_sent", &m.messagesSent)
	m.emap.Set("frames_oversize", &m.framesOversize)
	m.emap.Set("conns_accepted", &m.connsAccepted)
	m.emap.Set("conns_closed", &m.connsClosed)
	m.emap.Set("datagrams_received", &m.datagramsIn)
	m.emap.Set("datagrams_sent", &m.datagramsOut)
	return m
}

// Metrics returns the package metrics map. It is safe for the caller to add
// additional entries to the map.
func Metrics() *expvar.Map { return connMetrics.emap }
