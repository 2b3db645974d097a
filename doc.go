// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

// Package netlib implements length-prefixed, asynchronous message exchange
// over stream and datagram sockets.
//
// It is a minimal message-passing layer for applications that want discrete
// text messages over the network without hand-rolling socket polling,
// framing, or per-peer buffering. There is no encryption, no authentication,
// and no ordering guarantee across different peers; messages from a single
// peer are delivered in wire order.
//
// # Wire format
//
// On stream transports every message is a frame: a fixed-width big-endian
// payload length followed by that many bytes of UTF-8 text. The header
// width (default 4 bytes) is part of the deployment configuration and must
// match between the two ends; it is not negotiated. On datagram transports
// the payload is sent raw, since the transport preserves message
// boundaries.
//
// # Servers and clients
//
// A [Server] owns a listening socket, an accept loop, and a registry of
// peers keyed by remote address:
//
//	srv, err := netlib.NewServer(netlib.Config{Port: 2000})
//	...
//	srv.ListenForConnections()
//	peers := srv.DrainNewConnections()
//	srv.ListenForMessages()
//	for peer, msgs := range srv.AllMessages() {
//	   ...
//	}
//
// The accept loop only produces pending connections; they join the registry
// when the caller invokes [Server.DrainNewConnections]. Receive loops are
// started per peer by [Server.ListenForMessages], which only starts loops
// that are missing.
//
// A [Client] is the other end: a single [Conn] established with [Dial].
//
//	cli, err := netlib.Dial(netlib.Config{IP: serverIP, Port: 2000})
//	...
//	cli.Send("hello")
//
// # Datagram endpoints
//
// An [Endpoint] binds a datagram socket. Each received message is tagged
// with its sender's address:
//
//	ep, err := netlib.NewEndpoint(netlib.Config{Port: 2001})
//	...
//	ep.ListenForMessages()
//	for _, d := range ep.Messages() {
//	   fmt.Println(d.Addr, d.Message)
//	}
//
// # Concurrency model
//
// Every long-running loop (accept loop, per-connection receive loop,
// datagram receive loop) runs on its own goroutine and blocks only inside a
// readiness poll bounded by the configured PollTimeout. That timeout is the
// cancellation granularity: every Stop method signals the loop and then
// blocks until it has exited, which takes at most one poll interval plus
// any in-flight frame. Start and Stop are idempotent everywhere.
//
// A receive loop is the sole producer into its connection's inbound queue
// and the owning application code is the sole consumer; queue drains
// ([Conn.Messages], [Server.AllMessages], [Endpoint.Messages]) never block.
// Sends run synchronously on the caller's goroutine and bypass the queue.
//
// # Metrics
//
// The package maintains expvar counters for messages, connections, and
// datagrams; see [Metrics].
package netlib
