// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import (
	"fmt"
	"net"
)

// A Client is a single Conn established by connecting to a remote stream
// server. It has no accept loop and no registry; the embedded Conn provides
// StartReceiving, StopReceiving, Send, Messages, and Close with their usual
// contracts.
type Client struct {
	*Conn
}

// Dial connects to the server described by cfg and returns a Client. The IP
// field is required: it names the server, not a local bind address. The
// header width and poll timeout must match the server's deployment
// configuration.
func Dial(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.checkValid(); err != nil {
		return nil, err
	}
	if cfg.IP == nil {
		return nil, &ConfigError{Field: "IP", Reason: "no server address"}
	}
	addr := &net.TCPAddr{IP: cfg.IP, Port: cfg.Port}
	nc, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &Client{Conn: newConn(nc, cfg.codec(), cfg.PollTimeout)}, nil
}
