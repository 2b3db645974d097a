// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import (
	"net"
	"os"
)

// LocalIP reports this host's usable network address, used as the default
// bind address when a config does not supply one.
//
// It opens a datagram socket toward a well-known external address and reads
// back the local address the kernel chose for it; no packet is sent. If
// that fails it falls back to resolving the hostname, and finally to the
// loopback address. LocalIP never fails.
func LocalIP() net.IP {
	if c, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		defer c.Close()
		if a, ok := c.LocalAddr().(*net.UDPAddr); ok && a.IP != nil {
			return a.IP
		}
	}

	if host, err := os.Hostname(); err == nil {
		if addrs, err := net.LookupHost(host); err == nil {
			for _, a := range addrs {
				if ip := net.ParseIP(a); ip != nil && !ip.IsLoopback() {
					return ip
				}
			}
		}
	}

	return net.IPv4(127, 0, 0, 1)
}
