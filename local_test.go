// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib_test

import (
	"testing"

	"github.com/1Seven3Seven/netlib"
)

func TestLocalIP(t *testing.T) {
	// Discovery must never fail; in the worst case it reports loopback.
	ip := netlib.LocalIP()
	if ip == nil {
		t.Fatal("LocalIP: got nil")
	}
	t.Logf("LocalIP: %v", ip)
}
