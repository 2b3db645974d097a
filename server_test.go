// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib_test

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/1Seven3Seven/netlib"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

const testPoll = 10 * time.Millisecond

// testServer binds a server on an ephemeral loopback port with a short poll
// interval so tests shut down quickly.
func testServer(t *testing.T) *netlib.Server {
	t.Helper()
	srv, err := netlib.NewServer(netlib.Config{
		IP:          net.IPv4(127, 0, 0, 1),
		Port:        netlib.Ephemeral,
		PollTimeout: testPoll,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// testDial connects a client to srv.
func testDial(t *testing.T, srv *netlib.Server) *netlib.Client {
	t.Helper()
	cli, err := netlib.Dial(netlib.Config{
		IP:          net.IPv4(127, 0, 0, 1),
		Port:        srv.Addr().(*net.TCPAddr).Port,
		PollTimeout: testPoll,
	})
	if err != nil {
		t.Fatalf("Dial %v: %v", srv.Addr(), err)
	}
	return cli
}

// waitFor polls f until it reports true or the timeout expires.
func waitFor(t *testing.T, what string, timeout time.Duration, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestServerThreeClients(t *testing.T) {
	defer leaktest.Check(t)()

	srv := testServer(t)
	defer srv.Close()
	srv.ListenForConnections()

	// Each client sends one distinct message; the server must attribute each
	// message to the peer that sent it.
	want := make(map[string][]string)
	for i := 1; i <= 3; i++ {
		cli := testDial(t, srv)
		defer cli.Close()
		msg := fmt.Sprintf("message-%d", i)
		want[cli.LocalAddr()] = []string{msg}
		if err := cli.Send(msg); err != nil {
			t.Fatalf("Send %q: %v", msg, err)
		}
	}

	var peers []string
	waitFor(t, "three admitted peers", 5*time.Second, func() bool {
		peers = append(peers, srv.DrainNewConnections()...)
		srv.ListenForMessages() // repeat-safe; starts only missing loops
		return len(peers) == 3
	})

	wantPeers := make([]string, 0, len(want))
	for p := range want {
		wantPeers = append(wantPeers, p)
	}
	sort.Strings(wantPeers)
	sort.Strings(peers)
	if diff := cmp.Diff(wantPeers, peers); diff != "" {
		t.Errorf("Admitted peers (-want, +got):\n%s", diff)
	}

	got := make(map[string][]string)
	waitFor(t, "one message per peer", 5*time.Second, func() bool {
		for peer, msgs := range srv.AllMessages() {
			got[peer] = append(got[peer], msgs...)
		}
		return len(got) == 3
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Messages by peer (-want, +got):\n%s", diff)
	}

	srv.StopListeningForMessages()
	srv.StopListeningForConnections()
}

func TestServerMessageOrdering(t *testing.T) {
	defer leaktest.Check(t)()

	srv := testServer(t)
	defer srv.Close()
	srv.ListenForConnections()

	cli := testDial(t, srv)
	defer cli.Close()

	want := []string{"m1", "m2", "m3"}
	for _, msg := range want {
		if err := cli.Send(msg); err != nil {
			t.Fatalf("Send %q: %v", msg, err)
		}
	}

	var peer string
	waitFor(t, "the peer to be admitted", 5*time.Second, func() bool {
		if news := srv.DrainNewConnections(); len(news) != 0 {
			peer = news[0]
		}
		return peer != ""
	})
	srv.ListenForMessages()

	var got []string
	waitFor(t, "all three messages", 5*time.Second, func() bool {
		msgs, err := srv.MessagesFrom(peer)
		if err != nil {
			t.Fatalf("MessagesFrom %q: %v", peer, err)
		}
		got = append(got, msgs...)
		return len(got) == 3
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Message order (-want, +got):\n%s", diff)
	}
}

func TestServerBroadcastIsolation(t *testing.T) {
	defer leaktest.Check(t)()

	srv := testServer(t)
	defer srv.Close()
	srv.ListenForConnections()

	good1 := testDial(t, srv)
	defer func() { good1.StopReceiving(); good1.Close() }()
	good2 := testDial(t, srv)
	defer func() { good2.StopReceiving(); good2.Close() }()

	// The third peer is a bare socket so its close can be made abrupt:
	// SetLinger(0) turns Close into a reset, which makes subsequent server
	// writes to that peer fail rather than vanish into a buffer.
	raw, err := net.DialTCP("tcp", nil, srv.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("Dial raw: %v", err)
	}
	broken := raw.LocalAddr().String()

	var peers []string
	waitFor(t, "three admitted peers", 5*time.Second, func() bool {
		peers = append(peers, srv.DrainNewConnections()...)
		return len(peers) == 3
	})

	good1.StartReceiving()
	good2.StartReceiving()
	raw.SetLinger(0)
	raw.Close()

	var berr *netlib.BroadcastError
	waitFor(t, "the broken peer to fail a broadcast", 5*time.Second, func() bool {
		err := srv.SendToAll("all-hands")
		if err == nil {
			return false
		}
		if !errors.As(err, &berr) {
			t.Fatalf("SendToAll: got error %v, want BroadcastError", err)
		}
		return true
	})

	if len(berr.Failed) != 1 {
		t.Errorf("Failed peers: got %d, want 1: %v", len(berr.Failed), berr.Failed)
	}
	if _, ok := berr.Failed[broken]; !ok {
		t.Errorf("Failed peers %v do not include the broken peer %s", berr.Failed, broken)
	}

	// The healthy peers still received the broadcast.
	for i, cli := range []*netlib.Client{good1, good2} {
		waitFor(t, fmt.Sprintf("client %d to receive the broadcast", i+1), 5*time.Second, func() bool {
			for _, msg := range cli.Messages() {
				if msg == "all-hands" {
					return true
				}
			}
			return false
		})
	}
}

func TestServerDropPeer(t *testing.T) {
	defer leaktest.Check(t)()

	srv := testServer(t)
	defer srv.Close()
	srv.ListenForConnections()

	cli := testDial(t, srv)
	defer cli.Close()
	cli.StartReceiving()
	defer cli.StopReceiving()

	var peer string
	waitFor(t, "the peer to be admitted", 5*time.Second, func() bool {
		if news := srv.DrainNewConnections(); len(news) != 0 {
			peer = news[0]
		}
		return peer != ""
	})

	if err := srv.DropPeer(peer); err != nil {
		t.Fatalf("DropPeer %q: %v", peer, err)
	}
	if got := srv.Peers(); len(got) != 0 {
		t.Errorf("Peers after drop: got %v, want none", got)
	}
	if _, err := srv.MessagesFrom(peer); !errors.Is(err, netlib.ErrUnknownPeer) {
		t.Errorf("MessagesFrom dropped peer: got error %v, want ErrUnknownPeer", err)
	}
	if err := srv.SendTo(peer, "hello"); !errors.Is(err, netlib.ErrUnknownPeer) {
		t.Errorf("SendTo dropped peer: got error %v, want ErrUnknownPeer", err)
	}

	// The client observes the disconnect: its receive loop exits and the
	// connection reports Closed, without an error.
	waitFor(t, "the client to observe the disconnect", 5*time.Second, func() bool {
		return cli.State() == netlib.ConnClosed
	})
	if err := cli.Err(); err != nil {
		t.Errorf("Client Err after peer disconnect: got %v, want nil", err)
	}
}

func TestServerAcceptLifecycle(t *testing.T) {
	defer leaktest.Check(t)()

	srv := testServer(t)
	defer srv.Close()

	// Starting twice attaches exactly one accept loop; stopping twice is a
	// no-op the second time. Either way no goroutines are left behind.
	srv.ListenForConnections()
	srv.ListenForConnections()
	srv.StopListeningForConnections()
	srv.StopListeningForConnections()

	// Stopping the accept loop does not affect already-admitted peers.
	srv.ListenForConnections()
	cli := testDial(t, srv)
	defer cli.Close()

	var peer string
	waitFor(t, "the peer to be admitted", 5*time.Second, func() bool {
		if news := srv.DrainNewConnections(); len(news) != 0 {
			peer = news[0]
		}
		return peer != ""
	})
	srv.StopListeningForConnections()
	srv.ListenForMessages()

	if err := cli.Send("still here"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got []string
	waitFor(t, "the message to arrive", 5*time.Second, func() bool {
		msgs, err := srv.MessagesFrom(peer)
		if err != nil {
			t.Fatalf("MessagesFrom: %v", err)
		}
		got = append(got, msgs...)
		return len(got) == 1
	})
	if got[0] != "still here" {
		t.Errorf("Message: got %q, want %q", got[0], "still here")
	}
	srv.StopListeningForMessages()
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  netlib.Config
	}{
		{"PortTooBig", netlib.Config{Port: 70000}},
		{"PortNegative", netlib.Config{Port: -3}},
		{"HeaderWidth", netlib.Config{Port: netlib.Ephemeral, HeaderWidth: 9}},
		{"PollTimeout", netlib.Config{Port: netlib.Ephemeral, PollTimeout: -time.Second}},
		{"MaxPayload", netlib.Config{Port: netlib.Ephemeral, MaxPayload: -1}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.cfg.IP = net.IPv4(127, 0, 0, 1)
			srv, err := netlib.NewServer(test.cfg)
			if err == nil {
				srv.Close()
				t.Fatal("NewServer: unexpected success")
			}
			var ce *netlib.ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("NewServer: got error %v, want ConfigError", err)
			}
		})
	}

	t.Run("BindConflict", func(t *testing.T) {
		srv := testServer(t)
		defer srv.Close()

		dup, err := netlib.NewServer(netlib.Config{
			IP:   net.IPv4(127, 0, 0, 1),
			Port: srv.Addr().(*net.TCPAddr).Port,
		})
		if err == nil {
			dup.Close()
			t.Fatal("NewServer on a bound port: unexpected success")
		}
	})

	t.Run("DialNoAddress", func(t *testing.T) {
		cli, err := netlib.Dial(netlib.Config{Port: 2000})
		if err == nil {
			cli.Close()
			t.Fatal("Dial without address: unexpected success")
		}
		var ce *netlib.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("Dial: got error %v, want ConfigError", err)
		}
	})
}
