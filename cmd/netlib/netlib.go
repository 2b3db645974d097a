// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

// Program netlib is a command-line front end for exchanging length-prefixed
// messages over the network.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/1Seven3Seven/netlib"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
)

var flags struct {
	Port int    `flag:"port,Port to bind or connect to"`
	Addr string `flag:"addr,Remote address as host:port"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Exchange length-prefixed messages over TCP and UDP.",

		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			flags.Port = netlib.DefaultPort
			flax.MustBind(fs, &flags)
		},

		Commands: []*command.C{
			{
				Name: "ip",
				Help: "Print this host's usable network address.",
				Run: func(env *command.Env) error {
					fmt.Println(netlib.LocalIP())
					return nil
				},
			},
			{
				Name:  "send",
				Usage: "<message>...",
				Help:  "Send each argument as one datagram to --addr.",
				Run:   runSend,
			},
			{
				Name: "listen",
				Help: "Receive datagrams on --port and print them until interrupted.",
				Run:  runListen,
			},
			{
				Name: "serve",
				Help: "Accept stream connections on --port and print every peer's messages until interrupted.",
				Run:  runServe,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runSend(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("Missing message argument")
	}
	addr, err := resolveAddr(flags.Addr)
	if err != nil {
		return err
	}

	ep, err := netlib.NewEndpoint(netlib.Config{Port: netlib.Ephemeral})
	if err != nil {
		return err
	}
	defer ep.Close()

	for _, msg := range env.Args {
		if err := ep.Send(msg, addr); err != nil {
			return err
		}
	}
	return nil
}

func runListen(env *command.Env) error {
	ep, err := netlib.NewEndpoint(netlib.Config{Port: flags.Port})
	if err != nil {
		return err
	}
	fmt.Printf("Listening on %s\n", ep.Addr())

	ep.ListenForMessages()
	poll(func() {
		for _, d := range ep.Messages() {
			fmt.Printf("%s: %s\n", d.Addr, d.Message)
		}
	})
	ep.StopListeningForMessages()
	return ep.Close()
}

func runServe(env *command.Env) error {
	srv, err := netlib.NewServer(netlib.Config{Port: flags.Port})
	if err != nil {
		return err
	}
	fmt.Printf("Listening on %s\n", srv.Addr())

	srv.ListenForConnections()
	poll(func() {
		for _, peer := range srv.DrainNewConnections() {
			fmt.Printf("%s connected\n", peer)
		}
		srv.ListenForMessages()
		for peer, msgs := range srv.AllMessages() {
			for _, msg := range msgs {
				fmt.Printf("%s: %s\n", peer, msg)
			}
		}
	})
	return srv.Close()
}

// poll runs f once per interval until the process is interrupted.
func poll(f func()) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f()
		}
	}
}

// resolveAddr parses a host:port destination.
func resolveAddr(s string) (*net.UDPAddr, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("missing --addr")
	}
	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}
