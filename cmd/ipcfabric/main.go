// Copyright 2026 The IPC Fabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// ipcfabric is a macat(1)-workalike for this module: a command-line
// interface that runs either side of the fabric for manual testing,
// adapted from the teacher's macat/macat.go (a nanocat(1) workalike for
// mangos sockets).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/droundy/goopt"

	"ipc.io/fabric/client"
	"ipc.io/fabric/internal/paths"
	"ipc.io/fabric/server"
)

var (
	runServer bool
	runClient bool
	domain    = paths.DefaultDomain
	name      string
	verbose   bool

	sendCmd    string
	emitCmd    string
	deliverCmd string
	broadcast  string
	targetName string
	rawData    string
)

func fatalf(format string, v ...interface{}) {
	fmt.Fprintln(os.Stderr, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func init() {
	goopt.NoArg([]string{"--server"}, "Run as a fabric server", func() error {
		runServer = true
		return nil
	})
	goopt.NoArg([]string{"--client"}, "Run as a fabric client", func() error {
		runClient = true
		return nil
	})
	goopt.ReqArg([]string{"--domain", "-D"}, "DOMAIN", "Rendezvous domain",
		func(d string) error { domain = d; return nil })
	goopt.ReqArg([]string{"--name", "-n"}, "NAME", "Client friendly name",
		func(n string) error { name = n; return nil })
	goopt.NoArg([]string{"--verbose", "-v"}, "Enable diagnostic logging",
		func() error { verbose = true; return nil })

	goopt.ReqArg([]string{"--send"}, "COMMAND", "Send COMMAND to the server and exit",
		func(c string) error { sendCmd = c; return nil })
	goopt.ReqArg([]string{"--emit"}, "COMMAND", "Emit COMMAND to --to's peer and exit",
		func(c string) error { emitCmd = c; return nil })
	goopt.ReqArg([]string{"--deliver"}, "COMMAND", "Deliver COMMAND and print the reply",
		func(c string) error { deliverCmd = c; return nil })
	goopt.ReqArg([]string{"--broadcast"}, "COMMAND", "Broadcast COMMAND to every peer and exit",
		func(c string) error { broadcast = c; return nil })
	goopt.ReqArg([]string{"--to"}, "NAME", "Target client name for --emit/--deliver",
		func(n string) error { targetName = n; return nil })
	goopt.ReqArg([]string{"--data", "-d"}, "JSON", "Data payload, parsed as JSON if possible",
		func(d string) error { rawData = d; return nil })

	goopt.Description = func() string {
		return `ipcfabric is a command-line interface to this module's
Unix-domain IPC fabric. It runs a one-off server for a domain, or a
client that sends/emits/delivers a single command and exits.`
	}
	goopt.Author = "ipc.io/fabric"
	goopt.Suite = "ipcfabric"
	goopt.Summary = "command line interface to the ipc.io/fabric messaging fabric"
}

func parseData(raw string) interface{} {
	if raw == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func main() {
	goopt.Parse(nil)

	switch {
	case runServer && runClient:
		fatalf("specify only one of --server or --client")
	case runServer:
		runServerMode()
	case runClient:
		runClientMode()
	default:
		fatalf("specify --server or --client")
	}
}

func runServerMode() {
	s := server.New(domain, server.WithVerbose(verbose), server.WithConnectHook(
		func(name string, joined bool) {
			if joined {
				fmt.Printf("+ %s joined\n", name)
			} else {
				fmt.Printf("- %s left\n", name)
			}
		}))
	if err := s.Start(); err != nil {
		fatalf("server start: %v", err)
	}
	fmt.Printf("ipcfabric server listening on domain %q\n", domain)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	_ = s.Stop()
}

func runClientMode() {
	if name == "" {
		fatalf("--name is required in --client mode")
	}
	c, err := client.New(name, client.WithDomain(domain), client.WithVerbose(verbose))
	if err != nil {
		fatalf("client: %v", err)
	}
	defer c.Close()

	if err := c.Connect(); err != nil {
		fatalf("connect: %v", err)
	}

	data := parseData(rawData)

	switch {
	case sendCmd != "":
		if err := c.Send(sendCmd, data); err != nil {
			fatalf("send: %v", err)
		}
	case emitCmd != "":
		if targetName == "" {
			fatalf("--emit requires --to")
		}
		if err := c.Emit(targetName, emitCmd, data); err != nil {
			fatalf("emit: %v", err)
		}
	case broadcast != "":
		if err := c.Broadcast(broadcast, data); err != nil {
			fatalf("broadcast: %v", err)
		}
	case deliverCmd != "":
		result, err := c.Deliver(targetName, deliverCmd, data)
		if err != nil {
			fatalf("deliver: %v", err)
		}
		b, _ := json.Marshal(result)
		fmt.Println(string(b))
	default:
		res, err := c.Discover()
		if err != nil {
			fatalf("discover: %v", err)
		}
		b, _ := json.Marshal(res)
		fmt.Println(string(b))
	}
}
