// Command dbusping dials a D-Bus bus, runs the SASL handshake and Hello
// call, and pings org.freedesktop.DBus.Peer once. It exists as a smoke test
// for the engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/atsika/dbusconn"
)

func main() {
	addrFlag := flag.String("address", "", "D-Bus server address (default: system bus)")
	sessionFlag := flag.Bool("session", false, "use the session bus address instead of the system bus")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "connect timeout")

	flag.Usage = printUsage
	flag.Parse()

	addrStr := *addrFlag
	if addrStr == "" {
		if *sessionFlag {
			a, err := dbusconn.SessionAddress()
			if err != nil {
				log.Fatalf("resolving session bus address: %v", err)
			}
			addrStr = a
		} else {
			addrStr = dbusconn.SystemAddress()
		}
	}

	addr, err := dbusconn.ParseAddress(addrStr)
	if err != nil {
		log.Fatalf("parsing address %q: %v", addrStr, err)
	}

	cfg, err := dbusconn.NewConfig(dbusconn.WithConnectTimeout(*timeoutFlag))
	if err != nil {
		log.Fatalf("building config: %v", err)
	}

	conn := dbusconn.NewConn(addr, cfg)
	conn.Subscribe(func(evt dbusconn.Event) {
		if evt.Type == dbusconn.EventStateChanged {
			log.Printf("state: %s -> %s", evt.From, evt.To)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		log.Fatalf("connect to %s: %v", addr, err)
	}
	defer conn.Close()

	fmt.Printf("connected, assigned bus name %s\n", conn.BusName())

	ping := dbusconn.NewMessage(dbusconn.TypeMethodCall)
	ping.SetPath("/")
	ping.SetInterface("org.freedesktop.DBus.Peer")
	ping.SetMember("Ping")

	start := time.Now()
	reqCtx, reqCancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer reqCancel()
	if _, err := conn.SendRequest(reqCtx, ping); err != nil {
		log.Fatalf("ping: %v", err)
	}
	fmt.Printf("ping round trip: %s\n", time.Since(start))
}

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), "dbusping: connect to a D-Bus bus and ping it once\n\n")
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: dbusping [flags]\n\n")
	flag.PrintDefaults()
}
