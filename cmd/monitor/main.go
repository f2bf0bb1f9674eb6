// Command monitor is the out-of-band monitor client: it connects to the
// SFU's fixed monitor TCP port, sends a greeting handshake, and prints
// every lifecycle event it receives.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hocman2/sfu-coordinator/internal/config"
	"github.com/hocman2/sfu-coordinator/pkg/wire/monitorwire"
)

const connectTimeout = 30 * time.Second

func main() {
	remote := flag.String("remote", "127.0.0.1", "the SFU server's IPv4 address")
	flag.Parse()

	addr := net.JoinHostPort(*remote, strconv.Itoa(config.MonitorFixedPort))
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "monitor: failed to connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := monitorwire.WriteClientFrame(conn, monitorwire.Greeting("Greetings")); err != nil {
		fmt.Fprintf(os.Stderr, "monitor: failed to send greeting: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("connected to %s\n", addr)

	for {
		e, err := monitorwire.ReadEvent(conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "monitor: connection closed: %v\n", err)
			return
		}
		printEvent(e)
	}
}

func printEvent(e monitorwire.Event) {
	switch e.Kind {
	case monitorwire.EventMonitorAccepted:
		fmt.Println("monitor accepted")
	case monitorwire.EventServerStarted:
		fmt.Println("server started")
	case monitorwire.EventServerClosed:
		fmt.Println("server closed")
	case monitorwire.EventRoomOpened:
		fmt.Printf("room opened: %s\n", e.RoomId)
	case monitorwire.EventRoomClosed:
		fmt.Printf("room closed: %s\n", e.RoomId)
	case monitorwire.EventParticipantEntered:
		fmt.Printf("participant entered: room=%s participant=%s\n", e.RoomId, e.ParticipantId)
	case monitorwire.EventParticipantLeft:
		fmt.Printf("participant left: room=%s participant=%s\n", e.RoomId, e.ParticipantId)
	case monitorwire.EventError:
		fmt.Printf("error: %s\n", e.ErrorMessage)
	default:
		fmt.Printf("unknown event: %+v\n", e)
	}
}
