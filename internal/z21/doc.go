// Package z21 implements the client side of the Roco/Fleischmann Z21 LAN protocol.
//
// The Z21 command station speaks a datagram protocol over UDP (default port
// 21105). Every datagram has the same framing:
//
//	┌──────────────┬──────────────┬───────────────────────┐
//	│ length (LE16)│ header (LE16)│ payload (length - 4)  │
//	└──────────────┴──────────────┴───────────────────────┘
//
// Two sub-protocols share the socket. X-Bus frames (header 0x0040) carry
// command-station commands and status; they end with an XOR checksum over
// the X-header and payload. R-Bus frames (header 0x0080) carry occupancy
// feedback from track sensors.
//
// # Layers
//
//   - Encoder (command.go): pure builders returning outbound frames.
//   - Parser (parser.go): TryParse* functions returning (value, ok). They never
//     panic and never return errors; unknown input is simply "no match".
//   - Transport (transport.go): owns the UDP socket.
//   - Client (client.go): composes the three, runs keepalive and system-state
//     polling, and raises typed events to subscribers.
//
// Example:
//
//	client := z21.NewClient(z21.NewUDPTransport(), z21.ClientConfig{})
//	unsubscribe := client.OnFeedback(func(ev z21.FeedbackEvent) {
//	    fmt.Println("feedback on port", ev.Port)
//	})
//	defer unsubscribe()
//	if err := client.Connect(ctx, "192.168.0.111:21105"); err != nil {
//	    return err
//	}
//	defer client.Disconnect(context.Background())
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package z21
