// Package dbusconn implements a client-side D-Bus transport: socket
// lifecycle, SASL authentication, the wire-format codec, and the
// request/response engine used to talk to a message bus daemon.
//
// The package does not implement a bus daemon, object proxies, or
// introspection; it stops at framed message exchange and correlation. See
// the Transport interface for the byte-stream boundary and Pipeline for the
// user-extensible inbound/outbound handler chain.
package dbusconn
