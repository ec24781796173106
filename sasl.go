package dbusconn

import (
	"encoding/hex"
	"io"
	"strings"
)

const maxSASLLineLength = 16 * 1024

// saslMechanism is one entry in the client's mechanism preference list:
// EXTERNAL, DBUS_COOKIE_SHA1, ANONYMOUS, tried in order with fallback on
// REJECTED.
type saslMechanism interface {
	Name() string
	// InitialResponse returns the (possibly nil) argument bytes sent with
	// "AUTH <name> [hex]"; the caller hex-encodes it.
	InitialResponse() ([]byte, error)
	// Continue handles one decoded DATA challenge from the server and
	// returns the (un-hex-encoded) response bytes.
	Continue(challenge []byte) ([]byte, error)
}

// saslClient drives the line-oriented ASCII handshake over rw. rw must be
// the raw byte stream that will later carry framed D-Bus messages; after
// Authenticate returns successfully, the next byte read from rw is the
// first byte of a message frame ("the SASL handler detaches
// itself from the pipeline after emitting BEGIN").
type saslClient struct {
	rw         io.ReadWriter
	mechanisms []saslMechanism
}

func newSASLClient(rw io.ReadWriter, mechanisms ...saslMechanism) *saslClient {
	return &saslClient{rw: rw, mechanisms: mechanisms}
}

// Authenticate runs the handshake to completion and returns the server
// GUID from the OK line.
func (c *saslClient) Authenticate() (guid string, err error) {
	if _, err := c.rw.Write([]byte{0}); err != nil {
		return "", newErr(KindTransportIO, err)
	}

	for _, mech := range c.mechanisms {
		ok, g, err := c.tryMechanism(mech)
		if err != nil {
			return "", err
		}
		if ok {
			if err := c.writeLine("BEGIN"); err != nil {
				return "", err
			}
			return g, nil
		}
	}
	return "", newErr(KindSASLRejected, errStr("no remaining SASL mechanism after REJECTED"))
}

// tryMechanism issues AUTH for mech and runs any DATA round trips until the
// server answers OK or REJECTED.
func (c *saslClient) tryMechanism(mech saslMechanism) (ok bool, guid string, err error) {
	initial, err := mech.InitialResponse()
	if err != nil {
		return false, "", err
	}
	line := "AUTH " + mech.Name()
	if initial != nil {
		line += " " + hex.EncodeToString(initial)
	}
	if err := c.writeLine(line); err != nil {
		return false, "", err
	}

	for {
		resp, err := c.readLine()
		if err != nil {
			return false, "", err
		}
		cmd, arg := splitSASLLine(resp)
		switch cmd {
		case "OK":
			return true, arg, nil
		case "REJECTED":
			return false, "", nil
		case "DATA":
			challenge, err := hex.DecodeString(arg)
			if err != nil {
				return false, "", newErr(KindSASLProtocol, err)
			}
			next, err := mech.Continue(challenge)
			if err != nil {
				return false, "", err
			}
			if err := c.writeLine("DATA " + hex.EncodeToString(next)); err != nil {
				return false, "", err
			}
		case "ERROR":
			return false, "", newErrf(KindSASLProtocol, "server error: %s", arg)
		default:
			return false, "", newErrf(KindSASLProtocol, "unexpected server line %q", resp)
		}
	}
}

func (c *saslClient) writeLine(s string) error {
	if _, err := io.WriteString(c.rw, s+"\r\n"); err != nil {
		return newErr(KindTransportIO, err)
	}
	return nil
}

// readLine reads one CRLF-terminated ASCII line, one byte at a time: the
// SASL exchange happens before any framing buffering starts, so over-reading
// past the terminator would steal bytes that belong to the first message
// frame once BEGIN is sent.
func (c *saslClient) readLine() (string, error) {
	var line []byte
	one := make([]byte, 1)
	for {
		if len(line) > maxSASLLineLength {
			return "", newErr(KindSASLProtocol, errStr("line exceeds 16 KiB"))
		}
		n, err := c.rw.Read(one)
		if n == 0 {
			if err != nil {
				return "", newErr(KindTransportIO, err)
			}
			continue
		}
		b := one[0]
		if b == '\n' && len(line) > 0 && line[len(line)-1] == '\r' {
			return string(line[:len(line)-1]), nil
		}
		line = append(line, b)
	}
}

func splitSASLLine(line string) (cmd, arg string) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+1:]
}
