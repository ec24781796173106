package dbusconn

import (
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	msg := NewMessage(TypeMethodCall)
	msg.Serial = 7
	msg.SetPath("/org/freedesktop/DBus")
	msg.SetInterface("org.freedesktop.DBus")
	msg.SetMember("Hello")
	msg.SetDestination("org.freedesktop.DBus")
	msg.SetBody(MustParseSignature("su"), "hello", uint32(42))

	frame, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	got, consumed, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if consumed != len(frame) {
		t.Errorf("consumed = %d, want %d", consumed, len(frame))
	}
	if got.Serial != 7 {
		t.Errorf("Serial = %d, want 7", got.Serial)
	}
	if p, _ := got.Path(); p != "/org/freedesktop/DBus" {
		t.Errorf("Path() = %q", p)
	}
	if m, _ := got.Member(); m != "Hello" {
		t.Errorf("Member() = %q", m)
	}
	if len(got.Body) != 2 {
		t.Fatalf("Body = %v, want 2 values", got.Body)
	}
	if got.Body[0] != "hello" {
		t.Errorf("Body[0] = %v, want %q", got.Body[0], "hello")
	}
	if got.Body[1] != uint32(42) {
		t.Errorf("Body[1] = %v, want uint32(42)", got.Body[1])
	}
}

func TestEncodeDecodeFrameEmptyBody(t *testing.T) {
	msg := NewMessage(TypeSignal)
	msg.Serial = 1
	msg.SetPath("/x")
	msg.SetInterface("a.b")
	msg.SetMember("Changed")

	frame, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, _, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(got.Body) != 0 {
		t.Errorf("Body = %v, want empty", got.Body)
	}
}

func TestDecodeFrameNeedsMoreData(t *testing.T) {
	msg := NewMessage(TypeSignal)
	msg.Serial = 1
	msg.SetPath("/x")
	msg.SetInterface("a.b")
	msg.SetMember("Changed")
	msg.SetBody(MustParseSignature("s"), "a long enough string to force a nonzero body")

	frame, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	if _, _, err := DecodeFrame(frame[:FixedHeaderSize-1]); err != errNeedMoreData {
		t.Errorf("DecodeFrame(short fixed header) = %v, want errNeedMoreData", err)
	}
	if _, _, err := DecodeFrame(frame[:len(frame)-1]); err != errNeedMoreData {
		t.Errorf("DecodeFrame(truncated frame) = %v, want errNeedMoreData", err)
	}
}

func TestEncodeMessageRejectsZeroSerial(t *testing.T) {
	msg := NewMessage(TypeSignal)
	msg.SetPath("/x")
	msg.SetInterface("a.b")
	msg.SetMember("Changed")
	if _, err := EncodeMessage(msg); err == nil {
		t.Fatalf("EncodeMessage with zero serial = nil error, want error")
	}
}

func TestPeekFrameLengthRejectsOversizeFrame(t *testing.T) {
	buf := make([]byte, FixedHeaderSize)
	buf[0] = byte(LittleEndian)
	binary.LittleEndian.PutUint32(buf[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	if _, err := PeekFrameLength(buf); err == nil {
		t.Fatalf("PeekFrameLength with oversize body length = nil error, want error")
	}
}
