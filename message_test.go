package dbusconn

import "testing"

func TestMessageHeaderGettersSetters(t *testing.T) {
	m := NewMessage(TypeMethodCall)
	m.SetPath("/org/freedesktop/DBus")
	m.SetInterface("org.freedesktop.DBus")
	m.SetMember("Hello")
	m.SetDestination("org.freedesktop.DBus")
	m.SetSender(":1.42")

	if p, ok := m.Path(); !ok || p != "/org/freedesktop/DBus" {
		t.Errorf("Path() = (%q, %v)", p, ok)
	}
	if i, ok := m.Interface(); !ok || i != "org.freedesktop.DBus" {
		t.Errorf("Interface() = (%q, %v)", i, ok)
	}
	if mem, ok := m.Member(); !ok || mem != "Hello" {
		t.Errorf("Member() = (%q, %v)", mem, ok)
	}
	if d, ok := m.Destination(); !ok || d != "org.freedesktop.DBus" {
		t.Errorf("Destination() = (%q, %v)", d, ok)
	}
	if s, ok := m.Sender(); !ok || s != ":1.42" {
		t.Errorf("Sender() = (%q, %v)", s, ok)
	}
	if _, ok := m.ErrorName(); ok {
		t.Errorf("ErrorName() ok = true, want false (unset)")
	}
}

func TestMessageReplySerialRoundTrip(t *testing.T) {
	m := NewMessage(TypeMethodReturn)
	m.SetReplySerial(123)
	got, ok := m.ReplySerial()
	if !ok || got != 123 {
		t.Errorf("ReplySerial() = (%d, %v), want (123, true)", got, ok)
	}
}

func TestMessageSetBodyEmptyDropsSignatureHeader(t *testing.T) {
	m := NewMessage(TypeMethodCall)
	m.SetPath("/x")
	m.SetMember("M")
	m.SetBody(MustParseSignature("s"), "hi")
	if _, ok := m.header(FieldSignature); !ok {
		t.Fatalf("SIGNATURE header missing after SetBody with a non-empty sig")
	}
	m.SetBody(Signature{})
	if _, ok := m.header(FieldSignature); ok {
		t.Errorf("SIGNATURE header still present after SetBody(Signature{})")
	}
}

func TestValidateHeadersRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *Message
		wantErr bool
	}{
		{"method_call missing member", func() *Message {
			m := NewMessage(TypeMethodCall)
			m.SetPath("/x")
			return m
		}, true},
		{"method_call complete", func() *Message {
			m := NewMessage(TypeMethodCall)
			m.SetPath("/x")
			m.SetMember("M")
			return m
		}, false},
		{"method_return missing reply serial", func() *Message {
			return NewMessage(TypeMethodReturn)
		}, true},
		{"error missing error name", func() *Message {
			m := NewMessage(TypeError)
			m.SetReplySerial(1)
			return m
		}, true},
		{"error complete", func() *Message {
			m := NewMessage(TypeError)
			m.SetReplySerial(1)
			m.SetErrorName("org.freedesktop.DBus.Error.Failed")
			return m
		}, false},
		{"signal missing interface", func() *Message {
			m := NewMessage(TypeSignal)
			m.SetPath("/x")
			m.SetMember("M")
			return m
		}, true},
		{"signal complete", func() *Message {
			m := NewMessage(TypeSignal)
			m.SetPath("/x")
			m.SetInterface("a.b")
			m.SetMember("M")
			return m
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().validateHeaders()
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
