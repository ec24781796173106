package dbusconn

import "testing"

func TestParseAddressUnixPath(t *testing.T) {
	addr, err := ParseAddress("unix:path=/run/dbus/system_bus_socket")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Kind != "unix" || addr.Path != "/run/dbus/system_bus_socket" {
		t.Errorf("addr = %+v", addr)
	}
}

func TestParseAddressUnixAbstract(t *testing.T) {
	addr, err := ParseAddress("unix:abstract=/tmp/dbus-abcd1234")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Kind != "unix" || addr.Path != "@/tmp/dbus-abcd1234" {
		t.Errorf("addr = %+v", addr)
	}
}

func TestParseAddressTCP(t *testing.T) {
	addr, err := ParseAddress("tcp:host=127.0.0.1,port=12345")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Kind != "tcp" || addr.Host != "127.0.0.1" || addr.Port != "12345" {
		t.Errorf("addr = %+v", addr)
	}
}

func TestParseAddressFirstOfSemicolonList(t *testing.T) {
	addr, err := ParseAddress("unix:path=/a;tcp:host=h,port=1")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Kind != "unix" || addr.Path != "/a" {
		t.Errorf("addr = %+v, want only the first address honoured", addr)
	}
}

func TestParseAddressPercentEscape(t *testing.T) {
	addr, err := ParseAddress("unix:path=/tmp/has%20space")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Path != "/tmp/has space" {
		t.Errorf("Path = %q, want unescaped space", addr.Path)
	}
}

func TestParseAddressErrors(t *testing.T) {
	tests := []string{
		"",
		"noscheme",
		"unix:",
		"tcp:host=127.0.0.1",
		"tcp:port=1234",
		"sctp:host=127.0.0.1,port=1234",
	}
	for _, s := range tests {
		if _, err := ParseAddress(s); err == nil {
			t.Errorf("ParseAddress(%q) = nil error, want error", s)
		}
	}
}

func TestAddressString(t *testing.T) {
	u := Address{Kind: "unix", Path: "/run/dbus/system_bus_socket"}
	if got := u.String(); got != "unix:path=/run/dbus/system_bus_socket" {
		t.Errorf("String() = %q", got)
	}
	tcp := Address{Kind: "tcp", Host: "127.0.0.1", Port: "1234"}
	if got := tcp.String(); got != "tcp:host=127.0.0.1,port=1234" {
		t.Errorf("String() = %q", got)
	}
}

func TestSystemAddressFallsBackToWellKnownSocket(t *testing.T) {
	t.Setenv("DBUS_SYSTEM_BUS_ADDRESS", "")
	if got := SystemAddress(); got != "unix:path=/var/run/dbus/system_bus_socket" {
		t.Errorf("SystemAddress() = %q, want the well-known default", got)
	}
}

func TestSessionAddressErrorsWhenUnset(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "")
	if _, err := SessionAddress(); err == nil {
		t.Fatalf("SessionAddress() = nil error, want error when unset")
	}
}
