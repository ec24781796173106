package dbusconn

import "testing"

func TestConnectionStateCanHandleRequests(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  bool
	}{
		{StateDisconnected, false},
		{StateConnecting, false},
		{StateAuthenticating, false},
		{StateConnected, true},
		{StateUnhealthy, true},
		{StateReconnecting, false},
		{StateFailed, false},
	}
	for _, tt := range tests {
		if got := tt.state.canHandleRequests(); got != tt.want {
			t.Errorf("%s.canHandleRequests() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestConnectionStateIsTransitioning(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  bool
	}{
		{StateConnecting, true},
		{StateAuthenticating, true},
		{StateReconnecting, true},
		{StateConnected, false},
		{StateUnhealthy, false},
		{StateDisconnected, false},
		{StateFailed, false},
	}
	for _, tt := range tests {
		if got := tt.state.isTransitioning(); got != tt.want {
			t.Errorf("%s.isTransitioning() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestConnectionStateCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to ConnectionState
		want     bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateConnected, false},
		{StateConnecting, StateAuthenticating, true},
		{StateAuthenticating, StateConnected, true},
		{StateConnected, StateUnhealthy, true},
		{StateConnected, StateReconnecting, true},
		{StateUnhealthy, StateConnected, true},
		{StateUnhealthy, StateReconnecting, true},
		{StateFailed, StateConnecting, false},
		{StateFailed, StateDisconnected, true},
	}
	for _, tt := range tests {
		if got := tt.from.canTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s.canTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestConnectionStateString(t *testing.T) {
	if StateConnected.String() != "connected" {
		t.Errorf("String() = %q, want connected", StateConnected.String())
	}
	if ConnectionState(999).String() != "unknown" {
		t.Errorf("String() for unrecognised state = %q, want unknown", ConnectionState(999).String())
	}
}
