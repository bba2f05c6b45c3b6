package serialmux

import "testing"

func TestNewRealSerialMuxInvalidPort(t *testing.T) {
	// We can't open a real serial port in a unit test, but an invalid path
	// must fail cleanly.
	mux, err := NewRealSerialMux("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		t.Error("expected error when opening non-existent serial port")
		if mux != nil {
			mux.Close()
		}
	}
	if err != nil && mux != nil {
		t.Error("expected nil mux when error is returned")
	}
}

func TestNewRealSerialMuxInvalidOptions(t *testing.T) {
	_, err := NewRealSerialMux("/dev/nonexistent-serial-port-12345", PortOptions{Parity: "Q"})
	if err == nil {
		t.Error("expected error for invalid port options")
	}
}
