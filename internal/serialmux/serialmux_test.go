package serialmux

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

var testFrame = []byte{
	0xF4, 0xF3, 0xF2, 0xF1, 0x0D, 0x00, 0x02, 0xAA,
	0x01, 0x64, 0x00, 0x19, 0x00, 0x00, 0x00, 0x55,
	0x00, 0xF8, 0xF7, 0xF6, 0xF5,
}

func TestSubscribeUnsubscribe(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	if id1 == id2 {
		t.Fatal("Subscribe() returned duplicate IDs")
	}
	if ch1 == ch2 {
		t.Fatal("Subscribe() returned the same channel twice")
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// unsubscribing an unknown ID is a no-op
	mux.Unsubscribe("nope")
	mux.Unsubscribe(id2)
}

func TestMonitorDeliversChunks(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitorDone := make(chan error, 1)
	go func() { monitorDone <- mux.Monitor(ctx) }()

	port.AddReadData(testFrame)

	select {
	case chunk := <-ch:
		if !bytes.Equal(chunk, testFrame) {
			t.Errorf("chunk = % X, want % X", chunk, testFrame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}

	cancel()
	select {
	case err := <-monitorDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not exit on context cancellation")
	}
}

func TestMonitorFanOut(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	port.AddReadData(testFrame)

	for i, ch := range []chan []byte{ch1, ch2} {
		select {
		case chunk := <-ch:
			if !bytes.Equal(chunk, testFrame) {
				t.Errorf("subscriber %d: chunk = % X, want % X", i, chunk, testFrame)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d: timed out waiting for chunk", i)
		}
	}
}

func TestMonitorReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	readErr := errors.New("device unplugged")
	port.ReadError = readErr
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorDone := make(chan error, 1)
	go func() { monitorDone <- mux.Monitor(ctx) }()

	select {
	case err := <-monitorDone:
		if !errors.Is(err, readErr) {
			t.Errorf("Monitor() = %v, want %v", err, readErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not surface the read error")
	}
}

func TestSendFrame(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	frame := []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0xA0, 0x00, 0x04, 0x03, 0x02, 0x01}
	if err := mux.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame() error: %v", err)
	}
	if got := port.WrittenBytes(); !bytes.Equal(got, frame) {
		t.Errorf("written bytes = % X, want % X", got, frame)
	}
}

func TestSendFrameWriteError(t *testing.T) {
	port := NewTestableSerialPort()
	writeErr := errors.New("write refused")
	port.WriteError = writeErr
	mux := NewSerialMux(port)

	if err := mux.SendFrame([]byte{0x01}); !errors.Is(err, writeErr) {
		t.Errorf("SendFrame() = %v, want %v", err, writeErr)
	}
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Close")
	}
	if !port.Closed {
		t.Error("port not closed by Close")
	}
}

func TestSlowSubscriberDoesNotBlockMonitor(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	// never read from this subscription
	mux.Subscribe()
	_, live := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	// overrun the idle subscriber's buffer
	for i := 0; i < chunkBufferSize+2; i++ {
		port.AddReadData(testFrame)
	}

	// drain whatever made it through, then prove the monitor is still alive
	// by pushing one more chunk and receiving on the healthy subscriber
	for drained := false; !drained; {
		select {
		case <-live:
		case <-time.After(200 * time.Millisecond):
			drained = true
		}
	}
	port.AddReadData(testFrame)
	select {
	case <-live:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor stalled behind a full subscriber channel")
	}
}
