package ld2412

import (
	"bytes"
	"testing"
)

func TestScanNormalFrame(t *testing.T) {
	frame := buildNormalFrame(StateMoving, 100, 0x19, 0, 0)
	var s Scanner

	got, ok := s.Scan(frame)
	if !ok {
		t.Fatal("Scan() found no frame in a complete normal frame")
	}
	if got.Family != DataFrame {
		t.Errorf("Family = %v, want %v", got.Family, DataFrame)
	}
	if got.Start != 0 || got.End != len(frame) {
		t.Errorf("Start/End = %d/%d, want 0/%d", got.Start, got.End, len(frame))
	}
	if !bytes.Equal(got.Bytes, frame) {
		t.Errorf("Bytes = % X, want % X", got.Bytes, frame)
	}
}

func TestScanSkipsGarbagePrefix(t *testing.T) {
	frame := buildNormalFrame(StateStill, 0, 0, 150, 0x40)
	buf := append([]byte{0x00, 0xF4, 0x13, 0x37, 0xFF}, frame...)
	var s Scanner

	got, ok := s.Scan(buf)
	if !ok {
		t.Fatal("Scan() found no frame behind garbage prefix")
	}
	if got.Start != 5 {
		t.Errorf("Start = %d, want 5", got.Start)
	}
	if got.End != len(buf) {
		t.Errorf("End = %d, want %d", got.End, len(buf))
	}
}

func TestScanIncompleteFrame(t *testing.T) {
	frame := buildNormalFrame(StateMoving, 100, 0x19, 0, 0)
	var s Scanner

	for cut := 1; cut < len(frame); cut++ {
		if _, ok := s.Scan(frame[:cut]); ok {
			t.Errorf("Scan() accepted truncated frame of %d bytes", cut)
		}
	}
}

func TestScanResyncAcrossChunks(t *testing.T) {
	frame := buildNormalFrame(StateMovingAndStill, 200, 0x30, 180, 0x20)
	b := NewStreamBuffer(0)
	var s Scanner

	b.Append(frame[:10])
	if _, ok := s.Scan(b.Bytes()); ok {
		t.Fatal("Scan() accepted a half-delivered frame")
	}
	b.Append(frame[10:])
	got, ok := s.Scan(b.Bytes())
	if !ok {
		t.Fatal("Scan() missed frame after second chunk arrived")
	}
	b.TrimConsumed(got.End)
	if b.Len() != 0 {
		t.Errorf("buffer holds %d bytes after consuming the only frame", b.Len())
	}
}

func TestScanCommandFrameByLengthField(t *testing.T) {
	frame := buildReplyFrame(CmdReadVersion.Reply(), 0x0000, []byte{0x12, 0x24, 0x02, 0x01, 0x16, 0x24, 0x06, 0x22})
	var s Scanner

	got, ok := s.Scan(frame)
	if !ok {
		t.Fatal("Scan() found no frame in a complete command frame")
	}
	if got.Family != CommandFrame {
		t.Errorf("Family = %v, want %v", got.Family, CommandFrame)
	}
	if got.End != len(frame) {
		t.Errorf("End = %d, want %d", got.End, len(frame))
	}
}

func TestScanCommandFrameCorruptLengthField(t *testing.T) {
	frame := buildReplyFrame(CmdExitConfigMode.Reply(), 0x0000, nil)
	frame[4], frame[5] = 0xFF, 0xFF // length field lies, trailer does not
	var s Scanner

	got, ok := s.Scan(frame)
	if !ok {
		t.Fatal("Scan() rejected command frame recoverable by trailer scan")
	}
	if got.Family != CommandFrame {
		t.Errorf("Family = %v, want %v", got.Family, CommandFrame)
	}
	if got.End != len(frame) {
		t.Errorf("End = %d, want %d", got.End, len(frame))
	}
}

func TestScanPrefersDataFrame(t *testing.T) {
	// A command frame ahead of a data frame in the same buffer: the data
	// frame outranks it regardless of position.
	cmd := buildReplyFrame(CmdReadVersion.Reply(), 0x0000, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	data := buildNormalFrame(StateMoving, 80, 0x55, 0, 0)
	buf := append(append([]byte{}, cmd...), data...)
	var s Scanner

	got, ok := s.Scan(buf)
	if !ok {
		t.Fatal("Scan() found nothing")
	}
	if got.Family != DataFrame {
		t.Errorf("Family = %v, want %v (data frames outrank command frames)", got.Family, DataFrame)
	}
	if got.Start != len(cmd) {
		t.Errorf("Start = %d, want %d", got.Start, len(cmd))
	}
}

func TestScanRejectsBadSentinels(t *testing.T) {
	var s Scanner

	head := buildNormalFrame(StateMoving, 100, 0x19, 0, 0)
	head[7] = 0x00 // head sentinel gone
	if _, ok := s.Scan(head); ok {
		t.Error("Scan() accepted frame with corrupt head sentinel")
	}

	tail := buildNormalFrame(StateMoving, 100, 0x19, 0, 0)
	tail[15] = 0x00 // tail sentinel gone
	if _, ok := s.Scan(tail); ok {
		t.Error("Scan() accepted frame with corrupt tail sentinel")
	}

	if s.ValidationFailures() == 0 {
		t.Error("ValidationFailures() = 0, want rejected candidates counted")
	}
}

func TestScanEngineeringFrame(t *testing.T) {
	frame := buildEngineeringFrame(StateMoving, 120, 0x50, 0, 0, gateRamp(10), gateRamp(40), 0x7F)
	var s Scanner

	got, ok := s.Scan(frame)
	if !ok {
		t.Fatal("Scan() found no frame in a complete engineering frame")
	}
	if got.Family != DataFrame || got.End != len(frame) {
		t.Errorf("Family/End = %v/%d, want %v/%d", got.Family, got.End, DataFrame, len(frame))
	}
}

func TestScanBackToBackFrames(t *testing.T) {
	first := buildNormalFrame(StateMoving, 100, 0x19, 0, 0)
	second := buildNormalFrame(StateNoTarget, 0, 0, 0, 0)
	b := NewStreamBuffer(0)
	b.Append(first)
	b.Append(second)
	var s Scanner

	var states []TargetState
	for {
		frame, ok := s.Scan(b.Bytes())
		if !ok {
			break
		}
		m, _, err := Decode(frame, testTime())
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		states = append(states, m.State)
		b.TrimConsumed(frame.End)
	}

	if len(states) != 2 || states[0] != StateMoving || states[1] != StateNoTarget {
		t.Errorf("decoded states = %v, want [moving, no target] in order", states)
	}
}
