package ld2412

import "time"

func testTime() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

// Frame builders shared by the package tests. Layouts follow the wire
// format documented in frames.go; builders always emit well-formed frames
// and tests corrupt specific bytes from there.

func buildNormalFrame(state TargetState, movingDist int, movingEnergy byte, stillDist int, stillEnergy byte) []byte {
	f := make([]byte, 0, normalFrameLen)
	f = append(f, dataHeader...)
	f = append(f, 0x0D, 0x00) // in-frame length field
	f = append(f, byte(NormalData), headByte, byte(state))
	f = append(f, byte(movingDist), byte(movingDist>>8), movingEnergy)
	f = append(f, byte(stillDist), byte(stillDist>>8), stillEnergy)
	f = append(f, tailByte, 0x00)
	f = append(f, dataTrailer...)
	return f
}

func buildEngineeringFrame(state TargetState, movingDist int, movingEnergy byte, stillDist int, stillEnergy byte, movingGates, stillGates []byte, light byte) []byte {
	f := make([]byte, 0, engineeringFrameLen)
	f = append(f, dataHeader...)
	f = append(f, 0x2D, 0x00)
	f = append(f, byte(EngineeringData), headByte, byte(state))
	f = append(f, byte(movingDist), byte(movingDist>>8), movingEnergy)
	f = append(f, byte(stillDist), byte(stillDist>>8), stillEnergy)
	f = append(f, byte(GateCount), byte(GateCount)) // configured gate counts
	f = append(f, movingGates[:GateCount]...)
	f = append(f, stillGates[:GateCount]...)
	f = append(f, light, 0x00, tailByte, 0x00)
	f = append(f, dataTrailer...)
	return f
}

func buildReplyFrame(code CommandCode, ack uint16, data []byte) []byte {
	payloadLen := 2 + 2 + len(data) // code word + ack word + data
	f := make([]byte, 0, 4+2+payloadLen+4)
	f = append(f, cmdHeader...)
	f = append(f, byte(payloadLen), byte(payloadLen>>8))
	f = append(f, byte(code), byte(code>>8))
	f = append(f, byte(ack), byte(ack>>8))
	f = append(f, data...)
	f = append(f, cmdTrailer...)
	return f
}

func gateRamp(base byte) []byte {
	g := make([]byte, GateCount)
	for i := range g {
		g[i] = base + byte(i)
	}
	return g
}
