package ld2412

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"
)

// Scan windows and score weights. The stream carries no out-of-band type
// tag and no checksum, so candidate frames are ranked by structural
// completeness: a fully validated data frame beats a command frame, and a
// longer validated frame beats a shorter one, which defends against stray
// bytes that coincidentally look like a start marker. The exact weights are
// heuristic; only the relative ordering matters.
const (
	dataTrailerWindow = 80
	cmdTrailerWindow  = 60

	scoreDataFrameBase = 80
	scoreCmdLengthed   = 60
	scoreCmdFallback   = 50
	scoreAcceptFloor   = 50
)

// Scanner locates the best complete frame in a byte buffer. It is
// stateless; all stream state lives in the StreamBuffer it scans.
type Scanner struct {
	// validationFailures counts candidates rejected for sentinel or
	// trailer mismatches. Recovered locally, never surfaced as errors.
	validationFailures atomic.Uint64
}

// ValidationFailures reports how many frame candidates were rejected.
func (s *Scanner) ValidationFailures() uint64 {
	return s.validationFailures.Load()
}

// Scan inspects buf for start markers of either frame family, validates
// candidates, and returns the single highest-scoring complete frame. The
// second return is false when no acceptable frame is present (more bytes
// are needed); the buffer must then be left untouched by the caller.
func (s *Scanner) Scan(buf []byte) (RawFrame, bool) {
	if len(buf) < minDataFrameLen {
		return RawFrame{}, false
	}

	var best RawFrame
	bestScore := 0

	for i := 0; i+4 <= len(buf); i++ {
		switch {
		case bytes.Equal(buf[i:i+4], dataHeader):
			if frame, score, ok := s.scanDataFrame(buf, i); ok && score > bestScore {
				best, bestScore = frame, score
			}
		case bytes.Equal(buf[i:i+4], cmdHeader):
			if frame, score, ok := s.scanCommandFrame(buf, i); ok && score > bestScore {
				best, bestScore = frame, score
			}
		}
	}

	if bestScore < scoreAcceptFloor {
		return RawFrame{}, false
	}
	return best, true
}

// scanDataFrame searches a bounded window for the data trailer and checks
// both sentinel bytes. Frames long enough for the normal layout score high
// plus a length bonus; shorter structurally valid frames score only their
// length, below the acceptance floor, so they lose to any real frame.
func (s *Scanner) scanDataFrame(buf []byte, start int) (RawFrame, int, bool) {
	end := start + dataTrailerWindow
	if end > len(buf)-3 {
		end = len(buf) - 3
	}
	for j := start + minDataFrameLen; j < end; j++ {
		if !bytes.Equal(buf[j:j+4], dataTrailer) {
			continue
		}
		frame := buf[start : j+4]
		if len(frame) < minDataFrameLen {
			break
		}
		if frame[7] != headByte || frame[len(frame)-6] != tailByte {
			s.validationFailures.Add(1)
			break
		}
		score := len(frame)
		if len(frame) >= normalFrameLen-1 {
			score = scoreDataFrameBase + len(frame)
		}
		return RawFrame{Family: DataFrame, Bytes: frame, Start: start, End: j + 4}, score, true
	}
	return RawFrame{}, 0, false
}

// scanCommandFrame prefers the frame length derived from the explicit
// little-endian length field; when that frame fails validation it falls
// back to a bounded forward scan for the trailer, tolerating a corrupted
// length field at the cost of a slightly lower score.
func (s *Scanner) scanCommandFrame(buf []byte, start int) (RawFrame, int, bool) {
	if start+6 < len(buf) {
		payloadLen := int(binary.LittleEndian.Uint16(buf[start+4 : start+6]))
		// header(4) + length field(2) + payload + trailer(4)
		total := 4 + 2 + payloadLen + 4
		if end := start + total; end <= len(buf) {
			if bytes.Equal(buf[end-4:end], cmdTrailer) {
				frame := buf[start:end]
				return RawFrame{Family: CommandFrame, Bytes: frame, Start: start, End: end}, scoreCmdLengthed, true
			}
			s.validationFailures.Add(1)
		}
	}

	// Fallback: fixed-length forward scan for the trailer marker.
	end := start + cmdTrailerWindow
	if end > len(buf)-3 {
		end = len(buf) - 3
	}
	for j := start + minCommandFrameLen; j < end; j++ {
		if bytes.Equal(buf[j:j+4], cmdTrailer) {
			frame := buf[start : j+4]
			return RawFrame{Family: CommandFrame, Bytes: frame, Start: start, End: j + 4}, scoreCmdFallback, true
		}
	}
	return RawFrame{}, 0, false
}
