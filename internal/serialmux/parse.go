package serialmux

import "bytes"

const (
	ChunkTypeData    = "data"
	ChunkTypeCommand = "command"
	ChunkTypeUnknown = "unknown"
)

var (
	dataFrameHeader    = []byte{0xF4, 0xF3, 0xF2, 0xF1}
	commandFrameHeader = []byte{0xFD, 0xFC, 0xFB, 0xFA}
)

// ClassifyChunk inspects a raw chunk and returns a simple chunk type token
// based on the frame header it starts with. The classification is for
// display only; real framing happens downstream and tolerates chunks that
// start mid-frame.
func ClassifyChunk(chunk []byte) string {
	if bytes.HasPrefix(chunk, dataFrameHeader) {
		return ChunkTypeData
	}
	if bytes.HasPrefix(chunk, commandFrameHeader) {
		return ChunkTypeCommand
	}
	return ChunkTypeUnknown
}
