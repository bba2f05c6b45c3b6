package ld2412

import "encoding/binary"

// EncodeCommand assembles an outbound command frame:
// FD FC FB FA | len:u16-LE | code:u16-LE | payload | 04 03 02 01
// where len covers the code word plus the payload.
func EncodeCommand(code CommandCode, payload []byte) []byte {
	frame := make([]byte, 0, 4+2+2+len(payload)+4)
	frame = append(frame, cmdHeader...)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(2+len(payload)))
	frame = binary.LittleEndian.AppendUint16(frame, uint16(code))
	frame = append(frame, payload...)
	frame = append(frame, cmdTrailer...)
	return frame
}
