// Package ld2412 implements the serial protocol of the HLK-LD2412 24GHz
// presence radar: frame synchronisation over an unframed byte stream, binary
// decoding of periodic measurement frames and command-reply frames, and
// correlation of outbound configuration commands with their asynchronous
// replies.
package ld2412

import "fmt"

// Frame markers. The protocol has no checksum; the fixed markers plus two
// sentinel bytes are the only structural integrity checks.
var (
	dataHeader  = []byte{0xF4, 0xF3, 0xF2, 0xF1}
	dataTrailer = []byte{0xF8, 0xF7, 0xF6, 0xF5}
	cmdHeader   = []byte{0xFD, 0xFC, 0xFB, 0xFA}
	cmdTrailer  = []byte{0x04, 0x03, 0x02, 0x01}
)

const (
	// headByte sits at offset 7 of every data frame.
	headByte = 0xAA
	// tailByte sits at offset len-6 of every data frame: offset 15 in
	// normal mode, offset 47 in engineering mode.
	tailByte = 0x55

	minDataFrameLen     = 12
	normalFrameLen      = 21
	engineeringFrameLen = 53
	minCommandFrameLen  = 8

	// GateCount is the number of distance gates reported in engineering
	// mode for each of the moving and still energy arrays.
	GateCount = 14
)

// FrameFamily distinguishes the two frame types sharing the stream.
type FrameFamily int

const (
	DataFrame FrameFamily = iota
	CommandFrame
)

func (f FrameFamily) String() string {
	switch f {
	case DataFrame:
		return "data"
	case CommandFrame:
		return "command"
	default:
		return fmt.Sprintf("FrameFamily(%d)", int(f))
	}
}

// RawFrame is a validated frame located in the stream buffer. It is
// produced by the scanner and consumed immediately by the decoder; the
// Bytes slice aliases the scan buffer and must not be retained.
type RawFrame struct {
	Family FrameFamily
	Bytes  []byte
	// Start and End are the frame's offsets within the scanned buffer;
	// End is one past the final trailer byte.
	Start int
	End   int
}

// DataType is the mode byte at offset 6 of a data frame.
type DataType byte

const (
	EngineeringData DataType = 0x01
	NormalData      DataType = 0x02
)

// TargetState is the detection state byte of a measurement frame.
type TargetState byte

const (
	StateNoTarget       TargetState = 0x00
	StateMoving         TargetState = 0x01
	StateStill          TargetState = 0x02
	StateMovingAndStill TargetState = 0x03
	StateNoiseDetecting TargetState = 0x04
	StateNoiseSuccess   TargetState = 0x05
	StateNoiseFailed    TargetState = 0x06
)

func (s TargetState) String() string {
	switch s {
	case StateNoTarget:
		return "no target"
	case StateMoving:
		return "moving"
	case StateStill:
		return "still"
	case StateMovingAndStill:
		return "moving+still"
	case StateNoiseDetecting:
		return "noise detection running"
	case StateNoiseSuccess:
		return "noise detection succeeded"
	case StateNoiseFailed:
		return "noise detection failed"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(s))
	}
}

// Moving reports whether the state includes a moving target.
func (s TargetState) Moving() bool {
	return s == StateMoving || s == StateMovingAndStill
}

// Still reports whether the state includes a stationary target.
func (s TargetState) Still() bool {
	return s == StateStill || s == StateMovingAndStill
}

// CommandCode identifies a configuration or query command. Replies echo the
// request code with the high reply bit set.
type CommandCode uint16

const (
	CmdSetDistanceResolution    CommandCode = 0x0001
	CmdBackgroundCorrection     CommandCode = 0x000B
	CmdSetLightControl          CommandCode = 0x000C
	CmdReadDistanceResolution   CommandCode = 0x0011
	CmdReadParameters           CommandCode = 0x0012
	CmdReadMotionSensitivity    CommandCode = 0x0013
	CmdReadStaticSensitivity    CommandCode = 0x0014
	CmdReadBackgroundCorrection CommandCode = 0x001B
	CmdReadLightControl         CommandCode = 0x001C
	CmdEnableEngineering        CommandCode = 0x0062
	CmdDisableEngineering       CommandCode = 0x0063
	CmdReadVersion              CommandCode = 0x00A0
	CmdSetBaudRate              CommandCode = 0x00A1
	CmdFactoryReset             CommandCode = 0x00A2
	CmdRestart                  CommandCode = 0x00A3
	CmdBluetooth                CommandCode = 0x00A4
	CmdReadMAC                  CommandCode = 0x00A5
	CmdExitConfigMode           CommandCode = 0x00FE
	CmdEnterConfigMode          CommandCode = 0x00FF
)

// replyOffset is the fixed request-to-reply code offset used by the device.
const replyOffset CommandCode = 0x0100

// Reply returns the reply code the device will answer this command with.
func (c CommandCode) Reply() CommandCode {
	return c | replyOffset
}

// Request strips the reply offset, recovering the originating command code.
func (c CommandCode) Request() CommandCode {
	return c &^ replyOffset
}

// IsReply reports whether the code carries the reply offset.
func (c CommandCode) IsReply() bool {
	return c&replyOffset != 0
}

func (c CommandCode) String() string {
	name := ""
	switch c.Request() {
	case CmdSetDistanceResolution:
		name = "set distance resolution"
	case CmdBackgroundCorrection:
		name = "dynamic background correction"
	case CmdSetLightControl:
		name = "set light control"
	case CmdReadDistanceResolution:
		name = "read distance resolution"
	case CmdReadParameters:
		name = "read parameters"
	case CmdReadMotionSensitivity:
		name = "read motion gate sensitivity"
	case CmdReadStaticSensitivity:
		name = "read static gate sensitivity"
	case CmdReadBackgroundCorrection:
		name = "read background correction state"
	case CmdReadLightControl:
		name = "read light control"
	case CmdEnableEngineering:
		name = "enable engineering mode"
	case CmdDisableEngineering:
		name = "disable engineering mode"
	case CmdReadVersion:
		name = "read version"
	case CmdSetBaudRate:
		name = "set baud rate"
	case CmdFactoryReset:
		name = "factory reset"
	case CmdRestart:
		name = "restart"
	case CmdBluetooth:
		name = "bluetooth control"
	case CmdReadMAC:
		name = "read MAC address"
	case CmdExitConfigMode:
		name = "exit config mode"
	case CmdEnterConfigMode:
		name = "enter config mode"
	default:
		return fmt.Sprintf("0x%04X", uint16(c))
	}
	if c.IsReply() {
		return fmt.Sprintf("%s reply (0x%04X)", name, uint16(c))
	}
	return fmt.Sprintf("%s (0x%04X)", name, uint16(c))
}
