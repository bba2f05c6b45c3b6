package ld2412

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Measurement is one periodic report from the radar. Immutable after
// construction. The gate-energy slices are both empty in normal mode and
// both exactly GateCount long in engineering mode.
type Measurement struct {
	Timestamp time.Time   `json:"timestamp"`
	Mode      DataType    `json:"mode"`
	State     TargetState `json:"state"`

	MovingDistanceCM    int `json:"moving_distance_cm"`
	MovingEnergy        int `json:"moving_energy"`
	StillDistanceCM     int `json:"still_distance_cm"`
	StillEnergy         int `json:"still_energy"`
	DetectionDistanceCM int `json:"detection_distance_cm"`

	// Engineering mode only.
	LightValue         int   `json:"light_value,omitempty"`
	MovingGateEnergies []int `json:"moving_gate_energies,omitempty"`
	StillGateEnergies  []int `json:"still_gate_energies,omitempty"`
}

// Engineering reports whether the measurement carries per-gate energies.
func (m *Measurement) Engineering() bool { return m.Mode == EngineeringData }

// CommandReply is the decoded response to a previously sent command.
type CommandReply struct {
	Code  CommandCode `json:"code"`
	AckOK bool        `json:"ack_ok"`
	// Payload is the reply payload after the ack word, untouched.
	Payload []byte `json:"payload,omitempty"`
	// Detail is the typed interpretation of Payload for catalogued
	// codes, nil for unknown codes.
	Detail interface{} `json:"detail,omitempty"`
}

// Typed reply payloads, per the device's command catalogue.
type (
	// VersionInfo answers CmdReadVersion.
	VersionInfo struct {
		FirmwareType uint16 `json:"firmware_type"`
		Major        uint16 `json:"major"`
		Minor        uint32 `json:"minor"`
	}

	// DeviceParameters answers CmdReadParameters.
	DeviceParameters struct {
		MinGate     int `json:"min_gate"`
		MaxGate     int `json:"max_gate"`
		HoldSeconds int `json:"hold_seconds"`
		OutPolarity int `json:"out_polarity"`
	}

	// GateSensitivities answers the motion/static sensitivity queries.
	GateSensitivities struct {
		Motion bool  `json:"motion"`
		Gates  []int `json:"gates"`
	}

	// MACAddress answers CmdReadMAC.
	MACAddress [6]byte

	// DistanceResolution answers CmdReadDistanceResolution.
	DistanceResolution struct {
		Code byte `json:"code"`
	}

	// LightControl answers CmdReadLightControl.
	LightControl struct {
		Mode      byte `json:"mode"`
		Threshold byte `json:"threshold"`
	}

	// BackgroundCorrection answers CmdReadBackgroundCorrection.
	BackgroundCorrection struct {
		InProgress bool `json:"in_progress"`
	}

	// ConfigModeInfo answers CmdEnterConfigMode.
	ConfigModeInfo struct {
		ProtocolVersion uint16 `json:"protocol_version"`
		BufferSize      uint16 `json:"buffer_size"`
	}
)

func (v VersionInfo) String() string {
	return fmt.Sprintf("V%d.%d.%d", v.Major>>8, v.Major&0xFF, v.Minor)
}

func (m MACAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// CentimetersPerGate converts the resolution code to a gate width; zero for
// unknown codes.
func (r DistanceResolution) CentimetersPerGate() int {
	switch r.Code {
	case 0x00:
		return 75
	case 0x01:
		return 50
	case 0x03:
		return 20
	default:
		return 0
	}
}

// Decode turns a validated frame into a typed Measurement or CommandReply.
// Exactly one of the returns is non-nil on success.
func Decode(f RawFrame, now time.Time) (*Measurement, *CommandReply, error) {
	switch f.Family {
	case DataFrame:
		m, err := decodeMeasurement(f.Bytes, now)
		return m, nil, err
	case CommandFrame:
		r, err := decodeCommandReply(f.Bytes)
		return nil, r, err
	default:
		return nil, nil, decodeErrf(f.Family, "unknown frame family")
	}
}

// decodeMeasurement decodes a periodic data frame. The scanner has already
// validated markers and sentinels; this checks the mode byte and the
// per-mode minimum lengths, then slices the fixed-offset fields.
func decodeMeasurement(frame []byte, now time.Time) (*Measurement, error) {
	if len(frame) < normalFrameLen {
		return nil, decodeErrf(DataFrame, "frame too short: %d bytes", len(frame))
	}

	mode := DataType(frame[6])
	switch mode {
	case NormalData:
		// sentinel at the fixed normal-mode offset
		if frame[15] != tailByte {
			return nil, decodeErrf(DataFrame, "normal-mode tail sentinel 0x%02X at offset 15", frame[15])
		}
	case EngineeringData:
		if len(frame) < engineeringFrameLen {
			return nil, decodeErrf(DataFrame, "engineering frame too short: %d bytes", len(frame))
		}
		if frame[47] != tailByte {
			return nil, decodeErrf(DataFrame, "engineering-mode tail sentinel 0x%02X at offset 47", frame[47])
		}
	default:
		return nil, decodeErrf(DataFrame, "unknown data type 0x%02X", frame[6])
	}

	m := &Measurement{
		Timestamp:        now,
		Mode:             mode,
		State:            TargetState(frame[8]),
		MovingDistanceCM: int(binary.LittleEndian.Uint16(frame[9:11])),
		MovingEnergy:     int(frame[11]),
		StillDistanceCM:  int(binary.LittleEndian.Uint16(frame[12:14])),
		StillEnergy:      int(frame[14]),
	}
	if m.MovingDistanceCM > 0 || m.StillDistanceCM > 0 {
		m.DetectionDistanceCM = m.MovingDistanceCM
		if m.StillDistanceCM > m.DetectionDistanceCM {
			m.DetectionDistanceCM = m.StillDistanceCM
		}
	}

	if mode == EngineeringData {
		m.MovingGateEnergies = make([]int, GateCount)
		m.StillGateEnergies = make([]int, GateCount)
		for i := 0; i < GateCount; i++ {
			m.MovingGateEnergies[i] = int(frame[17+i])
			m.StillGateEnergies[i] = int(frame[31+i])
		}
		m.LightValue = int(frame[45])
	}
	return m, nil
}

// replyDecoders maps reply codes to their payload interpreters. Decoding
// never fails on an unknown code: the reply is surfaced with the raw
// payload and a nil Detail so callers can apply their own fallback.
var replyDecoders = map[CommandCode]func([]byte) (interface{}, error){
	CmdReadVersion.Reply():              decodeVersion,
	CmdReadParameters.Reply():           decodeParameters,
	CmdReadMotionSensitivity.Reply():    func(p []byte) (interface{}, error) { return decodeSensitivities(p, true) },
	CmdReadStaticSensitivity.Reply():    func(p []byte) (interface{}, error) { return decodeSensitivities(p, false) },
	CmdReadMAC.Reply():                  decodeMAC,
	CmdReadDistanceResolution.Reply():   decodeResolution,
	CmdReadLightControl.Reply():         decodeLightControl,
	CmdReadBackgroundCorrection.Reply(): decodeBackgroundCorrection,
	CmdEnterConfigMode.Reply():          decodeConfigModeInfo,
}

// decodeCommandReply decodes an inbound command frame: code, ack word, and
// the catalogued payload layout for known codes.
func decodeCommandReply(frame []byte) (*CommandReply, error) {
	if len(frame) < minCommandFrameLen {
		return nil, decodeErrf(CommandFrame, "frame too short: %d bytes", len(frame))
	}
	payloadLen := int(binary.LittleEndian.Uint16(frame[4:6]))
	if payloadLen < 2 || 4+2+payloadLen+4 > len(frame) {
		return nil, decodeErrf(CommandFrame, "length field %d inconsistent with %d-byte frame", payloadLen, len(frame))
	}

	r := &CommandReply{
		Code: CommandCode(binary.LittleEndian.Uint16(frame[6:8])),
	}
	body := frame[8 : 6+payloadLen]
	if len(body) >= 2 {
		r.AckOK = binary.LittleEndian.Uint16(body[:2]) == 0x0000
		r.Payload = append([]byte(nil), body[2:]...)
	} else {
		// Replies with no ack word (none are catalogued, but the device
		// is permitted to omit it); treat presence of the frame as ack.
		r.AckOK = true
		r.Payload = append([]byte(nil), body...)
	}

	if dec, ok := replyDecoders[r.Code]; ok && r.AckOK {
		detail, err := dec(r.Payload)
		if err != nil {
			return nil, err
		}
		r.Detail = detail
	}
	return r, nil
}

func decodeVersion(p []byte) (interface{}, error) {
	if len(p) < 8 {
		return nil, decodeErrf(CommandFrame, "version payload %d bytes, want 8", len(p))
	}
	return VersionInfo{
		FirmwareType: binary.LittleEndian.Uint16(p[0:2]),
		Major:        binary.LittleEndian.Uint16(p[2:4]),
		Minor:        binary.LittleEndian.Uint32(p[4:8]),
	}, nil
}

func decodeParameters(p []byte) (interface{}, error) {
	if len(p) < 5 {
		return nil, decodeErrf(CommandFrame, "parameter payload %d bytes, want 5", len(p))
	}
	return DeviceParameters{
		MinGate:     int(p[0]),
		MaxGate:     int(p[1]),
		HoldSeconds: int(binary.LittleEndian.Uint16(p[2:4])),
		OutPolarity: int(p[4]),
	}, nil
}

func decodeSensitivities(p []byte, motion bool) (interface{}, error) {
	if len(p) < GateCount {
		return nil, decodeErrf(CommandFrame, "sensitivity payload %d bytes, want %d", len(p), GateCount)
	}
	gates := make([]int, GateCount)
	for i := range gates {
		gates[i] = int(p[i])
	}
	return GateSensitivities{Motion: motion, Gates: gates}, nil
}

func decodeMAC(p []byte) (interface{}, error) {
	if len(p) < 6 {
		return nil, decodeErrf(CommandFrame, "MAC payload %d bytes, want 6", len(p))
	}
	var m MACAddress
	copy(m[:], p[:6])
	return m, nil
}

func decodeResolution(p []byte) (interface{}, error) {
	if len(p) < 1 {
		return nil, decodeErrf(CommandFrame, "resolution payload empty")
	}
	return DistanceResolution{Code: p[0]}, nil
}

func decodeLightControl(p []byte) (interface{}, error) {
	if len(p) < 2 {
		return nil, decodeErrf(CommandFrame, "light control payload %d bytes, want 2", len(p))
	}
	return LightControl{Mode: p[0], Threshold: p[1]}, nil
}

func decodeBackgroundCorrection(p []byte) (interface{}, error) {
	if len(p) < 2 {
		return nil, decodeErrf(CommandFrame, "background correction payload %d bytes, want 2", len(p))
	}
	return BackgroundCorrection{
		InProgress: binary.LittleEndian.Uint16(p[0:2]) == 0x0001,
	}, nil
}

func decodeConfigModeInfo(p []byte) (interface{}, error) {
	info := ConfigModeInfo{}
	if len(p) >= 2 {
		info.ProtocolVersion = binary.LittleEndian.Uint16(p[0:2])
	}
	if len(p) >= 4 {
		info.BufferSize = binary.LittleEndian.Uint16(p[2:4])
	}
	return info, nil
}
