package z21

import "encoding/binary"

// R-Bus feedback layout.
const (
	rbusGroupOffset   = 4
	rbusPortOffset    = 5
	rbusMinLength     = 6
	rbusDataOffset    = 5
	rbusDataBytes     = 8
	rbusPortsPerGroup = 64
)

// Header returns the LAN header of a datagram.
// ok is false if the datagram is shorter than the 4-byte frame header.
func Header(data []byte) (header uint16, ok bool) {
	if len(data) < frameHeaderSize {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data[2:4]), true
}

func hasHeader(data []byte, want uint16) bool {
	h, ok := Header(data)
	return ok && h == want
}

// IsXBus reports whether the datagram is an X-Bus frame.
func IsXBus(data []byte) bool {
	return hasHeader(data, HeaderXBus)
}

// IsRBusFeedback reports whether the datagram is LAN_RMBUS_DATACHANGED.
func IsRBusFeedback(data []byte) bool {
	return hasHeader(data, HeaderRBusDataChanged)
}

// IsSystemState reports whether the datagram is LAN_SYSTEMSTATE_DATACHANGED.
func IsSystemState(data []byte) bool {
	return hasHeader(data, HeaderSystemState)
}

// TryParseFeedback decodes an R-Bus feedback datagram.
//
// Byte 4 is the feedback module group, byte 5 the input port that fired.
// The returned event owns a copy of data.
func TryParseFeedback(data []byte) (FeedbackEvent, bool) {
	if len(data) < rbusMinLength || !IsRBusFeedback(data) {
		return FeedbackEvent{}, false
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return FeedbackEvent{
		Port:     uint32(data[rbusPortOffset]),
		RawBytes: raw,
	}, true
}

// ExtractAllInPorts decodes the occupancy bitmask of an R-Bus datagram.
//
// Bytes 5..12 hold 64 occupancy bits for the group at byte 4. Each set bit
// maps to the 1-based port group*64 + byteIndex*8 + bit + 1. Truncated
// datagrams yield the ports present in the bytes received.
func ExtractAllInPorts(data []byte) []int {
	if len(data) <= rbusDataOffset || !IsRBusFeedback(data) {
		return nil
	}
	group := int(data[rbusGroupOffset])
	end := min(len(data), rbusDataOffset+rbusDataBytes)

	var ports []int
	for i := rbusDataOffset; i < end; i++ {
		b := data[i]
		for bit := range 8 {
			if b&(1<<bit) != 0 {
				ports = append(ports, group*rbusPortsPerGroup+(i-rbusDataOffset)*8+bit+1)
			}
		}
	}
	return ports
}

// ExtractFirstInPort returns the first occupied port of an R-Bus datagram, or 0.
func ExtractFirstInPort(data []byte) int {
	ports := ExtractAllInPorts(data)
	if len(ports) == 0 {
		return 0
	}
	return ports[0]
}

// TryParseXBusStatus decodes LAN_X_STATUS_CHANGED (0x62) and the
// LAN_X_STATUS broadcast (0x61). The flags byte is at offset 6.
func TryParseXBusStatus(data []byte) (BusStatus, bool) {
	if len(data) < xStatusMinLength || !IsXBus(data) {
		return BusStatus{}, false
	}
	if x := data[frameHeaderSize]; x != XHeaderStatusChanged && x != XHeaderStatus {
		return BusStatus{}, false
	}
	flags := data[xStatusFlagsOffset]
	return BusStatus{
		EmergencyStop:   flags&statusEmergencyStop != 0,
		TrackOff:        flags&statusTrackOff != 0,
		ShortCircuit:    flags&statusShortCircuit != 0,
		ProgrammingMode: flags&statusProgramming != 0,
	}, true
}

// TryParseSystemState decodes the 16-byte system state payload: six
// little-endian uint16 values followed by two single bytes.
func TryParseSystemState(data []byte) (SystemTelemetry, bool) {
	if len(data) < frameHeaderSize+systemStatePayloadSize || !IsSystemState(data) {
		return SystemTelemetry{}, false
	}
	p := data[frameHeaderSize:]
	return SystemTelemetry{
		MainCurrent:         binary.LittleEndian.Uint16(p[0:2]),
		ProgCurrent:         binary.LittleEndian.Uint16(p[2:4]),
		FilteredMainCurrent: binary.LittleEndian.Uint16(p[4:6]),
		Temperature:         binary.LittleEndian.Uint16(p[6:8]),
		SupplyVoltage:       binary.LittleEndian.Uint16(p[8:10]),
		VCCVoltage:          binary.LittleEndian.Uint16(p[10:12]),
		CentralState:        p[12],
		CentralStateEx:      p[13],
	}, true
}

// TryParseSerialNumber decodes the LAN_GET_SERIAL_NUMBER response.
func TryParseSerialNumber(data []byte) (uint32, bool) {
	if len(data) < frameHeaderSize+4 || !hasHeader(data, HeaderSerialNumber) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[4:8]), true
}

// TryParseHardwareInfo decodes the LAN_GET_HWINFO response.
func TryParseHardwareInfo(data []byte) (HardwareInfo, bool) {
	if len(data) < frameHeaderSize+8 || !hasHeader(data, HeaderHardwareInfo) {
		return HardwareInfo{}, false
	}
	return HardwareInfo{
		TypeCode:     binary.LittleEndian.Uint32(data[4:8]),
		FirmwareCode: binary.LittleEndian.Uint32(data[8:12]),
	}, true
}
