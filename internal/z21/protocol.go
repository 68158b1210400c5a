package z21

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPort is the UDP port the Z21 listens on.
const DefaultPort = 21105

// LAN headers (second uint16 of every datagram).
const (
	HeaderSerialNumber    uint16 = 0x0010
	HeaderHardwareInfo    uint16 = 0x001A
	HeaderLogoff          uint16 = 0x0030
	HeaderXBus            uint16 = 0x0040
	HeaderBroadcastFlags  uint16 = 0x0050
	HeaderRBusDataChanged uint16 = 0x0080
	HeaderSystemState     uint16 = 0x0084
	HeaderSystemStateGet  uint16 = 0x0085
)

// X-Bus headers (first payload byte of a 0x0040 frame).
const (
	XHeaderTrackPower      byte = 0x21
	XHeaderGetTurnoutInfo  byte = 0x43
	XHeaderSetTurnout      byte = 0x53
	XHeaderStatus          byte = 0x61
	XHeaderStatusChanged   byte = 0x62
	XHeaderSetStop         byte = 0x80
	xDataGetStatus         byte = 0x24
	xDataTrackPowerOff     byte = 0x80
	xDataTrackPowerOn      byte = 0x81
	xStatusFlagsOffset          = 6
	xStatusMinLength            = 7
	frameHeaderSize             = 4
	systemStatePayloadSize      = 16
)

// Broadcast flags for LAN_SET_BROADCASTFLAGS.
const (
	BroadcastDriving     uint32 = 0x00000001
	BroadcastRBus        uint32 = 0x00000002
	BroadcastRailCom     uint32 = 0x00000004
	BroadcastSystemState uint32 = 0x00000008
	BroadcastLocoNet     uint32 = 0x00000100

	// BroadcastBasic subscribes to feedback and system state only.
	BroadcastBasic = BroadcastRBus | BroadcastSystemState

	// BroadcastAll subscribes to every broadcast the station offers.
	BroadcastAll uint32 = 0xFFFFFFFF
)

// Status flag bits in an X-Bus status byte.
const (
	statusEmergencyStop byte = 0x01
	statusTrackOff      byte = 0x02
	statusShortCircuit  byte = 0x04
	statusProgramming   byte = 0x20
)

// ConnectionState is the protocol client's lifecycle state.
type ConnectionState string

// Connection states.
const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// FeedbackEvent is one R-Bus feedback datagram, reduced to its input port.
type FeedbackEvent struct {
	// Port is the feedback input (InPort) that triggered the datagram.
	Port uint32

	// RawBytes is a private copy of the received datagram.
	RawBytes []byte

	// ReceivedAt is set by the client when the datagram arrived.
	ReceivedAt time.Time
}

// BusStatus is the command-station status decoded from an X-Bus status byte.
type BusStatus struct {
	EmergencyStop   bool `json:"emergency_stop"`
	TrackOff        bool `json:"track_off"`
	ShortCircuit    bool `json:"short_circuit"`
	ProgrammingMode bool `json:"programming_mode"`
}

// SystemTelemetry is the LAN_SYSTEMSTATE_DATACHANGED payload.
// Currents are in mA, temperature in °C, voltages in mV.
type SystemTelemetry struct {
	MainCurrent         uint16 `json:"main_current"`
	ProgCurrent         uint16 `json:"prog_current"`
	FilteredMainCurrent uint16 `json:"filtered_main_current"`
	Temperature         uint16 `json:"temperature"`
	SupplyVoltage       uint16 `json:"supply_voltage"`
	VCCVoltage          uint16 `json:"vcc_voltage"`
	CentralState        uint8  `json:"central_state"`
	CentralStateEx      uint8  `json:"central_state_ex"`
}

// HardwareInfo is the LAN_GET_HWINFO response.
type HardwareInfo struct {
	TypeCode     uint32
	FirmwareCode uint32
}

// VersionInfo collects the identification data requested on connect.
type VersionInfo struct {
	SerialNumber     uint32 `json:"serial_number"`
	HardwareTypeCode uint32 `json:"hardware_type_code"`
	FirmwareCode     uint32 `json:"firmware_code"`
}

// HardwareType returns the model name for the hardware type code.
func (v VersionInfo) HardwareType() string {
	switch v.HardwareTypeCode {
	case 0x00000200:
		return "Z21 (old)"
	case 0x00000201:
		return "z21start"
	case 0x00000202:
		return "Z21"
	case 0x00000203:
		return "smartRail"
	case 0x00000204:
		return "z21small"
	case 0x00000205:
		return "z21select"
	case 0x00000206:
		return "Z21a"
	case 0x00000211:
		return "z21 single booster"
	case 0x00000212:
		return "z21 dual booster"
	default:
		return fmt.Sprintf("unknown (0x%08X)", v.HardwareTypeCode)
	}
}

// FirmwareVersion renders the BCD firmware code, e.g. 0x0143 -> "V1.43".
func (v VersionInfo) FirmwareVersion() string {
	major := (v.FirmwareCode >> 8) & 0xFF
	minor := v.FirmwareCode & 0xFF
	return fmt.Sprintf("V%X.%02X", major, minor)
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("S/N: %d, HW: %s, FW: %s", v.SerialNumber, v.HardwareType(), v.FirmwareVersion())
}

// ToHex renders a datagram as space-separated upper-case hex for logging.
func ToHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
