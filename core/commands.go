package core

import (
	"sync/atomic"

	"gomotor/protocol"
)

// moveQueueDepth is reported in get_config. Motor commands take effect on
// arrival, so nothing is actually queued.
const moveQueueDepth = 16

// firmwareState is what survives between commands: the host's config CRC,
// the shutdown latch and a pending reset request.
type firmwareState struct {
	configCRC    atomic.Uint32
	shutdown     atomic.Bool
	resetPending atomic.Bool

	transport    *protocol.Transport
	resetHandler func()
}

var fw firmwareState

// InitCoreCommands registers the protocol's core commands. identify_response
// and identify must be the first two registrations: a host fetches the
// dictionary using ids 0 and 1 before it has the dictionary.
func InitCoreCommands() {
	RegisterCommand("identify_response", "offset=%u data=%*s", nil)
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")
	RegisterResponse("shutdown", "clock=%u reason=%s")
}

// handleIdentify sends one chunk of the compressed dictionary
// Format: identify offset=%u count=%c
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
	return nil
}

func handleGetUptime(data *[]byte) error {
	up := GetUptime()
	SendResponse("uptime", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(up>>32))
		protocol.EncodeVLQUint(out, uint32(up))
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	now := GetTime()
	SendResponse("clock", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, now)
	})
	return nil
}

// handleGetConfig reports whether the host has finalized its configuration
func handleGetConfig(data *[]byte) error {
	crc := fw.configCRC.Load()
	shut := IsShutdown()
	SendResponse("config", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(boolToUint8(crc != 0)))
		protocol.EncodeVLQUint(out, crc)
		protocol.EncodeVLQUint(out, uint32(boolToUint8(shut)))
		protocol.EncodeVLQUint(out, moveQueueDepth)
	})
	return nil
}

// handleConfigReset drops every configured object so the host can start
// over. Outputs are stopped first.
func handleConfigReset(data *[]byte) error {
	ResetMotorCommands()
	fw.configCRC.Store(0)
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	fw.configCRC.Store(crc)
	return nil
}

// handleAllocateOids is accepted for host compatibility; objects are kept in
// maps, so nothing needs reserving.
func handleAllocateOids(data *[]byte) error {
	_, err := protocol.DecodeVLQUint(data)
	return err
}

func handleEmergencyStop(data *[]byte) error {
	TryShutdown("emergency stop")
	return nil
}

// TryShutdown enters shutdown: every motor is stopped, drive commands are
// refused until reset, and the host is told why. Repeated calls only report.
func TryShutdown(reason string) {
	fw.shutdown.Store(true)
	ShutdownAllMotors()
	DebugPrintln("[shutdown] " + reason)

	now := GetTime()
	SendResponse("shutdown", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, now)
		protocol.EncodeVLQString(out, reason)
	})
}

// IsShutdown reports whether the shutdown latch is set
func IsShutdown() bool {
	return fw.shutdown.Load()
}

// ResetFirmwareState clears the config CRC and the shutdown latch. The
// host transport calls it when the host restarts its sequence.
func ResetFirmwareState() {
	fw.configCRC.Store(0)
	fw.shutdown.Store(false)
}

// SendResponse encodes a registered response on the global transport. It is
// a no-op until SetGlobalTransport is called.
func SendResponse(name string, args func(out protocol.OutputBuffer)) {
	if fw.transport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		// every response is registered at init
		panic("response not registered: " + name)
	}
	fw.transport.SendCommand(cmd.ID, args)
}

// SetGlobalTransport sets where SendResponse writes
func SetGlobalTransport(t *protocol.Transport) {
	fw.transport = t
}

// SetResetHandler installs the platform's reboot routine
func SetResetHandler(handler func()) {
	fw.resetHandler = handler
}

// handleReset only flags the request: the reboot must wait until the ACK
// for this command has been written.
func handleReset(_ *[]byte) error {
	fw.resetPending.Store(true)
	return nil
}

// CheckPendingReset reboots if reset was requested. Call it from the main
// loop once output has been flushed.
func CheckPendingReset() {
	if fw.resetPending.Load() && fw.resetHandler != nil {
		fw.resetHandler()
	}
}
