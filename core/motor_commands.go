// Motor and encoder command surface
// Exposes Motor and Encoder to the host by object id, Klipper style.
package core

import (
	"gomotor/protocol"
)

// SpeedScale is the wire unit of motor_drive: speed is sent in per-mille.
const SpeedScale = 1000

// MotorObject is a Motor configured by config_motor.
type MotorObject struct {
	OID   uint8
	Motor *Motor

	// MaxDuration stops the motor when no motor_drive arrives within this
	// many ticks of the last nonzero one. Zero disables the check.
	MaxDuration uint32
	Timer       Timer
}

// EncoderObject is an Encoder configured by config_encoder. The Encoder
// itself is only reachable through Slot.
type EncoderObject struct {
	OID      uint8
	MotorOID uint8
	Slot     Shared[Encoder]

	Timer     Timer  // periodic encoder_state reports
	RestTicks uint32 // report interval, 0 when not reporting

	service func(e *Encoder) // bound once so the ISR never allocates
}

var (
	motorObjects   = make(map[uint8]*MotorObject)
	encoderObjects = make(map[uint8]*EncoderObject)

	// encoderList is the ISR's view of encoderObjects. It only grows, and
	// only with interrupts masked.
	encoderList []*EncoderObject
)

// InitMotorCommands registers motor commands with the command registry
func InitMotorCommands() {
	RegisterCommand("config_motor", "oid=%c fwd_pin=%u rev_pin=%u pwm_pin=%u max_duration=%u", handleConfigMotor)
	RegisterCommand("config_encoder", "oid=%c motor_oid=%c pin_a=%u pin_b=%u invert=%c", handleConfigEncoder)
	RegisterCommand("motor_drive", "oid=%c speed=%i", handleMotorDrive)
	RegisterCommand("motor_stop", "oid=%c", handleMotorStop)
	RegisterCommand("query_motor", "oid=%c", handleQueryMotor)
	RegisterCommand("encoder_query", "oid=%c", handleEncoderQuery)
	RegisterCommand("encoder_report", "oid=%c clock=%u rest_ticks=%u", handleEncoderReport)

	RegisterResponse("motor_state", "oid=%c forward=%c reverse=%c duty=%hu")
	RegisterResponse("encoder_state", "oid=%c clock=%u count=%i")

	RegisterConstant("MOTOR_PERIOD", uint32(MotorPeriod))
	RegisterConstant("MOTOR_PWM_FREQ", uint32(MotorPWMFreq))
	RegisterConstant("MOTOR_SPEED_SCALE", uint32(SpeedScale))
}

// handleConfigMotor creates a Motor
// Format: config_motor oid=%c fwd_pin=%u rev_pin=%u pwm_pin=%u max_duration=%u
func handleConfigMotor(data *[]byte) error {
	var args [5]uint32
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		args[i] = v
	}
	oid := uint8(args[0])

	if _, exists := motorObjects[oid]; exists {
		return newError(ErrOIDInUse, "config_motor", "oid "+itoa(int(oid)), nil)
	}

	m, err := NewMotor(MotorConfig{
		Name:    "motor" + itoa(int(oid)),
		Forward: GPIOPin(args[1]),
		Reverse: GPIOPin(args[2]),
		PWM:     PWMPin(args[3]),
	})
	if err != nil {
		if CodeOf(err) == ErrConfigFatal {
			TryShutdown("motor pwm config failed")
		}
		return err
	}

	motorObjects[oid] = &MotorObject{
		OID:         oid,
		Motor:       m,
		MaxDuration: args[4],
	}
	return nil
}

// handleConfigEncoder attaches an encoder to a configured motor
// Format: config_encoder oid=%c motor_oid=%c pin_a=%u pin_b=%u invert=%c
func handleConfigEncoder(data *[]byte) error {
	var args [5]uint32
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		args[i] = v
	}
	oid, motorOID := uint8(args[0]), uint8(args[1])

	if _, exists := encoderObjects[oid]; exists {
		return newError(ErrOIDInUse, "config_encoder", "oid "+itoa(int(oid)), nil)
	}
	mo, ok := motorObjects[motorOID]
	if !ok {
		return newError(ErrUnknownOID, "config_encoder", "motor oid "+itoa(int(motorOID)), nil)
	}

	polarity := PolarityNormal
	if args[4] != 0 {
		polarity = PolarityInverted
	}
	enc, err := mo.Motor.AttachEncoder(GPIOPin(args[2]), GPIOPin(args[3]), polarity)
	if err != nil {
		return err
	}

	obj := &EncoderObject{OID: oid, MotorOID: motorOID}
	obj.service = func(e *Encoder) {
		if e.Update() {
			RecordEvent(EvtEncoderEdge, obj.OID, uint32(e.Counter), 0)
		}
	}
	if err := obj.Slot.Put(enc); err != nil {
		return err
	}

	encoderObjects[oid] = obj
	state := disableInterrupts()
	encoderList = append(encoderList, obj)
	restoreInterrupts(state)

	// The slot is filled, so the first edge finds its decoder.
	if err := enc.Listen(HandleEncoderInterrupts); err != nil {
		// nothing can reach obj yet: undo so the oid and pins can be reused
		state = disableInterrupts()
		encoderList = encoderList[:len(encoderList)-1]
		restoreInterrupts(state)
		delete(encoderObjects, oid)
		enc.release()
		return newError(ErrConfigFatal, "config_encoder", "irq gpio"+utoa(args[2]), err)
	}
	return nil
}

// HandleEncoderInterrupts is the GPIO edge handler shared by every
// configured encoder. Each encoder checks its own pending flag, so it is
// safe to call for an edge on any one of them.
func HandleEncoderInterrupts() {
	for _, obj := range encoderList {
		if err := obj.Slot.With(obj.service); err == ErrSlotEmpty {
			RecordEvent(EvtSlotEmpty, obj.OID, 0, 0)
		}
	}
}

// handleMotorDrive sets a motor speed
// Format: motor_drive oid=%c speed=%i
func handleMotorDrive(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	speed, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}

	if IsShutdown() {
		return newError(ErrShutdown, "motor_drive", "", nil)
	}
	mo, ok := motorObjects[uint8(oid)]
	if !ok {
		return newError(ErrUnknownOID, "motor_drive", "oid "+utoa(oid), nil)
	}

	if err := mo.Motor.Drive(float32(speed) / SpeedScale); err != nil {
		TryShutdown("motor speed out of range")
		return err
	}

	if speed == 0 || mo.MaxDuration == 0 {
		CancelTimer(&mo.Timer)
		return nil
	}
	mo.Timer.WakeTime = GetTime() + mo.MaxDuration
	mo.Timer.Handler = motorExpireEvent
	ScheduleTimer(&mo.Timer)
	return nil
}

// handleMotorStop stops a motor
// Format: motor_stop oid=%c
func handleMotorStop(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	mo, ok := motorObjects[uint8(oid)]
	if !ok {
		return newError(ErrUnknownOID, "motor_stop", "oid "+utoa(oid), nil)
	}
	CancelTimer(&mo.Timer)
	mo.Motor.Stop()
	return nil
}

// handleQueryMotor reports the last commanded motor state
// Format: query_motor oid=%c
func handleQueryMotor(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	mo, ok := motorObjects[uint8(oid)]
	if !ok {
		return newError(ErrUnknownOID, "query_motor", "oid "+utoa(oid), nil)
	}

	st := mo.Motor.State()
	SendResponse("motor_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(mo.OID))
		protocol.EncodeVLQUint(output, uint32(boolToUint8(st.Forward)))
		protocol.EncodeVLQUint(output, uint32(boolToUint8(st.Reverse)))
		protocol.EncodeVLQUint(output, uint32(st.Duty))
	})
	return nil
}

// handleEncoderQuery reports the current count
// Format: encoder_query oid=%c
func handleEncoderQuery(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	eo, ok := encoderObjects[uint8(oid)]
	if !ok {
		return newError(ErrUnknownOID, "encoder_query", "oid "+utoa(oid), nil)
	}
	return sendEncoderState(eo, GetTime())
}

// handleEncoderReport starts or cancels periodic encoder_state reports
// Format: encoder_report oid=%c clock=%u rest_ticks=%u
func handleEncoderReport(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rest, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	eo, ok := encoderObjects[uint8(oid)]
	if !ok {
		return newError(ErrUnknownOID, "encoder_report", "oid "+utoa(oid), nil)
	}

	CancelTimer(&eo.Timer)
	eo.RestTicks = rest
	if rest == 0 {
		return nil
	}
	eo.Timer.WakeTime = clock
	eo.Timer.Handler = encoderReportEvent
	ScheduleTimer(&eo.Timer)
	return nil
}

// EncoderCount reads the count of encoder oid through its slot.
func EncoderCount(oid uint8) (int32, error) {
	eo, ok := encoderObjects[oid]
	if !ok {
		return 0, newError(ErrUnknownOID, "encoder_count", "oid "+itoa(int(oid)), nil)
	}
	var count int32
	err := eo.Slot.With(func(e *Encoder) { count = e.Count() })
	return count, err
}

func sendEncoderState(eo *EncoderObject, clock uint32) error {
	count, err := EncoderCount(eo.OID)
	if err != nil {
		return err
	}
	SendResponse("encoder_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(eo.OID))
		protocol.EncodeVLQUint(output, clock)
		protocol.EncodeVLQInt(output, count)
	})
	return nil
}

// encoderReportEvent is the timer handler for periodic encoder reports
func encoderReportEvent(t *Timer) uint8 {
	var eo *EncoderObject
	for _, e := range encoderObjects {
		if &e.Timer == t {
			eo = e
			break
		}
	}
	if eo == nil || eo.RestTicks == 0 {
		return SF_DONE
	}

	_ = sendEncoderState(eo, t.WakeTime)
	t.WakeTime += eo.RestTicks
	return SF_RESCHEDULE
}

// motorExpireEvent is the timer handler for max_duration enforcement
func motorExpireEvent(t *Timer) uint8 {
	for _, mo := range motorObjects {
		if &mo.Timer == t {
			mo.Motor.Stop()
			RecordEvent(EvtMotorExpire, mo.OID, 0, 0)
			break
		}
	}
	return SF_DONE
}

// ShutdownAllMotors stops every motor and cancels pending motor and report
// timers. Called from emergency_stop and TryShutdown.
func ShutdownAllMotors() {
	for _, mo := range motorObjects {
		CancelTimer(&mo.Timer)
		mo.Motor.Stop()
	}
	for _, eo := range encoderObjects {
		CancelTimer(&eo.Timer)
		eo.RestTicks = 0
	}
	RecordEvent(EvtShutdown, 0, uint32(len(motorObjects)), 0)
}

// ResetMotorCommands stops and forgets every motor and encoder, releasing
// their pins. Used by config_reset.
func ResetMotorCommands() {
	ShutdownAllMotors()

	state := disableInterrupts()
	list := encoderList
	encoderList = nil
	restoreInterrupts(state)

	for _, eo := range list {
		_ = eo.Slot.With(func(e *Encoder) { e.release() })
	}
	for oid, mo := range motorObjects {
		mo.Motor.release()
		delete(motorObjects, oid)
	}
	for oid := range encoderObjects {
		delete(encoderObjects, oid)
	}
}
