// H-bridge motor actuator
// Two direction outputs select the bridge leg, one hardware PWM channel sets
// the effective drive power.
package core

import "gomotor/x/mathx"

// Motor PWM constants
const (
	MotorPeriod  = 256   // duty resolution: duty values are 0..MotorPeriod
	MotorPWMFreq = 10000 // switching frequency in Hz
)

// MotorConfig names the pins a Motor takes ownership of.
type MotorConfig struct {
	Name    string  // owner name recorded in the pin registry
	Forward GPIOPin // high drives the forward leg
	Reverse GPIOPin // high drives the reverse leg
	PWM     PWMPin  // bridge enable / speed input
}

// MotorState is the last state written to the hardware.
type MotorState struct {
	Forward bool
	Reverse bool
	Duty    PWMValue
}

// Motor drives one brushed DC motor through an H-bridge.
// At most one of the direction pins is ever high.
type Motor struct {
	name    string
	forward GPIOPin
	reverse GPIOPin
	pwm     PWMPin
	state   MotorState

	encoders int // encoders attached so far, names their pin claims
}

// NewMotor claims the configured pins, starts the PWM timer at MotorPWMFreq
// with MotorPeriod steps counting up, and leaves the motor stopped.
//
// A PWM frequency the clock cannot produce is reported as ErrConfigFatal:
// the motor cannot be trusted to run and startup should not continue.
func NewMotor(cfg MotorConfig) (*Motor, error) {
	if cfg.Name == "" {
		cfg.Name = "motor"
	}
	pins := []uint32{uint32(cfg.Forward), uint32(cfg.Reverse), uint32(cfg.PWM)}
	if err := globalPins.ClaimAll(cfg.Name, pins...); err != nil {
		return nil, err
	}

	err := MustPWM().ConfigureHardwarePWM(cfg.PWM, PWMConfig{
		FrequencyHz:     MotorPWMFreq,
		Top:             MotorPeriod,
		Mode:            PWMCountUp,
		UpdateImmediate: true,
	})
	if err != nil {
		globalPins.releaseList(cfg.Name, pins)
		return nil, newError(ErrConfigFatal, "new_motor", "pwm gpio"+utoa(uint32(cfg.PWM)), err)
	}

	gpio := MustGPIO()
	for _, p := range []GPIOPin{cfg.Forward, cfg.Reverse} {
		if err := gpio.ConfigureOutput(p, false); err != nil {
			globalPins.releaseList(cfg.Name, pins)
			return nil, newError(ErrConfigFatal, "new_motor", "direction gpio"+utoa(uint32(p)), err)
		}
	}

	m := &Motor{
		name:    cfg.Name,
		forward: cfg.Forward,
		reverse: cfg.Reverse,
		pwm:     cfg.PWM,
	}
	m.Stop()
	DebugPrintln("[motor] " + m.name + " ready pwm=gpio" + utoa(uint32(cfg.PWM)))
	return m, nil
}

// Name returns the owner name the motor registered its pins under
func (m *Motor) Name() string { return m.name }

// State returns the last commanded pin and duty state
func (m *Motor) State() MotorState { return m.state }

// AttachEncoder provisions a quadrature decoder on pins a and b. The motor
// keeps no reference to it; the caller places it in a Shared slot before the
// edge interrupt can fire.
func (m *Motor) AttachEncoder(a, b GPIOPin, polarity Polarity) (*Encoder, error) {
	enc, err := newEncoder(m.name+".encoder"+itoa(m.encoders), a, b, polarity)
	if err == nil {
		m.encoders++
	}
	return enc, err
}

// Stop drives both direction pins low and the duty to 0.
func (m *Motor) Stop() {
	m.apply(false, false, 0)
}

// Drive sets a signed speed in [-1, 1]. Positive drives the forward leg,
// negative the reverse leg, zero stops.
//
// A speed outside [-1, 1] (or NaN) is a caller bug: Drive returns
// ErrContractViolation and leaves the outputs untouched.
func (m *Motor) Drive(speed float32) error {
	if !mathx.Between(speed, -1, 1) {
		RecordEvent(EvtContract, 0, 0, 0)
		return newError(ErrContractViolation, "drive", "speed must be between -1 and 1 inclusive", nil)
	}

	switch {
	case speed > 0:
		m.apply(true, false, PWMValue(mathx.RoundScale(speed, uint32(MotorPeriod))))
	case speed < 0:
		m.apply(false, true, PWMValue(mathx.RoundScale(-speed, uint32(MotorPeriod))))
	default:
		m.Stop()
	}
	return nil
}

// MustDrive is Drive for callers that treat a bad speed as fatal.
func (m *Motor) MustDrive(speed float32) {
	if err := m.Drive(speed); err != nil {
		panic(err)
	}
}

// apply writes direction pins and duty. The leg being released goes low
// before the other goes high.
func (m *Motor) apply(fwd, rev bool, duty PWMValue) {
	gpio := MustGPIO()
	if !fwd {
		_ = gpio.SetPin(m.forward, false)
	}
	if !rev {
		_ = gpio.SetPin(m.reverse, false)
	}
	if fwd {
		_ = gpio.SetPin(m.forward, true)
	}
	if rev {
		_ = gpio.SetPin(m.reverse, true)
	}
	duty = mathx.Clamp(duty, 0, MotorPeriod)
	_ = MustPWM().SetDutyCycle(m.pwm, duty)

	m.state = MotorState{Forward: fwd, Reverse: rev, Duty: duty}
	RecordEvent(EvtMotorApply, 0, uint32(duty), uint32(boolToUint8(fwd)|boolToUint8(rev)<<1))
}

// release stops the motor, disables its PWM channel and returns its pins to
// the registry. The Motor must not be used afterwards.
func (m *Motor) release() {
	m.Stop()
	if pwmDriver != nil {
		_ = pwmDriver.DisablePWM(m.pwm)
	}
	globalPins.releaseList(m.name, []uint32{uint32(m.forward), uint32(m.reverse), uint32(m.pwm)})
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
