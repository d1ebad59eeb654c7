package mcu

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// SpeedScale is the per-mille unit of motor_drive's speed argument
const SpeedScale = 1000

// MotorState mirrors the firmware's motor_state response
type MotorState struct {
	Forward bool
	Reverse bool
	Duty    uint32 // 0..MOTOR_PERIOD
}

// SpeedToWire converts a normalized speed to motor_drive units. Speeds
// outside [-1, 1] (and NaN) are rejected here, before the firmware would
// shut down over them.
func SpeedToWire(speed float64) (int32, error) {
	if math.IsNaN(speed) || speed < -1 || speed > 1 {
		return 0, fmt.Errorf("speed %v outside [-1, 1]", speed)
	}
	return int32(math.Round(speed * SpeedScale)), nil
}

// ConfigMotor creates motor oid. maxDuration stops the motor when no drive
// arrives in time; zero disables it.
func (m *MCU) ConfigMotor(oid uint8, fwd, rev, pwm uint32, maxDuration time.Duration) error {
	ticks, err := m.durationTicks(maxDuration)
	if err != nil {
		return err
	}
	return m.Send("config_motor", oid, fwd, rev, pwm, ticks)
}

// ConfigEncoder attaches encoder oid to motor motorOID
func (m *MCU) ConfigEncoder(oid, motorOID uint8, pinA, pinB uint32, inverted bool) error {
	return m.Send("config_encoder", oid, motorOID, pinA, pinB, inverted)
}

// Drive sets motor oid to speed in [-1, 1]
func (m *MCU) Drive(oid uint8, speed float64) error {
	wire, err := SpeedToWire(speed)
	if err != nil {
		return err
	}
	return m.Send("motor_drive", oid, wire)
}

// Stop stops motor oid
func (m *MCU) Stop(oid uint8) error {
	return m.Send("motor_stop", oid)
}

// EmergencyStop stops every motor and puts the firmware in shutdown
func (m *MCU) EmergencyStop() error {
	return m.Send("emergency_stop")
}

// ConfigReset drops every configured motor and encoder
func (m *MCU) ConfigReset() error {
	return m.Send("config_reset")
}

func matchOID(oid uint8) func(*Response) bool {
	return func(r *Response) bool { return r.Uint("oid") == uint32(oid) }
}

// QueryMotor returns the last state written to motor oid
func (m *MCU) QueryMotor(ctx context.Context, oid uint8) (MotorState, error) {
	r, err := m.Query(ctx, "motor_state", matchOID(oid), "query_motor", oid)
	if err != nil {
		return MotorState{}, err
	}
	return MotorState{
		Forward: r.Uint("forward") != 0,
		Reverse: r.Uint("reverse") != 0,
		Duty:    r.Uint("duty"),
	}, nil
}

// QueryEncoder returns the count of encoder oid
func (m *MCU) QueryEncoder(ctx context.Context, oid uint8) (int32, error) {
	r, err := m.Query(ctx, "encoder_state", matchOID(oid), "encoder_query", oid)
	if err != nil {
		return 0, err
	}
	return r.Int("count"), nil
}

// Clock returns the MCU's current clock
func (m *MCU) Clock(ctx context.Context) (uint32, error) {
	r, err := m.Query(ctx, "clock", nil, "get_clock")
	if err != nil {
		return 0, err
	}
	return r.Uint("clock"), nil
}

// ClockFreq returns CLOCK_FREQ from the dictionary
func (m *MCU) ClockFreq() (uint32, error) {
	s, ok := m.Constant("CLOCK_FREQ")
	if !ok {
		return 0, fmt.Errorf("CLOCK_FREQ: %w", ErrNoDictionary)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("CLOCK_FREQ %q: %w", s, err)
	}
	return uint32(v), nil
}

func (m *MCU) durationTicks(d time.Duration) (uint32, error) {
	if d <= 0 {
		return 0, nil
	}
	freq, err := m.ClockFreq()
	if err != nil {
		return 0, err
	}
	ticks := uint64(d) * uint64(freq) / uint64(time.Second)
	if ticks > math.MaxUint32/2 {
		return 0, fmt.Errorf("duration %v too long for the MCU clock", d)
	}
	return uint32(ticks), nil
}

// StartEncoderReports asks for encoder_state from oid every interval,
// starting one interval from now.
func (m *MCU) StartEncoderReports(ctx context.Context, oid uint8, interval time.Duration) error {
	rest, err := m.durationTicks(interval)
	if err != nil {
		return err
	}
	if rest == 0 {
		return fmt.Errorf("report interval %v too short", interval)
	}
	now, err := m.Clock(ctx)
	if err != nil {
		return err
	}
	return m.Send("encoder_report", oid, now+rest, rest)
}

// StopEncoderReports cancels periodic reports from oid
func (m *MCU) StopEncoderReports(oid uint8) error {
	return m.Send("encoder_report", oid, uint32(0), uint32(0))
}

// OnEncoderState calls fn for every encoder_state, polled or periodic
func (m *MCU) OnEncoderState(fn func(oid uint8, clock uint32, count int32)) {
	m.Subscribe("encoder_state", func(r *Response) {
		fn(uint8(r.Uint("oid")), r.Uint("clock"), r.Int("count"))
	})
}

// OnShutdown calls fn when the firmware reports a shutdown
func (m *MCU) OnShutdown(fn func(clock uint32, reason string)) {
	m.Subscribe("shutdown", func(r *Response) {
		fn(r.Uint("clock"), r.String("reason"))
	})
}
