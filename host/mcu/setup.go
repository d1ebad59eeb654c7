package mcu

import (
	"context"
	"fmt"
	"time"

	"gomotor/host/config"
)

// Configurer is the subset of *MCU that Configure needs
type Configurer interface {
	ConfigMotor(oid uint8, fwd, rev, pwm uint32, maxDuration time.Duration) error
	ConfigEncoder(oid, motorOID uint8, pinA, pinB uint32, inverted bool) error
	StartEncoderReports(ctx context.Context, oid uint8, interval time.Duration) error
}

// Configure creates every motor and encoder in motors, in order, and starts
// periodic reports for encoders with a report interval.
func Configure(ctx context.Context, m Configurer, motors []config.Motor) error {
	for _, mc := range motors {
		if err := m.ConfigMotor(mc.OID, mc.ForwardPin, mc.ReversePin, mc.PWMPin, mc.MaxDuration()); err != nil {
			return fmt.Errorf("motor %d: %w", mc.OID, err)
		}
		e := mc.Encoder
		if e == nil {
			continue
		}
		if err := m.ConfigEncoder(e.OID, mc.OID, e.PinA, e.PinB, e.Inverted); err != nil {
			return fmt.Errorf("encoder %d: %w", e.OID, err)
		}
		if iv := mc.ReportInterval(); iv > 0 {
			if err := m.StartEncoderReports(ctx, e.OID, iv); err != nil {
				return fmt.Errorf("encoder %d reports: %w", e.OID, err)
			}
		}
	}
	return nil
}
