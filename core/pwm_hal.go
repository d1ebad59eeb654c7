package core

// PWMPin identifies a hardware pin capable of PWM output
type PWMPin uint32

// PWMValue is a duty value in compare-register units (0 to PWMConfig.Top)
type PWMValue uint32

// PWMMode is the counter shape of the PWM timer.
type PWMMode uint8

const (
	// PWMCountUp counts 0..Top and wraps (sawtooth)
	PWMCountUp PWMMode = iota
	// PWMCountUpDown counts 0..Top..0 (phase-correct)
	PWMCountUpDown
)

// PWMConfig describes a hardware PWM channel.
type PWMConfig struct {
	FrequencyHz uint32  // switching frequency
	Top         uint32  // number of discrete duty steps; duty is 0..Top
	Mode        PWMMode // counter shape
	// UpdateImmediate applies duty writes at once instead of at the next
	// timer wrap.
	UpdateImmediate bool
}

// PWMDriver is the abstract PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type PWMDriver interface {
	// ConfigureHardwarePWM configures a pin for hardware PWM output and
	// starts its timer at duty 0. It fails if cfg.FrequencyHz cannot be
	// derived from the available clock.
	ConfigureHardwarePWM(pin PWMPin, cfg PWMConfig) error

	// SetDutyCycle sets the duty for a configured pin
	// value: 0 (fully off) to cfg.Top (fully on)
	SetDutyCycle(pin PWMPin, value PWMValue) error

	// DisablePWM drives the pin low and stops using it for PWM
	DisablePWM(pin PWMPin) error
}

// Global singleton used by core code.
var pwmDriver PWMDriver

// SetPWMDriver is called by target-specific code to register its driver.
func SetPWMDriver(d PWMDriver) {
	pwmDriver = d
}

// MustPWM returns the configured driver or panics if missing.
func MustPWM() PWMDriver {
	if pwmDriver == nil {
		panic("PWM driver not configured")
	}
	return pwmDriver
}
