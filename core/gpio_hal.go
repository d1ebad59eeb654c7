package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// Pull selects the input bias resistor.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Edge selects which transitions latch an interrupt.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output driven to initial
	ConfigureOutput(pin GPIOPin, initial bool) error

	// ConfigureInput configures a pin as a digital input with the given bias
	ConfigureInput(pin GPIOPin, pull Pull) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin level
	GetPin(pin GPIOPin) (bool, error)

	// ListenEdge latches edge on pin and calls handler from interrupt
	// context each time the latch is set. EdgeNone disables the interrupt.
	ListenEdge(pin GPIOPin, edge Edge, handler func()) error

	// InterruptPending reports whether an edge is latched on pin
	InterruptPending(pin GPIOPin) bool

	// ClearInterrupt clears the latch, re-arming the line
	ClearInterrupt(pin GPIOPin)
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// GetGPIODriver returns the registered driver, or nil.
func GetGPIODriver() GPIODriver {
	return gpioDriver
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
