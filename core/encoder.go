package core

// Polarity maps the level of channel B at a channel A rising edge to a count
// direction. It depends on how the encoder is wired, so it is configurable.
type Polarity uint8

const (
	// PolarityNormal counts down when B is high and up when B is low
	PolarityNormal Polarity = iota
	// PolarityInverted counts up when B is high and down when B is low
	PolarityInverted
)

// Encoder is a single-edge quadrature decoder. Channel A raises an interrupt
// on its rising edge; channel B is sampled to pick the direction.
//
// Counter is written only by Update. Outside tests, reach an Encoder through
// a Shared slot so the interrupt handler and the main loop never touch it at
// the same time.
type Encoder struct {
	owner    string
	a        GPIOPin
	b        GPIOPin
	polarity Polarity
	Counter  int32 // net ticks since construction
}

func newEncoder(owner string, a, b GPIOPin, polarity Polarity) (*Encoder, error) {
	pins := []uint32{uint32(a), uint32(b)}
	if err := globalPins.ClaimAll(owner, pins...); err != nil {
		return nil, err
	}
	gpio := MustGPIO()
	for _, p := range []GPIOPin{a, b} {
		if err := gpio.ConfigureInput(p, PullNone); err != nil {
			globalPins.releaseList(owner, pins)
			return nil, newError(ErrConfigFatal, "new_encoder", "input gpio"+utoa(uint32(p)), err)
		}
	}
	return &Encoder{owner: owner, a: a, b: b, polarity: polarity}, nil
}

// Listen enables the channel A rising-edge interrupt and routes it to
// handler. Call it only after the encoder is stored in its Shared slot.
func (e *Encoder) Listen(handler func()) error {
	return MustGPIO().ListenEdge(e.a, EdgeRising, handler)
}

// release stops listening on channel A and returns both pins to the
// registry.
func (e *Encoder) release() {
	if gpioDriver != nil {
		_ = gpioDriver.ListenEdge(e.a, EdgeNone, nil)
	}
	globalPins.releaseList(e.owner, []uint32{uint32(e.a), uint32(e.b)})
}

// PinA returns the interrupt channel pin
func (e *Encoder) PinA() GPIOPin { return e.a }

// PinB returns the direction channel pin
func (e *Encoder) PinB() GPIOPin { return e.b }

// Polarity returns the configured direction mapping
func (e *Encoder) Polarity() Polarity { return e.polarity }

// Count returns Counter
func (e *Encoder) Count() int32 { return e.Counter }

// Update services a latched edge on channel A. It returns false when no edge
// is pending. Safe for interrupt context: no allocation, no blocking.
func (e *Encoder) Update() bool {
	gpio := gpioDriver
	if !gpio.InterruptPending(e.a) {
		return false
	}

	// newEncoder configured B as an input, which fails for any pin the
	// driver would refuse to read. A failed read counts as low.
	high, _ := gpio.GetPin(e.b)
	if high != (e.polarity == PolarityInverted) {
		e.Counter--
	} else {
		e.Counter++
	}

	// Clearing re-arms the line, so B must already be sampled.
	gpio.ClearInterrupt(e.a)
	return true
}
