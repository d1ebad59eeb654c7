package core

// PinClaims records which component owns each hardware pin. A pin handed to
// one component cannot be configured by another, which stands in for the
// move-only peripheral handles a driver consumes at construction.
type PinClaims struct {
	owners map[uint32]string
}

// NewPinClaims creates an empty registry
func NewPinClaims() *PinClaims {
	return &PinClaims{owners: make(map[uint32]string)}
}

var globalPins = NewPinClaims()

// GlobalPins returns the registry used by NewMotor and AttachEncoder.
func GlobalPins() *PinClaims {
	return globalPins
}

// Claim gives pin to owner. A held pin yields ErrPinInUse whoever holds
// it: two objects with the same owner name still get a pin once.
func (c *PinClaims) Claim(owner string, pin uint32) error {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if cur, ok := c.owners[pin]; ok {
		return newError(ErrPinInUse, "claim", "gpio"+utoa(pin)+" held by "+cur, nil)
	}
	c.owners[pin] = owner
	return nil
}

// ClaimAll claims every pin or none of them.
func (c *PinClaims) ClaimAll(owner string, pins ...uint32) error {
	for i, p := range pins {
		for _, q := range pins[:i] {
			if p == q {
				c.releaseList(owner, pins[:i])
				return newError(ErrPinInUse, "claim", "gpio"+utoa(p)+" listed twice", nil)
			}
		}
		if err := c.Claim(owner, p); err != nil {
			c.releaseList(owner, pins[:i])
			return err
		}
	}
	return nil
}

func (c *PinClaims) releaseList(owner string, pins []uint32) {
	for _, p := range pins {
		c.Release(owner, p)
	}
}

// Release frees pin if owner holds it.
func (c *PinClaims) Release(owner string, pin uint32) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if c.owners[pin] == owner {
		delete(c.owners, pin)
	}
}

// Owner returns the holder of pin.
func (c *PinClaims) Owner(pin uint32) (string, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	o, ok := c.owners[pin]
	return o, ok
}

// Reset forgets every claim.
func (c *PinClaims) Reset() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	c.owners = make(map[uint32]string)
}
