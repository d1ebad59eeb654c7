package core

import (
	"errors"
	"testing"

	"gomotor/protocol"
)

// fakeGPIO records pin configuration and levels. Edges are simulated with
// edge(), which latches the pending flag and runs the registered handler on
// the caller's goroutine, like an interrupt arriving between two statements.
type fakeGPIO struct {
	levels   map[GPIOPin]bool
	outputs  map[GPIOPin]bool
	inputs   map[GPIOPin]Pull
	pending  map[GPIOPin]bool
	edges    map[GPIOPin]Edge
	handlers map[GPIOPin]func()
	writes   int

	// pairs of pins that must never be high together
	exclusive [][2]GPIOPin
	violation bool

	failListen error // returned by ListenEdge when enabling an edge
	failGet    error // returned by GetPin
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		levels:   make(map[GPIOPin]bool),
		outputs:  make(map[GPIOPin]bool),
		inputs:   make(map[GPIOPin]Pull),
		pending:  make(map[GPIOPin]bool),
		edges:    make(map[GPIOPin]Edge),
		handlers: make(map[GPIOPin]func()),
	}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin, initial bool) error {
	g.outputs[pin] = true
	g.levels[pin] = initial
	return nil
}

func (g *fakeGPIO) ConfigureInput(pin GPIOPin, pull Pull) error {
	g.inputs[pin] = pull
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	if !g.outputs[pin] {
		return errors.New("not an output")
	}
	g.levels[pin] = value
	g.writes++
	for _, p := range g.exclusive {
		if g.levels[p[0]] && g.levels[p[1]] {
			g.violation = true
		}
	}
	return nil
}

func (g *fakeGPIO) GetPin(pin GPIOPin) (bool, error) {
	if g.failGet != nil {
		return false, g.failGet
	}
	return g.levels[pin], nil
}

func (g *fakeGPIO) ListenEdge(pin GPIOPin, edge Edge, handler func()) error {
	if edge == EdgeNone {
		g.edges[pin] = edge
		delete(g.handlers, pin)
		return nil
	}
	if g.failListen != nil {
		return g.failListen
	}
	g.edges[pin] = edge
	g.handlers[pin] = handler
	return nil
}

func (g *fakeGPIO) InterruptPending(pin GPIOPin) bool { return g.pending[pin] }

func (g *fakeGPIO) ClearInterrupt(pin GPIOPin) { g.pending[pin] = false }

// edge simulates a rising edge on pin
func (g *fakeGPIO) edge(pin GPIOPin) {
	if g.edges[pin] == EdgeNone {
		return
	}
	g.pending[pin] = true
	if h := g.handlers[pin]; h != nil {
		h()
	}
}

type fakePWM struct {
	configs  map[PWMPin]PWMConfig
	duty     map[PWMPin]PWMValue
	disabled map[PWMPin]bool
	failCfg  error
}

func newFakePWM() *fakePWM {
	return &fakePWM{
		configs:  make(map[PWMPin]PWMConfig),
		duty:     make(map[PWMPin]PWMValue),
		disabled: make(map[PWMPin]bool),
	}
}

func (p *fakePWM) ConfigureHardwarePWM(pin PWMPin, cfg PWMConfig) error {
	if p.failCfg != nil {
		return p.failCfg
	}
	p.configs[pin] = cfg
	p.duty[pin] = 0
	delete(p.disabled, pin)
	return nil
}

func (p *fakePWM) SetDutyCycle(pin PWMPin, value PWMValue) error {
	cfg, ok := p.configs[pin]
	if !ok {
		return errors.New("pwm not configured")
	}
	if uint32(value) > cfg.Top {
		return errors.New("duty above top")
	}
	p.duty[pin] = value
	return nil
}

func (p *fakePWM) DisablePWM(pin PWMPin) error {
	p.disabled[pin] = true
	return nil
}

// testRig installs fake drivers and a capturing transport, and resets every
// piece of package state the motor commands touch.
type testRig struct {
	gpio *fakeGPIO
	pwm  *fakePWM
	out  *protocol.ScratchOutput
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	r := &testRig{
		gpio: newFakeGPIO(),
		pwm:  newFakePWM(),
		out:  protocol.NewScratchOutput(),
	}
	resetPackageState()
	SetGPIODriver(r.gpio)
	SetPWMDriver(r.pwm)
	SetGlobalTransport(protocol.NewTransport(r.out, nil))
	SetDebugWriter(func(s string) { t.Log(s) })
	SetDebugEnabled(true)

	InitCoreCommands()
	InitMotorCommands()

	t.Cleanup(func() {
		resetPackageState()
		SetDebugWriter(func(string) {})
		SetDebugEnabled(false)
	})
	return r
}

func resetPackageState() {
	if gpioDriver != nil && pwmDriver != nil {
		ResetMotorCommands()
	}
	motorObjects = make(map[uint8]*MotorObject)
	encoderObjects = make(map[uint8]*EncoderObject)
	encoderList = nil
	globalPins.Reset()
	resetTimers()
	ClearEventRing()
	ResetFirmwareState()
	SetTime(0)
	currentTime = 0
	SetGlobalTransport(nil)
	SetGPIODriver(nil)
	SetPWMDriver(nil)
}

// call runs handler with args VLQ-encoded as a command body.
func call(handler CommandHandler, args ...int32) error {
	out := protocol.NewScratchOutput()
	for _, a := range args {
		protocol.EncodeVLQInt(out, a)
	}
	data := append([]byte(nil), out.Result()...)
	return handler(&data)
}

type response struct {
	name string
	args []int32
}

// responses decodes and clears every frame written to the transport.
// Arguments are decoded as integers; the reason string of shutdown is
// skipped.
func (r *testRig) responses(t *testing.T) []response {
	t.Helper()
	names := map[uint16]string{}
	for _, n := range []string{"motor_state", "encoder_state", "shutdown", "clock", "config", "identify_response"} {
		cmd, ok := globalRegistry.GetCommandByName(n)
		if !ok {
			t.Fatalf("response %s not registered", n)
		}
		names[cmd.ID] = n
	}

	var got []response
	data := r.out.Result()
	for len(data) > 0 {
		f, n, res := protocol.Scan(data)
		if res != protocol.ScanFrame {
			t.Fatalf("bad frame in output: %v", data)
		}
		data = data[n:]

		payload := f.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("decode id: %v", err)
		}
		resp := response{name: names[uint16(id)]}
		if resp.name == "shutdown" {
			clock, _ := protocol.DecodeVLQUint(&payload)
			resp.args = append(resp.args, int32(clock))
			payload = nil
		}
		for len(payload) > 0 {
			v, err := protocol.DecodeVLQInt(&payload)
			if err != nil {
				t.Fatalf("decode arg: %v", err)
			}
			resp.args = append(resp.args, v)
		}
		got = append(got, resp)
	}
	r.out.Reset()
	return got
}
