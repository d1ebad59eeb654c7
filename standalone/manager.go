// Package standalone runs the motor demo without a host: drive for a while,
// stop, log the encoder count, rest, repeat. A line-oriented console on the
// USB port can take over the motor.
package standalone

import (
	"errors"
	"strconv"
	"strings"

	"gomotor/core"
	"gomotor/standalone/config"
)

type phase uint8

const (
	phaseIdle phase = iota // demo paused, motor under console control
	phaseDrive
	phaseRest
)

// Manager owns the demo motor and the encoder slot its interrupt uses
type Manager struct {
	config *config.DemoConfig

	motor   *core.Motor
	encoder core.Shared[core.Encoder]
	isr     func()
	service func(e *core.Encoder)

	phase    phase
	deadline uint32

	// Serial interface
	inputBuffer  []byte
	outputBuffer []byte

	initialized bool
}

// NewManager creates a manager from a JSON configuration
func NewManager(configData []byte) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewManagerWithConfig(cfg)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *config.DemoConfig) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		config:       cfg,
		inputBuffer:  make([]byte, 0, 64),
		outputBuffer: make([]byte, 0, 256),
	}
	m.service = func(e *core.Encoder) { e.Update() }
	m.isr = func() {
		if err := m.encoder.With(m.service); err != nil {
			core.RecordEvent(core.EvtSlotEmpty, 0, 0, 0)
		}
	}
	return m, nil
}

// Initialize claims the motor and encoder pins. The GPIO and PWM drivers
// must be registered. An ErrConfigFatal error means the board cannot run
// the demo.
func (m *Manager) Initialize() error {
	if m.initialized {
		return errors.New("already initialized")
	}
	fwd, rev, pwm, a, b := m.config.Pins()

	motor, err := core.NewMotor(core.MotorConfig{
		Name:    "demo",
		Forward: core.GPIOPin(fwd),
		Reverse: core.GPIOPin(rev),
		PWM:     core.PWMPin(pwm),
	})
	if err != nil {
		return err
	}
	polarity := core.PolarityNormal
	if m.config.Motor.Encoder.Inverted {
		polarity = core.PolarityInverted
	}
	enc, err := motor.AttachEncoder(core.GPIOPin(a), core.GPIOPin(b), polarity)
	if err != nil {
		return err
	}
	if err := m.encoder.Put(enc); err != nil {
		return err
	}
	// the slot is filled before the first edge can arrive
	if err := enc.Listen(m.isr); err != nil {
		return err
	}

	m.motor = motor
	m.initialized = true
	return nil
}

// Start begins the drive/rest cycle at now
func (m *Manager) Start(now uint32) error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}
	m.SendResponse("gomotor standalone ready\n")
	return m.beginDrive(now)
}

func (m *Manager) beginDrive(now uint32) error {
	if err := m.motor.Drive(m.config.Speed); err != nil {
		return err
	}
	m.phase = phaseDrive
	m.deadline = now + core.TimerFromMS(m.config.DriveMs)
	return nil
}

// Poll advances the demo. Call it from the main loop with the current time.
func (m *Manager) Poll(now uint32) error {
	if !m.initialized || m.phase == phaseIdle || !core.TimeReached(now, m.deadline) {
		return nil
	}
	switch m.phase {
	case phaseDrive:
		m.motor.Stop()
		count, err := m.Count()
		if err != nil {
			return err
		}
		line := "count=" + strconv.Itoa(int(count))
		core.DebugPrintln("[demo] " + line)
		m.SendResponse(line + "\n")
		m.phase = phaseRest
		m.deadline = now + core.TimerFromMS(m.config.RestMs)
	case phaseRest:
		return m.beginDrive(now)
	}
	return nil
}

// Count reads the encoder count through its slot
func (m *Manager) Count() (int32, error) {
	var n int32
	err := m.encoder.With(func(e *core.Encoder) { n = e.Count() })
	return n, err
}

// Motor returns the demo motor, nil before Initialize
func (m *Manager) Motor() *core.Motor { return m.motor }

// ProcessLine runs one console command:
//
//	drive <speed>   stop the demo cycle and drive at speed
//	stop            stop the demo cycle and the motor
//	count           print the encoder count
//	start           restart the demo cycle
func (m *Manager) ProcessLine(line string, now uint32) error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "drive":
		if len(fields) != 2 {
			return errors.New("usage: drive <speed>")
		}
		speed, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			return errors.New("bad speed " + strconv.Quote(fields[1]))
		}
		if err := m.motor.Drive(float32(speed)); err != nil {
			return err
		}
		m.phase = phaseIdle
	case "stop":
		m.motor.Stop()
		m.phase = phaseIdle
	case "count":
		n, err := m.Count()
		if err != nil {
			return err
		}
		m.SendResponse("count=" + strconv.Itoa(int(n)) + "\n")
	case "start":
		return m.beginDrive(now)
	default:
		return errors.New("unknown command " + strconv.Quote(fields[0]))
	}
	return nil
}

// ProcessByte buffers console input and runs each complete line
func (m *Manager) ProcessByte(b byte, now uint32) error {
	if b != '\n' && b != '\r' {
		if len(m.inputBuffer) < cap(m.inputBuffer) {
			m.inputBuffer = append(m.inputBuffer, b)
		}
		return nil
	}

	line := strings.TrimSpace(string(m.inputBuffer))
	m.inputBuffer = m.inputBuffer[:0]
	if line == "" {
		return nil
	}
	if err := m.ProcessLine(line, now); err != nil {
		return err
	}
	m.SendResponse("ok\n")
	return nil
}

// SendResponse queues output for the console
func (m *Manager) SendResponse(response string) {
	m.outputBuffer = append(m.outputBuffer, response...)
}

// GetOutput returns any pending output and clears the buffer
func (m *Manager) GetOutput() []byte {
	if len(m.outputBuffer) == 0 {
		return nil
	}
	output := make([]byte, len(m.outputBuffer))
	copy(output, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return output
}

// EmergencyStop stops the motor and pauses the demo
func (m *Manager) EmergencyStop() {
	if m.motor != nil {
		m.motor.Stop()
	}
	m.phase = phaseIdle
}
