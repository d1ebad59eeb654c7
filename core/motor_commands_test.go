package core

import (
	"errors"
	"strings"
	"testing"
)

func configMotor(t *testing.T, oid int32, maxDuration int32) {
	t.Helper()
	if err := call(handleConfigMotor, oid, int32(pinFwd), int32(pinRev), int32(pinPWM), maxDuration); err != nil {
		t.Fatalf("config_motor: %v", err)
	}
}

func configEncoder(t *testing.T, oid, motorOID int32, a, b GPIOPin, invert int32) {
	t.Helper()
	if err := call(handleConfigEncoder, oid, motorOID, int32(a), int32(b), invert); err != nil {
		t.Fatalf("config_encoder: %v", err)
	}
}

func TestCommandDriveAndQuery(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)

	if err := call(handleMotorDrive, 0, 750); err != nil {
		t.Fatalf("motor_drive: %v", err)
	}
	if err := call(handleQueryMotor, 0); err != nil {
		t.Fatalf("query_motor: %v", err)
	}
	if err := call(handleMotorDrive, 0, -250); err != nil {
		t.Fatalf("motor_drive: %v", err)
	}
	if err := call(handleQueryMotor, 0); err != nil {
		t.Fatalf("query_motor: %v", err)
	}
	if err := call(handleMotorStop, 0); err != nil {
		t.Fatalf("motor_stop: %v", err)
	}
	if err := call(handleQueryMotor, 0); err != nil {
		t.Fatalf("query_motor: %v", err)
	}

	want := [][]int32{
		{0, 1, 0, 192},
		{0, 0, 1, 64},
		{0, 0, 0, 0},
	}
	got := r.responses(t)
	if len(got) != len(want) {
		t.Fatalf("got %d responses, want %d: %+v", len(got), len(want), got)
	}
	for i, resp := range got {
		if resp.name != "motor_state" || !equalArgs(resp.args, want[i]) {
			t.Errorf("response %d = %s %v, want motor_state %v", i, resp.name, resp.args, want[i])
		}
	}
}

func equalArgs(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCommandEncoderCounts(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 0)

	r.gpio.levels[pinB] = false
	for i := 0; i < 10; i++ {
		r.gpio.edge(pinA)
	}
	r.gpio.levels[pinB] = true
	for i := 0; i < 3; i++ {
		r.gpio.edge(pinA)
	}

	SetTime(1234)
	if err := call(handleEncoderQuery, 1); err != nil {
		t.Fatalf("encoder_query: %v", err)
	}
	got := r.responses(t)
	if len(got) != 1 || got[0].name != "encoder_state" || !equalArgs(got[0].args, []int32{1, 1234, 7}) {
		t.Errorf("responses = %+v, want encoder_state [1 1234 7]", got)
	}

	if n, err := EncoderCount(1); err != nil || n != 7 {
		t.Errorf("EncoderCount = %d, %v", n, err)
	}
}

func TestCommandEncoderInverted(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 1)

	r.gpio.levels[pinB] = true
	r.gpio.edge(pinA)
	r.gpio.edge(pinA)

	if n, _ := EncoderCount(1); n != 2 {
		t.Errorf("inverted count = %d, want 2", n)
	}
}

func TestCommandTwoEncodersShareHandler(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 0)
	configEncoder(t, 2, 0, 8, 9, 0)

	for i := 0; i < 4; i++ {
		r.gpio.edge(pinA)
	}
	r.gpio.edge(8)

	n1, _ := EncoderCount(1)
	n2, _ := EncoderCount(2)
	if n1 != 4 || n2 != 1 {
		t.Errorf("counts = %d, %d; want 4, 1", n1, n2)
	}
}

func TestCommandConfigErrors(t *testing.T) {
	newTestRig(t)
	configMotor(t, 0, 0)

	err := call(handleConfigMotor, 0, 20, 21, 22, 0)
	if !errors.Is(err, ErrOIDInUse) {
		t.Errorf("duplicate motor oid = %v", err)
	}
	err = call(handleConfigMotor, 1, int32(pinFwd), 21, 22, 0)
	if !errors.Is(err, ErrPinInUse) {
		t.Errorf("motor pin conflict = %v", err)
	}
	err = call(handleConfigEncoder, 1, 9, int32(pinA), int32(pinB), 0)
	if !errors.Is(err, ErrUnknownOID) {
		t.Errorf("encoder on unknown motor = %v", err)
	}
	configEncoder(t, 1, 0, pinA, pinB, 0)
	err = call(handleConfigEncoder, 1, 0, 10, 11, 0)
	if !errors.Is(err, ErrOIDInUse) {
		t.Errorf("duplicate encoder oid = %v", err)
	}
	err = call(handleMotorDrive, 5, 100)
	if !errors.Is(err, ErrUnknownOID) {
		t.Errorf("drive unknown oid = %v", err)
	}
	if err := call(handleMotorDrive, 0); err == nil {
		t.Error("truncated motor_drive accepted")
	}
}

func TestCommandDriveOutOfRangeShutsDown(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	_ = call(handleMotorDrive, 0, 500)
	r.responses(t)

	err := call(handleMotorDrive, 0, 1001)
	if !errors.Is(err, ErrContractViolation) {
		t.Fatalf("motor_drive 1001 = %v, want contract_violation", err)
	}
	if !IsShutdown() {
		t.Error("firmware not shut down")
	}
	if fwd, rev, duty := r.motorPins(); fwd || rev || duty != 0 {
		t.Errorf("motor still driven: fwd=%v rev=%v duty=%d", fwd, rev, duty)
	}
	got := r.responses(t)
	if len(got) != 1 || got[0].name != "shutdown" {
		t.Errorf("responses = %+v, want shutdown", got)
	}

	if err := call(handleMotorDrive, 0, 100); !errors.Is(err, ErrShutdown) {
		t.Errorf("drive while shut down = %v, want shutdown", err)
	}
	if _, _, duty := r.motorPins(); duty != 0 {
		t.Error("drive accepted while shut down")
	}
}

func TestCommandEmergencyStop(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 0)
	_ = call(handleMotorDrive, 0, -1000)
	_ = call(handleEncoderReport, 1, 0, 100)

	if err := call(handleEmergencyStop); err != nil {
		t.Fatalf("emergency_stop: %v", err)
	}
	if fwd, rev, duty := r.motorPins(); fwd || rev || duty != 0 {
		t.Error("motor not stopped by emergency_stop")
	}
	if TimerPending(&encoderObjects[1].Timer) {
		t.Error("encoder report still scheduled after emergency_stop")
	}
}

func TestCommandMaxDuration(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 1000)

	SetTime(100)
	_ = call(handleMotorDrive, 0, 500)

	SetTime(1099)
	ProcessTimers()
	if _, _, duty := r.motorPins(); duty != 128 {
		t.Fatalf("motor stopped early, duty=%d", duty)
	}

	// re-driving pushes the deadline out
	_ = call(handleMotorDrive, 0, 600)
	SetTime(1500)
	ProcessTimers()
	if _, _, duty := r.motorPins(); duty == 0 {
		t.Fatal("re-drive did not extend the deadline")
	}

	SetTime(2099)
	ProcessTimers()
	if fwd, _, duty := r.motorPins(); fwd || duty != 0 {
		t.Errorf("motor not stopped after max_duration: fwd=%v duty=%d", fwd, duty)
	}

	found := false
	for _, e := range Events() {
		if e.Kind == EvtMotorExpire && e.OID == 0 {
			found = true
		}
	}
	if !found {
		t.Error("expiry not recorded")
	}
}

func TestCommandMaxDurationAcrossWrap(t *testing.T) {
	tests := []struct {
		name        string
		maxDuration int32
		driveAt     uint32
		checkAt     uint32
		running     bool
	}{
		{"not yet expired just after drive", 1000, 0xFFFFFF00, 0xFFFFFF10, true},
		{"not yet expired after wrap", 1000, 0xFFFFFF00, 0x2E7, true},
		{"expired after wrap", 1000, 0xFFFFFF00, 0x2E8, false},
		{"long past after wrap", 0x8000, 0xFFFF0000, 0x100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t)
			configMotor(t, 0, tt.maxDuration)

			SetTime(tt.driveAt)
			ProcessTimers()
			if err := call(handleMotorDrive, 0, 500); err != nil {
				t.Fatalf("motor_drive: %v", err)
			}

			SetTime(tt.checkAt)
			ProcessTimers()
			fwd, _, duty := r.motorPins()
			if running := fwd && duty == 128; running != tt.running {
				t.Errorf("at %#x: fwd=%v duty=%d, want running=%v", tt.checkAt, fwd, duty, tt.running)
			}
		})
	}
}

func TestCommandEncoderReportsAcrossWrap(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 0)

	// first report at 0xFFFFFC18, then every 100ms
	if err := call(handleEncoderReport, 1, -1000, 100000); err != nil {
		t.Fatalf("encoder_report: %v", err)
	}
	SetTime(0xFFFFFF00)
	ProcessTimers()
	if got := r.responses(t); len(got) != 1 {
		t.Fatalf("got %d reports at the first deadline, want 1", len(got))
	}

	SetTime(98999)
	ProcessTimers()
	if got := r.responses(t); len(got) != 0 {
		t.Fatalf("early report after wrap: %+v", got)
	}

	SetTime(99000) // 0xFFFFFC18 + 100000, past the wrap
	ProcessTimers()
	got := r.responses(t)
	if len(got) != 1 || !equalArgs(got[0].args, []int32{1, 99000, 0}) {
		t.Errorf("reports after wrap = %+v, want one at 99000", got)
	}
}

func TestCommandEncoderReports(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 0)

	if err := call(handleEncoderReport, 1, 200, 100); err != nil {
		t.Fatalf("encoder_report: %v", err)
	}
	SetTime(150)
	ProcessTimers()
	if got := r.responses(t); len(got) != 0 {
		t.Fatalf("early report: %+v", got)
	}

	r.gpio.edge(pinA)
	SetTime(400)
	ProcessTimers()

	got := r.responses(t)
	if len(got) != 3 {
		t.Fatalf("got %d reports, want 3: %+v", len(got), got)
	}
	for i, clock := range []int32{200, 300, 400} {
		if got[i].name != "encoder_state" || !equalArgs(got[i].args, []int32{1, clock, 1}) {
			t.Errorf("report %d = %s %v", i, got[i].name, got[i].args)
		}
	}

	// rest_ticks=0 cancels
	_ = call(handleEncoderReport, 1, 0, 0)
	SetTime(1000)
	ProcessTimers()
	if got := r.responses(t); len(got) != 0 {
		t.Errorf("reports after cancel: %+v", got)
	}
}

func TestCommandConfigResetReleasesPins(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 0)
	_ = call(handleMotorDrive, 0, 300)

	if err := call(handleConfigReset); err != nil {
		t.Fatalf("config_reset: %v", err)
	}
	if !r.pwm.disabled[pinPWM] {
		t.Error("pwm not disabled")
	}
	if r.gpio.edges[pinA] != EdgeNone {
		t.Error("encoder interrupt still enabled")
	}

	// same wiring can be configured again
	configMotor(t, 0, 0)
	configEncoder(t, 1, 0, pinA, pinB, 0)
	r.gpio.edge(pinA)
	if n, _ := EncoderCount(1); n != 1 {
		t.Errorf("count after reconfigure = %d, want 1", n)
	}
}

func TestCommandEncoderListenFailureRollsBack(t *testing.T) {
	r := newTestRig(t)
	configMotor(t, 0, 0)
	r.gpio.failListen = errors.New("no irq")

	err := call(handleConfigEncoder, 1, 0, int32(pinA), int32(pinB), 0)
	if !errors.Is(err, ErrConfigFatal) {
		t.Fatalf("config_encoder = %v, want config_fatal", err)
	}
	if _, ok := encoderObjects[1]; ok || len(encoderList) != 0 {
		t.Error("failed encoder still registered")
	}
	for _, p := range []GPIOPin{pinA, pinB} {
		if _, held := GlobalPins().Owner(uint32(p)); held {
			t.Errorf("gpio%d still claimed", p)
		}
	}

	// the same oid and pins work once the interrupt can be enabled
	r.gpio.failListen = nil
	configEncoder(t, 1, 0, pinA, pinB, 0)
	r.gpio.edge(pinA)
	if n, _ := EncoderCount(1); n != 1 {
		t.Errorf("count after retry = %d, want 1", n)
	}
}

func TestCommandPWMFailureShutsDown(t *testing.T) {
	r := newTestRig(t)
	r.pwm.failCfg = errors.New("no divider")

	err := call(handleConfigMotor, 0, int32(pinFwd), int32(pinRev), int32(pinPWM), 0)
	if !errors.Is(err, ErrConfigFatal) {
		t.Fatalf("config_motor = %v, want config_fatal", err)
	}
	if !IsShutdown() {
		t.Error("firmware not shut down after fatal config")
	}
}

func TestMotorCommandsInDictionary(t *testing.T) {
	newTestRig(t)
	dict := string(GetGlobalDictionary().JSON())

	for _, want := range []string{
		`"config_motor oid=%c fwd_pin=%u rev_pin=%u pwm_pin=%u max_duration=%u"`,
		`"config_encoder oid=%c motor_oid=%c pin_a=%u pin_b=%u invert=%c"`,
		`"motor_drive oid=%c speed=%i"`,
		`"encoder_state oid=%c clock=%u count=%i"`,
		`"MOTOR_PERIOD":"256"`,
		`"MOTOR_PWM_FREQ":"10000"`,
	} {
		if !strings.Contains(dict, want) {
			t.Errorf("dictionary missing %s", want)
		}
	}
}
