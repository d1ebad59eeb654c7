package core

import (
	"errors"
	"testing"
)

func newTestEncoder(t *testing.T, r *testRig, polarity Polarity) *Encoder {
	t.Helper()
	e, err := newEncoder("enc", pinA, pinB, polarity)
	if err != nil {
		t.Fatalf("newEncoder: %v", err)
	}
	// latch edges without a handler: tests call Update directly
	if err := e.Listen(nil); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return e
}

func TestEncoderConfiguresPins(t *testing.T) {
	r := newTestRig(t)
	newTestEncoder(t, r, PolarityNormal)

	if pull, ok := r.gpio.inputs[pinA]; !ok || pull != PullNone {
		t.Errorf("channel A input = %v/%v, want PullNone", pull, ok)
	}
	if pull, ok := r.gpio.inputs[pinB]; !ok || pull != PullNone {
		t.Errorf("channel B input = %v/%v, want PullNone", pull, ok)
	}
	if r.gpio.edges[pinA] != EdgeRising {
		t.Errorf("channel A edge = %s, want rising", r.gpio.edges[pinA])
	}
	if r.gpio.edges[pinB] != EdgeNone {
		t.Errorf("channel B edge = %s, want none", r.gpio.edges[pinB])
	}
}

func TestEncoderUpdateNoEdge(t *testing.T) {
	r := newTestRig(t)
	e := newTestEncoder(t, r, PolarityNormal)
	e.Counter = 3

	if e.Update() {
		t.Error("Update returned true without a pending edge")
	}
	if e.Counter != 3 {
		t.Errorf("Counter = %d, want 3", e.Counter)
	}
}

func TestEncoderUpdateDirection(t *testing.T) {
	tests := []struct {
		name     string
		polarity Polarity
		bHigh    bool
		delta    int32
	}{
		{"normal B high", PolarityNormal, true, -1},
		{"normal B low", PolarityNormal, false, 1},
		{"inverted B high", PolarityInverted, true, 1},
		{"inverted B low", PolarityInverted, false, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t)
			e := newTestEncoder(t, r, tt.polarity)
			e.Counter = 5

			r.gpio.levels[pinB] = tt.bHigh
			r.gpio.edge(pinA)

			if !e.Update() {
				t.Fatal("Update returned false with a pending edge")
			}
			if e.Counter != 5+tt.delta {
				t.Errorf("Counter = %d, want %d", e.Counter, 5+tt.delta)
			}
			if r.gpio.pending[pinA] {
				t.Error("pending flag not cleared")
			}

			// second call without a new edge is a no-op
			if e.Update() {
				t.Error("second Update returned true")
			}
			if e.Counter != 5+tt.delta {
				t.Errorf("second Update changed Counter to %d", e.Counter)
			}
		})
	}
}

func TestEncoderCountDownFromFive(t *testing.T) {
	r := newTestRig(t)
	e := newTestEncoder(t, r, PolarityNormal)
	e.Counter = 5

	r.gpio.levels[pinB] = true
	r.gpio.edge(pinA)
	e.Update()

	if e.Count() != 4 {
		t.Errorf("Count = %d, want 4", e.Count())
	}
}

func TestEncoderMixedEdges(t *testing.T) {
	r := newTestRig(t)
	e := newTestEncoder(t, r, PolarityNormal)

	pattern := []bool{false, false, true, false, true, true, false}
	want := int32(0)
	for _, bHigh := range pattern {
		r.gpio.levels[pinB] = bHigh
		r.gpio.edge(pinA)
		e.Update()
		if bHigh {
			want--
		} else {
			want++
		}
	}
	if e.Counter != want {
		t.Errorf("Counter = %d, want %d", e.Counter, want)
	}
}

func TestEncoderCoalescedEdges(t *testing.T) {
	r := newTestRig(t)
	e := newTestEncoder(t, r, PolarityNormal)

	// two edges before the handler runs collapse into one count
	r.gpio.edge(pinA)
	r.gpio.edge(pinA)
	e.Update()
	e.Update()

	if e.Counter != 1 {
		t.Errorf("Counter = %d, want 1", e.Counter)
	}
}

func TestEncoderFailedReadCountsAsLow(t *testing.T) {
	r := newTestRig(t)
	e := newTestEncoder(t, r, PolarityNormal)

	r.gpio.levels[pinB] = true
	r.gpio.failGet = errors.New("bus fault")
	r.gpio.edge(pinA)

	if !e.Update() {
		t.Fatal("Update returned false with a pending edge")
	}
	if e.Counter != 1 {
		t.Errorf("Counter = %d, want 1 (B read as low)", e.Counter)
	}
	if r.gpio.pending[pinA] {
		t.Error("pending flag not cleared after a failed read")
	}
}
