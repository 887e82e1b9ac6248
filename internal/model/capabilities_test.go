package model

import "testing"

func TestNextSupportedRange(t *testing.T) {
	c := Capabilities{SupportedRanges: []int{1852, 3704, 5556, 7408}}

	cases := []struct {
		requested int
		want      int
	}{
		{0, 1852},
		{1852, 1852},
		{3000, 3704},
		{7408, 7408},
		{99999, 7408},
	}
	for _, tc := range cases {
		if got := c.NextSupportedRange(tc.requested); got != tc.want {
			t.Errorf("NextSupportedRange(%d) = %d, want %d", tc.requested, got, tc.want)
		}
	}
}

func TestStepRange(t *testing.T) {
	c := Capabilities{SupportedRanges: []int{1852, 3704, 5556, 7408}}

	if got := c.StepRange(3704, 1); got != 5556 {
		t.Errorf("StepRange up = %d, want 5556", got)
	}
	if got := c.StepRange(3704, -1); got != 1852 {
		t.Errorf("StepRange down = %d, want 1852", got)
	}
	if got := c.StepRange(1852, -1); got != 1852 {
		t.Errorf("StepRange below floor = %d, want 1852", got)
	}
	if got := c.StepRange(7408, 1); got != 7408 {
		t.Errorf("StepRange above ceiling = %d, want 7408", got)
	}
}

func TestNoTransmitZoneDisabled(t *testing.T) {
	if !NoTransmitZoneDisabled(-1, 30) {
		t.Error("expected disabled when start < 0")
	}
	if !NoTransmitZoneDisabled(10, -1) {
		t.Error("expected disabled when end < 0")
	}
	if NoTransmitZoneDisabled(10, 30) {
		t.Error("expected enabled when both non-negative")
	}
}

func TestSpokeValid(t *testing.T) {
	s := Spoke{Angle: 2047, Data: make([]byte, 512)}
	if !s.Valid(2048, 512) {
		t.Error("expected valid spoke")
	}
	s.Angle = 2048
	if s.Valid(2048, 512) {
		t.Error("expected angle out of range to be invalid")
	}
}

func TestPadOrTruncate(t *testing.T) {
	out := PadOrTruncate([]byte{1, 2, 3}, 8)
	if len(out) != 8 {
		t.Fatalf("len = %d, want 8", len(out))
	}
	for i := 3; i < 8; i++ {
		if out[i] != 0 {
			t.Errorf("byte %d not zero-padded", i)
		}
	}
}

func TestControlValueIdempotence(t *testing.T) {
	a := ControlValue{Value: 10, Auto: Bool(false)}
	b := ControlValue{Value: 10, Auto: Bool(false)}
	if !a.Equal(b) {
		t.Error("expected equal control values to be idempotent")
	}
	b.Value = 11
	if a.Equal(b) {
		t.Error("expected differing values to not be equal")
	}
}
