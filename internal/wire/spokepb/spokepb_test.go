package spokepb

import (
	"testing"

	"github.com/mayara-project/mayara/internal/model"
)

func TestEncodeDecodeSpokeRoundTrips(t *testing.T) {
	sp := model.Spoke{Angle: 1024, Bearing: 90, Range: 3704, Data: []byte{1, 2, 3, 4}}

	got, err := DecodeSpoke(EncodeSpoke(nil, sp))
	if err != nil {
		t.Fatalf("DecodeSpoke: %v", err)
	}
	if got.Angle != sp.Angle || got.Bearing != sp.Bearing || got.Range != sp.Range {
		t.Errorf("got %+v, want %+v", got, sp)
	}
	if string(got.Data) != string(sp.Data) {
		t.Errorf("Data = %v, want %v", got.Data, sp.Data)
	}
}

func TestEncodeDecodeRadarMessageRoundTrips(t *testing.T) {
	spokes := []model.Spoke{
		{Angle: 0, Bearing: 0, Range: 1852, Data: []byte{0xAA}},
		{Angle: 1, Bearing: -1, Range: 3704, Data: []byte{0xBB, 0xCC}},
	}

	got, err := DecodeRadarMessage(EncodeRadarMessage(spokes))
	if err != nil {
		t.Fatalf("DecodeRadarMessage: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Range != 1852 || got[1].Range != 3704 {
		t.Errorf("got %+v", got)
	}
	// Negative bearing (unknown) is clamped to 0 on the wire: uint32 has no
	// sentinel for "unknown".
	if got[1].Bearing != 0 {
		t.Errorf("Bearing = %d, want 0 for an unknown source bearing", got[1].Bearing)
	}
}

func TestDecodeEmptyRadarMessage(t *testing.T) {
	got, err := DecodeRadarMessage(nil)
	if err != nil {
		t.Fatalf("DecodeRadarMessage: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want empty", got)
	}
}
