// Package spokepb implements the wire-level encoding of the
// `RadarMessage { repeated Spoke spokes }` / `Spoke { uint32 angle;
// uint32 bearing; uint32 range; bytes data; }` protobuf messages by hand,
// against google.golang.org/protobuf/encoding/protowire, without a
// generated .pb.go, since no .proto toolchain runs in this module. See
// spokepb.proto alongside this file for the message shapes in
// documentation form.
package spokepb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mayara-project/mayara/internal/model"
)

// Field numbers, per spokepb.proto.
const (
	fieldSpokeAngle   = 1
	fieldSpokeBearing = 2
	fieldSpokeRange   = 3
	fieldSpokeData    = 4

	fieldMessageSpokes = 1
)

// EncodeSpoke appends one Spoke submessage's bytes (without the outer
// RadarMessage framing) to dst.
func EncodeSpoke(dst []byte, sp model.Spoke) []byte {
	bearing := sp.Bearing
	if bearing < 0 {
		bearing = 0 // uint32 wire field has no signed/unknown sentinel.
	}
	dst = protowire.AppendTag(dst, fieldSpokeAngle, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(uint32(sp.Angle)))
	dst = protowire.AppendTag(dst, fieldSpokeBearing, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(uint32(bearing)))
	dst = protowire.AppendTag(dst, fieldSpokeRange, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(uint32(sp.Range)))
	dst = protowire.AppendTag(dst, fieldSpokeData, protowire.BytesType)
	dst = protowire.AppendBytes(dst, sp.Data)
	return dst
}

// EncodeRadarMessage encodes a RadarMessage carrying spokes, as sent on
// the GET /v2/api/radars/{id}/spokes WebSocket.
func EncodeRadarMessage(spokes []model.Spoke) []byte {
	var out []byte
	for _, sp := range spokes {
		var spokeBuf []byte
		spokeBuf = EncodeSpoke(spokeBuf, sp)
		out = protowire.AppendTag(out, fieldMessageSpokes, protowire.BytesType)
		out = protowire.AppendBytes(out, spokeBuf)
	}
	return out
}

// DecodeSpoke parses one Spoke submessage's bytes.
func DecodeSpoke(b []byte) (model.Spoke, error) {
	var sp model.Spoke
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return model.Spoke{}, fmt.Errorf("spokepb: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldSpokeAngle:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return model.Spoke{}, fmt.Errorf("spokepb: bad angle varint: %w", protowire.ParseError(n))
			}
			sp.Angle = int(uint32(v))
			b = b[n:]
		case fieldSpokeBearing:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return model.Spoke{}, fmt.Errorf("spokepb: bad bearing varint: %w", protowire.ParseError(n))
			}
			sp.Bearing = int(uint32(v))
			b = b[n:]
		case fieldSpokeRange:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return model.Spoke{}, fmt.Errorf("spokepb: bad range varint: %w", protowire.ParseError(n))
			}
			sp.Range = int(uint32(v))
			b = b[n:]
		case fieldSpokeData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return model.Spoke{}, fmt.Errorf("spokepb: bad data bytes: %w", protowire.ParseError(n))
			}
			sp.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return model.Spoke{}, fmt.Errorf("spokepb: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return sp, nil
}

// DecodeRadarMessage parses a RadarMessage into its repeated Spoke field.
func DecodeRadarMessage(b []byte) ([]model.Spoke, error) {
	var spokes []model.Spoke
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("spokepb: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if num != fieldMessageSpokes || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("spokepb: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		spokeBytes, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("spokepb: bad spoke bytes: %w", protowire.ParseError(n))
		}
		b = b[n:]

		sp, err := DecodeSpoke(spokeBytes)
		if err != nil {
			return nil, err
		}
		spokes = append(spokes, sp)
	}
	return spokes, nil
}
