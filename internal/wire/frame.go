// Package wire encodes the fixed-width sample/policy vectors TreeCommLevel
// exchanges between tree peers (spec §4.3). Frames are hand-encoded with
// google.golang.org/protobuf/encoding/protowire's low-level writer/reader
// rather than a protoc-generated message: the frame has exactly two fields
// (a readiness flag and a repeated double) and never changes shape, so the
// wire-level primitives the generated code would itself call are used
// directly, avoiding a build-time codegen step for a two-field struct.
package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/geopm/geopmd/internal/gerr"
)

const (
	fieldIsReady = protowire.Number(1)
	fieldValues  = protowire.Number(2)
)

// Frame is the payload written into a child's receive-window slot by
// send_up/send_down: is_ready plus the sample or policy vector itself.
type Frame struct {
	IsReady bool
	Values  []float64
}

// Marshal encodes f as a protobuf message: field 1 varint bool, field 2
// packed repeated double.
func Marshal(f Frame) []byte {
	var buf []byte
	isReady := uint64(0)
	if f.IsReady {
		isReady = 1
	}
	buf = protowire.AppendTag(buf, fieldIsReady, protowire.VarintType)
	buf = protowire.AppendVarint(buf, isReady)

	if len(f.Values) > 0 {
		packed := make([]byte, 0, 8*len(f.Values))
		for _, v := range f.Values {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		buf = protowire.AppendTag(buf, fieldValues, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}
	return buf
}

// Unmarshal decodes a Frame previously produced by Marshal.
func Unmarshal(data []byte) (Frame, error) {
	var f Frame
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Frame{}, gerr.New(gerr.KindFileParse, "frame.go", 0, "invalid frame tag")
		}
		data = data[n:]

		switch num {
		case fieldIsReady:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Frame{}, gerr.New(gerr.KindFileParse, "frame.go", 0, "invalid is_ready field")
			}
			f.IsReady = v != 0
			data = data[n:]
		case fieldValues:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Frame{}, gerr.New(gerr.KindFileParse, "frame.go", 0, "invalid values field")
			}
			data = data[n:]
			if len(packed)%8 != 0 {
				return Frame{}, gerr.New(gerr.KindFileParse, "frame.go", 0, "values field not a multiple of 8 bytes")
			}
			f.Values = make([]float64, len(packed)/8)
			for i := range f.Values {
				bits, _ := protowire.ConsumeFixed64(packed[i*8:])
				f.Values[i] = math.Float64frombits(bits)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Frame{}, gerr.New(gerr.KindFileParse, "frame.go", 0, "invalid unknown field")
			}
			data = data[n:]
		}
	}
	return f, nil
}
