package checkpoints

import (
	"fmt"
	"math"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"monodepth/optimizer"
)

// Binary checkpoint format: a protobuf wire-format message built
// directly with encoding/protowire. Field layout:
//
//	Checkpoint:    1=iteration 2=epoch 3=weights(rep) 4=optimizer 5=metadata
//	WeightTensor:  1=name 2=shape(rep varint) 3=data(packed fixed32)
//	OptimizerState: 1=type 2=lr(fixed64) 3=steps 4=parameters(rep)
//	ParameterState: 1=shape(rep varint) 2=moments(rep bytes, packed fixed32)
//	Metadata:      1=version 2=framework 3=created_at(fixed64 unixnano) 4=description
//
// Float data rides as packed fixed32, which keeps large weight tensors
// compact compared to the JSON encoding.

func appendPackedFloats(b []byte, num protowire.Number, data []float32) []byte {
	var packed []byte
	for _, v := range data {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func parsePackedFloats(v []byte) ([]float32, error) {
	if len(v)%4 != 0 {
		return nil, fmt.Errorf("packed float field has %d bytes, not a multiple of 4", len(v))
	}
	out := make([]float32, 0, len(v)/4)
	for len(v) > 0 {
		bits, n := protowire.ConsumeFixed32(v)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float32frombits(bits))
		v = v[n:]
	}
	return out, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func marshalWeight(w WeightTensor) []byte {
	var b []byte
	b = appendString(b, 1, w.Name)
	for _, d := range w.Shape {
		b = appendVarintField(b, 2, uint64(d))
	}
	return appendPackedFloats(b, 3, w.Data)
}

func marshalMoment(m optimizer.MomentTensor) []byte {
	var b []byte
	for _, d := range m.Shape {
		b = appendVarintField(b, 1, uint64(d))
	}
	return appendPackedFloats(b, 2, m.Data)
}

func marshalParameterState(ps optimizer.ParameterState) []byte {
	var b []byte
	for _, d := range ps.Shape {
		b = appendVarintField(b, 1, uint64(d))
	}
	for _, m := range ps.Moments {
		b = appendBytesField(b, 2, marshalMoment(m))
	}
	return b
}

func marshalOptimizerState(s *optimizer.State) []byte {
	var b []byte
	b = appendString(b, 1, s.Type)
	b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.LR))
	b = appendVarintField(b, 3, uint64(s.Steps))
	for _, ps := range s.Parameters {
		b = appendBytesField(b, 4, marshalParameterState(ps))
	}
	return b
}

func marshalMetadata(m CheckpointMetadata) []byte {
	var b []byte
	b = appendString(b, 1, m.Version)
	b = appendString(b, 2, m.Framework)
	b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, uint64(m.CreatedAt.UnixNano()))
	if m.Description != "" {
		b = appendString(b, 4, m.Description)
	}
	return b
}

func marshalBinary(c *Checkpoint) []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(c.Iteration))
	b = appendVarintField(b, 2, uint64(c.Epoch))
	for _, w := range c.Weights {
		b = appendBytesField(b, 3, marshalWeight(w))
	}
	if c.OptimizerState != nil {
		b = appendBytesField(b, 4, marshalOptimizerState(c.OptimizerState))
	}
	b = appendBytesField(b, 5, marshalMetadata(c.Metadata))
	return b
}

func (cs *CheckpointSaver) saveBinary(checkpoint *Checkpoint, path string) error {
	if err := os.WriteFile(path, marshalBinary(checkpoint), 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// fieldScanner walks the fields of one wire-format message.
func scanFields(b []byte, visit func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var buf [10]byte
			if err := visit(num, typ, protowire.AppendVarint(buf[:0], v)); err != nil {
				return err
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := visit(num, typ, b[:n]); err != nil {
				return err
			}
			b = b[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := visit(num, typ, b[:n]); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := visit(num, typ, v); err != nil {
				return err
			}
			b = b[n:]
		default:
			return fmt.Errorf("unsupported wire type %d for field %d", typ, num)
		}
	}
	return nil
}

func varintValue(v []byte) (uint64, error) {
	val, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return val, nil
}

func fixed64Value(v []byte) (uint64, error) {
	val, n := protowire.ConsumeFixed64(v)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return val, nil
}

func unmarshalWeight(b []byte) (WeightTensor, error) {
	var w WeightTensor
	err := scanFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			w.Name = string(value)
		case 2:
			d, err := varintValue(value)
			if err != nil {
				return err
			}
			w.Shape = append(w.Shape, int(d))
		case 3:
			data, err := parsePackedFloats(value)
			if err != nil {
				return err
			}
			w.Data = data
		}
		return nil
	})
	return w, err
}

func unmarshalMoment(b []byte) (optimizer.MomentTensor, error) {
	var m optimizer.MomentTensor
	err := scanFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			d, err := varintValue(value)
			if err != nil {
				return err
			}
			m.Shape = append(m.Shape, int(d))
		case 2:
			data, err := parsePackedFloats(value)
			if err != nil {
				return err
			}
			m.Data = data
		}
		return nil
	})
	return m, err
}

func unmarshalParameterState(b []byte) (optimizer.ParameterState, error) {
	var ps optimizer.ParameterState
	err := scanFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			d, err := varintValue(value)
			if err != nil {
				return err
			}
			ps.Shape = append(ps.Shape, int(d))
		case 2:
			m, err := unmarshalMoment(value)
			if err != nil {
				return err
			}
			ps.Moments = append(ps.Moments, m)
		}
		return nil
	})
	return ps, err
}

func unmarshalOptimizerState(b []byte) (*optimizer.State, error) {
	s := &optimizer.State{}
	err := scanFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			s.Type = string(value)
		case 2:
			bits, err := fixed64Value(value)
			if err != nil {
				return err
			}
			s.LR = math.Float64frombits(bits)
		case 3:
			v, err := varintValue(value)
			if err != nil {
				return err
			}
			s.Steps = int(v)
		case 4:
			ps, err := unmarshalParameterState(value)
			if err != nil {
				return err
			}
			s.Parameters = append(s.Parameters, ps)
		}
		return nil
	})
	return s, err
}

func unmarshalMetadata(b []byte) (CheckpointMetadata, error) {
	var m CheckpointMetadata
	err := scanFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			m.Version = string(value)
		case 2:
			m.Framework = string(value)
		case 3:
			bits, err := fixed64Value(value)
			if err != nil {
				return err
			}
			m.CreatedAt = time.Unix(0, int64(bits)).UTC()
		case 4:
			m.Description = string(value)
		}
		return nil
	})
	return m, err
}

func unmarshalBinary(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	err := scanFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case 1:
			v, err := varintValue(value)
			if err != nil {
				return err
			}
			c.Iteration = int(v)
		case 2:
			v, err := varintValue(value)
			if err != nil {
				return err
			}
			c.Epoch = int(v)
		case 3:
			w, err := unmarshalWeight(value)
			if err != nil {
				return err
			}
			c.Weights = append(c.Weights, w)
		case 4:
			s, err := unmarshalOptimizerState(value)
			if err != nil {
				return err
			}
			c.OptimizerState = s
		case 5:
			m, err := unmarshalMetadata(value)
			if err != nil {
				return err
			}
			c.Metadata = m
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse binary checkpoint: %v", err)
	}
	return c, nil
}
