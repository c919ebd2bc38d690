package recordcodec

import (
	"fmt"
	"math"
)

// ValueKind tags the variant of a property Value.
type ValueKind byte

const (
	KindString ValueKind = iota
	KindText             // long text, same wire shape as KindString, distinguished for schema purposes
	KindNumber
	KindBool
	KindList
	KindMap
	KindReference
	KindEnum
)

// Value is the tagged-union wire representation of an object/edge property
// value: string, long text, number, boolean, ordered list, nested mapping,
// reference to another object id, or enumerated string.
type Value struct {
	Kind ValueKind
	Str  string  // String, Text, Reference, Enum
	Num  float64 // Number
	Bool bool    // Bool
	List []Value // List
	Map  map[string]Value // Map, insertion order not preserved (spec: "order not significant" for map keys)
}

func StringValue(s string) Value    { return Value{Kind: KindString, Str: s} }
func TextValue(s string) Value      { return Value{Kind: KindText, Str: s} }
func NumberValue(n float64) Value   { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func ListValue(v []Value) Value     { return Value{Kind: KindList, List: v} }
func MapValue(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }
func ReferenceValue(id string) Value { return Value{Kind: KindReference, Str: id} }
func EnumValue(s string) Value      { return Value{Kind: KindEnum, Str: s} }

// PutValue encodes a tagged property value.
func (w *Writer) PutValue(v Value) {
	w.buf = append(w.buf, byte(v.Kind))
	switch v.Kind {
	case KindString, KindText, KindReference, KindEnum:
		w.PutString(v.Str)
	case KindNumber:
		w.PutUint64(math.Float64bits(v.Num))
	case KindBool:
		w.PutBool(v.Bool)
	case KindList:
		w.PutUint64(uint64(len(v.List)))
		for _, item := range v.List {
			w.PutValue(item)
		}
	case KindMap:
		w.PutUint64(uint64(len(v.Map)))
		for k, item := range v.Map {
			w.PutString(k)
			w.PutValue(item)
		}
	}
}

// PutProperties encodes a property map in an arbitrary but self-describing
// order (each entry carries its own key).
func (w *Writer) PutProperties(props map[string]Value) {
	w.PutUint64(uint64(len(props)))
	for k, v := range props {
		w.PutString(k)
		w.PutValue(v)
	}
}

// Value decodes a tagged property value.
func (r *Reader) Value() (Value, error) {
	if r.pos >= len(r.buf) {
		return Value{}, ErrTruncated
	}
	kind := ValueKind(r.buf[r.pos])
	r.pos++

	switch kind {
	case KindString, KindText, KindReference, KindEnum:
		s, err := r.String()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Str: s}, nil
	case KindNumber:
		bits, err := r.Uint64()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Num: math.Float64frombits(bits)}, nil
	case KindBool:
		b, err := r.Bool()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Bool: b}, nil
	case KindList:
		n, err := r.Uint64()
		if err != nil {
			return Value{}, err
		}
		list := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := r.Value()
			if err != nil {
				return Value{}, err
			}
			list = append(list, item)
		}
		return Value{Kind: kind, List: list}, nil
	case KindMap:
		n, err := r.Uint64()
		if err != nil {
			return Value{}, err
		}
		m := make(map[string]Value, n)
		for i := uint64(0); i < n; i++ {
			k, err := r.String()
			if err != nil {
				return Value{}, err
			}
			v, err := r.Value()
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Value{Kind: kind, Map: m}, nil
	default:
		return Value{}, fmt.Errorf("recordcodec: unknown value kind %d", kind)
	}
}

// Properties decodes a property map written by PutProperties.
func (r *Reader) Properties() (map[string]Value, error) {
	n, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	props := make(map[string]Value, n)
	for i := uint64(0); i < n; i++ {
		k, err := r.String()
		if err != nil {
			return nil, err
		}
		v, err := r.Value()
		if err != nil {
			return nil, err
		}
		props[k] = v
	}
	return props, nil
}
