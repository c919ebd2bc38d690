package recordcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader_ScalarFields_RoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutString("Kaelen")
	w.PutUint64(1234567890)
	w.PutFloat32(0.75)
	w.PutBool(true)
	w.PutStringSlice([]string{"mage", "exiled"})

	r := NewReader(w.Bytes())

	name, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "Kaelen", name)

	ts, err := r.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1234567890), ts)

	weight, err := r.Float32()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, weight, 1e-6)

	flag, err := r.Bool()
	require.NoError(t, err)
	assert.True(t, flag)

	tags, err := r.StringSlice()
	require.NoError(t, err)
	assert.Equal(t, []string{"mage", "exiled"}, tags)

	assert.Equal(t, 0, r.Remaining())
}

func TestValue_RoundTrip_AllKinds(t *testing.T) {
	values := []Value{
		StringValue("Fireball"),
		TextValue("A roaring pillar of flame."),
		NumberValue(3),
		BoolValue(false),
		ListValue([]Value{NumberValue(1), NumberValue(2), NumberValue(3)}),
		MapValue(map[string]Value{"school": StringValue("Evocation")}),
		ReferenceValue("00000000-0000-0000-0000-000000000001"),
		EnumValue("Evocation"),
	}

	for _, v := range values {
		w := NewWriter()
		w.PutValue(v)

		r := NewReader(w.Bytes())
		decoded, err := r.Value()
		require.NoError(t, err)
		assert.Equal(t, v.Kind, decoded.Kind)

		switch v.Kind {
		case KindString, KindText, KindReference, KindEnum:
			assert.Equal(t, v.Str, decoded.Str)
		case KindNumber:
			assert.Equal(t, v.Num, decoded.Num)
		case KindBool:
			assert.Equal(t, v.Bool, decoded.Bool)
		case KindList:
			assert.Equal(t, v.List, decoded.List)
		case KindMap:
			assert.Equal(t, v.Map, decoded.Map)
		}
	}
}

func TestProperties_RoundTrip(t *testing.T) {
	props := map[string]Value{
		"level":  NumberValue(3),
		"school": EnumValue("Evocation"),
		"tags":   ListValue([]Value{StringValue("fire"), StringValue("aoe")}),
	}

	w := NewWriter()
	w.PutProperties(props)

	r := NewReader(w.Bytes())
	decoded, err := r.Properties()
	require.NoError(t, err)
	assert.Equal(t, props, decoded)
}

func TestReader_TruncatedBuffer_ReturnsErrTruncated(t *testing.T) {
	w := NewWriter()
	w.PutString("hello")
	truncated := w.Bytes()[:2]

	r := NewReader(truncated)
	_, err := r.String()
	assert.ErrorIs(t, err, ErrTruncated)
}
