package schema

import (
	"testing"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bitsType(w int) *TypeSpec { return &TypeSpec{Kind: KindBits, Bitwidth: w} }

func TestEncodeDataBits(t *testing.T) {
	d, err := bitsType(16).EncodeData(0x1234)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, d.GetBitstring())

	_, err = bitsType(8).EncodeData(256)
	assert.Error(t, err)
}

func TestEncodeDataBool(t *testing.T) {
	ts := &TypeSpec{Kind: KindBool}
	d, err := ts.EncodeData(true)
	require.NoError(t, err)
	assert.True(t, d.GetBool())
	_, err = ts.EncodeData(1)
	assert.Error(t, err)
}

func TestStructEncodeDecode(t *testing.T) {
	ts := &TypeSpec{
		Kind: KindStruct,
		Name: "pair",
		Members: []Member{
			{Name: "a", Type: bitsType(8)},
			{Name: "b", Type: bitsType(16)},
		},
	}
	d, err := ts.EncodeData(map[string]any{"a": 1, "b": 258})
	require.NoError(t, err)
	members := d.GetStruct().GetMembers()
	require.Len(t, members, 2)
	assert.Equal(t, []byte{1}, members[0].GetBitstring())
	assert.Equal(t, []byte{1, 2}, members[1].GetBitstring())

	back, err := ts.DecodeData(d)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": uint64(1), "b": uint64(258)}, back)

	_, err = ts.EncodeData(map[string]any{"a": 1})
	assert.Error(t, err, "missing member")

	// Ordered form is accepted too.
	d2, err := ts.EncodeData([]any{1, 258})
	require.NoError(t, err)
	assert.Equal(t, d.GetStruct().GetMembers()[1].GetBitstring(), d2.GetStruct().GetMembers()[1].GetBitstring())
}

func TestSignedBitsData(t *testing.T) {
	ts := &TypeSpec{Kind: KindSignedBits, Bitwidth: 8}
	d, err := ts.EncodeData(-2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE}, d.GetBitstring())
	v, err := ts.DecodeData(d)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v)
}

func TestSerializableEnumData(t *testing.T) {
	ts := &TypeSpec{
		Kind:     KindSerializableEnum,
		Name:     "color_t",
		Bitwidth: 8,
		Enum: []EnumMember{
			{Name: "RED", Value: []byte{0}},
			{Name: "GREEN", Value: []byte{1}},
		},
	}
	b, err := ts.EncodeData("GREEN")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b.GetEnumValue())

	v, err := ts.DecodeData(&p4v1.P4Data{Data: &p4v1.P4Data_EnumValue{EnumValue: []byte{0}}})
	require.NoError(t, err)
	assert.Equal(t, "RED", v)

	_, err = ts.EncodeData("BLUE")
	assert.Error(t, err)
}

func TestHeaderData(t *testing.T) {
	ts := &TypeSpec{
		Kind: KindHeader,
		Name: "eth_t",
		Members: []Member{
			{Name: "dst", Type: bitsType(48)},
			{Name: "etype", Type: bitsType(16)},
		},
	}
	d, err := ts.EncodeData([]any{1, 0x88CC})
	require.NoError(t, err)
	h := d.GetHeader()
	require.True(t, h.GetIsValid())
	require.Len(t, h.GetBitstrings(), 2)
	// Header fields are fixed-width on the wire.
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 1}, h.GetBitstrings()[0])
	assert.Equal(t, []byte{0x88, 0xCC}, h.GetBitstrings()[1])

	back, err := ts.DecodeData(d)
	require.NoError(t, err)
	assert.Equal(t, []any{uint64(1), uint64(0x88CC)}, back)
}
