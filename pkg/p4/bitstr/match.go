package bitstr

import (
	"bytes"
	"fmt"
	"net/netip"
)

// Match-kind encoders. Each returns wire-ready canonical bytestrings and
// applies the normalization rules for "don't care" values:
//
//   - LPM: host bits below the prefix are cleared; prefix length 0 means
//     the field is absent (a wildcard).
//   - TERNARY: an all-zero mask means the field is absent; a value bit
//     set outside the mask is an error.
//   - OPTIONAL: an absent value means the field is absent.
//
// Callers detect the absent cases via IsDontCareLPM / IsDontCareTernary
// before building a wire FieldMatch.

// EncodeExact encodes an exact-match value.
func EncodeExact(v any, bitwidth int) ([]byte, error) {
	return Encode(v, bitwidth)
}

// EncodeLPM encodes an LPM value, clearing bits below the prefix.
// v may also be a netip.Prefix, in which case prefixLen is taken from it.
func EncodeLPM(v any, prefixLen, bitwidth int) (value []byte, plen int32, err error) {
	if p, ok := v.(netip.Prefix); ok {
		prefixLen = p.Bits()
		v = p.Addr()
	}
	if prefixLen < 0 || prefixLen > bitwidth {
		return nil, 0, fmt.Errorf("prefix length %d exceeds bitwidth %d", prefixLen, bitwidth)
	}
	b, err := Encode(v, bitwidth)
	if err != nil {
		return nil, 0, err
	}
	return Canonical(applyMask(b, prefixMask(prefixLen, bitwidth), bitwidth)), int32(prefixLen), nil
}

// EncodeTernary encodes a value/mask pair. The value must not have bits
// set where the mask is zero.
func EncodeTernary(v, mask any, bitwidth int) (value, maskOut []byte, err error) {
	vb, err := Encode(v, bitwidth)
	if err != nil {
		return nil, nil, err
	}
	mb, err := Encode(mask, bitwidth)
	if err != nil {
		return nil, nil, err
	}
	full := expand(vb, (bitwidth+7)/8)
	fullMask := expand(mb, (bitwidth+7)/8)
	for i := range full {
		if full[i]&^fullMask[i] != 0 {
			return nil, nil, &MaskError{Value: vb, Mask: mb}
		}
	}
	return Canonical(vb), Canonical(mb), nil
}

// EncodeRange encodes a low/high pair.
func EncodeRange(low, high any, bitwidth int) (lo, hi []byte, err error) {
	lo, err = Encode(low, bitwidth)
	if err != nil {
		return nil, nil, err
	}
	hi, err = Encode(high, bitwidth)
	if err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

// EncodeOptional encodes an optional-match value.
func EncodeOptional(v any, bitwidth int) ([]byte, error) {
	return Encode(v, bitwidth)
}

// IsDontCareLPM reports whether the prefix length makes the match a
// wildcard.
func IsDontCareLPM(prefixLen int32) bool {
	return prefixLen == 0
}

// IsDontCareTernary reports whether the mask makes the match a wildcard.
func IsDontCareTernary(mask []byte) bool {
	return bitLen(mask) == 0
}

// prefixMask builds the network mask for prefixLen within bitwidth.
func prefixMask(prefixLen, bitwidth int) []byte {
	nbytes := (bitwidth + 7) / 8
	mask := make([]byte, nbytes)
	// Significant bits start at the top of the declared width, which may
	// not be byte-aligned.
	pad := nbytes*8 - bitwidth
	for i := 0; i < prefixLen; i++ {
		bit := pad + i
		mask[bit/8] |= 0x80 >> (bit % 8)
	}
	return mask
}

// applyMask ANDs the value with the mask at full byte width.
func applyMask(value, mask []byte, bitwidth int) []byte {
	full := expand(value, (bitwidth+7)/8)
	out := make([]byte, len(full))
	for i := range full {
		out[i] = full[i] & mask[i]
	}
	return out
}

// EqualBytes reports whether two bytestrings are equal after
// canonicalization.
func EqualBytes(a, b []byte) bool {
	return bytes.Equal(Canonical(a), Canonical(b))
}
