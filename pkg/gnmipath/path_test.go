package gnmipath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	tests := []string{
		"interfaces",
		"interfaces/interface[name=s1-eth1]/state/oper-status",
		"a/b[k1=v1][k2=v2]/c",
		"interfaces/interface[name=*]/state",
	}
	for _, s := range tests {
		p, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, p.String(), "round-trip")
	}
}

func TestParseLeadingSlashAndOrigin(t *testing.T) {
	p, err := Parse("/interfaces/interface")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())

	p, err = Parse("openconfig:interfaces/interface")
	require.NoError(t, err)
	assert.Equal(t, "openconfig", p.Origin())
	assert.Equal(t, "openconfig:interfaces/interface", p.String())
}

func TestEscapes(t *testing.T) {
	p, err := Parse(`a/weird\/name/b[k=va\]lue]`)
	require.NoError(t, err)
	assert.Equal(t, "weird/name", p.Elem(1))
	v, ok := p.Key("b", "k")
	require.True(t, ok)
	assert.Equal(t, "va]lue", v)
	// Serialization restores the escapes.
	rt, err := Parse(p.String())
	require.NoError(t, err)
	assert.Equal(t, p.String(), rt.String())
}

func TestAccessors(t *testing.T) {
	p := MustParse("interfaces/interface[name=s1-eth1]/state/oper-status")
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, "interfaces", p.Elem(0))
	assert.Equal(t, "oper-status", p.Elem(-1))

	v, ok := p.Key(1, "name")
	require.True(t, ok)
	assert.Equal(t, "s1-eth1", v)

	v, ok = p.Key("interface", "name")
	require.True(t, ok)
	assert.Equal(t, "s1-eth1", v)

	// Single-key shorthand when unambiguous.
	v, ok = p.Key("name")
	require.True(t, ok)
	assert.Equal(t, "s1-eth1", v)

	_, ok = p.Key("missing")
	assert.False(t, ok)
}

func TestSliceAndJoin(t *testing.T) {
	p := MustParse("a/b[k=v]/c/d")
	sub := p.Slice(1, 3)
	assert.Equal(t, "b[k=v]/c", sub.String())

	joined := MustParse("a/b").Join("c[k=v]/d")
	assert.Equal(t, "a/b/c[k=v]/d", joined.String())

	joined = MustParse("a").Join(MustParse("b"))
	assert.Equal(t, "a/b", joined.String())
}

func TestImmutability(t *testing.T) {
	p := MustParse("a/b[k=v]")
	q := p.WithKey("b", "k", "other")
	assert.Equal(t, "a/b[k=v]", p.String(), "original unchanged")
	assert.Equal(t, "a/b[k=other]", q.String())

	r := p.WithOrigin("oc")
	assert.Equal(t, "", p.Origin())
	assert.Equal(t, "oc", r.Origin())
}

func TestProtoRoundTrip(t *testing.T) {
	p := MustParse("interfaces/interface[name=s1-eth1]/state")
	pb := p.Proto()
	require.Len(t, pb.GetElem(), 3)
	assert.Equal(t, map[string]string{"name": "s1-eth1"}, pb.GetElem()[1].GetKey())

	back := FromProto(pb)
	assert.Equal(t, p.String(), back.String())
}
