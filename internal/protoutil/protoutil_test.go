package protoutil

import (
	"strings"
	"testing"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
)

func TestTextStable(t *testing.T) {
	m := &p4v1.Uint128{High: 1, Low: 2}
	a := Text(m)
	b := Text(m)
	assert.Equal(t, a, b, "rendering is stable across calls")
	assert.Contains(t, a, "high:1")
	assert.NotContains(t, a, "\n")
}

func TestTextNil(t *testing.T) {
	assert.Equal(t, "<nil>", Text(nil))
}

func TestShortTruncates(t *testing.T) {
	m := &p4v1.TableEntry{TableId: 34391805, Metadata: make([]byte, 256)}
	s := Short(m, 32)
	assert.LessOrEqual(t, len(s), 35)
	assert.True(t, strings.HasSuffix(s, "..."))
}

func TestHex(t *testing.T) {
	assert.Equal(t, "0x0102", Hex([]byte{1, 2}))
	long := Hex(make([]byte, 64))
	assert.Contains(t, long, "(64 bytes)")
}
