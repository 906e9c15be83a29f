// Package protoutil renders protobuf messages for logs: a stable
// single-line text form and a short form that truncates that text.
package protoutil

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// Text renders a message in deterministic single-line text form.
func Text(m proto.Message) string {
	if m == nil {
		return "<nil>"
	}
	out, err := prototext.MarshalOptions{Multiline: false}.Marshal(m)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	// prototext inserts randomized whitespace; normalize runs of spaces.
	return strings.Join(strings.Fields(string(out)), " ")
}

// Short renders a compact form for logging, truncating at maxLen bytes
// with an ellipsis.
func Short(m proto.Message, maxLen int) string {
	s := Text(m)
	if maxLen > 0 && len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// Hex renders a bytestring as 0x-prefixed hex, shortening long values.
func Hex(b []byte) string {
	const limit = 16
	if len(b) <= limit {
		return fmt.Sprintf("0x%x", b)
	}
	return fmt.Sprintf("0x%x...(%d bytes)", b[:limit], len(b))
}
