package logger

import (
	"fmt"
	"log/slog"
)

// Attribute helpers keep field names consistent across the library.

// Switch identifies the owning switch by name.
func Switch(name string) slog.Attr {
	return slog.String("switch", name)
}

// Device identifies the P4Runtime device id.
func Device(id uint64) slog.Attr {
	return slog.Uint64("device_id", id)
}

// ElectionID renders a 128-bit election id as high:low.
func ElectionID(high, low uint64) slog.Attr {
	if high == 0 {
		return slog.Uint64("election_id", low)
	}
	return slog.String("election_id", fmt.Sprintf("%d:%d", high, low))
}

// Role identifies the arbitration role ("" is the default role).
func Role(name string) slog.Attr {
	return slog.String("role", name)
}

// State names the current switch channel state.
func State(s string) slog.Attr {
	return slog.String("state", s)
}

// Target identifies a gRPC target address.
func Target(addr string) slog.Attr {
	return slog.String("target", addr)
}

// Dropped counts messages shed by a bounded queue.
func Dropped(n uint64) slog.Attr {
	return slog.Uint64("dropped", n)
}

// Err wraps an error value.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
