package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestDebugEnv(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		if !debugEnv(v) {
			t.Errorf("debugEnv(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		if debugEnv(v) {
			t.Errorf("debugEnv(%q) = true, want false", v)
		}
	}
}

func TestInitAndLevels(t *testing.T) {
	t.Setenv("FINSY_DEBUG", "")
	var buf bytes.Buffer
	Init(Config{Level: "WARN", Output: &buf})
	defer Init(Config{Level: "INFO"})

	Info("hidden message")
	Warn("visible message", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("INFO leaked through WARN level: %q", out)
	}
	if !strings.Contains(out, "visible message") {
		t.Errorf("WARN missing from output: %q", out)
	}
	if !strings.Contains(out, "k=v") {
		t.Errorf("attributes missing from output: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "INFO", Format: "json", Output: &buf})
	defer Init(Config{Level: "INFO"})

	Info("hello", "n", 1)
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestFieldHelpers(t *testing.T) {
	if got := Switch("s1").Value.String(); got != "s1" {
		t.Errorf("Switch attr = %q", got)
	}
	if got := ElectionID(0, 10).Value.Uint64(); got != 10 {
		t.Errorf("ElectionID low form = %d", got)
	}
	if got := ElectionID(1, 2).Value.String(); got != "1:2" {
		t.Errorf("ElectionID high form = %q", got)
	}
}
