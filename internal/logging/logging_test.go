package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("capture")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("duplication ready", "output", `\\.\DISPLAY1`)

	out := buf.String()
	if !strings.Contains(out, "msg=\"duplication ready\"") {
		t.Fatalf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=capture") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, `DISPLAY1`) {
		t.Fatalf("expected output field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("capture")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)

	L("stream").Debug("frame sent", "bytes", 1024)

	out := buf.String()
	if !strings.Contains(out, `"component":"stream"`) {
		t.Fatalf("expected JSON component field, got: %s", out)
	}
	if !strings.Contains(out, `"bytes":1024`) {
		t.Fatalf("expected JSON bytes field, got: %s", out)
	}
}

func TestReinitSwitchesBetweenFormats(t *testing.T) {
	// Reconfiguring must work in both directions even though the text
	// and JSON handlers are different concrete types.
	var buf bytes.Buffer
	Init("text", "info", &buf)
	Init("json", "info", &buf)
	Init("text", "info", &buf)

	buf.Reset()
	L("capture").Info("after reinit")
	if !strings.Contains(buf.String(), "msg=\"after reinit\"") {
		t.Fatalf("expected text output after final reinit, got: %s", buf.String())
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	for _, s := range []string{"", "bogus", " INFO "} {
		if lvl := parseLevel(s); lvl.String() != "INFO" {
			t.Fatalf("parseLevel(%q) = %v, want INFO", s, lvl)
		}
	}
}
