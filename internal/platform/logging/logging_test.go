package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_BuildsBothModes(t *testing.T) {
	for _, prod := range []bool{true, false} {
		l, err := New(prod, "debug")
		if err != nil {
			t.Fatalf("New(%v): %v", prod, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("New(%v): debug should be enabled", prod)
		}
	}
}
