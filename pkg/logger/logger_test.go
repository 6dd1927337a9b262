package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGlobalRoundTrip(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	nop := NewNop()
	SetGlobal(nop)
	if Global() != nop {
		t.Fatalf("expected global logger to be replaced")
	}
}

func TestWithContextSkipsEmptyFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &Logger{Logger: zap.New(core)}

	l.WithContext("corr-1", "").Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %v", fields["correlation_id"])
	}
	if _, ok := fields["user_id"]; ok {
		t.Errorf("unexpected user_id field")
	}
}
