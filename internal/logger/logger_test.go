package logger

import (
	"errors"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
	}{
		{name: "development mode", debug: true},
		{name: "production mode", debug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.debug)
			if err != nil {
				t.Fatalf("NewLogger() error = %v, want nil", err)
			}
			if log == nil {
				t.Fatal("NewLogger() returned nil logger")
			}

			log.Info("test message")

			// Sync may fail on non-file outputs in test environments.
			_ = log.Sync()
		})
	}
}

func TestNewNopLogger(t *testing.T) {
	log := NewNopLogger()
	if log == nil {
		t.Fatal("NewNopLogger() returned nil")
	}

	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	withLogger := log.With(String("key", "value"))
	if withLogger == nil {
		t.Fatal("With() returned nil")
	}

	_ = log.Sync()
}

func TestLoggerFields(t *testing.T) {
	log := NewNopLogger()

	// Field constructors must not panic for any supported type.
	log.Info("test fields",
		String("string_field", "value"),
		Int("int_field", 42),
		Int64("int64_field", 9223372036854775807),
		Float64("float_field", 3.14),
		Bool("bool_field", true),
		Duration("duration_field", time.Second),
		Time("time_field", time.Now()),
		Error(errors.New("boom")),
		NamedError("wrapped", errors.New("inner")),
		Strings("strings_field", []string{"a", "b"}),
		Any("any_field", map[string]int{"k": 1}),
	)
}

func TestWithAttachesFields(t *testing.T) {
	log := NewNopLogger()

	child := log.With(String("service", "monitor"), Int("run", 1))
	if child == nil {
		t.Fatal("With() returned nil")
	}

	// Chained With must also work.
	grandchild := child.With(Bool("nested", true))
	grandchild.Info("message from grandchild")
}
