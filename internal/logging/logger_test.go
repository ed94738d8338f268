package logging

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestFieldHelpers tests the Field constructor functions.
func TestFieldHelpers(t *testing.T) {
	t.Run("String creates field with key and string value", func(t *testing.T) {
		f := String("qubit", "q1")
		if f.Key != "qubit" || f.Value != "q1" {
			t.Errorf("String() = %+v, want {qubit q1}", f)
		}
	})

	t.Run("Int creates field with key and int value", func(t *testing.T) {
		f := Int("shots", 200)
		if f.Key != "shots" || f.Value != 200 {
			t.Errorf("Int() = %+v, want {shots 200}", f)
		}
	})

	t.Run("Uint64 creates field with key and uint64 value", func(t *testing.T) {
		f := Uint64("n", 12345678901234567890)
		if f.Key != "n" || f.Value != uint64(12345678901234567890) {
			t.Errorf("Uint64() = %+v", f)
		}
	})

	t.Run("Float64 creates field with key and float64 value", func(t *testing.T) {
		f := Float64("amplitude", 0.125)
		if f.Key != "amplitude" || f.Value != 0.125 {
			t.Errorf("Float64() = %+v", f)
		}
	})

	t.Run("Bool creates field with key and bool value", func(t *testing.T) {
		f := Bool("simulate", true)
		if f.Key != "simulate" || f.Value != true {
			t.Errorf("Bool() = %+v", f)
		}
	})

	t.Run("Err creates field with error key", func(t *testing.T) {
		testErr := errors.New("test error")
		f := Err(testErr)
		if f.Key != "error" || f.Value != testErr {
			t.Errorf("Err() = %+v", f)
		}
	})

	t.Run("Err with nil error", func(t *testing.T) {
		f := Err(nil)
		if f.Key != "error" || f.Value != nil {
			t.Errorf("Err(nil) = %+v", f)
		}
	})
}

// TestNewZerologAdapter tests the ZerologAdapter constructor.
func TestNewZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	adapter := NewZerologAdapter(zl)

	if adapter == nil {
		t.Fatal("NewZerologAdapter returned nil")
	}

	adapter.Info("test message")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("NewZerologAdapter logger not working, output: %s", buf.String())
	}
}

// TestNewDefaultLogger tests the default logger constructor.
func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	if logger == nil {
		t.Fatal("NewDefaultLogger returned nil")
	}
}

// TestNewLogger tests the component logger constructor.
func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "orchestration")

	logger.Info("node started")
	output := buf.String()

	if !strings.Contains(output, "orchestration") {
		t.Errorf("NewLogger should include component field, got: %s", output)
	}
	if !strings.Contains(output, "node started") {
		t.Errorf("NewLogger should include message, got: %s", output)
	}
}

// TestZerologAdapter_Info tests the Info method.
func TestZerologAdapter_Info(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		fields   []Field
		contains []string
	}{
		{
			name:     "no fields",
			msg:      "fetching results",
			fields:   nil,
			contains: []string{"fetching results", "info"},
		},
		{
			name:     "with string field",
			msg:      "fit converged",
			fields:   []Field{String("qubit", "q3")},
			contains: []string{"fit converged", "q3"},
		},
		{
			name:     "with multiple fields",
			msg:      "run finished",
			fields:   []Field{String("node", "power_rabi_ef"), Int("shots", 200)},
			contains: []string{"run finished", "power_rabi_ef", "200"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, "test")
			logger.Info(tt.msg, tt.fields...)

			output := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(output, want) {
					t.Errorf("output should contain %q, got: %s", want, output)
				}
			}
		})
	}
}

// TestZerologAdapter_Error tests the Error method.
func TestZerologAdapter_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "test")

	logger.Error("execution failed", errors.New("connection refused"), String("node", "t2_echo"))

	output := buf.String()
	for _, want := range []string{"execution failed", "connection refused", "t2_echo", "error"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q, got: %s", want, output)
		}
	}
}

// TestZerologAdapter_Debug tests the Debug method.
func TestZerologAdapter_Debug(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(zerolog.DebugLevel)
	logger := NewZerologAdapter(zl)

	logger.Debug("sweep compiled", Int("points", 300))

	output := buf.String()
	if !strings.Contains(output, "sweep compiled") || !strings.Contains(output, "debug") {
		t.Errorf("Debug output incomplete, got: %s", output)
	}
}

// TestZerologAdapter_PrintfPrintln tests the legacy-style methods.
func TestZerologAdapter_PrintfPrintln(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "test")

	logger.Printf("averaged %d of %d shots", 150, 200)
	if !strings.Contains(buf.String(), "averaged 150 of 200 shots") {
		t.Errorf("Printf should format message, got: %s", buf.String())
	}

	buf.Reset()
	logger.Println("state", "saved")
	if !strings.Contains(buf.String(), "state saved") {
		t.Errorf("Println should include all arguments, got: %s", buf.String())
	}
}

// TestZerologAdapter_applyFields tests field application with all supported types.
func TestZerologAdapter_applyFields(t *testing.T) {
	tests := []struct {
		name     string
		field    Field
		contains string
	}{
		{"string field", Field{Key: "str", Value: "hello"}, "hello"},
		{"int field", Field{Key: "num", Value: 42}, "42"},
		{"int64 field", Field{Key: "big", Value: int64(9223372036854775807)}, "9223372036854775807"},
		{"uint64 field", Field{Key: "huge", Value: uint64(18446744073709551615)}, "18446744073709551615"},
		{"float64 field", Field{Key: "amp", Value: 0.125}, "0.125"},
		{"error field", Field{Key: "err", Value: errors.New("oops")}, "oops"},
		{"bool field", Field{Key: "flag", Value: true}, "true"},
		{"interface field", Field{Key: "data", Value: struct{ X int }{X: 1}}, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, "test")
			logger.Info("test", tt.field)

			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("applyFields should handle %s, output: %s", tt.name, buf.String())
			}
		})
	}
}

// TestStdLoggerAdapter tests the standard library adapter.
func TestStdLoggerAdapter(t *testing.T) {
	t.Run("Info includes level tag and fields", func(t *testing.T) {
		var buf bytes.Buffer
		adapter := NewStdLoggerAdapter(log.New(&buf, "", 0))

		adapter.Info("state updated", String("qubit", "q2"))

		output := buf.String()
		for _, want := range []string{"[INFO]", "state updated", "qubit", "q2"} {
			if !strings.Contains(output, want) {
				t.Errorf("output should contain %q, got: %s", want, output)
			}
		}
	})

	t.Run("Error includes cause", func(t *testing.T) {
		var buf bytes.Buffer
		adapter := NewStdLoggerAdapter(log.New(&buf, "", 0))

		adapter.Error("store failed", errors.New("disk full"))

		output := buf.String()
		if !strings.Contains(output, "[ERROR]") || !strings.Contains(output, "disk full") {
			t.Errorf("Error output incomplete, got: %s", output)
		}
	})

	t.Run("Error with nil cause", func(t *testing.T) {
		var buf bytes.Buffer
		adapter := NewStdLoggerAdapter(log.New(&buf, "", 0))

		adapter.Error("warning", nil)

		if !strings.Contains(buf.String(), "[ERROR] warning") {
			t.Errorf("Error output incomplete, got: %s", buf.String())
		}
	})

	t.Run("Debug includes level tag", func(t *testing.T) {
		var buf bytes.Buffer
		adapter := NewStdLoggerAdapter(log.New(&buf, "", 0))

		adapter.Debug("probe")

		if !strings.Contains(buf.String(), "[DEBUG] probe") {
			t.Errorf("Debug output incomplete, got: %s", buf.String())
		}
	})
}

// TestNopLogger verifies the no-op logger implements Logger and stays silent.
func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Info("ignored")
	l.Error("ignored", errors.New("x"))
	l.Debug("ignored")
	l.Printf("ignored %d", 1)
	l.Println("ignored")
}
