package config

import (
	"errors"
	"io"
	"testing"
	"time"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

var testNodes = []string{"power_rabi_ef", "t2_echo", "iq_blobs_gef"}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig("qcal", nil, io.Discard, testNodes)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if !cfg.Simulate {
		t.Error("Simulate should default to true")
	}
	if cfg.StorePath != "qcal.db" {
		t.Errorf("StorePath = %q, want %q", cfg.StorePath, "qcal.db")
	}
	if cfg.MaxAmpFactor != 1.5 {
		t.Errorf("MaxAmpFactor = %v, want 1.5", cfg.MaxAmpFactor)
	}
	if !cfg.LogSpacing {
		t.Error("LogSpacing should default to true")
	}
	if cfg.StateDiscrimination {
		t.Error("StateDiscrimination should default to false")
	}
	if cfg.Theme != "dark" {
		t.Errorf("Theme = %q, want %q", cfg.Theme, "dark")
	}
}

func TestParseConfigFlags(t *testing.T) {
	args := []string{
		"--node", "t2_echo",
		"--qubits", "q1, q2",
		"--shots", "500",
		"--timeout", "2m",
		"--state-discrimination",
		"--theme", "light",
		"--no-plot",
		"-q",
	}
	cfg, err := ParseConfig("qcal", args, io.Discard, testNodes)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.Node != "t2_echo" {
		t.Errorf("Node = %q, want %q", cfg.Node, "t2_echo")
	}
	if cfg.Shots != 500 {
		t.Errorf("Shots = %d, want 500", cfg.Shots)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %s, want 2m", cfg.Timeout)
	}
	if !cfg.NoPlot || !cfg.Quiet {
		t.Errorf("NoPlot = %v, Quiet = %v, want both true", cfg.NoPlot, cfg.Quiet)
	}
	if !cfg.StateDiscrimination {
		t.Error("StateDiscrimination should be set by flag")
	}
	if cfg.Theme != "light" {
		t.Errorf("Theme = %q, want %q", cfg.Theme, "light")
	}

	qubits := cfg.QubitList()
	if len(qubits) != 2 || qubits[0] != "q1" || qubits[1] != "q2" {
		t.Errorf("QubitList = %v, want [q1 q2]", qubits)
	}
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"negative shots", []string{"--shots", "-1"}},
		{"zero qubits", []string{"--num-qubits", "0"}},
		{"unknown node", []string{"--node", "ramsey"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig("qcal", tt.args, io.Discard, testNodes)
			var cfgErr apperrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("ParseConfig error = %v, want ConfigError", err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QCAL_SHOTS", "250")
	t.Setenv("QCAL_NODE", "iq_blobs_gef")
	t.Setenv("QCAL_TIMEOUT", "90s")
	t.Setenv("QCAL_SIMULATE", "no")
	t.Setenv("QCAL_STATE_DISCRIMINATION", "1")
	t.Setenv("QCAL_THEME", "orange")

	cfg, err := ParseConfig("qcal", nil, io.Discard, testNodes)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.Shots != 250 {
		t.Errorf("Shots = %d, want 250 from env", cfg.Shots)
	}
	if cfg.Node != "iq_blobs_gef" {
		t.Errorf("Node = %q, want env value", cfg.Node)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %s, want 90s from env", cfg.Timeout)
	}
	if cfg.Simulate {
		t.Error("Simulate should be false from env")
	}
	if !cfg.StateDiscrimination {
		t.Error("StateDiscrimination should be true from env")
	}
	if cfg.Theme != "orange" {
		t.Errorf("Theme = %q, want env value", cfg.Theme)
	}
}

func TestEnvDoesNotOverrideExplicitFlag(t *testing.T) {
	t.Setenv("QCAL_SHOTS", "250")

	cfg, err := ParseConfig("qcal", []string{"--shots", "64"}, io.Discard, testNodes)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Shots != 64 {
		t.Errorf("Shots = %d, want CLI value 64 over env", cfg.Shots)
	}
}

func TestApplyAdaptiveDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg = ApplyAdaptiveDefaults(cfg)

	if cfg.Shots != defaultShots {
		t.Errorf("Shots = %d, want %d", cfg.Shots, defaultShots)
	}
	if cfg.Timeout < minTimeout {
		t.Errorf("Timeout = %s, want at least %s", cfg.Timeout, minTimeout)
	}

	explicit := DefaultConfig()
	explicit.Shots = 42
	explicit.Timeout = time.Minute
	explicit = ApplyAdaptiveDefaults(explicit)
	if explicit.Shots != 42 || explicit.Timeout != time.Minute {
		t.Error("adaptive defaults must not override explicit values")
	}
}
