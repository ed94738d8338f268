// This file contains environment variable utilities for configuration override.

package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// isFlagSet checks if a flag was explicitly set on the command line.
// This is used to determine whether to apply environment variable overrides.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// isFlagSetAny checks if any of the specified flags were explicitly set.
// This is useful for aliased flags where either the short or long form may be used.
func isFlagSetAny(fs *flag.FlagSet, names ...string) bool {
	for _, name := range names {
		if isFlagSet(fs, name) {
			return true
		}
	}
	return false
}

// envOverride declares a single environment variable override.
// Each entry maps an env key (without the QCAL_ prefix) to the CLI flag
// name(s) it corresponds to and a function that applies the env value.
type envOverride struct {
	envKey string
	flags  []string
	apply  func(*AppConfig, string)
}

// envOverrides is the declarative table of all environment variable overrides,
// grouped as numeric, duration, string, then boolean.
var envOverrides = []envOverride{
	// Numeric overrides
	{"SHOTS", []string{"shots"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.Shots = parsed
		}
	}},
	{"NUM_QUBITS", []string{"num-qubits"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.NumQubits = parsed
		}
	}},
	{"SEED", []string{"seed"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = parsed
		}
	}},
	{"NOISE_SIGMA", []string{"noise-sigma"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			c.NoiseSigma = parsed
		}
	}},
	{"WAIT_POINTS", []string{"wait-points"}, func(c *AppConfig, v string) {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.WaitPoints = parsed
		}
	}},

	// Duration overrides
	{"TIMEOUT", []string{"timeout"}, func(c *AppConfig, v string) {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Timeout = parsed
		}
	}},

	// String overrides
	{"NODE", []string{"node"}, func(c *AppConfig, v string) {
		c.Node = v
	}},
	{"QUBITS", []string{"qubits"}, func(c *AppConfig, v string) {
		c.Qubits = v
	}},
	{"STATE", []string{"state"}, func(c *AppConfig, v string) {
		c.StateFile = v
	}},
	{"STORE", []string{"store"}, func(c *AppConfig, v string) {
		c.StorePath = v
	}},
	{"OUTPUT_DIR", []string{"output-dir"}, func(c *AppConfig, v string) {
		c.OutputDir = v
	}},
	{"OUTPUT", []string{"output", "o"}, func(c *AppConfig, v string) {
		c.OutputFile = v
	}},
	{"METRICS_LISTEN", []string{"metrics-listen"}, func(c *AppConfig, v string) {
		c.MetricsListen = v
	}},
	{"LOG_LEVEL", []string{"log-level"}, func(c *AppConfig, v string) {
		c.LogLevel = v
	}},
	{"THEME", []string{"theme"}, func(c *AppConfig, v string) {
		c.Theme = v
	}},

	// Boolean overrides
	{"SIMULATE", []string{"simulate"}, func(c *AppConfig, v string) {
		c.Simulate = parseBoolEnv(v, c.Simulate)
	}},
	{"LOG_SPACING", []string{"log-spacing"}, func(c *AppConfig, v string) {
		c.LogSpacing = parseBoolEnv(v, c.LogSpacing)
	}},
	{"STATE_DISCRIMINATION", []string{"state-discrimination"}, func(c *AppConfig, v string) {
		c.StateDiscrimination = parseBoolEnv(v, c.StateDiscrimination)
	}},
	{"QUIET", []string{"quiet", "q"}, func(c *AppConfig, v string) {
		c.Quiet = parseBoolEnv(v, c.Quiet)
	}},
	{"VERBOSE", []string{"verbose", "v"}, func(c *AppConfig, v string) {
		c.Verbose = parseBoolEnv(v, c.Verbose)
	}},
	{"NO_PLOT", []string{"no-plot"}, func(c *AppConfig, v string) {
		c.NoPlot = parseBoolEnv(v, c.NoPlot)
	}},
	{"NO_COLOR", []string{"no-color"}, func(c *AppConfig, v string) {
		c.NoColor = parseBoolEnv(v, c.NoColor)
	}},
	{"TUI", []string{"tui"}, func(c *AppConfig, v string) {
		c.TUI = parseBoolEnv(v, c.TUI)
	}},
}

// parseBoolEnv parses a boolean environment variable value.
// Accepts "true", "1", "yes" as true; "false", "0", "no" as false (case-insensitive).
// Returns defaultVal if the value is not recognized.
func parseBoolEnv(val string, defaultVal bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

// applyEnvOverrides applies environment variable values to the configuration
// for any flags that were not explicitly set on the command line.
// This implements the priority: CLI flags > Environment variables > Defaults.
func applyEnvOverrides(config *AppConfig, fs *flag.FlagSet) {
	for _, o := range envOverrides {
		if isFlagSetAny(fs, o.flags...) {
			continue
		}
		if val := os.Getenv(EnvPrefix + o.envKey); val != "" {
			o.apply(config, val)
		}
	}
}
