package config

import "time"

// Adaptive defaults fill in values the user left at zero. They only
// modify fields that are unset, preserving explicit flag or environment
// overrides.

const (
	// defaultShots is the averaging count used when no shot count is
	// given. Readout noise averages down with 1/sqrt(shots), so 100
	// shots gives roughly a 10x noise reduction per sweep point.
	defaultShots = 100

	// timeoutPerPoint is the budget granted per sweep point and shot
	// when no timeout is given. Generous for the simulator, and a sane
	// floor for hardware backends with millisecond repetition rates.
	timeoutPerPoint = 2 * time.Millisecond

	// minTimeout is the lower bound of the adaptive timeout.
	minTimeout = 30 * time.Second
)

// ApplyAdaptiveDefaults estimates shot count and run timeout from the
// configured sweep when they are unset.
func ApplyAdaptiveDefaults(cfg AppConfig) AppConfig {
	if cfg.Shots == 0 {
		cfg.Shots = defaultShots
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = EstimateRunTimeout(cfg)
	}
	return cfg
}

// EstimateRunTimeout bounds a run by the larger of its configured
// sweeps, with a fixed floor.
func EstimateRunTimeout(cfg AppConfig) time.Duration {
	points := cfg.WaitPoints
	if cfg.AmpFactorStep > 0 {
		if n := int((cfg.MaxAmpFactor - cfg.MinAmpFactor) / cfg.AmpFactorStep); n > points {
			points = n
		}
	}
	if cfg.Shots > points {
		points = cfg.Shots
	}
	timeout := time.Duration(points) * timeoutPerPoint
	if timeout < minTimeout {
		return minTimeout
	}
	return timeout
}
