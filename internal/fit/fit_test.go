package fit

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

// sweep returns an evenly spaced axis like the amplitude-prefactor scan.
func sweep(n int, start, step float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = start + float64(i)*step
	}
	return x
}

func TestFitOscillationRecoversParameters(t *testing.T) {
	t.Parallel()
	x := sweep(300, 0, 0.005)
	want := OscillationFit{Amplitude: 1.3e-3, Frequency: 0.62, Phase: math.Pi, Offset: 2.1e-3}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = want.Eval(xi)
	}

	got, err := FitOscillation(x, y)
	if err != nil {
		t.Fatalf("FitOscillation failed: %v", err)
	}
	if math.Abs(got.Amplitude-want.Amplitude) > 1e-6 {
		t.Errorf("Amplitude = %g, want %g", got.Amplitude, want.Amplitude)
	}
	if math.Abs(got.Frequency-want.Frequency) > 1e-4 {
		t.Errorf("Frequency = %g, want %g", got.Frequency, want.Frequency)
	}
	if math.Abs(got.Phase-want.Phase) > 1e-3 {
		t.Errorf("Phase = %g, want %g", got.Phase, want.Phase)
	}
	if math.Abs(got.Offset-want.Offset) > 1e-6 {
		t.Errorf("Offset = %g, want %g", got.Offset, want.Offset)
	}
}

func TestFitOscillationWithNoise(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	x := sweep(300, 0, 0.005)
	want := OscillationFit{Amplitude: 1e-3, Frequency: 0.68, Phase: math.Pi, Offset: 1.5e-3}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = want.Eval(xi) + rng.NormFloat64()*2e-5
	}

	got, err := FitOscillation(x, y)
	if err != nil {
		t.Fatalf("FitOscillation failed: %v", err)
	}
	if math.Abs(got.Frequency-want.Frequency) > 5e-3 {
		t.Errorf("Frequency = %g, want %g", got.Frequency, want.Frequency)
	}
	if math.Abs(got.Phase-want.Phase) > 0.05 {
		t.Errorf("Phase = %g, want %g", got.Phase, want.Phase)
	}
}

func TestFitOscillationRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		x, y []float64
	}{
		{"too short", []float64{0, 1, 2, 3}, []float64{0, 1, 0, -1}},
		{"length mismatch", []float64{0, 1, 2, 3, 4}, []float64{0, 1}},
		{"flat trace", sweep(50, 0, 0.1), make([]float64, 50)},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := FitOscillation(tc.x, tc.y)
			var fe apperrors.FitError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FitError, got %v", err)
			}
		})
	}
}

func TestFitExponentialDecay(t *testing.T) {
	t.Parallel()
	x := sweep(60, 0, 2e-6)
	want := DecayFit{Amplitude: 0.97, Tau: 10e-6, Offset: 0.01}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = want.Eval(xi)
	}

	got, err := FitExponentialDecay(x, y)
	if err != nil {
		t.Fatalf("FitExponentialDecay failed: %v", err)
	}
	if math.Abs(got.Tau-want.Tau)/want.Tau > 1e-3 {
		t.Errorf("Tau = %g, want %g", got.Tau, want.Tau)
	}
	if math.Abs(got.Amplitude-want.Amplitude) > 1e-3 {
		t.Errorf("Amplitude = %g, want %g", got.Amplitude, want.Amplitude)
	}
}

func TestFitExponentialDecayNegativeAmplitude(t *testing.T) {
	t.Parallel()
	// Saturation toward the offset, a < 0: the shape the echo trace has
	// on the I quadrature.
	x := sweep(60, 0, 1)
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 1 - 0.8*math.Exp(-xi/5)
	}
	got, err := FitExponentialDecay(x, y)
	if err != nil {
		t.Fatalf("FitExponentialDecay failed: %v", err)
	}
	if math.Abs(got.Tau-5)/5 > 1e-3 {
		t.Errorf("Tau = %g, want 5", got.Tau)
	}
	if math.Abs(got.Amplitude-(-0.8)) > 1e-3 {
		t.Errorf("Amplitude = %g, want -0.8", got.Amplitude)
	}
}

func TestFitExponentialDecayRejectsFlatTrace(t *testing.T) {
	t.Parallel()
	x := sweep(20, 0, 1)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 0.3
	}
	if _, err := FitExponentialDecay(x, y); err == nil {
		t.Error("expected error for a flat trace")
	}
}

func TestPiAmplitudeFactor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		f, phi    float64
		want      float64
		wantError bool
	}{
		{"phase pi folds to zero", 0.5, math.Pi, 1.0, false},
		{"phase already small", 0.5, 0, 1.0, false},
		{"slight over-rotation", 0.5, 0.1, (math.Pi - 0.1) / math.Pi, false},
		{"phase just below pi", 0.5, math.Pi - 0.01, (math.Pi + 0.01) / math.Pi, false},
		{"phase just above pi", 0.5, math.Pi + 0.01, (math.Pi - 0.01) / math.Pi, false},
		{"phase near 2pi", 0.5, 2*math.Pi - 0.01, (math.Pi + 0.01) / math.Pi, false},
		{"zero frequency", 0, 0, 0, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := PiAmplitudeFactor(tc.f, tc.phi)
			if tc.wantError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("factor = %g, want %g", got, tc.want)
			}
		})
	}
}

// TestPiAmplitudeFactorContinuousAcrossPi sweeps the fitted phase through
// the pi boundary. Noise pushes a minimum-starting trace to either side of
// pi at random, and the extracted factor must not double when it crosses.
func TestPiAmplitudeFactorContinuousAcrossPi(t *testing.T) {
	t.Parallel()
	const f = 0.625
	ideal := 1 / (2 * f)

	for _, eps := range []float64{1e-6, 1e-3, 0.01, 0.05, 0.1} {
		below, err := PiAmplitudeFactor(f, math.Pi-eps)
		if err != nil {
			t.Fatalf("PiAmplitudeFactor(f, pi-%g) failed: %v", eps, err)
		}
		above, err := PiAmplitudeFactor(f, math.Pi+eps)
		if err != nil {
			t.Fatalf("PiAmplitudeFactor(f, pi+%g) failed: %v", eps, err)
		}

		// Both sides stay within the phase offset of the ideal prefactor.
		band := eps/(2*math.Pi*f) + 1e-9
		if math.Abs(below-ideal) > band {
			t.Errorf("factor at pi-%g = %g, want within %g of %g", eps, below, band, ideal)
		}
		if math.Abs(above-ideal) > band {
			t.Errorf("factor at pi+%g = %g, want within %g of %g", eps, above, band, ideal)
		}
		if gap := math.Abs(below - above); gap > 2*band {
			t.Errorf("factor jumps by %g across pi at eps=%g", gap, eps)
		}
	}
}

func TestTwoStateDiscriminator(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	n := 2000
	ig := make([]float64, n)
	qg := make([]float64, n)
	ie := make([]float64, n)
	qe := make([]float64, n)
	for k := 0; k < n; k++ {
		ig[k] = 0.8e-3 + rng.NormFloat64()*1e-4
		qg[k] = 2.0e-3 + rng.NormFloat64()*1e-4
		ie[k] = 1.5e-3 + rng.NormFloat64()*1e-4
		qe[k] = 0.0 + rng.NormFloat64()*1e-4
	}

	d, err := TwoStateDiscriminator(ig, qg, ie, qe)
	if err != nil {
		t.Fatalf("TwoStateDiscriminator failed: %v", err)
	}

	wantAngle := math.Atan2(0-2.0e-3, 1.5e-3-0.8e-3)
	if math.Abs(d.Angle-wantAngle) > 0.02 {
		t.Errorf("Angle = %g, want ~%g", d.Angle, wantAngle)
	}
	// Blob separation is ~21 sigma, so assignment should be essentially
	// perfect.
	if d.Fidelity[0][0] < 0.99 || d.Fidelity[1][1] < 0.99 {
		t.Errorf("diagonal fidelities = %g, %g; want > 0.99", d.Fidelity[0][0], d.Fidelity[1][1])
	}
	if got := d.Fidelity[0][0] + d.Fidelity[0][1]; math.Abs(got-1) > 1e-12 {
		t.Errorf("ground row sums to %g, want 1", got)
	}
}

func TestTwoStateDiscriminatorEmptyCloud(t *testing.T) {
	t.Parallel()
	if _, err := TwoStateDiscriminator(nil, nil, []float64{1}, []float64{1}); err == nil {
		t.Error("expected error for empty cloud")
	}
}
