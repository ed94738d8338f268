// Package fit implements the analysis core shared by the calibration
// nodes: damped least-squares fits of oscillation and decay models, the
// two-state readout discriminator, and the error-amplified pi-amplitude
// extraction.
package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/qhlab/qcal/internal/errors"
)

const (
	minOscillationPoints = 5
	minDecayPoints       = 4
	lmMaxIterations      = 200
	lmTolerance          = 1e-12
)

// Oscillation evaluates a*cos(2*pi*f*x + phi) + offset.
func Oscillation(x, a, f, phi, offset float64) float64 {
	return a*math.Cos(2*math.Pi*f*x+phi) + offset
}

// OscillationFit holds the canonicalized parameters of a fitted
// oscillation: Amplitude >= 0, Frequency > 0, Phase in [0, 2*pi).
type OscillationFit struct {
	Amplitude float64
	Frequency float64
	Phase     float64
	Offset    float64
}

// Eval evaluates the fitted model at x.
func (o OscillationFit) Eval(x float64) float64 {
	return Oscillation(x, o.Amplitude, o.Frequency, o.Phase, o.Offset)
}

// FitOscillation fits y(x) = a*cos(2*pi*f*x + phi) + offset. The seed
// comes from the trace itself: mean offset, half the peak-to-peak span,
// the dominant non-DC DFT bin for the frequency and its argument for the
// phase. A Levenberg-Marquardt refinement then polishes all four
// parameters.
func FitOscillation(x, y []float64) (OscillationFit, error) {
	if len(x) != len(y) {
		return OscillationFit{}, apperrors.NewFitError("", "x and y lengths differ: %d vs %d", len(x), len(y))
	}
	if len(x) < minOscillationPoints {
		return OscillationFit{}, apperrors.NewFitError("", "too few points: %d < %d", len(x), minOscillationPoints)
	}

	offset := stat.Mean(y, nil)
	span := floats.Max(y) - floats.Min(y)
	if span < 1e-15 {
		return OscillationFit{}, apperrors.NewFitError("", "flat trace, peak-to-peak %g", span)
	}

	f, phi := dftSeed(x, y, offset)
	p := [4]float64{span / 2, f, phi, offset}

	p, err := levenbergMarquardt(x, y, p, oscillationModel{})
	if err != nil {
		return OscillationFit{}, err
	}
	return canonicalize(p), nil
}

// dftSeed locates the dominant non-DC frequency of the detrended trace
// and recovers its phase at x[0]. The sweep axis is assumed uniform.
func dftSeed(x, y []float64, offset float64) (f, phi float64) {
	n := len(y)
	dx := (x[n-1] - x[0]) / float64(n-1)

	bestK, bestMag := 1, 0.0
	var bestRe, bestIm float64
	for k := 1; k <= n/2; k++ {
		var re, im float64
		for j := 0; j < n; j++ {
			arg := -2 * math.Pi * float64(k) * float64(j) / float64(n)
			re += (y[j] - offset) * math.Cos(arg)
			im += (y[j] - offset) * math.Sin(arg)
		}
		if mag := math.Hypot(re, im); mag > bestMag {
			bestK, bestMag = k, mag
			bestRe, bestIm = re, im
		}
	}

	f = float64(bestK) / (float64(n) * dx)
	// The bin argument carries the phase at x[0], which the model
	// references to x = 0.
	phi = math.Atan2(bestIm, bestRe) - 2*math.Pi*f*x[0]
	return f, phi
}

// canonicalize folds the raw parameters into Amplitude >= 0, Frequency > 0
// and Phase in [0, 2*pi).
func canonicalize(p [4]float64) OscillationFit {
	a, f, phi, offset := p[0], p[1], p[2], p[3]
	if a < 0 {
		a, phi = -a, phi+math.Pi
	}
	if f < 0 {
		f, phi = -f, -phi
	}
	phi = math.Mod(phi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return OscillationFit{Amplitude: a, Frequency: f, Phase: phi, Offset: offset}
}

// DecayFit holds the parameters of y(x) = a*exp(-x/tau) + offset.
type DecayFit struct {
	Amplitude float64
	Tau       float64
	Offset    float64
}

// Eval evaluates the fitted model at x.
func (d DecayFit) Eval(x float64) float64 {
	return d.Amplitude*math.Exp(-x/d.Tau) + d.Offset
}

// FitExponentialDecay fits y(x) = a*exp(-x/tau) + offset. The seed uses
// the tail value as the offset and a log-linear regression for tau, then
// a Levenberg-Marquardt refinement.
func FitExponentialDecay(x, y []float64) (DecayFit, error) {
	if len(x) != len(y) {
		return DecayFit{}, apperrors.NewFitError("", "x and y lengths differ: %d vs %d", len(x), len(y))
	}
	if len(x) < minDecayPoints {
		return DecayFit{}, apperrors.NewFitError("", "too few points: %d < %d", len(x), minDecayPoints)
	}

	offset := y[len(y)-1]
	a := y[0] - offset
	if math.Abs(a) < 1e-15 {
		return DecayFit{}, apperrors.NewFitError("", "flat trace, no decay amplitude")
	}

	// Log-linear regression over the points still clearly above the tail.
	var lx, ly []float64
	for i := range x {
		v := (y[i] - offset) / a
		if v > 1e-3 {
			lx = append(lx, x[i])
			ly = append(ly, math.Log(v))
		}
	}
	if len(lx) < 2 {
		return DecayFit{}, apperrors.NewFitError("", "too few points above the tail for a decay seed")
	}
	_, slope := stat.LinearRegression(lx, ly, nil, false)
	if slope >= 0 {
		return DecayFit{}, apperrors.NewFitError("", "trace does not decay (slope %g)", slope)
	}
	tau := -1 / slope

	p := [4]float64{a, tau, offset, 0}
	p, err := levenbergMarquardt(x, y, p, decayModel{})
	if err != nil {
		return DecayFit{}, err
	}
	if p[1] <= 0 {
		return DecayFit{}, apperrors.NewFitError("", "refined decay constant is not positive: %g", p[1])
	}
	return DecayFit{Amplitude: p[0], Tau: p[1], Offset: p[2]}, nil
}

// model describes a fit model with up to four parameters for the shared
// Levenberg-Marquardt loop.
type model interface {
	nparams() int
	eval(x float64, p [4]float64) float64
	jacobian(x float64, p [4]float64) [4]float64
}

type oscillationModel struct{}

func (oscillationModel) nparams() int { return 4 }

func (oscillationModel) eval(x float64, p [4]float64) float64 {
	return Oscillation(x, p[0], p[1], p[2], p[3])
}

func (oscillationModel) jacobian(x float64, p [4]float64) [4]float64 {
	arg := 2*math.Pi*p[1]*x + p[2]
	sin := math.Sin(arg)
	return [4]float64{
		math.Cos(arg),
		-p[0] * 2 * math.Pi * x * sin,
		-p[0] * sin,
		1,
	}
}

type decayModel struct{}

func (decayModel) nparams() int { return 3 }

func (decayModel) eval(x float64, p [4]float64) float64 {
	return p[0]*math.Exp(-x/p[1]) + p[2]
}

func (decayModel) jacobian(x float64, p [4]float64) [4]float64 {
	e := math.Exp(-x / p[1])
	return [4]float64{
		e,
		p[0] * x / (p[1] * p[1]) * e,
		1,
		0,
	}
}

// levenbergMarquardt refines p by iterating the damped normal equations
// (J'J + lambda*diag(J'J)) delta = J'r.
func levenbergMarquardt(x, y []float64, p [4]float64, m model) ([4]float64, error) {
	np := m.nparams()
	lambda := 1e-3
	cost := residualCost(x, y, p, m)

	for iter := 0; iter < lmMaxIterations; iter++ {
		jtj := mat.NewDense(np, np, nil)
		jtr := mat.NewVecDense(np, nil)
		for i := range x {
			r := y[i] - m.eval(x[i], p)
			jac := m.jacobian(x[i], p)
			for a := 0; a < np; a++ {
				jtr.SetVec(a, jtr.AtVec(a)+jac[a]*r)
				for b := 0; b < np; b++ {
					jtj.Set(a, b, jtj.At(a, b)+jac[a]*jac[b])
				}
			}
		}

		damped := mat.NewDense(np, np, nil)
		damped.Copy(jtj)
		for a := 0; a < np; a++ {
			damped.Set(a, a, jtj.At(a, a)*(1+lambda))
		}

		var delta mat.VecDense
		if err := delta.SolveVec(damped, jtr); err != nil {
			return p, apperrors.NewFitError("", "normal equations are singular: %v", err)
		}

		var trial [4]float64
		copy(trial[:], p[:])
		for a := 0; a < np; a++ {
			trial[a] = p[a] + delta.AtVec(a)
		}

		trialCost := residualCost(x, y, trial, m)
		if math.IsNaN(trialCost) || math.IsInf(trialCost, 0) {
			return p, apperrors.NewFitError("", "refinement diverged at iteration %d", iter)
		}

		if trialCost < cost {
			step := mat.Norm(&delta, 2)
			p, cost = trial, trialCost
			lambda = math.Max(lambda*0.5, 1e-12)
			if step < lmTolerance {
				break
			}
		} else {
			lambda *= 2
			if lambda > 1e12 {
				break
			}
		}
	}
	return p, nil
}

func residualCost(x, y []float64, p [4]float64, m model) float64 {
	var c float64
	for i := range x {
		r := y[i] - m.eval(x[i], p)
		c += r * r
	}
	return c
}

// PiAmplitudeFactor converts a fitted oscillation over an amplitude
// prefactor axis into the multiplicative correction that lands the pulse
// exactly on the pi rotation. The phase is normalized into (-pi/2, pi/2]
// by repeated pi subtraction so that the correction stays near unity
// rather than jumping by half a period: a trace starting at its minimum
// fits to a phase near pi, on either side of it depending on the noise,
// and both sides must map to the same factor.
func PiAmplitudeFactor(frequency, phase float64) (float64, error) {
	if frequency <= 0 {
		return 0, apperrors.NewFitError("", "oscillation frequency must be positive, got %g", frequency)
	}
	phase = math.Mod(phase, 2*math.Pi)
	if phase < 0 {
		phase += 2 * math.Pi
	}
	for phase > math.Pi/2 {
		phase -= math.Pi
	}
	return (math.Pi - phase) / (2 * math.Pi * frequency), nil
}

// Discrimination is the outcome of the two-state readout discriminator.
type Discrimination struct {
	// Angle rotates the I/Q plane so the ground-to-excited axis lies
	// along I.
	Angle float64
	// Threshold separates the rotated I means.
	Threshold float64
	// Fidelity[i][j] is the probability of assigning state j when state
	// i was prepared, with 0 = ground and 1 = excited.
	Fidelity [2][2]float64
}

// TwoStateDiscriminator derives the readout rotation angle, threshold
// and assignment fidelity matrix from ground- and excited-state
// preparation clouds.
func TwoStateDiscriminator(ig, qg, ie, qe []float64) (Discrimination, error) {
	if len(ig) == 0 || len(ie) == 0 {
		return Discrimination{}, apperrors.NewFitError("", "empty preparation cloud")
	}
	if len(ig) != len(qg) || len(ie) != len(qe) {
		return Discrimination{}, apperrors.NewFitError("", "I and Q cloud lengths differ")
	}

	mig, mqg := stat.Mean(ig, nil), stat.Mean(qg, nil)
	mie, mqe := stat.Mean(ie, nil), stat.Mean(qe, nil)

	angle := math.Atan2(mqe-mqg, mie-mig)
	cos, sin := math.Cos(-angle), math.Sin(-angle)
	rot := func(i, q float64) float64 { return i*cos - q*sin }

	rg, re := rot(mig, mqg), rot(mie, mqe)
	if rg == re {
		return Discrimination{}, apperrors.NewFitError("", "ground and excited clouds coincide")
	}
	threshold := (rg + re) / 2

	d := Discrimination{Angle: angle, Threshold: threshold}
	for k := range ig {
		if rot(ig[k], qg[k]) < threshold {
			d.Fidelity[0][0]++
		} else {
			d.Fidelity[0][1]++
		}
	}
	for k := range ie {
		if rot(ie[k], qe[k]) < threshold {
			d.Fidelity[1][0]++
		} else {
			d.Fidelity[1][1]++
		}
	}
	ng, ne := float64(len(ig)), float64(len(ie))
	d.Fidelity[0][0] /= ng
	d.Fidelity[0][1] /= ng
	d.Fidelity[1][0] /= ne
	d.Fidelity[1][1] /= ne
	return d, nil
}
