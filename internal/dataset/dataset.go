// Package dataset assembles named-axis result datasets from raw execution
// buffers. A Dataset carries one sweep coordinate shared by every variable
// and a set of per-qubit variables ("I", "Q", "state", labelled variants
// like "I_g", and derived quantities such as "IQ_abs" and "bloch").
package dataset

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"

	"github.com/qhlab/qcal/internal/driver"
	"github.com/qhlab/qcal/internal/sequence"
)

// NotFoundError reports a lookup of a qubit or variable the dataset does
// not contain.
type NotFoundError struct {
	Kind string // "qubit" or "variable"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset: no %s %q", e.Kind, e.Name)
}

// Dataset holds per-qubit result series over a single named sweep axis.
type Dataset struct {
	axisName string
	axisUnit string
	axis     []float64

	qubits []string
	vars   map[string]map[string][]float64
}

// FromResult maps execution buffers back onto qubits and variable names
// using the program's stream declarations. A stream named "I_g1" on the
// first section becomes variable "I_g" of that section's qubit.
func FromResult(prog *sequence.Program, res *driver.Result) (*Dataset, error) {
	n := len(res.SweepValues)
	if n == 0 {
		return nil, fmt.Errorf("dataset: result has no sweep values")
	}

	d := &Dataset{
		axisName: prog.Sweep.Name,
		axisUnit: prog.Sweep.Unit,
		axis:     append([]float64(nil), res.SweepValues...),
		vars:     make(map[string]map[string][]float64),
	}
	for _, sec := range prog.Sections {
		d.qubits = append(d.qubits, sec.Qubit)
		d.vars[sec.Qubit] = make(map[string][]float64)
	}

	for _, st := range prog.Streams {
		buf := res.Buffer(st.Name)
		if buf == nil {
			return nil, fmt.Errorf("dataset: result is missing stream %q", st.Name)
		}
		if len(buf) != n {
			return nil, fmt.Errorf("dataset: stream %q has %d points, sweep has %d",
				st.Name, len(buf), n)
		}
		qv, ok := d.vars[st.Qubit]
		if !ok {
			return nil, &NotFoundError{Kind: "qubit", Name: st.Qubit}
		}
		qv[varName(st.Name)] = append([]float64(nil), buf...)
	}
	return d, nil
}

// varName strips the trailing section index from a stream name.
func varName(stream string) string {
	return strings.TrimRightFunc(stream, unicode.IsDigit)
}

// AxisName returns the sweep coordinate name.
func (d *Dataset) AxisName() string { return d.axisName }

// AxisUnit returns the sweep coordinate unit.
func (d *Dataset) AxisUnit() string { return d.axisUnit }

// AxisValues returns the sweep coordinate values.
func (d *Dataset) AxisValues() []float64 { return d.axis }

// Qubits returns the qubit names in section order.
func (d *Dataset) Qubits() []string { return d.qubits }

// AssignCoord replaces the sweep coordinate, e.g. turning an amplitude
// prefactor axis into absolute volts. The value count must match.
func (d *Dataset) AssignCoord(name, unit string, values []float64) error {
	if len(values) != len(d.axis) {
		return fmt.Errorf("dataset: coordinate %q has %d values, axis has %d",
			name, len(values), len(d.axis))
	}
	d.axisName = name
	d.axisUnit = unit
	d.axis = append([]float64(nil), values...)
	return nil
}

// AssignIQAbs derives "IQ_abs" = sqrt(I^2 + Q^2) for every qubit carrying
// an I/Q pair with the given label ("" for the unlabelled pair).
func (d *Dataset) AssignIQAbs(label string) error {
	suffix := ""
	if label != "" {
		suffix = "_" + label
	}
	for _, q := range d.qubits {
		qv := d.vars[q]
		is, iok := qv["I"+suffix]
		qs, qok := qv["Q"+suffix]
		if !iok || !qok {
			return &NotFoundError{Kind: "variable", Name: "I" + suffix + "/Q" + suffix}
		}
		abs := make([]float64, len(is))
		for k := range is {
			abs[k] = math.Hypot(is[k], qs[k])
		}
		qv["IQ_abs"+suffix] = abs
	}
	return nil
}

// ConvertIQToV rescales every I/Q variable from demodulation units to
// volts using the readout window length.
func (d *Dataset) ConvertIQToV(readoutLengthNs float64) error {
	if readoutLengthNs <= 0 {
		return fmt.Errorf("dataset: readout length must be positive, got %g", readoutLengthNs)
	}
	scale := 4096.0 / readoutLengthNs
	for _, qv := range d.vars {
		for name, series := range qv {
			if strings.HasPrefix(name, "I") || strings.HasPrefix(name, "Q") {
				floats.Scale(scale, series)
			}
		}
	}
	return nil
}

// AssignBloch derives "bloch" = -2*state + 1 for every qubit carrying a
// "state" variable. Qubits without one are left untouched.
func (d *Dataset) AssignBloch() {
	for _, qv := range d.vars {
		st, ok := qv["state"]
		if !ok {
			continue
		}
		bloch := make([]float64, len(st))
		for k, s := range st {
			bloch[k] = -2*s + 1
		}
		qv["bloch"] = bloch
	}
}

// QubitSlice returns one qubit's series for a variable.
func (d *Dataset) QubitSlice(qubit, variable string) ([]float64, error) {
	qv, ok := d.vars[qubit]
	if !ok {
		return nil, &NotFoundError{Kind: "qubit", Name: qubit}
	}
	series, ok := qv[variable]
	if !ok {
		return nil, &NotFoundError{Kind: "variable", Name: variable}
	}
	return series, nil
}
