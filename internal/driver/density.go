package driver

import (
	"math"
	"math/cmplx"
)

// density is a 3-level (g, e, f) density matrix. The simulator evolves one
// per qubit: drive pulses apply subspace rotations, waits dephase the
// off-diagonal coherences, thermalization resets to the ground state.
type density [3][3]complex128

// groundState returns a density matrix fully in |g>.
func groundState() density {
	var rho density
	rho[0][0] = 1
	return rho
}

// rotate applies a resonant rotation by angle theta about the equatorial axis
// at angle phi, restricted to the (i, j) two-level subspace.
func (rho *density) rotate(i, j int, theta, phi float64) {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	uij := -1i * s * cmplx.Exp(complex(0, -phi))
	uji := -1i * s * cmplx.Exp(complex(0, phi))

	var u [3][3]complex128
	for k := 0; k < 3; k++ {
		u[k][k] = 1
	}
	u[i][i], u[j][j] = c, c
	u[i][j], u[j][i] = uij, uji

	// rho' = U rho U†
	var tmp [3][3]complex128
	for r := 0; r < 3; r++ {
		for cc := 0; cc < 3; cc++ {
			var sum complex128
			for k := 0; k < 3; k++ {
				sum += u[r][k] * rho[k][cc]
			}
			tmp[r][cc] = sum
		}
	}
	for r := 0; r < 3; r++ {
		for cc := 0; cc < 3; cc++ {
			var sum complex128
			for k := 0; k < 3; k++ {
				sum += tmp[r][k] * cmplx.Conj(u[cc][k])
			}
			rho[r][cc] = sum
		}
	}
}

// dephase damps all coherences by the given factor (0..1), leaving
// populations untouched. Pure dephasing is not refocused by an echo, so a
// swept echo sequence decays as exp(-2t/T2).
func (rho *density) dephase(factor float64) {
	f := complex(factor, 0)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if r != c {
				rho[r][c] *= f
			}
		}
	}
}

// populations returns the diagonal occupation probabilities (g, e, f).
func (rho *density) populations() [3]float64 {
	return [3]float64{
		real(rho[0][0]),
		real(rho[1][1]),
		real(rho[2][2]),
	}
}
