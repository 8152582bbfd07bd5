package cmat

import (
	"fmt"
	"math"
	"math/cmplx"
)

const (
	epsilon = 2.220446049250313e-16
	// maxSweeps bounds the QR steps spent on a single eigenvalue.
	maxSweeps = 60
)

// Eigen computes the eigenvalues and right eigenvectors of a general square
// complex matrix, so that m*V = V*diag(values). Eigenvectors are the columns
// of V, each with unit 2-norm.
//
// The matrix is reduced to upper-triangular Schur form T = Q^H m Q by shifted
// QR iteration; eigenvectors of T come from back substitution and are mapped
// back through Q.
func Eigen(m *Dense) ([]complex128, *Dense, error) {
	// Stage 1: validate and handle trivial orders
	if m.rows != m.cols {
		return nil, nil, fmt.Errorf("Eigen: non-square %dx%d: %w", m.rows, m.cols, ErrShape)
	}
	n := m.rows
	if !m.IsFinite() {
		return nil, nil, fmt.Errorf("Eigen: non-finite input: %w", ErrNoConvergence)
	}
	if n == 0 {
		return nil, Zeros(0, 0), nil
	}

	// Stage 2: Schur reduction
	t, q, err := schur(m)
	if err != nil {
		return nil, nil, err
	}
	values := make([]complex128, n)
	for i := 0; i < n; i++ {
		values[i] = t.At(i, i)
	}

	// Stage 3: eigenvectors of T, mapped back through Q
	y := triangularVectors(t)
	v := Mul(q, y)
	for c := 0; c < n; c++ {
		var norm float64
		for r := 0; r < n; r++ {
			norm = math.Hypot(norm, cmplx.Abs(v.At(r, c)))
		}
		if norm == 0 {
			continue
		}
		for r := 0; r < n; r++ {
			v.Set(r, c, v.At(r, c)/complex(norm, 0))
		}
	}
	return values, v, nil
}

// schur returns T upper triangular and Q unitary with m = Q T Q^H.
func schur(m *Dense) (*Dense, *Dense, error) {
	n := m.rows
	t := m.Clone()
	q := Identity(n)
	scale := t.MaxAbs()
	if scale == 0 {
		return t, q, nil
	}
	tol := epsilon * scale * float64(n)

	hi := n - 1
	sweeps := 0
	for hi > 0 {
		var off float64
		for j := 0; j < hi; j++ {
			off = math.Max(off, cmplx.Abs(t.At(hi, j)))
		}
		if off <= tol {
			for j := 0; j < hi; j++ {
				t.Set(hi, j, 0)
			}
			hi--
			sweeps = 0
			continue
		}
		if sweeps >= maxSweeps {
			return nil, nil, fmt.Errorf("Eigen: %d sweeps at order %d: %w", sweeps, hi+1, ErrNoConvergence)
		}
		sweeps++

		mu := wilkinson(t.At(hi-1, hi-1), t.At(hi-1, hi), t.At(hi, hi-1), t.At(hi, hi))
		if sweeps%10 == 0 {
			// exceptional shift to break cycles
			mu = t.At(hi, hi) + complex(off, 0)
		}
		qrStep(t, q, hi+1, mu)
	}
	return t, q, nil
}

// wilkinson returns the eigenvalue of [[a b] [c d]] closest to d.
func wilkinson(a, b, c, d complex128) complex128 {
	half := (a + d) / 2
	disc := cmplx.Sqrt((a-d)*(a-d)/4 + b*c)
	l1, l2 := half+disc, half-disc
	if cmplx.Abs(l1-d) < cmplx.Abs(l2-d) {
		return l1
	}
	return l2
}

// qrStep performs one shifted QR step on the leading s x s window of t and
// accumulates the similarity into q.
func qrStep(t, q *Dense, s int, mu complex128) {
	n := t.rows

	// R = T[:s,:s] - mu*I, reduced by Householder reflectors
	r := t.Select(seq(s), seq(s))
	for i := 0; i < s; i++ {
		r.data[i*s+i] -= mu
	}
	reflectors := make([][]complex128, 0, s-1)
	for k := 0; k < s-1; k++ {
		v := householder(r, k)
		reflectors = append(reflectors, v)
		if v == nil {
			continue
		}
		applyLeft(r, v, k, 0, s)
	}

	// T[:s,:s] = R*Qk + mu*I
	for k, v := range reflectors {
		if v != nil {
			applyRight(r, v, k, s)
		}
	}
	for i := 0; i < s; i++ {
		r.data[i*s+i] += mu
		for j := 0; j < s; j++ {
			t.data[i*n+j] = r.data[i*s+j]
		}
	}

	// T[:s,s:] = Qk^H T[:s,s:] and Q[:, :s] = Q[:, :s] Qk
	for k, v := range reflectors {
		if v == nil {
			continue
		}
		applyLeft(t, v, k, s, n)
		applyRight(q, v, k, q.rows)
	}
}

// householder returns a unit vector v such that (I - 2vv^H) zeroes column k
// of r below row k, or nil when it is already zero.
func householder(r *Dense, k int) []complex128 {
	s := r.rows
	var norm, below float64
	for i := k; i < s; i++ {
		norm = math.Hypot(norm, cmplx.Abs(r.At(i, k)))
		if i > k {
			below = math.Max(below, cmplx.Abs(r.At(i, k)))
		}
	}
	if below == 0 {
		return nil
	}
	x0 := r.At(k, k)
	phase := complex(1, 0)
	if x0 != 0 {
		phase = x0 / complex(cmplx.Abs(x0), 0)
	}
	alpha := -phase * complex(norm, 0)

	v := make([]complex128, s-k)
	for i := k; i < s; i++ {
		v[i-k] = r.At(i, k)
	}
	v[0] -= alpha
	var vn float64
	for _, e := range v {
		vn = math.Hypot(vn, cmplx.Abs(e))
	}
	for i := range v {
		v[i] /= complex(vn, 0)
	}
	return v
}

// applyLeft replaces rows k.. of m, restricted to columns [c0,c1), by H*m.
func applyLeft(m *Dense, v []complex128, k, c0, c1 int) {
	for j := c0; j < c1; j++ {
		var dot complex128
		for i, e := range v {
			dot += cmplx.Conj(e) * m.At(k+i, j)
		}
		dot *= 2
		for i, e := range v {
			m.Set(k+i, j, m.At(k+i, j)-e*dot)
		}
	}
}

// applyRight replaces columns k.. of m, restricted to the first rows rows,
// by m*H.
func applyRight(m *Dense, v []complex128, k, rows int) {
	for i := 0; i < rows; i++ {
		var dot complex128
		for j, e := range v {
			dot += m.At(i, k+j) * e
		}
		dot *= 2
		for j, e := range v {
			m.Set(i, k+j, m.At(i, k+j)-dot*cmplx.Conj(e))
		}
	}
}

// triangularVectors returns the eigenvectors of the upper-triangular t as
// columns of an upper-triangular matrix.
func triangularVectors(t *Dense) *Dense {
	n := t.rows
	small := epsilon * t.MaxAbs()
	if small == 0 {
		small = math.SmallestNonzeroFloat64
	}
	y := Zeros(n, n)
	for k := 0; k < n; k++ {
		lambda := t.At(k, k)
		y.Set(k, k, 1)
		for i := k - 1; i >= 0; i-- {
			var s complex128
			for j := i + 1; j <= k; j++ {
				s += t.At(i, j) * y.At(j, k)
			}
			d := t.At(i, i) - lambda
			if cmplx.Abs(d) < small {
				d = complex(small, 0)
			}
			y.Set(i, k, -s/d)
		}
	}
	return y
}
