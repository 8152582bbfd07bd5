package cmat

import (
	"fmt"
	"math/cmplx"
)

// LU holds a partial-pivoting factorization P*A = L*U packed in one matrix.
type LU struct {
	lu    *Dense
	piv   []int
	sign  float64
	zeros bool // an exactly zero pivot was met
}

// Factorize computes the LU factorization of the square matrix m.
func Factorize(m *Dense) *LU {
	if m.rows != m.cols {
		panic(fmt.Errorf("cmat: Factorize %dx%d: %w", m.rows, m.cols, ErrShape))
	}
	n := m.rows
	f := &LU{lu: m.Clone(), piv: seq(n), sign: 1}
	a := f.lu.data

	for k := 0; k < n; k++ {
		// Stage 1: pick the largest pivot in column k
		p := k
		best := cmplx.Abs(a[k*n+k])
		for i := k + 1; i < n; i++ {
			if v := cmplx.Abs(a[i*n+k]); v > best {
				p, best = i, v
			}
		}
		if p != k {
			for j := 0; j < n; j++ {
				a[k*n+j], a[p*n+j] = a[p*n+j], a[k*n+j]
			}
			f.piv[k], f.piv[p] = f.piv[p], f.piv[k]
			f.sign = -f.sign
		}
		if best == 0 {
			f.zeros = true
			continue
		}

		// Stage 2: eliminate below the pivot
		pivot := a[k*n+k]
		for i := k + 1; i < n; i++ {
			l := a[i*n+k] / pivot
			a[i*n+k] = l
			if l == 0 {
				continue
			}
			for j := k + 1; j < n; j++ {
				a[i*n+j] -= l * a[k*n+j]
			}
		}
	}
	return f
}

// Det returns the determinant of the factorized matrix.
func (f *LU) Det() complex128 {
	d := complex(f.sign, 0)
	n := f.lu.rows
	for i := 0; i < n; i++ {
		d *= f.lu.data[i*n+i]
	}
	return d
}

// Inverse returns the inverse of the factorized matrix.
func (f *LU) Inverse() (*Dense, error) {
	if f.zeros {
		return nil, ErrSingular
	}
	n := f.lu.rows
	a := f.lu.data
	inv := Zeros(n, n)
	col := make([]complex128, n)
	for c := 0; c < n; c++ {
		// permuted unit vector
		for i := 0; i < n; i++ {
			col[i] = 0
			if f.piv[i] == c {
				col[i] = 1
			}
		}
		// forward substitution with unit-lower L
		for i := 0; i < n; i++ {
			for k := 0; k < i; k++ {
				col[i] -= a[i*n+k] * col[k]
			}
		}
		// back substitution with U
		for i := n - 1; i >= 0; i-- {
			for k := i + 1; k < n; k++ {
				col[i] -= a[i*n+k] * col[k]
			}
			col[i] /= a[i*n+i]
		}
		for i := 0; i < n; i++ {
			inv.data[i*n+c] = col[i]
		}
	}
	return inv, nil
}

// Inverse returns the inverse of m or ErrSingular.
func Inverse(m *Dense) (*Dense, error) {
	return Factorize(m).Inverse()
}

// Det returns det(m).
func Det(m *Dense) complex128 {
	return Factorize(m).Det()
}
