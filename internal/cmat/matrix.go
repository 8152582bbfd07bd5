// Package cmat provides the small dense complex matrices used per
// time-frequency cell: products, Hermitian transposes, LU-based inverse and
// determinant, and a general eigendecomposition.
//
// Matrices are tiny (channels x channels or rank x rank) and allocated per
// cell, so the API favours value-returning helpers over in-place kernels.
// Shape mismatches are programmer errors and panic with ErrShape.
package cmat

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

var (
	// ErrShape is raised when operand dimensions do not agree.
	ErrShape = errors.New("cmat: dimension mismatch")
	// ErrSingular is returned when an exactly zero pivot is met.
	ErrSingular = errors.New("cmat: matrix is singular")
	// ErrNoConvergence is returned when the eigen iteration exceeds its budget.
	ErrNoConvergence = errors.New("cmat: eigen decomposition did not converge")
)

// Dense is a row-major complex matrix.
type Dense struct {
	rows, cols int
	data       []complex128
}

// New returns an r x c matrix backed by data. A nil data allocates zeros.
func New(r, c int, data []complex128) *Dense {
	if r < 0 || c < 0 {
		panic(fmt.Errorf("cmat: negative dimension %dx%d: %w", r, c, ErrShape))
	}
	if data == nil {
		data = make([]complex128, r*c)
	}
	if len(data) != r*c {
		panic(fmt.Errorf("cmat: %d values for %dx%d: %w", len(data), r, c, ErrShape))
	}
	return &Dense{rows: r, cols: c, data: data}
}

// Zeros returns an r x c zero matrix.
func Zeros(r, c int) *Dense { return New(r, c, nil) }

// Identity returns the n x n identity.
func Identity(n int) *Dense {
	m := Zeros(n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

// Scaled returns s*I of order n.
func Scaled(n int, s float64) *Dense {
	m := Zeros(n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = complex(s, 0)
	}
	return m
}

// Filled returns an r x c matrix with every entry set to v.
func Filled(r, c int, v complex128) *Dense {
	m := Zeros(r, c)
	for i := range m.data {
		m.data[i] = v
	}
	return m
}

func (m *Dense) Dims() (int, int) { return m.rows, m.cols }

func (m *Dense) At(i, j int) complex128 { return m.data[i*m.cols+j] }

func (m *Dense) Set(i, j int, v complex128) { m.data[i*m.cols+j] = v }

// Clone returns a deep copy.
func (m *Dense) Clone() *Dense {
	d := make([]complex128, len(m.data))
	copy(d, m.data)
	return &Dense{rows: m.rows, cols: m.cols, data: d}
}

// H returns the conjugate transpose.
func (m *Dense) H() *Dense {
	t := Zeros(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			t.data[j*m.rows+i] = cmplx.Conj(m.data[i*m.cols+j])
		}
	}
	return t
}

// Trace returns the sum of the diagonal.
func (m *Dense) Trace() complex128 {
	var t complex128
	n := m.rows
	if m.cols < n {
		n = m.cols
	}
	for i := 0; i < n; i++ {
		t += m.data[i*m.cols+i]
	}
	return t
}

// Mul returns a*b.
func Mul(a, b *Dense) *Dense {
	if a.cols != b.rows {
		panic(fmt.Errorf("cmat: Mul %dx%d by %dx%d: %w", a.rows, a.cols, b.rows, b.cols, ErrShape))
	}
	c := Zeros(a.rows, b.cols)
	for i := 0; i < a.rows; i++ {
		for k := 0; k < a.cols; k++ {
			aik := a.data[i*a.cols+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < b.cols; j++ {
				c.data[i*c.cols+j] += aik * b.data[k*b.cols+j]
			}
		}
	}
	return c
}

// Add returns a+b.
func Add(a, b *Dense) *Dense {
	sameShape("Add", a, b)
	c := a.Clone()
	for i, v := range b.data {
		c.data[i] += v
	}
	return c
}

// Sub returns a-b.
func Sub(a, b *Dense) *Dense {
	sameShape("Sub", a, b)
	c := a.Clone()
	for i, v := range b.data {
		c.data[i] -= v
	}
	return c
}

// AddTo accumulates b into m.
func (m *Dense) AddTo(b *Dense) {
	sameShape("AddTo", m, b)
	for i, v := range b.data {
		m.data[i] += v
	}
}

// Scale returns s*m.
func (m *Dense) Scale(s complex128) *Dense {
	c := m.Clone()
	for i := range c.data {
		c.data[i] *= s
	}
	return c
}

// ScaleCols returns m*diag(d).
func ScaleCols(m *Dense, d []float64) *Dense {
	if len(d) != m.cols {
		panic(fmt.Errorf("cmat: ScaleCols %dx%d by %d: %w", m.rows, m.cols, len(d), ErrShape))
	}
	c := m.Clone()
	for i := 0; i < c.rows; i++ {
		for j := 0; j < c.cols; j++ {
			c.data[i*c.cols+j] *= complex(d[j], 0)
		}
	}
	return c
}

// Select returns the sub-matrix made of the given rows and columns.
// A nil index slice selects every row (or column).
func (m *Dense) Select(rows, cols []int) *Dense {
	if rows == nil {
		rows = seq(m.rows)
	}
	if cols == nil {
		cols = seq(m.cols)
	}
	s := Zeros(len(rows), len(cols))
	for i, r := range rows {
		for j, c := range cols {
			s.data[i*s.cols+j] = m.data[r*m.cols+c]
		}
	}
	return s
}

// SetCols copies the columns of src into the columns cols of m.
func (m *Dense) SetCols(cols []int, src *Dense) {
	if src.rows != m.rows || src.cols != len(cols) {
		panic(fmt.Errorf("cmat: SetCols %dx%d into %d columns of %dx%d: %w",
			src.rows, src.cols, len(cols), m.rows, m.cols, ErrShape))
	}
	for i := 0; i < m.rows; i++ {
		for j, c := range cols {
			m.data[i*m.cols+c] = src.data[i*src.cols+j]
		}
	}
}

// IsFinite reports whether no entry is NaN or infinite.
func (m *Dense) IsFinite() bool {
	for _, v := range m.data {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			return false
		}
	}
	return true
}

// IsHermitian reports whether m equals its conjugate transpose within tol.
func (m *Dense) IsHermitian(tol float64) bool {
	if m.rows != m.cols {
		return false
	}
	for i := 0; i < m.rows; i++ {
		for j := i; j < m.cols; j++ {
			if cmplx.Abs(m.At(i, j)-cmplx.Conj(m.At(j, i))) > tol {
				return false
			}
		}
	}
	return true
}

// EqualApprox reports whether a and b match entrywise within tol.
func EqualApprox(a, b *Dense, tol float64) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	for i, v := range a.data {
		if cmplx.Abs(v-b.data[i]) > tol {
			return false
		}
	}
	return true
}

// MaxAbs returns the largest entry modulus.
func (m *Dense) MaxAbs() float64 {
	var mx float64
	for _, v := range m.data {
		mx = math.Max(mx, cmplx.Abs(v))
	}
	return mx
}

func (m *Dense) String() string {
	return fmt.Sprintf("cmat.Dense(%dx%d)%v", m.rows, m.cols, m.data)
}

func sameShape(op string, a, b *Dense) {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Errorf("cmat: %s %dx%d and %dx%d: %w", op, a.rows, a.cols, b.rows, b.cols, ErrShape))
	}
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}
