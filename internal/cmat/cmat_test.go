package cmat_test

import (
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srcsep/internal/cmat"
)

func randomMatrix(rng *rand.Rand, n int) *cmat.Dense {
	m := cmat.Zeros(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, complex(rng.NormFloat64(), rng.NormFloat64()))
		}
	}
	return m
}

func TestMulAndH(t *testing.T) {
	a := cmat.New(2, 3, []complex128{1, 2i, 3, 0, 1 - 1i, 2})
	b := cmat.New(3, 1, []complex128{1, 1, 1})
	c := cmat.Mul(a, b)
	r, k := c.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, k)
	assert.Equal(t, complex(4, 2), c.At(0, 0))
	assert.Equal(t, complex(3, -1), c.At(1, 0))

	h := a.H()
	assert.Equal(t, complex(0, -2), h.At(1, 0))
	assert.Equal(t, complex(1, 1), h.At(1, 1))

	assert.Panics(t, func() { cmat.Mul(a, a) })
}

func TestSelectAndSetCols(t *testing.T) {
	m := cmat.New(2, 3, []complex128{1, 2, 3, 4, 5, 6})
	s := m.Select(nil, []int{2, 0})
	assert.Equal(t, []complex128{3, 1, 6, 4}, []complex128{s.At(0, 0), s.At(0, 1), s.At(1, 0), s.At(1, 1)})

	m.SetCols([]int{1}, cmat.New(2, 1, []complex128{7, 8}))
	assert.Equal(t, complex128(7), m.At(0, 1))
	assert.Equal(t, complex128(8), m.At(1, 1))
}

func TestInverseAndDet(t *testing.T) {
	m := cmat.New(2, 2, []complex128{2, 1i, -1i, 3})
	assert.InDelta(t, 5.0, real(cmat.Det(m)), 1e-12)

	inv, err := cmat.Inverse(m)
	require.NoError(t, err)
	assert.True(t, cmat.EqualApprox(cmat.Mul(m, inv), cmat.Identity(2), 1e-12))

	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 5; n++ {
		a := randomMatrix(rng, n)
		ai, err := cmat.Inverse(a)
		require.NoError(t, err)
		assert.True(t, cmat.EqualApprox(cmat.Mul(ai, a), cmat.Identity(n), 1e-9), "order %d", n)
	}
}

func TestInverseSingular(t *testing.T) {
	m := cmat.New(2, 2, []complex128{1, 2, 2, 4})
	_, err := cmat.Inverse(m)
	assert.ErrorIs(t, err, cmat.ErrSingular)
	assert.Equal(t, complex128(0), cmat.Det(cmat.Zeros(3, 3)))
}

func TestEigenDiagonal(t *testing.T) {
	m := cmat.New(3, 3, []complex128{2, 0, 0, 0, -1i, 0, 0, 0, 5})
	values, vectors, err := cmat.Eigen(m)
	require.NoError(t, err)
	assert.ElementsMatch(t, []complex128{2, -1i, 5}, values)
	checkEigenPairs(t, m, values, vectors)
}

func TestEigenIdentity(t *testing.T) {
	values, vectors, err := cmat.Eigen(cmat.Identity(3))
	require.NoError(t, err)
	for _, v := range values {
		assert.InDelta(t, 1.0, real(v), 1e-14)
	}
	assert.True(t, cmat.EqualApprox(vectors, cmat.Identity(3), 1e-14))
}

func TestEigenGeneral(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for n := 1; n <= 6; n++ {
		m := randomMatrix(rng, n)
		values, vectors, err := cmat.Eigen(m)
		require.NoError(t, err, "order %d", n)
		require.Len(t, values, n)
		checkEigenPairs(t, m, values, vectors)

		// V diag(values) inv(V) rebuilds m
		vi, err := cmat.Inverse(vectors)
		require.NoError(t, err)
		d := cmat.Zeros(n, n)
		for i, v := range values {
			d.Set(i, i, v)
		}
		back := cmat.Mul(cmat.Mul(vectors, d), vi)
		assert.True(t, cmat.EqualApprox(back, m, 1e-8), "order %d", n)
	}
}

func TestEigenHermitian(t *testing.T) {
	m := cmat.New(2, 2, []complex128{2, 1 + 1i, 1 - 1i, 3})
	values, vectors, err := cmat.Eigen(m)
	require.NoError(t, err)
	for _, v := range values {
		assert.InDelta(t, 0.0, imag(v), 1e-12)
	}
	// eigenvalues of this matrix are 1 and 4
	sum := values[0] + values[1]
	prod := values[0] * values[1]
	assert.InDelta(t, 5.0, real(sum), 1e-12)
	assert.InDelta(t, 4.0, real(prod), 1e-12)
	checkEigenPairs(t, m, values, vectors)
}

func TestEigenRejectsNaN(t *testing.T) {
	m := cmat.Filled(2, 2, cmplx.NaN())
	_, _, err := cmat.Eigen(m)
	assert.ErrorIs(t, err, cmat.ErrNoConvergence)
}

func checkEigenPairs(t *testing.T, m *cmat.Dense, values []complex128, vectors *cmat.Dense) {
	t.Helper()
	n, _ := m.Dims()
	for k, lambda := range values {
		col := vectors.Select(nil, []int{k})
		lhs := cmat.Mul(m, col)
		rhs := col.Scale(lambda)
		assert.True(t, cmat.EqualApprox(lhs, rhs, 1e-8*float64(n)), "pair %d: %v vs %v", k, lhs, rhs)
	}
}
