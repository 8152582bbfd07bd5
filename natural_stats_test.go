package srcsep

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srcsep/internal/cmat"
)

func TestExpectationSingleChannel(t *testing.T) {
	srcs, err := NewSources([]*Source{constantSource(t, NewInstantaneous(column(1), Fixed), 1, 1, 1.5, Fixed)})
	require.NoError(t, err)
	rx := NewMixtureCovariance(1, 1, 1)
	rx.Set(0, 0, scalar(2))

	st, err := srcs.Expectation(rx, []*cmat.Dense{scalar(0.5)}, 1)
	require.NoError(t, err)

	// Sx = 2, W = 0.75
	assert.InDelta(t, 1.5, real(st.HatRs.At(0, 0).At(0, 0)), 1e-12)
	assert.InDelta(t, 1.5, real(st.HatRxs.At(0, 0).At(0, 0)), 1e-12)
	assert.InDelta(t, -(1+math.Log(2*math.Pi)), st.LogLikelihood, 1e-12)
}

func TestExpectationHermitian(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	s1 := excitationSource(t, NewInstantaneous(column(1, 0.3), Free), randomFactor(rng, 4, 2, Free), randomFactor(rng, 2, 3, Free))
	s2 := excitationSource(t, NewConvolutive([]*cmat.Dense{
		column(0.2, 1), column(0.1+0.2i, 1), column(0.5i, 0.7), column(1, 1i),
	}, Free, true), randomFactor(rng, 4, 1, Free), randomFactor(rng, 1, 3, Free))
	srcs, err := NewSources([]*Source{s1, s2})
	require.NoError(t, err)

	rx := NewMixtureCovariance(2, 4, 3)
	for f := 0; f < 4; f++ {
		for n := 0; n < 3; n++ {
			rx.Set(f, n, outer([]complex128{
				complex(rng.NormFloat64(), rng.NormFloat64()),
				complex(rng.NormFloat64(), rng.NormFloat64()),
			}))
		}
	}
	noise := NoiseSchedule([]float64{1, 1, 1, 1}, []float64{0.01, 0.01, 0.01, 0.01}, 0, 2, 2)

	st, err := srcs.Expectation(rx, noise, 3)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(st.LogLikelihood))
	for f := 0; f < 4; f++ {
		for n := 0; n < 3; n++ {
			rs := st.HatRs.At(f, n)
			r, c := rs.Dims()
			assert.Equal(t, 2, r)
			assert.Equal(t, 2, c)
			assert.True(t, rs.IsHermitian(1e-10), "cell (%d,%d)", f, n)
			for i := 0; i < 2; i++ {
				assert.Greater(t, real(rs.At(i, i)), 0.0)
			}
			r, c = st.HatRxs.At(f, n).Dims()
			assert.Equal(t, 2, r)
			assert.Equal(t, 2, c)
		}
	}
}

func TestExpectationChecksDimensions(t *testing.T) {
	srcs, err := NewSources([]*Source{constantSource(t, NewInstantaneous(column(1), Fixed), 2, 2, 1, Fixed)})
	require.NoError(t, err)

	_, err = srcs.Expectation(NewMixtureCovariance(1, 2, 3), []*cmat.Dense{scalar(1), scalar(1)}, 1)
	assert.ErrorIs(t, err, ErrInconsistentDimensions)
	_, err = srcs.Expectation(NewMixtureCovariance(1, 2, 2), []*cmat.Dense{scalar(1)}, 1)
	assert.ErrorIs(t, err, ErrInconsistentDimensions)
}

func TestExpectationSingularPropagates(t *testing.T) {
	srcs, err := NewSources([]*Source{constantSource(t, NewInstantaneous(column(1, 1), Fixed), 1, 1, 1, Fixed)})
	require.NoError(t, err)
	rx := NewMixtureCovariance(2, 1, 1)

	// rank-one model covariance with no noise cannot be inverted
	st, err := srcs.Expectation(rx, []*cmat.Dense{cmat.Zeros(2, 2)}, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(st.LogLikelihood))
	assert.False(t, st.HatRs.At(0, 0).IsFinite())
}
