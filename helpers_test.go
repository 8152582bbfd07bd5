package srcsep

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"srcsep/internal/cmat"
)

func factor(rows, cols int, adapt Adaptability, vals ...float64) NonnegativeFactor {
	return NonnegativeFactor{Factor: DenseFactor(mat.NewDense(rows, cols, vals)), Adaptability: adapt}
}

func identity(adapt Adaptability) NonnegativeFactor {
	return NonnegativeFactor{Factor: IdentityFactor(), Adaptability: adapt}
}

func randomFactor(rng *rand.Rand, rows, cols int, adapt Adaptability) NonnegativeFactor {
	vals := make([]float64, rows*cols)
	for i := range vals {
		vals[i] = 0.1 + rng.Float64()
	}
	return factor(rows, cols, adapt, vals...)
}

// column returns an I x 1 mixing matrix.
func column(vals ...complex128) *cmat.Dense {
	return cmat.New(len(vals), 1, vals)
}

// excitationSource builds a rank-1 excitation-only source V = W*H.
func excitationSource(t *testing.T, a *MixingParameter, w, h NonnegativeFactor) *Source {
	t.Helper()
	ex := SpectralPower{W: w, U: identity(Fixed), G: identity(Fixed), H: h}
	s, err := NewSource("", a, ex, nil, DefaultWienerParams())
	require.NoError(t, err)
	return s
}

// constantSource builds a source with V(f,n) = v everywhere.
func constantSource(t *testing.T, a *MixingParameter, bins, frames int, v float64, adapt Adaptability) *Source {
	t.Helper()
	w := make([]float64, bins)
	for i := range w {
		w[i] = v
	}
	h := make([]float64, frames)
	for i := range h {
		h[i] = 1
	}
	return excitationSource(t, a, factor(bins, 1, adapt, w...), factor(1, frames, adapt, h...))
}

func randomAudio(rng *rand.Rand, channels, samples int) Audio {
	x := NewAudio(channels, samples, 8000)
	for _, ch := range x.Channels {
		for i := range ch {
			ch[i] = rng.Float64()*2 - 1
		}
	}
	return x
}
