package srcsep

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestFactorIdentity(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	a := DenseFactor(m)
	id := IdentityFactor()

	assert.True(t, id.IsIdentity())
	assert.Same(t, m, id.Mul(a).Dense())
	assert.Same(t, m, a.Mul(id).Dense())
	assert.True(t, id.T().IsIdentity())
	assert.True(t, id.Mul(id).IsIdentity())

	r, c := a.T().Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 4.0, a.T().Dense().At(0, 1))
}

func TestFactorMul(t *testing.T) {
	a := DenseFactor(mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	b := DenseFactor(mat.NewDense(2, 1, []float64{1, 1}))
	p := a.Mul(b).Dense()
	assert.Equal(t, 3.0, p.At(0, 0))
	assert.Equal(t, 7.0, p.At(1, 0))
}

func TestSpectralPowerDims(t *testing.T) {
	sp := SpectralPower{
		W: factor(4, 2, Free, 1, 1, 1, 1, 1, 1, 1, 1),
		U: identity(Fixed),
		G: identity(Fixed),
		H: factor(2, 3, Free, 1, 1, 1, 1, 1, 1),
	}
	assert.Equal(t, 4, sp.Bins())
	assert.Equal(t, 3, sp.Frames())
	r, c := sp.V().Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 3, c)

	empty := SpectralPower{W: identity(Free), U: identity(Free), G: identity(Free), H: identity(Free)}
	assert.Equal(t, 0, empty.Bins())
	assert.Equal(t, 0, empty.Frames())
	assert.True(t, empty.V().IsIdentity())
}

func TestSpectralPowerInnerDimensions(t *testing.T) {
	tests := []struct {
		name string
		sp   SpectralPower
		ok   bool
	}{
		{"W x H", SpectralPower{W: factor(2, 2, Free, 1, 1, 1, 1), U: identity(Fixed), G: identity(Fixed),
			H: factor(3, 2, Free, 1, 1, 1, 1, 1, 1)}, false},
		{"across identity", SpectralPower{W: factor(2, 1, Free, 1, 1), U: identity(Fixed),
			G: factor(2, 2, Free, 1, 1, 1, 1), H: identity(Fixed)}, false},
		{"chain", SpectralPower{W: factor(2, 1, Free, 1, 1), U: identity(Fixed),
			G: factor(1, 2, Free, 1, 1), H: factor(2, 3, Free, 1, 1, 1, 1, 1, 1)}, true},
		{"single", SpectralPower{W: identity(Fixed), U: identity(Fixed),
			G: identity(Fixed), H: factor(2, 3, Free, 1, 1, 1, 1, 1, 1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sp.validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInconsistentDimensions)
		})
	}
}

func TestUpdateKeepsNonnegativity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sp := SpectralPower{
		W: randomFactor(rng, 6, 3, Free),
		U: randomFactor(rng, 3, 3, Free),
		G: randomFactor(rng, 3, 2, Free),
		H: randomFactor(rng, 2, 5, Free),
	}
	xi := mat.NewDense(6, 5, nil)
	e := mat.NewDense(6, 5, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 5; j++ {
			xi.Set(i, j, rng.Float64()*3)
			e.Set(i, j, 0.5+rng.Float64())
		}
	}
	for it := 0; it < 10; it++ {
		sp.Update(xi, e)
		sp.Update(xi, nil)
	}
	for _, f := range sp.factors() {
		r, c := f.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				assert.GreaterOrEqual(t, f.Dense().At(i, j), 0.0)
			}
		}
	}
}

func TestUpdateFixedPoint(t *testing.T) {
	sp := SpectralPower{
		W: factor(2, 1, Free, 2, 3),
		U: identity(Free),
		G: identity(Free),
		H: factor(1, 2, Free, 1, 4),
	}
	// xi == V: every ratio is 1
	xi := mat.DenseCopyOf(sp.V().Dense())
	sp.Update(xi, nil)
	assert.InDelta(t, 2.0, sp.W.Dense().At(0, 0), 1e-12)
	assert.InDelta(t, 3.0, sp.W.Dense().At(1, 0), 1e-12)
	assert.InDelta(t, 4.0, sp.H.Dense().At(0, 1), 1e-12)
	assert.True(t, sp.U.IsIdentity())
	assert.True(t, sp.G.IsIdentity())
}

func TestUpdateSkipsFixed(t *testing.T) {
	sp := SpectralPower{
		W: factor(2, 1, Fixed, 1, 1),
		U: identity(Fixed),
		G: identity(Fixed),
		H: factor(1, 2, Free, 1, 1),
	}
	xi := mat.NewDense(2, 2, []float64{2, 4, 2, 4})
	sp.Update(xi, nil)
	assert.Equal(t, 1.0, sp.W.Dense().At(0, 0))
	assert.Equal(t, 1.0, sp.W.Dense().At(1, 0))
	// single-column W: H(0,n) solves sum_f xi/h^2 = sum_f 1/h in one step
	assert.InDelta(t, 2.0, sp.H.Dense().At(0, 0), 1e-12)
	assert.InDelta(t, 4.0, sp.H.Dense().At(0, 1), 1e-12)
}
