package srcsep

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srcsep/internal/cmat"
)

func TestSeparateSingleSourceIsIdentity(t *testing.T) {
	srcs, err := NewSources([]*Source{constantSource(t, NewInstantaneous(column(1), Fixed), 9, 8, 1, Fixed)})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(8))
	x := randomAudio(rng, 1, 64)
	out, err := srcs.Separate(x, newTestSTFT(t, 16), 2)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDeltaSlice(t, x.Channels[0], out[0].Channels[0], 1e-9)
}

func TestWienerGainsSumToIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	srcs := twoSourceModel(t, rng)

	gains, err := srcs.WienerGains(3)
	require.NoError(t, err)
	require.Len(t, gains, 2)
	id := cmat.Identity(2)
	for n := 0; n < srcs.Frames(); n++ {
		for f := 0; f < srcs.Bins(); f++ {
			sum := gains[0].At(f, n).Clone()
			sum.AddTo(gains[1].At(f, n))
			assert.True(t, cmat.EqualApprox(id, sum, 1e-9), "cell (%d,%d): %v", f, n, sum)
		}
	}
}

func TestWienerGainsFloor(t *testing.T) {
	quiet := constantSource(t, NewInstantaneous(column(1), Fixed), 2, 3, 1, Fixed)
	loud := constantSource(t, NewInstantaneous(column(1), Fixed), 2, 3, 9, Fixed)
	quiet.Wiener.Floor = 0.2
	srcs, err := NewSources([]*Source{quiet, loud})
	require.NoError(t, err)

	gains, err := srcs.WienerGains(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, real(gains[0].At(1, 2).At(0, 0)), 1e-12)
	assert.InDelta(t, 0.9, real(gains[1].At(1, 2).At(0, 0)), 1e-12)
}

func TestWienerGainsGain(t *testing.T) {
	a := constantSource(t, NewInstantaneous(column(1), Fixed), 1, 1, 1, Fixed)
	b := constantSource(t, NewInstantaneous(column(1), Fixed), 1, 1, 1, Fixed)
	a.Wiener.Gain = 3
	srcs, err := NewSources([]*Source{a, b})
	require.NoError(t, err)

	gains, err := srcs.WienerGains(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, real(gains[0].At(0, 0).At(0, 0)), 1e-12)
}

func TestFloorEigenvalues(t *testing.T) {
	g := cmat.New(2, 2, []complex128{1, 1, 0, 1e-3})
	got, err := floorEigenvalues(g, 0.01)
	require.NoError(t, err)

	tr := got.Trace()
	det := cmat.Det(got)
	assert.InDelta(t, 1.01, real(tr), 1e-9)
	assert.InDelta(t, 0, imag(tr), 1e-9)
	assert.InDelta(t, 0.01, real(det), 1e-9)

	// nothing below the floor leaves g unchanged
	same, err := floorEigenvalues(g, 1e-4)
	require.NoError(t, err)
	assert.True(t, cmat.EqualApprox(g, same, 1e-9))
}

func TestSmoothedV(t *testing.T) {
	src := constantSource(t, NewInstantaneous(column(1), Fixed), 5, 7, 1, Fixed)
	src.Wiener.TimeSmoothing = 1
	v, err := src.smoothedV()
	require.NoError(t, err)

	// kernel 1/4, 1/2, 1/4 with zeros beyond the edges
	for f := 0; f < 5; f++ {
		assert.InDelta(t, 0.75, v.At(f, 0), 1e-12)
		assert.InDelta(t, 1, v.At(f, 3), 1e-12)
		assert.InDelta(t, 0.75, v.At(f, 6), 1e-12)
	}
	assert.Equal(t, 1.0, src.V().At(0, 0))

	src.Wiener.TimeSmoothing = 0
	src.Wiener.FreqSmoothing = 1
	v, err = src.smoothedV()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v.At(0, 2), 1e-12)
	assert.InDelta(t, 1, v.At(2, 2), 1e-12)
}

func TestSmoothingKernel(t *testing.T) {
	assert.Equal(t, []float64{1}, smoothingKernel(0))
	assert.InDeltaSlice(t, []float64{0.25, 0.5, 0.25}, smoothingKernel(1), 1e-15)
}

func TestSeparateChecksDimensions(t *testing.T) {
	srcs, err := NewSources([]*Source{constantSource(t, NewInstantaneous(column(1), Fixed), 9, 8, 1, Fixed)})
	require.NoError(t, err)
	s := newTestSTFT(t, 16)

	_, err = srcs.Separate(NewAudio(2, 64, 8000), s, 1)
	assert.ErrorIs(t, err, ErrInconsistentDimensions)
	_, err = srcs.Separate(NewAudio(1, 30, 8000), s, 1)
	assert.ErrorIs(t, err, ErrInconsistentDimensions)
	_, err = srcs.Separate(NewAudio(1, 64, 8000), newTestSTFT(t, 8), 1)
	assert.ErrorIs(t, err, ErrInconsistentDimensions)
}

func TestCrossTalk(t *testing.T) {
	m := crossTalk(3, 0.25)
	assert.Equal(t, complex128(1), m.At(1, 1))
	assert.Equal(t, complex128(0.25), m.At(0, 2))
}
