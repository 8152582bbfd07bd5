package srcsep

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srcsep/internal/cmat"
)

func newTestSTFT(t *testing.T, wlen int) *STFT {
	t.Helper()
	s, err := NewSTFT(wlen)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSTFTDims(t *testing.T) {
	s := newTestSTFT(t, 4)
	assert.Equal(t, 3, s.Bins())
	assert.Equal(t, 4, s.Frames(8))
	assert.Equal(t, 5, s.Frames(9))

	for _, wlen := range []int{0, -4, 6, 10} {
		_, err := NewSTFT(wlen)
		assert.ErrorIs(t, err, ErrBadWindow, "wlen %d", wlen)
	}
}

func TestNewTransform(t *testing.T) {
	tr, err := NewTransform(Config{TFR: TFRSTFT, WindowLength: 8})
	require.NoError(t, err)
	assert.Equal(t, 5, tr.Bins())
	tr.Close()

	tr, err = NewTransform(Config{TFR: TFRERB, WindowLength: 8, Bins: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, tr.Bins())
	assert.Equal(t, 4, tr.Frames(16))
	tr.Close()
	_, err = NewTransform(Config{TFR: TFRERB, WindowLength: 8})
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = NewTransform(Config{TFR: "MDCT", WindowLength: 8})
	assert.ErrorIs(t, err, ErrUnsupportedTFR)
}

func TestCovarianceHermitian(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := randomAudio(rng, 3, 100)
	rx, err := newTestSTFT(t, 16).Covariance(x)
	require.NoError(t, err)
	assert.Equal(t, 3, rx.Channels())
	assert.Equal(t, 9, rx.Bins())
	assert.Equal(t, 13, rx.Frames())
	for n := 0; n < rx.Frames(); n++ {
		for f := 0; f < rx.Bins(); f++ {
			c := rx.At(f, n)
			assert.True(t, c.IsHermitian(0), "cell (%d,%d)", f, n)
			for i := 0; i < 3; i++ {
				assert.GreaterOrEqual(t, real(c.At(i, i)), 0.0)
			}
		}
	}
}

func TestCovarianceOfSilence(t *testing.T) {
	rx, err := newTestSTFT(t, 4).Covariance(NewAudio(2, 8, 8000))
	require.NoError(t, err)
	zero := cmat.Zeros(2, 2)
	for n := 0; n < rx.Frames(); n++ {
		for f := 0; f < rx.Bins(); f++ {
			assert.True(t, cmat.EqualApprox(zero, rx.At(f, n), 0))
		}
	}
}

func TestCovarianceOfConstant(t *testing.T) {
	x := NewAudio(2, 64, 8000)
	for i := range x.Channels[0] {
		x.Channels[0][i] = 1
		x.Channels[1][i] = 2
	}
	rx, err := newTestSTFT(t, 16).Covariance(x)
	require.NoError(t, err)
	require.Equal(t, 8, rx.Frames())
	// frames 1..6 lie entirely inside the signal
	for n := 2; n <= 6; n++ {
		for f := 0; f < rx.Bins(); f++ {
			assert.True(t, cmat.EqualApprox(rx.At(f, 1), rx.At(f, n), 0), "bin %d frame %d", f, n)
		}
	}
	assert.False(t, cmat.EqualApprox(rx.At(0, 0), rx.At(0, 1), 0))
}

func TestCovarianceOfImpulse(t *testing.T) {
	x := NewAudio(1, 8, 8000)
	x.Channels[0][0] = 1
	rx, err := newTestSTFT(t, 4).Covariance(x)
	require.NoError(t, err)
	require.Equal(t, 4, rx.Frames())
	for f := 0; f < rx.Bins(); f++ {
		assert.Greater(t, real(rx.At(f, 0).At(0, 0)), 0.0)
		for n := 1; n < rx.Frames(); n++ {
			assert.Equal(t, complex128(0), rx.At(f, n).At(0, 0))
		}
	}
}

func TestSTFTRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := randomAudio(rng, 2, 77)
	s := newTestSTFT(t, 16)
	y := s.Inverse(s.Forward(x), x.Len())
	require.Len(t, y, 2)
	for c := range y {
		require.Len(t, y[c], 77)
		assert.InDeltaSlice(t, x.Channels[c], y[c], 1e-10)
	}
}

func TestFilterIdentityGain(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	x := randomAudio(rng, 2, 50)
	s := newTestSTFT(t, 8)

	g := NewGrid(s.Bins(), s.Frames(x.Len()))
	h := NewGrid(s.Bins(), s.Frames(x.Len()))
	for n := 0; n < g.Frames(); n++ {
		for f := 0; f < g.Bins(); f++ {
			g.Set(f, n, cmat.Identity(2))
			h.Set(f, n, cmat.Scaled(2, 0.5))
		}
	}
	out, err := s.Filter(x, []*Grid{g, h})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for c := 0; c < 2; c++ {
		assert.InDeltaSlice(t, x.Channels[c], out[0].Channels[c], 1e-10)
		for i, v := range x.Channels[c] {
			assert.InDelta(t, v/2, out[1].Channels[c][i], 1e-10)
		}
	}
	assert.Equal(t, x.SampleRate, out[0].SampleRate)

	_, err = s.Filter(x, []*Grid{NewGrid(s.Bins(), 1)})
	assert.ErrorIs(t, err, ErrInconsistentDimensions)
}
