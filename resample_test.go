package srcsep

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleSameRate(t *testing.T) {
	x := randomAudio(rand.New(rand.NewSource(3)), 2, 100)
	y, err := Resample(x, x.SampleRate)
	require.NoError(t, err)
	assert.Equal(t, x, y)
}

func TestResampleLength(t *testing.T) {
	x := NewAudio(3, 8000, 8000)
	for c, ch := range x.Channels {
		for i := range ch {
			ch[i] = math.Sin(2 * math.Pi * 200 * float64(i) / 8000 * float64(c+1))
		}
	}
	y, err := Resample(x, 16000)
	require.NoError(t, err)
	require.Equal(t, 3, y.NumChannels())
	assert.Equal(t, 16000, y.SampleRate)
	for c := range y.Channels {
		assert.InDelta(t, 16000, len(y.Channels[c]), 8, "channel %d", c)
	}
	assert.Equal(t, len(y.Channels[0]), len(y.Channels[2]))

	// a 200 Hz tone keeps its amplitude
	var peak float64
	for _, v := range y.Channels[0][1000:2000] {
		peak = math.Max(peak, math.Abs(v))
	}
	assert.InDelta(t, 1, peak, 0.05)
}

func TestResampleRejectsBadRate(t *testing.T) {
	_, err := Resample(NewAudio(1, 10, 8000), 0)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
