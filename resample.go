package srcsep

import (
	"github.com/faiface/beep"
	"github.com/pkg/errors"
)

// ResampleQuality is the interpolation quality passed to beep.Resample.
const ResampleQuality = 6

// Resample converts x to the given sample rate. Channels are streamed
// through beep in stereo pairs; an odd last channel is paired with itself.
func Resample(x Audio, rate int) (Audio, error) {
	if rate <= 0 || x.SampleRate <= 0 {
		return Audio{}, errors.Wrapf(ErrInvalidValue, "resample %d Hz to %d Hz", x.SampleRate, rate)
	}
	if rate == x.SampleRate {
		return x, nil
	}

	out := Audio{Channels: make([][]float64, x.NumChannels()), SampleRate: rate}
	for c := 0; c < x.NumChannels(); c += 2 {
		left, right := x.Channels[c], x.Channels[c]
		if c+1 < x.NumChannels() {
			right = x.Channels[c+1]
		}
		l, r := resamplePair(left, right, x.SampleRate, rate)
		out.Channels[c] = l
		if c+1 < x.NumChannels() {
			out.Channels[c+1] = r
		}
	}
	return out, nil
}

func resamplePair(left, right []float64, from, to int) ([]float64, []float64) {
	pos := 0
	src := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(left) {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < len(left) {
			samples[n][0], samples[n][1] = left[pos], right[pos]
			n++
			pos++
		}
		return n, true
	})

	r := beep.Resample(ResampleQuality, beep.SampleRate(from), beep.SampleRate(to), src)
	want := int(int64(len(left)) * int64(to) / int64(from))
	l := make([]float64, 0, want)
	rr := make([]float64, 0, want)
	buf := make([][2]float64, 512)
	for len(l) < want {
		n, ok := r.Stream(buf)
		for _, s := range buf[:n] {
			l = append(l, s[0])
			rr = append(rr, s[1])
		}
		if !ok {
			break
		}
	}
	if len(l) > want {
		l, rr = l[:want], rr[:want]
	}
	return l, rr
}
