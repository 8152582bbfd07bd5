package srcsep

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"srcsep/internal/cmat"
)

const (
	// maxERBDecimation caps the dyadic downsampling of the low bands.
	maxERBDecimation = 512
	// erbGrid is the number of ERB-scale points the synthesis weights are
	// fitted on.
	erbGrid = 1000
)

// ERB is a filterbank transform with Hann-windowed complex bandpass filters
// centred at frequencies equally spaced on the ERB scale. Each band is
// computed on an analytic copy of the signal, decimated by a power of two
// where the band allows it, and integrated over the same half-overlapping
// sine-windowed frames as the STFT.
type ERB struct {
	wlen, bins int
}

// NewERB returns an ERB filterbank with bins bands and frames of wlen
// samples. wlen must be positive and even, and bins at least 2.
func NewERB(wlen, bins int) (*ERB, error) {
	if wlen <= 0 || wlen%2 != 0 {
		return nil, errors.Wrapf(ErrBadWindow, "ERB window length %d is not a positive even number", wlen)
	}
	if bins < 2 {
		return nil, errors.Wrapf(ErrInvalidValue, "ERB needs at least 2 bands, got %d", bins)
	}
	return &ERB{wlen: wlen, bins: bins}, nil
}

func (t *ERB) WindowLength() int { return t.wlen }

func (t *ERB) Bins() int { return t.bins }

func (t *ERB) Frames(samples int) int {
	return int(math.Ceil(float64(samples) / float64(t.wlen) * 2))
}

// Close is a no-op; the filterbank holds no plans.
func (t *ERB) Close() {}

type erbBand struct {
	freq  float64 // centre frequency in Hz
	hwlen int     // filter half length at the decimated rate
	subs  int     // decimation factor
}

// bands lays out the filterbank for the given sample rate.
func (t *ERB) bands(rate float64) []erbBand {
	F := t.bins
	emax := 9.26 * math.Log(0.00437*rate/2+1)

	// largest power of two dividing wlen/2
	submax := 1
	for d := t.wlen / 2; d > 0 && d%2 == 0; d /= 2 {
		submax *= 2
	}
	if submax > maxERBDecimation {
		submax = maxERBDecimation
	}

	bands := make([]erbBand, F)
	for f := range bands {
		e := emax * float64(f) / float64(F-1)
		fre := (math.Exp(e/9.26) - 1) / 0.00437
		a := 0.5*float64(F-1)/emax*9.26*0.00437*rate*math.Exp(-e/9.26) - 0.5

		fup := fre + 1.5*rate/(2*a+1)
		// submax already bounds subs by wlen/2
		ls := math.Floor(-math.Log(2*fup/rate) / math.Ln2)
		subs := int(math.Round(math.Pow(2, math.Max(ls, 0))))
		if subs > submax {
			subs = submax
		}
		bands[f] = erbBand{freq: fre, hwlen: int(math.Round(a / float64(subs))), subs: subs}
	}
	return bands
}

// filter returns the band's complex bandpass filter, Hann-windowed and
// modulated to the centre frequency at the decimated rate.
func (b erbBand) filter(rate, scale float64) []complex128 {
	h := make([]complex128, 2*b.hwlen+1)
	for k := range h {
		hann := 0.5 - 0.5*math.Cos(float64(k+1)/float64(b.hwlen+1)*math.Pi)
		phase := 2 * math.Pi * b.freq / rate * float64(b.subs) * float64(k-b.hwlen)
		h[k] = complex(hann*scale*math.Cos(phase), hann*scale*math.Sin(phase))
	}
	return h
}

// weights fits per-band synthesis gains so that the summed squared band
// responses are flat over the ERB scale, in the least-squares sense.
func (t *ERB) weights(rate float64, bands []erbBand) ([]float64, error) {
	emax := 9.26 * math.Log(0.00437*rate/2+1)
	resp := mat.NewDense(erbGrid, len(bands), nil)
	for g := 0; g < erbGrid; g++ {
		e := emax * float64(g) / float64(erbGrid-1)
		fg := (math.Exp(e/9.26) - 1) / 0.00437
		for f, b := range bands {
			alen := float64(2*b.hwlen+1) * float64(b.subs)
			r := (fg - b.freq) * alen / rate
			v := sinc(r) + 0.5*sinc(r+1) + 0.5*sinc(r-1)
			resp.Set(g, f, v*v)
		}
	}
	ones := mat.NewVecDense(erbGrid, nil)
	for g := 0; g < erbGrid; g++ {
		ones.SetVec(g, 1)
	}

	var w mat.VecDense
	if err := w.SolveVec(resp, ones); err != nil {
		if c, ok := err.(mat.Condition); !ok || math.IsInf(float64(c), 1) {
			return nil, errors.Wrap(err, "ERB synthesis weights")
		}
	}
	return mat.Col(nil, 0, &w), nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// erbLevel is the framing at one decimation level.
type erbLevel struct {
	wlen int
	win  []float64
	swin []float64 // sqrt of the overlap-added squared window
}

func newERBLevel(wlen, frames int) erbLevel {
	l := erbLevel{wlen: wlen, win: make([]float64, wlen), swin: make([]float64, (frames+1)*wlen/2)}
	for i := range l.win {
		l.win[i] = math.Sin((float64(i) + 0.5) / float64(wlen) * math.Pi)
	}
	for n := 0; n < frames; n++ {
		for i, w := range l.win {
			l.swin[n*wlen/2+i] += w * w
		}
	}
	for i, v := range l.swin {
		l.swin[i] = math.Sqrt(v)
	}
	return l
}

// analytic returns the analytic signal of each channel zero-padded to
// samples values.
func analytic(x Audio, samples int) [][]complex128 {
	fft := fourier.NewCmplxFFT(samples)
	half := int(math.Ceil(float64(samples)/2)) - 1
	out := make([][]complex128, x.NumChannels())
	for c, ch := range x.Channels {
		buf := make([]complex128, samples)
		for i, v := range ch {
			buf[i] = complex(v, 0)
		}
		coeff := fft.Coefficients(nil, buf)
		for k := 1; k <= half; k++ {
			coeff[k] *= 2
		}
		for k := samples - half; k < samples; k++ {
			coeff[k] = 0
		}
		z := fft.Sequence(nil, coeff)
		scale := complex(1/float64(samples), 0)
		for i := range z {
			z[i] *= scale
		}
		out[c] = z
	}
	return out
}

// halfband holds the odd taps of the 201-tap halfband lowpass used for
// decimation, from the outside in; the centre tap is 1/2.
var halfband = [50]float64{
	-0.000133178150, 0.000169248200, -0.000210182991, 0.000256357557, -0.000308162910,
	0.000366006936, -0.000430315500, 0.000501533833, -0.000580128236, 0.000666588166,
	-0.000761428788, 0.000865194071, -0.000978460543, 0.001101841829, -0.001235994132,
	0.001381622851, -0.001539490568, 0.001710426705, -0.001895339216, 0.002095228768,
	-0.002311206013, 0.002544512690, -0.002796547517, 0.003068898145, -0.003363380811,
	0.003682089868, -0.004027460137, 0.004402346030, -0.004810122891, 0.005254818118,
	-0.005741282722, 0.006275418606, -0.006864483808, 0.007517508754, -0.008245873624,
	0.009064124553, -0.009991152491, 0.011051937730, -0.012280204408, 0.013722591565,
	-0.015445458153, 0.017546491099, -0.020175599200, 0.023575092892, -0.028163695506,
	0.034732568224, -0.044977376046, 0.063307309465, -0.105890188403, 0.318238799405,
}

// downsample lowpass filters every channel and keeps the even samples.
func downsample(x [][]complex128) ([][]complex128, error) {
	h := make([]complex128, 201)
	h[100] = 0.5
	for k, v := range halfband {
		h[2*k+1] = complex(v, 0)
		h[199-2*k] = complex(v, 0)
	}
	conv, err := newConvolver(h, len(x[0]))
	if err != nil {
		return nil, err
	}
	out := make([][]complex128, len(x))
	for c, ch := range x {
		y := conv.apply(ch)
		d := make([]complex128, len(ch)/2)
		for i := range d {
			d[i] = y[2*i]
		}
		out[c] = d
	}
	return out, nil
}

// interpolator returns the lowpass for upsampling by factor: a sinc with
// zeros at the original sample instants, Hann-windowed over 50 of them on
// each side.
func interpolator(factor int) []complex128 {
	half := 50 * factor
	h := make([]complex128, 2*half+1)
	for k := -half; k <= half; k++ {
		d := float64(k) / float64(factor)
		w := 0.5 + 0.5*math.Cos(math.Pi*float64(k)/float64(half))
		h[k+half] = complex(sinc(d)*w, 0)
	}
	return h
}

// upsample inserts factor-1 zeros between samples and interpolates.
func upsample(x []complex128, factor int) ([]complex128, error) {
	if factor == 1 {
		return x, nil
	}
	y := make([]complex128, len(x)*factor)
	for i, v := range x {
		y[i*factor] = v
	}
	conv, err := newConvolver(interpolator(factor), len(y))
	if err != nil {
		return nil, err
	}
	return conv.apply(y), nil
}

func (t *ERB) prepare(x Audio) (frames int, rate float64, err error) {
	if err := checkMixture(x); err != nil {
		return 0, 0, err
	}
	if x.SampleRate <= 0 {
		return 0, 0, errors.Wrapf(ErrInvalidValue, "sample rate %d", x.SampleRate)
	}
	return t.Frames(x.Len()), float64(x.SampleRate), nil
}

// Covariance computes, for every band and frame, the windowed sum of
// z(t)*z(t)^H over the band-filtered analytic signal z.
func (t *ERB) Covariance(x Audio) (*MixtureCovariance, error) {
	N, rate, err := t.prepare(x)
	if err != nil {
		return nil, err
	}
	I := x.NumChannels()
	xx := analytic(x, (N+1)*t.wlen/2)
	bands := t.bands(rate)
	rx := NewMixtureCovariance(I, t.bins, N)

	lvl := newERBLevel(t.wlen, N)
	cur := 1
	v := make([]complex128, I)
	for f := t.bins - 1; f >= 0; f-- {
		b := bands[f]
		for cur < b.subs {
			if xx, err = downsample(xx); err != nil {
				return nil, err
			}
			cur *= 2
			lvl = newERBLevel(lvl.wlen/2, N)
		}

		conv, err := newConvolver(b.filter(rate, 1), len(xx[0]))
		if err != nil {
			return nil, err
		}
		band := make([][]complex128, I)
		for c := range band {
			band[c] = conv.apply(xx[c])
		}

		scale := float64(b.subs) / float64((b.hwlen+1)*(b.hwlen+1))
		hop := lvl.wlen / 2
		for n := 0; n < N; n++ {
			acc := cmat.Zeros(I, I)
			for k, w := range lvl.win {
				p := n*hop + k
				g := w / lvl.swin[p]
				for c := range v {
					v[c] = band[c][p] * complex(g, 0)
				}
				acc.AddTo(outer(v))
			}
			rx.Set(f, n, acc.Scale(complex(scale, 0)))
		}
	}
	return rx, nil
}

// Filter applies gains[j](f,n) to each band frame of the mixture and
// resynthesizes through the weighted inverse filterbank.
func (t *ERB) Filter(x Audio, gains []*Grid) ([]Audio, error) {
	N, rate, err := t.prepare(x)
	if err != nil {
		return nil, err
	}
	for _, g := range gains {
		if g.Bins() != t.bins {
			return nil, inconsistent("gain bins", t.bins, g.Bins())
		}
		if g.Frames() != N {
			return nil, inconsistent("gain frames", N, g.Frames())
		}
	}
	I, J := x.NumChannels(), len(gains)
	L := (N + 1) * t.wlen / 2
	xx := analytic(x, L)
	bands := t.bands(rate)
	wei, err := t.weights(rate, bands)
	if err != nil {
		return nil, err
	}

	yy := make([][][]float64, J)
	scaled := make([][][]complex128, J)
	for j := range yy {
		yy[j] = make([][]float64, I)
		scaled[j] = make([][]complex128, I)
		for c := 0; c < I; c++ {
			yy[j][c] = make([]float64, L)
			scaled[j][c] = make([]complex128, L)
		}
	}
	// flush adds the bands accumulated at the current level to yy
	cur := 1
	flush := func() error {
		for j := range scaled {
			for c, s := range scaled[j] {
				up, err := upsample(s, cur)
				if err != nil {
					return err
				}
				for k := range yy[j][c] {
					yy[j][c][k] += real(up[k])
				}
			}
		}
		return nil
	}

	lvl := newERBLevel(t.wlen, N)
	v := make([]complex128, I)
	for f := t.bins - 1; f >= 0; f-- {
		b := bands[f]
		if cur < b.subs {
			if err := flush(); err != nil {
				return nil, err
			}
			for cur < b.subs {
				if xx, err = downsample(xx); err != nil {
					return nil, err
				}
				cur *= 2
				lvl = newERBLevel(lvl.wlen/2, N)
			}
			for j := range scaled {
				for c := range scaled[j] {
					scaled[j][c] = make([]complex128, len(xx[0]))
				}
			}
		}

		conv, err := newConvolver(b.filter(rate, 1/float64(b.hwlen+1)), len(xx[0]))
		if err != nil {
			return nil, err
		}
		band := make([][]complex128, I)
		for c := range band {
			band[c] = conv.apply(xx[c])
		}

		hop := lvl.wlen / 2
		for j, g := range gains {
			yband := make([][]complex128, I)
			for c := range yband {
				yband[c] = make([]complex128, len(xx[0]))
			}
			for n := 0; n < N; n++ {
				gn := g.At(f, n)
				for k, w := range lvl.win {
					p := n*hop + k
					r := w / lvl.swin[p]
					for c := range v {
						v[c] = band[c][p] * complex(r*r, 0)
					}
					for o := 0; o < I; o++ {
						var s complex128
						for c := 0; c < I; c++ {
							s += gn.At(o, c) * v[c]
						}
						yband[o][p] += s
					}
				}
			}
			for c := range yband {
				y := conv.apply(yband[c])
				for k, val := range y {
					scaled[j][c][k] += complex(wei[f], 0) * val
				}
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	out := make([]Audio, J)
	for j := range out {
		ch := make([][]float64, I)
		for c := range ch {
			ch[c] = yy[j][c][:x.Len()]
		}
		out[j] = Audio{Channels: ch, SampleRate: x.SampleRate}
	}
	return out, nil
}
