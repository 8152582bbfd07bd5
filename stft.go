package srcsep

import (
	"math"

	"github.com/pkg/errors"
	"github.com/runningwild/go-fftw/fftw"
	"gonum.org/v1/gonum/mat"

	"srcsep/internal/cmat"
)

// Transform is the time-frequency collaborator: it summarises a mixture as
// local covariances and applies per-cell gains to resynthesize sources.
type Transform interface {
	// Bins returns the number of frequency bins F.
	Bins() int
	// Frames returns the number of frames N for a signal of the given length.
	Frames(samples int) int
	Covariance(x Audio) (*MixtureCovariance, error)
	// Filter applies gains[j](f,n) to every mixture cell and returns one
	// multichannel signal per gain grid.
	Filter(x Audio, gains []*Grid) ([]Audio, error)
	// Close releases any resources held by the transform.
	Close()
}

// NewTransform returns the transform named by cfg.TFR.
func NewTransform(cfg Config) (Transform, error) {
	switch cfg.TFR {
	case "", TFRSTFT:
		return NewSTFT(cfg.WindowLength)
	case TFRERB:
		return NewERB(cfg.WindowLength, cfg.Bins)
	}
	return nil, errors.Wrapf(ErrUnsupportedTFR, "%q", cfg.TFR)
}

// STFT is a half-overlapping short-time Fourier transform with a sine window
// normalized for perfect reconstruction.
type STFT struct {
	wlen int
	win  []float64

	fftIn, fftOut *fftw.Array
	forward       *fftw.Plan
	backward      *fftw.Plan
}

// NewSTFT returns an STFT with window length wlen, a positive multiple of 4.
func NewSTFT(wlen int) (*STFT, error) {
	if wlen <= 0 || wlen%4 != 0 {
		return nil, errors.Wrapf(ErrBadWindow, "got %d", wlen)
	}
	t := &STFT{wlen: wlen, win: make([]float64, wlen)}
	for i := range t.win {
		t.win[i] = math.Sin((float64(i) + 0.5) / float64(wlen) * math.Pi)
	}

	t.fftIn = fftw.NewArray(wlen)
	t.fftOut = fftw.NewArray(wlen)
	t.forward = fftw.NewPlan(t.fftIn, t.fftOut, fftw.Forward, fftw.Estimate)
	t.backward = fftw.NewPlan(t.fftIn, t.fftOut, fftw.Backward, fftw.Estimate)
	return t, nil
}

func (t *STFT) WindowLength() int { return t.wlen }

func (t *STFT) Bins() int { return t.wlen/2 + 1 }

func (t *STFT) Frames(samples int) int {
	return int(math.Ceil(float64(samples) / float64(t.wlen) * 2))
}

// padded returns the signal zero-padded to (N+1)*wlen/2 samples with the
// data starting at wlen/4.
func (t *STFT) padded(x []float64, frames int) []float64 {
	p := make([]float64, (frames+1)*t.wlen/2)
	copy(p[t.wlen/4:], x)
	return p
}

// windowPower returns the overlap-added squared window at every padded sample.
func (t *STFT) windowPower(frames int) []float64 {
	hop := t.wlen / 2
	s := make([]float64, (frames+1)*hop)
	for n := 0; n < frames; n++ {
		for i, w := range t.win {
			s[n*hop+i] += w * w
		}
	}
	return s
}

// Forward returns one F x N coefficient matrix per channel.
func (t *STFT) Forward(x Audio) []*mat.CDense {
	samples := x.Len()
	frames := t.Frames(samples)
	bins := t.Bins()
	hop := t.wlen / 2
	power := t.windowPower(frames)

	out := make([]*mat.CDense, x.NumChannels())
	for c, ch := range x.Channels {
		p := t.padded(ch, frames)
		X := mat.NewCDense(bins, frames, nil)
		for n := 0; n < frames; n++ {
			for i, w := range t.win {
				swin := math.Sqrt(float64(t.wlen) * power[n*hop+i])
				t.fftIn.Set(i, complex(p[n*hop+i]*w/swin, 0))
			}
			t.forward.Execute()
			for f := 0; f < bins; f++ {
				X.Set(f, n, t.fftOut.At(f))
			}
		}
		out[c] = X
	}
	return out
}

// Inverse overlap-adds the frames of each channel back to samples.
func (t *STFT) Inverse(X []*mat.CDense, samples int) [][]float64 {
	bins := t.Bins()
	hop := t.wlen / 2
	out := make([][]float64, len(X))
	for c, xc := range X {
		_, frames := xc.Dims()
		power := t.windowPower(frames)
		y := make([]float64, (frames+1)*hop)
		for n := 0; n < frames; n++ {
			// Hermitian extension of the half spectrum
			for f := 0; f < bins; f++ {
				t.fftIn.Set(f, xc.At(f, n))
			}
			for f := bins; f < t.wlen; f++ {
				v := xc.At(t.wlen-f, n)
				t.fftIn.Set(f, complex(real(v), -imag(v)))
			}
			t.backward.Execute()
			for i, w := range t.win {
				swin := math.Sqrt(power[n*hop+i] / float64(t.wlen))
				y[n*hop+i] += real(t.fftOut.At(i)) / float64(t.wlen) * w / swin
			}
		}
		s := make([]float64, samples)
		copy(s, y[t.wlen/4:])
		out[c] = s
	}
	return out
}

// Covariance computes Rx(f,n) = X(f,n)*X(f,n)^H from the channel spectra.
func (t *STFT) Covariance(x Audio) (*MixtureCovariance, error) {
	if err := checkMixture(x); err != nil {
		return nil, err
	}
	X := t.Forward(x)
	bins, frames := X[0].Dims()
	rx := NewMixtureCovariance(len(X), bins, frames)
	v := make([]complex128, len(X))
	for n := 0; n < frames; n++ {
		for f := 0; f < bins; f++ {
			for c := range X {
				v[c] = X[c].At(f, n)
			}
			rx.Set(f, n, outer(v))
		}
	}
	return rx, nil
}

// Filter multiplies the mixture spectrum by each gain grid and inverts.
func (t *STFT) Filter(x Audio, gains []*Grid) ([]Audio, error) {
	if err := checkMixture(x); err != nil {
		return nil, err
	}
	X := t.Forward(x)
	channels := len(X)
	bins, frames := X[0].Dims()

	out := make([]Audio, len(gains))
	for j, g := range gains {
		if g.Bins() != bins {
			return nil, inconsistent("gain bins", bins, g.Bins())
		}
		if g.Frames() != frames {
			return nil, inconsistent("gain frames", frames, g.Frames())
		}
		Y := make([]*mat.CDense, channels)
		for c := range Y {
			Y[c] = mat.NewCDense(bins, frames, nil)
		}
		xv := cmat.Zeros(channels, 1)
		for n := 0; n < frames; n++ {
			for f := 0; f < bins; f++ {
				for c := range X {
					xv.Set(c, 0, X[c].At(f, n))
				}
				yv := cmat.Mul(g.At(f, n), xv)
				for c := range Y {
					Y[c].Set(f, n, yv.At(c, 0))
				}
			}
		}
		out[j] = Audio{Channels: t.Inverse(Y, x.Len()), SampleRate: x.SampleRate}
	}
	return out, nil
}

// Close releases the FFTW plans.
func (t *STFT) Close() {
	t.forward.Destroy()
	t.backward.Destroy()
}

func checkMixture(x Audio) error {
	if x.NumChannels() == 0 {
		return errors.Wrap(ErrInvalidValue, "mixture has no channels")
	}
	if x.Len() == 0 {
		return errors.Wrap(ErrInvalidValue, "mixture has no samples")
	}
	return nil
}
