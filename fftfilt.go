package srcsep

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
)

// FFTFilt convolves x with the odd-length filter h by zero-padded FFT and
// returns the centred part, len(x) samples long with no delay.
func FFTFilt(h, x []float64) ([]float64, error) {
	if len(h)%2 == 0 {
		return nil, errors.Wrapf(ErrInvalidValue, "filter length %d is not odd", len(h))
	}
	if len(x) == 0 {
		return []float64{}, nil
	}
	hc := make([]complex128, len(h))
	for i, v := range h {
		hc[i] = complex(v, 0)
	}
	c, err := newConvolver(hc, len(x))
	if err != nil {
		return nil, err
	}
	xc := make([]complex128, len(x))
	for i, v := range x {
		xc[i] = complex(v, 0)
	}
	y := c.apply(xc)
	out := make([]float64, len(x))
	for i, v := range y {
		out[i] = real(v)
	}
	return out, nil
}

// convolver applies one odd-length complex filter to signals of a fixed
// length, keeping the filter spectrum between calls.
type convolver struct {
	fft     *fourier.CmplxFFT
	coeff   []complex128
	delay   int
	samples int
}

func newConvolver(h []complex128, samples int) (*convolver, error) {
	if len(h)%2 == 0 {
		return nil, errors.Wrapf(ErrInvalidValue, "filter length %d is not odd", len(h))
	}
	nfft := 1
	for nfft < samples+len(h)-1 {
		nfft <<= 1
	}
	c := &convolver{
		fft:     fourier.NewCmplxFFT(nfft),
		delay:   (len(h) - 1) / 2,
		samples: samples,
	}
	hp := make([]complex128, nfft)
	copy(hp, h)
	c.coeff = c.fft.Coefficients(nil, hp)
	// Sequence is unnormalized
	scale := complex(1/float64(nfft), 0)
	for i := range c.coeff {
		c.coeff[i] *= scale
	}
	return c, nil
}

// apply returns the centred convolution of x, which must hold c.samples
// values.
func (c *convolver) apply(x []complex128) []complex128 {
	xp := make([]complex128, c.fft.Len())
	copy(xp, x[:c.samples])
	xc := c.fft.Coefficients(nil, xp)
	for i := range xc {
		xc[i] *= c.coeff[i]
	}
	y := c.fft.Sequence(nil, xc)
	out := make([]complex128, c.samples)
	copy(out, y[c.delay:])
	return out
}
