package srcsep

import (
	"github.com/pkg/errors"

	"srcsep/internal/cmat"
)

// MixingType distinguishes a single mixing matrix from one matrix per bin.
type MixingType int

const (
	Instantaneous MixingType = iota
	Convolutive
)

func (t MixingType) String() string {
	if t == Convolutive {
		return "conv"
	}
	return "inst"
}

// MixingParameter holds a source's mixing matrices: one I x R matrix for an
// instantaneous mixture, F of them for a convolutive one.
type MixingParameter struct {
	Adaptability Adaptability
	Type         MixingType
	// Complex reports whether the values carry imaginary parts when written.
	Complex bool

	data []*cmat.Dense
}

// NewInstantaneous returns a real instantaneous mixing parameter.
func NewInstantaneous(a *cmat.Dense, adapt Adaptability) *MixingParameter {
	return &MixingParameter{Adaptability: adapt, Type: Instantaneous, data: []*cmat.Dense{a}}
}

// NewConvolutive returns a convolutive mixing parameter with one matrix per bin.
func NewConvolutive(a []*cmat.Dense, adapt Adaptability, complexValued bool) *MixingParameter {
	return &MixingParameter{Adaptability: adapt, Type: Convolutive, Complex: complexValued, data: a}
}

func (p *MixingParameter) IsFree() bool { return p.Adaptability == Free }

// At returns the mixing matrix for bin f. Instantaneous mixing ignores f.
func (p *MixingParameter) At(f int) *cmat.Dense {
	if p.Type == Instantaneous {
		return p.data[0]
	}
	return p.data[f]
}

// Set replaces the matrix for bin f.
func (p *MixingParameter) Set(f int, a *cmat.Dense) {
	if p.Type == Instantaneous {
		f = 0
	}
	p.data[f] = a
	if p.Type == Convolutive && !p.Complex && hasImaginary(a) {
		p.Complex = true
	}
}

// Bins returns the number of stored matrices.
func (p *MixingParameter) Bins() int { return len(p.data) }

func (p *MixingParameter) Channels() int {
	r, _ := p.data[0].Dims()
	return r
}

func (p *MixingParameter) Rank() int {
	_, c := p.data[0].Dims()
	return c
}

// Payload serializes the values in record order.
func (p *MixingParameter) Payload() string {
	return formatMixing(p)
}

func (p *MixingParameter) validate() error {
	if len(p.data) == 0 {
		return errors.Wrap(ErrUnsupportedMixing, "no mixing matrix")
	}
	if p.Type == Instantaneous && len(p.data) != 1 {
		return errors.Wrapf(ErrUnsupportedMixing, "instantaneous mixing with %d matrices", len(p.data))
	}
	r, c := p.data[0].Dims()
	for f, a := range p.data {
		if ar, ac := a.Dims(); ar != r || ac != c {
			return errors.Wrapf(ErrInconsistentDimensions, "mixing matrix %d is %dx%d, expected %dx%d", f, ar, ac, r, c)
		}
	}
	return nil
}

func hasImaginary(a *cmat.Dense) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if imag(a.At(i, j)) != 0 {
				return true
			}
		}
	}
	return false
}
