package srcsep

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SpectralPower is one part (excitation or filter) of a source's spectral
// power, the ordered product W*U*G*H.
type SpectralPower struct {
	W, U, G, H NonnegativeFactor
}

// V returns W*U*G*H, or the identity when every factor is the identity.
func (s *SpectralPower) V() Factor {
	return s.W.Mul(s.U.Factor).Mul(s.G.Factor).Mul(s.H.Factor)
}

// Bins returns the row count of the first non-identity factor.
func (s *SpectralPower) Bins() int {
	for _, f := range s.factors() {
		if !f.IsIdentity() {
			r, _ := f.Dims()
			return r
		}
	}
	return 0
}

// Frames returns the column count of the last non-identity factor.
func (s *SpectralPower) Frames() int {
	fs := s.factors()
	for i := len(fs) - 1; i >= 0; i-- {
		if !fs[i].IsIdentity() {
			_, c := fs[i].Dims()
			return c
		}
	}
	return 0
}

// validate checks that consecutive non-identity factors can be multiplied.
func (s *SpectralPower) validate() error {
	prev := -1
	for i, f := range s.factors() {
		if f.IsIdentity() {
			continue
		}
		if prev >= 0 {
			_, c := s.factors()[prev].Dims()
			r, _ := f.Dims()
			if c != r {
				return errors.WithMessagef(inconsistent("factor inner dimension", c, r),
					"%s x %s", factorNames[prev], factorNames[i])
			}
		}
		prev = i
	}
	return nil
}

func (s *SpectralPower) factors() []*NonnegativeFactor {
	return []*NonnegativeFactor{&s.W, &s.U, &s.G, &s.H}
}

// Update refits the free factors to xi in the order W, U, G, H; each step
// sees the factors already updated. e is the other part's spectral power, or
// nil when the source has no filter part.
func (s *SpectralPower) Update(xi, e *mat.Dense) {
	if s.W.IsFree() {
		s.W.update(IdentityFactor(), s.U.Mul(s.G.Factor).Mul(s.H.Factor), xi, e)
	}
	if s.U.IsFree() {
		s.U.update(s.W.Factor, s.G.Mul(s.H.Factor), xi, e)
	}
	if s.G.IsFree() {
		s.G.update(s.W.Mul(s.U.Factor), s.H.Factor, xi, e)
	}
	if s.H.IsFree() {
		s.H.update(s.W.Mul(s.U.Factor).Mul(s.G.Factor), IdentityFactor(), xi, e)
	}
}
