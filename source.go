package srcsep

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"srcsep/internal/cmat"
)

// WienerParams configures the reconstruction of one source.
type WienerParams struct {
	// Gain is the linear gain qa applied to the source covariance.
	Gain float64
	// CrossTalk is the off-diagonal value b of the channel matrix, in [0,1].
	CrossTalk float64
	// TimeSmoothing and FreqSmoothing are the half-widths c1 and c2 of the
	// raised-cosine kernels applied to V along frames and bins. 0 disables.
	TimeSmoothing int
	FreqSmoothing int
	// Floor is the linear eigenvalue floor qd; 0 disables flooring.
	Floor float64
}

// DefaultWienerParams returns unit gain, no cross-talk, no smoothing and no
// floor.
func DefaultWienerParams() WienerParams {
	return WienerParams{Gain: 1}
}

// NewWienerParams converts decibel settings: gainDB to qa = 10^(a/10) and
// floorDB to qd = 10^(d/10), where floorDB = -Inf disables the floor.
func NewWienerParams(gainDB, crossTalk float64, c1, c2 int, floorDB float64) (WienerParams, error) {
	p := WienerParams{
		Gain:          math.Pow(10, gainDB/10),
		CrossTalk:     crossTalk,
		TimeSmoothing: c1,
		FreqSmoothing: c2,
		Floor:         math.Pow(10, floorDB/10),
	}
	return p, p.validate()
}

func (p WienerParams) validate() error {
	if !(p.CrossTalk >= 0 && p.CrossTalk <= 1) {
		return errors.Wrapf(ErrInvalidValue, "cross-talk %g outside [0,1]", p.CrossTalk)
	}
	if p.TimeSmoothing < 0 || p.FreqSmoothing < 0 {
		return errors.Wrapf(ErrInvalidValue, "negative smoothing half-width (%d, %d)", p.TimeSmoothing, p.FreqSmoothing)
	}
	return nil
}

// Source is one separated component: its mixing parameter, its spectral
// power (excitation and optional filter parts) and derived quantities.
type Source struct {
	Name   string
	A      *MixingParameter
	Ex     SpectralPower
	Ft     *SpectralPower // nil for excitation-only sources
	Wiener WienerParams

	v *mat.Dense    // nil when every factor is the identity
	r []*cmat.Dense // spatial covariance, one per stored mixing matrix
}

// NewSource validates the parts and computes V and R. ft may be nil.
func NewSource(name string, a *MixingParameter, ex SpectralPower, ft *SpectralPower, w WienerParams) (*Source, error) {
	if a == nil {
		return nil, errors.Wrapf(ErrInvalidValue, "source %q has no mixing parameter", name)
	}
	if err := a.validate(); err != nil {
		return nil, errors.WithMessagef(err, "source %q", name)
	}
	if err := w.validate(); err != nil {
		return nil, errors.WithMessagef(err, "source %q", name)
	}
	if err := ex.validate(); err != nil {
		return nil, errors.WithMessagef(err, "source %q excitation", name)
	}
	if ft != nil {
		if err := ft.validate(); err != nil {
			return nil, errors.WithMessagef(err, "source %q filter", name)
		}
	}
	s := &Source{Name: name, A: a, Ex: ex, Ft: ft, Wiener: w}
	if ft != nil {
		ev, fv := ex.V(), ft.V()
		if !ev.IsIdentity() && !fv.IsIdentity() {
			er, ec := ev.Dims()
			fr, fc := fv.Dims()
			if er != fr {
				return nil, errors.WithMessagef(inconsistent("filter bins", er, fr), "source %q", name)
			}
			if ec != fc {
				return nil, errors.WithMessagef(inconsistent("filter frames", ec, fc), "source %q", name)
			}
		}
	}
	s.refreshV()
	if a.Type == Convolutive && s.v != nil && a.Bins() != s.Bins() {
		return nil, errors.WithMessagef(inconsistent("mixing bins", s.Bins(), a.Bins()), "source %q", name)
	}
	s.refreshR()
	return s, nil
}

// ExcitationOnly reports whether the source has no filter part.
func (s *Source) ExcitationOnly() bool { return s.Ft == nil }

func (s *Source) Channels() int { return s.A.Channels() }

func (s *Source) Rank() int { return s.A.Rank() }

// Bins returns the number of frequency bins of V, 0 when V is empty.
func (s *Source) Bins() int {
	if s.v == nil {
		return 0
	}
	r, _ := s.v.Dims()
	return r
}

// Frames returns the number of frames of V, 0 when V is empty.
func (s *Source) Frames() int {
	if s.v == nil {
		return 0
	}
	_, c := s.v.Dims()
	return c
}

// V returns the spectral power, nil when empty.
func (s *Source) V() *mat.Dense { return s.v }

// R returns the spatial covariance A(f)*A(f)^H for bin f.
func (s *Source) R(f int) *cmat.Dense {
	if s.A.Type == Instantaneous {
		return s.r[0]
	}
	return s.r[f]
}

// UpdateSpectralPower refits the free factors to the per-cell source power
// xi. With a filter part, the excitation is refit against the filter's power
// first, then the filter against the new excitation.
func (s *Source) UpdateSpectralPower(xi *mat.Dense) {
	if s.Ft == nil {
		s.Ex.Update(xi, nil)
	} else {
		s.Ex.Update(xi, s.Ft.V().Dense())
		s.Ft.Update(xi, s.Ex.V().Dense())
	}
	s.refreshV()
}

func (s *Source) hasFreeFactor() bool {
	parts := s.Ex.factors()
	if s.Ft != nil {
		parts = append(parts, s.Ft.factors()...)
	}
	for _, f := range parts {
		if f.IsFree() && !f.IsIdentity() {
			return true
		}
	}
	return false
}

func (s *Source) refreshV() {
	v := s.Ex.V()
	if s.Ft != nil {
		fv := s.Ft.V()
		switch {
		case v.IsIdentity():
			v = fv
		case !fv.IsIdentity():
			var p mat.Dense
			p.MulElem(v.Dense(), fv.Dense())
			v = DenseFactor(&p)
		}
	}
	if v.IsIdentity() {
		s.v = nil
		return
	}
	// products of a single factor alias it
	s.v = mat.DenseCopyOf(v.Dense())
}

func (s *Source) refreshR() {
	s.r = make([]*cmat.Dense, s.A.Bins())
	for f := range s.r {
		a := s.A.data[f]
		s.r[f] = cmat.Mul(a, a.H())
	}
}

// smoothedV returns V filtered by the configured raised-cosine kernels,
// along frames for c1 and along bins for c2.
func (s *Source) smoothedV() (*mat.Dense, error) {
	if s.v == nil {
		return nil, nil
	}
	v := mat.DenseCopyOf(s.v)
	bins, frames := v.Dims()
	if c := s.Wiener.TimeSmoothing; c > 0 {
		h := smoothingKernel(c)
		for f := 0; f < bins; f++ {
			row, err := FFTFilt(h, mat.Row(nil, f, v))
			if err != nil {
				return nil, err
			}
			v.SetRow(f, row)
		}
	}
	if c := s.Wiener.FreqSmoothing; c > 0 {
		h := smoothingKernel(c)
		for n := 0; n < frames; n++ {
			col, err := FFTFilt(h, mat.Col(nil, n, v))
			if err != nil {
				return nil, err
			}
			v.SetCol(n, col)
		}
	}
	return v, nil
}

// smoothingKernel returns the normalized kernel 1 + cos(pi*d/(c+1)) for
// d = -c..c.
func smoothingKernel(c int) []float64 {
	h := make([]float64, 2*c+1)
	var sum float64
	for i := range h {
		d := float64(i - c)
		h[i] = 1 + math.Cos(math.Pi*d/float64(c+1))
		sum += h[i]
	}
	for i := range h {
		h[i] /= sum
	}
	return h
}

// crossTalk returns the I x I matrix with ones on the diagonal and b elsewhere.
func crossTalk(channels int, b float64) *cmat.Dense {
	m := cmat.Filled(channels, channels, complex(b, 0))
	for i := 0; i < channels; i++ {
		m.Set(i, i, 1)
	}
	return m
}
