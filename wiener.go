package srcsep

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"srcsep/internal/cmat"
)

// WienerGains returns one grid of I x I gains per source:
//
//	Sy_j(f,n) = qa_j * V_j(f,n) * B_j * R_j(f)
//	G_j(f,n)  = Sy_j(f,n) * inv(sum_k Sy_k(f,n))
//
// with V_j smoothed as configured, and eigenvalues of G_j whose modulus is
// below the floor qd_j raised to qd_j.
func (s *Sources) WienerGains(workers int) ([]*Grid, error) {
	J := len(s.list)
	powers := make([]*mat.Dense, J)
	mixes := make([][]*cmat.Dense, J)
	for j, src := range s.list {
		v, err := src.smoothedV()
		if err != nil {
			return nil, errors.WithMessagef(err, "source %q", src.Name)
		}
		powers[j] = v
		// qa*B*R(f) does not depend on n
		b := crossTalk(s.channels, src.Wiener.CrossTalk).Scale(complex(src.Wiener.Gain, 0))
		mixes[j] = make([]*cmat.Dense, s.bins)
		for f := 0; f < s.bins; f++ {
			mixes[j][f] = cmat.Mul(b, src.R(f))
		}
	}

	gains := make([]*Grid, J)
	for j := range gains {
		gains[j] = NewGrid(s.bins, s.frames)
	}
	var failed error
	errs := make([]error, s.frames)
	parallelFor(s.frames, workers, func(n int) {
		sy := make([]*cmat.Dense, J)
		for f := 0; f < s.bins; f++ {
			sx := cmat.Zeros(s.channels, s.channels)
			for j := range sy {
				sy[j] = mixes[j][f].Scale(complex(powers[j].At(f, n), 0))
				sx.AddTo(sy[j])
			}
			sxInv, err := cmat.Inverse(sx)
			if err != nil {
				sxInv = cmat.Filled(s.channels, s.channels, complex(math.NaN(), math.NaN()))
			}
			for j, src := range s.list {
				g := cmat.Mul(sy[j], sxInv)
				if qd := src.Wiener.Floor; qd > 0 && g.IsFinite() {
					if g, err = floorEigenvalues(g, qd); err != nil {
						errs[n] = errors.WithMessagef(err, "source %q bin %d frame %d", src.Name, f, n)
						return
					}
				}
				gains[j].Set(f, n, g)
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			failed = err
			break
		}
	}
	return gains, failed
}

// floorEigenvalues rebuilds g = V*diag(l)*inv(V) with every |l| < qd replaced by qd.
func floorEigenvalues(g *cmat.Dense, qd float64) (*cmat.Dense, error) {
	values, vectors, err := cmat.Eigen(g)
	if err != nil {
		return nil, err
	}
	inv, err := cmat.Inverse(vectors)
	if err != nil {
		return nil, err
	}
	n := len(values)
	d := cmat.Zeros(n, n)
	for i, v := range values {
		if math.Hypot(real(v), imag(v)) < qd {
			v = complex(qd, 0)
		}
		d.Set(i, i, v)
	}
	return cmat.Mul(cmat.Mul(vectors, d), inv), nil
}

// Separate computes the Wiener gains and applies them to the mixture through
// the transform, returning one multichannel estimate per source.
func (s *Sources) Separate(x Audio, t Transform, workers int) ([]Audio, error) {
	if x.NumChannels() != s.channels {
		return nil, errors.WithMessage(inconsistent("channels", s.channels, x.NumChannels()), "mixture")
	}
	if t.Bins() != s.bins {
		return nil, errors.WithMessage(inconsistent("bins", s.bins, t.Bins()), "transform")
	}
	if frames := t.Frames(x.Len()); frames != s.frames {
		return nil, errors.WithMessage(inconsistent("frames", s.frames, frames), "mixture")
	}
	gains, err := s.WienerGains(workers)
	if err != nil {
		return nil, err
	}
	return t.Filter(x, gains)
}
