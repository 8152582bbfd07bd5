package srcsep

import (
	"math"

	"github.com/pkg/errors"

	"srcsep/internal/cmat"
)

// NaturalStatistics are the E-step outputs for every cell: the conditional
// second moments of the rank components (R x R) and their cross moments with
// the mixture (I x R), plus the mean log-likelihood.
type NaturalStatistics struct {
	HatRs         *Grid
	HatRxs        *Grid
	LogLikelihood float64
}

// Expectation runs the E-step against rx with per-bin noise covariances
// noise[f]. Cells are independent and computed on up to workers goroutines.
// A singular model covariance yields non-finite values for that cell rather
// than an error.
func (s *Sources) Expectation(rx *MixtureCovariance, noise []*cmat.Dense, workers int) (*NaturalStatistics, error) {
	if err := s.CheckCovariance(rx); err != nil {
		return nil, err
	}
	if len(noise) != s.bins {
		return nil, errors.WithMessage(inconsistent("noise bins", s.bins, len(noise)), "expectation")
	}

	stats := &NaturalStatistics{
		HatRs:  NewGrid(s.bins, s.frames),
		HatRxs: NewGrid(s.bins, s.frames),
	}
	partial := make([]float64, s.frames)
	parallelFor(s.frames, workers, func(n int) {
		phi := make([]float64, s.rank)
		var ll float64
		for f := 0; f < s.bins; f++ {
			s.sourcePowers(f, n, phi)
			rs, rxs, l := cellStatistics(s.a[f], phi, rx.At(f, n), noise[f])
			stats.HatRs.Set(f, n, rs)
			stats.HatRxs.Set(f, n, rxs)
			ll += l
		}
		partial[n] = ll
	})

	var sum float64
	for _, v := range partial {
		sum += v
	}
	if cells := s.bins * s.frames; cells > 0 {
		stats.LogLikelihood = sum / float64(cells)
	}
	return stats, nil
}

// cellStatistics computes, for one cell,
//
//	Sx     = A*Ss*A^H + Sb,  Ss = diag(phi)
//	W      = Ss*A^H*inv(Sx)
//	hatRs  = W*Rx*W^H + (I - W*A)*Ss
//	hatRxs = Rx*W^H
//
// and the log-likelihood term -[tr(inv(Sx)*Rx) + log(det(Sx)*pi)].
func cellStatistics(a *cmat.Dense, phi []float64, rx, noise *cmat.Dense) (*cmat.Dense, *cmat.Dense, float64) {
	as := cmat.ScaleCols(a, phi)
	sx := cmat.Add(cmat.Mul(as, a.H()), noise)

	lu := cmat.Factorize(sx)
	sxInv, err := lu.Inverse()
	if err != nil {
		channels, _ := sx.Dims()
		sxInv = cmat.Filled(channels, channels, complex(math.NaN(), math.NaN()))
	}

	// Ss*A^H = (A*Ss)^H since Ss is real diagonal
	omega := cmat.Mul(as.H(), sxInv)
	omegaH := omega.H()
	rank := len(phi)
	rs := cmat.Add(
		cmat.Mul(cmat.Mul(omega, rx), omegaH),
		cmat.ScaleCols(cmat.Sub(cmat.Identity(rank), cmat.Mul(omega, a)), phi),
	)
	rxs := cmat.Mul(rx, omegaH)

	ll := -(real(cmat.Mul(sxInv, rx).Trace()) + math.Log(real(lu.Det())*math.Pi))
	return rs, rxs, ll
}
