package srcsep

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"srcsep/internal/cmat"
)

// rankPartition splits the global rank columns by mixing type and
// adaptability. comp lists hold the complement of their partner.
type rankPartition struct {
	conv, convComp []int // convolutive and free / the rest
	inst, instComp []int // instantaneous and free / the rest
}

// Sources is the set of sources sharing one mixture. It owns the global
// mixing matrix A(f), the horizontal concatenation of every source's A(f),
// and writes updated columns back into the sources.
type Sources struct {
	list                   []*Source
	channels, bins, frames int
	rank                   int
	offsets                []int // first global column of each source

	a    []*cmat.Dense // one I x R matrix per bin
	part rankPartition
}

// NewSources checks that every source agrees on channels, bins and frames,
// then assembles the global mixing matrix.
func NewSources(list []*Source) (*Sources, error) {
	if len(list) == 0 {
		return nil, errors.Wrap(ErrInvalidValue, "no sources")
	}
	s := &Sources{
		list:     list,
		channels: list[0].Channels(),
		bins:     list[0].Bins(),
		frames:   list[0].Frames(),
		offsets:  make([]int, len(list)),
	}
	for j, src := range list {
		if src.Channels() != s.channels {
			return nil, errors.WithMessagef(inconsistent("channels", s.channels, src.Channels()), "source %d", j)
		}
		if src.Bins() != s.bins {
			return nil, errors.WithMessagef(inconsistent("bins", s.bins, src.Bins()), "source %d", j)
		}
		if src.Frames() != s.frames {
			return nil, errors.WithMessagef(inconsistent("frames", s.frames, src.Frames()), "source %d", j)
		}
		s.offsets[j] = s.rank
		s.rank += src.Rank()
	}

	s.a = make([]*cmat.Dense, s.bins)
	for f := range s.a {
		a := cmat.Zeros(s.channels, s.rank)
		for j, src := range list {
			a.SetCols(s.block(j), src.A.At(f))
		}
		s.a[f] = a
	}

	for j, src := range list {
		block := s.block(j)
		switch {
		case src.A.Type == Convolutive && src.A.IsFree():
			s.part.conv = append(s.part.conv, block...)
			s.part.instComp = append(s.part.instComp, block...)
		case src.A.Type == Instantaneous && src.A.IsFree():
			s.part.inst = append(s.part.inst, block...)
			s.part.convComp = append(s.part.convComp, block...)
		default:
			s.part.convComp = append(s.part.convComp, block...)
			s.part.instComp = append(s.part.instComp, block...)
		}
	}
	return s, nil
}

func (s *Sources) Len() int { return len(s.list) }

// Source returns the j-th source.
func (s *Sources) Source(j int) *Source { return s.list[j] }

func (s *Sources) Channels() int { return s.channels }

func (s *Sources) Bins() int { return s.bins }

func (s *Sources) Frames() int { return s.frames }

// Rank returns the total number of rank columns over all sources.
func (s *Sources) Rank() int { return s.rank }

// A returns the global mixing matrix of bin f.
func (s *Sources) A(f int) *cmat.Dense { return s.a[f] }

// block returns the global column indices of source j.
func (s *Sources) block(j int) []int {
	cols := make([]int, s.list[j].Rank())
	for i := range cols {
		cols[i] = s.offsets[j] + i
	}
	return cols
}

// CheckCovariance verifies that rx matches the sources' channels, bins and
// frames.
func (s *Sources) CheckCovariance(rx *MixtureCovariance) error {
	if rx.Bins() != s.bins {
		return errors.WithMessage(inconsistent("bins", s.bins, rx.Bins()), "covariance")
	}
	if rx.Frames() != s.frames {
		return errors.WithMessage(inconsistent("frames", s.frames, rx.Frames()), "covariance")
	}
	if rx.Channels() != s.channels {
		return errors.WithMessage(inconsistent("channels", s.channels, rx.Channels()), "covariance")
	}
	return nil
}

// sourcePowers fills phi with V_j(f,n) repeated over each source's rank block.
func (s *Sources) sourcePowers(f, n int, phi []float64) {
	for j, src := range s.list {
		v := src.v.At(f, n)
		for r := 0; r < src.Rank(); r++ {
			phi[s.offsets[j]+r] = v
		}
	}
}

// UpdateMixing re-estimates the free mixing columns from the statistics.
// Convolutive columns are solved bin by bin; instantaneous columns are solved
// once from real parts pooled over all bins, after the convolutive update.
func (s *Sources) UpdateMixing(stats *NaturalStatistics, workers int) {
	if s.bins == 0 {
		return
	}
	p := s.part
	if len(p.conv) > 0 {
		parallelFor(s.bins, workers, func(f int) {
			num, den := s.regressionSums(stats, f, p.conv, p.convComp)
			inv, err := cmat.Inverse(den)
			if err != nil {
				inv = cmat.Filled(len(p.conv), len(p.conv), complex(math.NaN(), math.NaN()))
			}
			s.a[f].SetCols(p.conv, cmat.Mul(num, inv))
		})
	}

	if len(p.inst) > 0 {
		nums := make([]*cmat.Dense, s.bins)
		dens := make([]*cmat.Dense, s.bins)
		parallelFor(s.bins, workers, func(f int) {
			nums[f], dens[f] = s.regressionSums(stats, f, p.inst, p.instComp)
		})
		num := mat.NewDense(s.channels, len(p.inst), nil)
		den := mat.NewDense(len(p.inst), len(p.inst), nil)
		for f := 0; f < s.bins; f++ {
			addReal(num, nums[f])
			addReal(den, dens[f])
		}

		var inv mat.Dense
		if err := inv.Inverse(den); err != nil {
			if c, ok := err.(mat.Condition); !ok || math.IsInf(float64(c), 1) {
				inv.Apply(func(int, int, float64) float64 { return math.NaN() }, den)
			}
		}
		var sol mat.Dense
		sol.Mul(num, &inv)

		cols := cmat.Zeros(s.channels, len(p.inst))
		for i := 0; i < s.channels; i++ {
			for k := range p.inst {
				cols.Set(i, k, complex(sol.At(i, k), 0))
			}
		}
		for f := 0; f < s.bins; f++ {
			s.a[f].SetCols(p.inst, cols)
		}
	}

	s.writeBack()
}

// regressionSums returns, for bin f, sum_n (hatRxs[:,sel] - A[:,rest]*hatRs[rest,sel])
// and sum_n hatRs[sel,sel].
func (s *Sources) regressionSums(stats *NaturalStatistics, f int, sel, rest []int) (*cmat.Dense, *cmat.Dense) {
	rxs := cmat.Zeros(s.channels, len(sel))
	rsSel := cmat.Zeros(len(sel), len(sel))
	rsRest := cmat.Zeros(len(rest), len(sel))
	for n := 0; n < s.frames; n++ {
		rs := stats.HatRs.At(f, n)
		rxs.AddTo(stats.HatRxs.At(f, n).Select(nil, sel))
		rsSel.AddTo(rs.Select(sel, sel))
		if len(rest) > 0 {
			rsRest.AddTo(rs.Select(rest, sel))
		}
	}
	if len(rest) > 0 {
		rxs = cmat.Sub(rxs, cmat.Mul(s.a[f].Select(nil, rest), rsRest))
	}
	return rxs, rsSel
}

func addReal(dst *mat.Dense, src *cmat.Dense) {
	r, c := src.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(i, j, dst.At(i, j)+real(src.At(i, j)))
		}
	}
}

// writeBack copies the global columns of free sources into their mixing
// parameters and refreshes their spatial covariance.
func (s *Sources) writeBack() {
	for j, src := range s.list {
		if !src.A.IsFree() {
			continue
		}
		block := s.block(j)
		if src.A.Type == Instantaneous {
			src.A.Set(0, s.a[0].Select(nil, block))
		} else {
			for f := 0; f < s.bins; f++ {
				src.A.Set(f, s.a[f].Select(nil, block))
			}
		}
		src.refreshR()
	}
}

// UpdateSpectralPower refits every source's free factors to the mean
// posterior power of its rank block, Re diag(hatRs).
func (s *Sources) UpdateSpectralPower(stats *NaturalStatistics, workers int) {
	if s.bins == 0 || s.frames == 0 {
		return
	}
	parallelFor(len(s.list), workers, func(j int) {
		src := s.list[j]
		if !src.hasFreeFactor() {
			return
		}
		rank := src.Rank()
		off := s.offsets[j]
		xi := mat.NewDense(s.bins, s.frames, nil)
		for n := 0; n < s.frames; n++ {
			for f := 0; f < s.bins; f++ {
				rs := stats.HatRs.At(f, n)
				var sum float64
				for r := off; r < off+rank; r++ {
					sum += real(rs.At(r, r))
				}
				xi.Set(f, n, sum/float64(rank))
			}
		}
		src.UpdateSpectralPower(xi)
	})
}
