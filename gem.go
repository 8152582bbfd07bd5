package srcsep

import (
	"math"

	"github.com/sirupsen/logrus"

	"srcsep/internal/cmat"
)

// Estimator fits source parameters to a mixture covariance by generalized
// EM. Each iteration runs the E-step under an isotropic noise floor moving
// from its initial to its final level, then updates the mixing matrices and
// the spectral powers.
type Estimator struct {
	cfg Config
	log logrus.FieldLogger

	// OnIteration, when set, is called after every E-step.
	OnIteration func(IterationStat)
}

// NewEstimator returns an estimator logging to log, or to the standard
// logrus logger when log is nil.
func NewEstimator(cfg Config, log logrus.FieldLogger) *Estimator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Estimator{cfg: cfg, log: log}
}

// NoiseFloor returns, per bin, the mean over frames of Re tr(Rx(f,n)) / I.
func NoiseFloor(rx *MixtureCovariance) []float64 {
	F, N, I := rx.Bins(), rx.Frames(), rx.Channels()
	noise := make([]float64, F)
	for f := 0; f < F; f++ {
		for n := 0; n < N; n++ {
			noise[f] += real(rx.At(f, n).Trace()) / float64(I)
		}
		noise[f] /= float64(N)
	}
	return noise
}

// NoiseSchedule returns Sigma_b(f) = sigma(f)^2 * I for iteration k of iterations, where
// sigma interpolates linearly from sqrt(beg) to sqrt(end).
func NoiseSchedule(beg, end []float64, k, iterations, channels int) []*cmat.Dense {
	K := float64(iterations)
	sigma := make([]*cmat.Dense, len(beg))
	for f := range beg {
		s := (math.Sqrt(beg[f])*(K-float64(k)-1) + math.Sqrt(end[f])*(float64(k)+1)) / K
		sigma[f] = cmat.Scaled(channels, s*s)
	}
	return sigma
}

// Run estimates srcs from rx with the noise floor annealed from 1/100 to
// 1/10000 of the mixture's per-bin power.
func (e *Estimator) Run(srcs *Sources, rx *MixtureCovariance) (*Report, error) {
	if err := srcs.CheckCovariance(rx); err != nil {
		return nil, err
	}
	noise := NoiseFloor(rx)
	beg := make([]float64, len(noise))
	end := make([]float64, len(noise))
	for f, v := range noise {
		beg[f] = v / 100
		end[f] = v / 10000
	}
	return e.RunWithNoise(srcs, rx, beg, end)
}

// RunWithNoise estimates srcs from rx with explicit initial and final noise
// levels per bin. Passing beg == end holds the floor fixed.
func (e *Estimator) RunWithNoise(srcs *Sources, rx *MixtureCovariance, beg, end []float64) (*Report, error) {
	if err := srcs.CheckCovariance(rx); err != nil {
		return nil, err
	}
	iterations := e.cfg.IterationCount()
	report := &Report{Iterations: make([]IterationStat, 0, iterations)}

	var prev float64
	for k := 0; k < iterations; k++ {
		noise := NoiseSchedule(beg, end, k, iterations, rx.Channels())
		stats, err := srcs.Expectation(rx, noise, e.cfg.Workers)
		if err != nil {
			return report, err
		}

		stat := IterationStat{Iteration: k + 1, LogLikelihood: stats.LogLikelihood}
		fields := logrus.Fields{
			"iteration": k + 1,
			"of":        iterations,
			"loglik":    stats.LogLikelihood,
		}
		if k > 0 {
			stat.Improvement = stats.LogLikelihood - prev
			fields["improvement"] = stat.Improvement
		}
		if math.IsNaN(stats.LogLikelihood) || math.IsInf(stats.LogLikelihood, 0) {
			e.log.WithFields(fields).Warn("GEM iteration: non-finite log-likelihood")
		} else {
			e.log.WithFields(fields).Info("GEM iteration")
		}
		prev = stats.LogLikelihood
		report.Iterations = append(report.Iterations, stat)
		if e.OnIteration != nil {
			e.OnIteration(stat)
		}

		srcs.UpdateMixing(stats, e.cfg.Workers)
		srcs.UpdateSpectralPower(stats, e.cfg.Workers)
	}
	return report, nil
}
