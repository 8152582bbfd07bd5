package srcsep

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// IterationStat records one GEM iteration.
type IterationStat struct {
	Iteration     int     `json:"iteration"`
	LogLikelihood float64 `json:"loglik"`
	Improvement   float64 `json:"improvement,omitempty"`
}

// Report is the per-iteration log-likelihood trace of an estimation run.
type Report struct {
	Iterations []IterationStat `json:"iterations"`
}

// Final returns the last recorded log-likelihood.
func (r *Report) Final() (float64, bool) {
	if len(r.Iterations) == 0 {
		return 0, false
	}
	return r.Iterations[len(r.Iterations)-1].LogLikelihood, true
}

func (r *Report) Write(w io.Writer) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	_, err = w.Write(b)
	return err
}

func ReadReport(r io.Reader) (*Report, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, errors.Wrap(err, "decode report")
	}
	return &rep, nil
}
