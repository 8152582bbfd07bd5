package srcsep

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"srcsep/internal/cmat"
)

const identityPayload = "eye"

// mixingRecord is the serialized form of a MixingParameter.
type mixingRecord struct {
	Adaptability string `xml:"adaptability,attr"`
	MixingType   string `xml:"mixing_type,attr"`
	NDims        int    `xml:"ndims"`
	Dims         []int  `xml:"dim"`
	Type         string `xml:"type"`
	Data         string `xml:"data"`
}

// factorRecord is the serialized form of a NonnegativeFactor.
type factorRecord struct {
	Adaptability string `xml:"adaptability,attr"`
	Rows         int    `xml:"rows,omitempty"`
	Cols         int    `xml:"cols,omitempty"`
	Data         string `xml:"data"`
}

func parseAdaptability(s string) (Adaptability, error) {
	switch strings.TrimSpace(s) {
	case "free":
		return Free, nil
	case "fixed":
		return Fixed, nil
	}
	return Free, errors.Wrapf(ErrInvalidValue, "adaptability %q", s)
}

func parseValues(s string) ([]float64, error) {
	fields := strings.Fields(s)
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "value %q", f)
		}
		vals[i] = v
	}
	return vals, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseMixing(rec *mixingRecord) (*MixingParameter, error) {
	adapt, err := parseAdaptability(rec.Adaptability)
	if err != nil {
		return nil, err
	}

	p := &MixingParameter{Adaptability: adapt}
	switch strings.TrimSpace(rec.MixingType) {
	case "inst":
		p.Type = Instantaneous
	case "conv":
		p.Type = Convolutive
	default:
		return nil, errors.Wrapf(ErrUnsupportedMixing, "mixing type %q", rec.MixingType)
	}
	switch strings.TrimSpace(rec.Type) {
	case "real":
	case "complex":
		p.Complex = true
	default:
		return nil, errors.Wrapf(ErrUnsupportedMixing, "value type %q", rec.Type)
	}

	if rec.NDims != len(rec.Dims) {
		return nil, errors.Wrapf(ErrInvalidValue, "ndims %d with %d dims", rec.NDims, len(rec.Dims))
	}
	switch {
	case p.Type == Convolutive && rec.NDims != 3:
		return nil, errors.Wrapf(ErrUnsupportedMixing, "conv mixing needs 3 dims, got %d", rec.NDims)
	case p.Type == Instantaneous && rec.NDims != 2:
		return nil, errors.Wrapf(ErrUnsupportedMixing, "inst mixing needs 2 dims, got %d", rec.NDims)
	case p.Type == Instantaneous && p.Complex:
		return nil, errors.Wrap(ErrUnsupportedMixing, "inst mixing must be real")
	}
	for _, d := range rec.Dims {
		if d <= 0 {
			return nil, errors.Wrapf(ErrInvalidValue, "dimension %d", d)
		}
	}

	channels, rank, bins := rec.Dims[0], rec.Dims[1], 1
	if p.Type == Convolutive {
		bins = rec.Dims[2]
	}
	parts := 1
	if p.Complex {
		parts = 2
	}
	vals, err := parseValues(rec.Data)
	if err != nil {
		return nil, err
	}
	block := channels * rank
	if want := block * bins * parts; len(vals) != want {
		return nil, errors.Wrapf(ErrInvalidValue, "mixing data has %d values, expected %d", len(vals), want)
	}

	// per bin: real block then, if complex, imaginary block; each column-major
	p.data = make([]*cmat.Dense, bins)
	for f := 0; f < bins; f++ {
		a := cmat.Zeros(channels, rank)
		off := f * block * parts
		for j := 0; j < rank; j++ {
			for i := 0; i < channels; i++ {
				k := off + j*channels + i
				im := 0.0
				if p.Complex {
					im = vals[k+block]
				}
				a.Set(i, j, complex(vals[k], im))
			}
		}
		p.data[f] = a
	}
	return p, nil
}

func formatMixing(p *MixingParameter) string {
	var b strings.Builder
	write := func(v float64) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(formatValue(v))
	}
	complexValued := p.Type == Convolutive && p.Complex
	for _, a := range p.data {
		r, c := a.Dims()
		for j := 0; j < c; j++ {
			for i := 0; i < r; i++ {
				write(real(a.At(i, j)))
			}
		}
		if !complexValued {
			continue
		}
		for j := 0; j < c; j++ {
			for i := 0; i < r; i++ {
				write(imag(a.At(i, j)))
			}
		}
	}
	return b.String()
}

func (p *MixingParameter) record() *mixingRecord {
	rec := &mixingRecord{
		Adaptability: p.Adaptability.String(),
		MixingType:   p.Type.String(),
		Type:         "real",
		Data:         p.Payload(),
	}
	if p.Type == Convolutive {
		rec.NDims = 3
		rec.Dims = []int{p.Channels(), p.Rank(), p.Bins()}
		if p.Complex {
			rec.Type = "complex"
		}
	} else {
		rec.NDims = 2
		rec.Dims = []int{p.Channels(), p.Rank()}
	}
	return rec
}

func parseFactor(rec *factorRecord) (NonnegativeFactor, error) {
	adapt, err := parseAdaptability(rec.Adaptability)
	if err != nil {
		return NonnegativeFactor{}, err
	}
	if strings.TrimSpace(rec.Data) == identityPayload {
		return NonnegativeFactor{Factor: IdentityFactor(), Adaptability: adapt}, nil
	}
	if rec.Rows <= 0 || rec.Cols <= 0 {
		return NonnegativeFactor{}, errors.Wrapf(ErrInvalidValue, "factor dimensions %dx%d", rec.Rows, rec.Cols)
	}
	vals, err := parseValues(rec.Data)
	if err != nil {
		return NonnegativeFactor{}, err
	}
	if len(vals) != rec.Rows*rec.Cols {
		return NonnegativeFactor{}, errors.Wrapf(ErrInvalidValue,
			"factor data has %d values, expected %d", len(vals), rec.Rows*rec.Cols)
	}
	m := mat.NewDense(rec.Rows, rec.Cols, nil)
	for j := 0; j < rec.Cols; j++ {
		for i := 0; i < rec.Rows; i++ {
			v := vals[j*rec.Rows+i]
			if v < 0 {
				return NonnegativeFactor{}, errors.Wrapf(ErrInvalidValue, "negative factor value %g", v)
			}
			m.Set(i, j, v)
		}
	}
	return NonnegativeFactor{Factor: DenseFactor(m), Adaptability: adapt}, nil
}

// formatFactor writes one line per column, values separated by spaces.
func formatFactor(m *mat.Dense) string {
	if m == nil {
		return identityPayload
	}
	r, c := m.Dims()
	var b strings.Builder
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatValue(m.At(i, j)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *NonnegativeFactor) record() *factorRecord {
	rec := &factorRecord{Adaptability: p.Adaptability.String(), Data: p.Payload()}
	rec.Rows, rec.Cols = p.Dims()
	return rec
}
