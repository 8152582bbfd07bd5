package srcsep

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Document is the parameter file shared by the estimation tools: run
// settings followed by one record per source.
type Document struct {
	XMLName      xml.Name        `xml:"sources"`
	Iterations   int             `xml:"iterations,omitempty"`
	TFRType      string          `xml:"tfr_type,omitempty"`
	WindowLength int             `xml:"wlen,omitempty"`
	Bins         int             `xml:"nbin,omitempty"`
	Records      []*sourceRecord `xml:"source"`

	Attrs []xml.Attr    `xml:",any,attr"`
	Extra []*rawElement `xml:",any"`
}

// rawElement keeps an element the schema does not name so that it survives
// a parse and rewrite.
type rawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

type sourceRecord struct {
	Name   string        `xml:"name,attr,omitempty"`
	Wiener *wienerRecord `xml:"wiener,omitempty"`
	A      *mixingRecord `xml:"A"`
	Wex    *factorRecord `xml:"Wex,omitempty"`
	Uex    *factorRecord `xml:"Uex,omitempty"`
	Gex    *factorRecord `xml:"Gex,omitempty"`
	Hex    *factorRecord `xml:"Hex,omitempty"`
	Wft    *factorRecord `xml:"Wft,omitempty"`
	Uft    *factorRecord `xml:"Uft,omitempty"`
	Gft    *factorRecord `xml:"Gft,omitempty"`
	Hft    *factorRecord `xml:"Hft,omitempty"`

	Attrs []xml.Attr    `xml:",any,attr"`
	Extra []*rawElement `xml:",any"`
}

type wienerRecord struct {
	A  *string `xml:"a,omitempty"`
	B  *string `xml:"b,omitempty"`
	C1 *string `xml:"c1,omitempty"`
	C2 *string `xml:"c2,omitempty"`
	D  *string `xml:"d,omitempty"`
}

// ParseDocument decodes a parameter document.
func ParseDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode parameter document")
	}
	doc.TFRType = strings.TrimSpace(doc.TFRType)
	return &doc, nil
}

// LoadDocument reads a parameter document from fileName.
func LoadDocument(fileName string) (*Document, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	defer f.Close()
	doc, err := ParseDocument(f)
	return doc, errors.WithMessage(err, fileName)
}

// Config returns the run settings stored in the document.
func (d *Document) Config() Config {
	return Config{
		Iterations:   d.Iterations,
		TFR:          d.TFRType,
		WindowLength: d.WindowLength,
		Bins:         d.Bins,
	}
}

// Sources builds and cross-checks the sources described by the document.
func (d *Document) Sources() (*Sources, error) {
	list := make([]*Source, len(d.Records))
	for j, rec := range d.Records {
		src, err := rec.source()
		if err != nil {
			return nil, errors.WithMessagef(err, "source %d", j)
		}
		list[j] = src
	}
	return NewSources(list)
}

// ReplaceSources writes the current value of every free parameter back into
// the document's records. Fixed parameters keep the text they were parsed from.
func (d *Document) ReplaceSources(s *Sources) error {
	if len(d.Records) != s.Len() {
		return inconsistent("sources", len(d.Records), s.Len())
	}
	for j, rec := range d.Records {
		src := s.Source(j)
		if src.A.IsFree() {
			rec.A = src.A.record()
		}
		replaceFactors(rec.ex(), src.Ex.factors())
		if src.Ft != nil {
			replaceFactors(rec.ft(), src.Ft.factors())
		}
	}
	return nil
}

func replaceFactors(recs []**factorRecord, params []*NonnegativeFactor) {
	for i, p := range params {
		if *recs[i] == nil || !p.IsFree() {
			continue
		}
		*recs[i] = p.record()
	}
}

// Encode writes the document as indented XML.
func (d *Document) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return errors.Wrap(err, "encode parameter document")
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Write saves the document to fileName.
func (d *Document) Write(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "create %s", fileName)
	}
	if err := d.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *sourceRecord) ex() []**factorRecord {
	return []**factorRecord{&r.Wex, &r.Uex, &r.Gex, &r.Hex}
}

func (r *sourceRecord) ft() []**factorRecord {
	return []**factorRecord{&r.Wft, &r.Uft, &r.Gft, &r.Hft}
}

// part parses one spectral power part; absent factors are fixed identities.
func part(recs []**factorRecord) (SpectralPower, error) {
	var sp SpectralPower
	for i, p := range sp.factors() {
		rec := *recs[i]
		if rec == nil {
			*p = NonnegativeFactor{Factor: IdentityFactor(), Adaptability: Fixed}
			continue
		}
		f, err := parseFactor(rec)
		if err != nil {
			return sp, errors.WithMessage(err, factorNames[i])
		}
		*p = f
	}
	return sp, nil
}

var factorNames = [...]string{"W", "U", "G", "H"}

func (r *sourceRecord) source() (*Source, error) {
	if r.A == nil {
		return nil, errors.Wrap(ErrInvalidValue, "missing mixing parameter A")
	}
	a, err := parseMixing(r.A)
	if err != nil {
		return nil, errors.WithMessage(err, "A")
	}
	ex, err := part(r.ex())
	if err != nil {
		return nil, errors.WithMessage(err, "excitation")
	}
	var ft *SpectralPower
	if r.Wft != nil {
		p, err := part(r.ft())
		if err != nil {
			return nil, errors.WithMessage(err, "filter")
		}
		ft = &p
	}
	w, err := r.Wiener.params()
	if err != nil {
		return nil, err
	}
	return NewSource(strings.TrimSpace(r.Name), a, ex, ft, w)
}

func (r *wienerRecord) params() (WienerParams, error) {
	p := DefaultWienerParams()
	if r == nil {
		return p, nil
	}
	gain, err := optionalFloat(r.A, "a", 0)
	if err != nil {
		return p, err
	}
	b, err := optionalFloat(r.B, "b", 0)
	if err != nil {
		return p, err
	}
	c1, err := halfWidth(r.C1, "c1")
	if err != nil {
		return p, err
	}
	c2, err := halfWidth(r.C2, "c2")
	if err != nil {
		return p, err
	}
	floor, err := optionalFloat(r.D, "d", math.Inf(-1))
	if err != nil {
		return p, err
	}
	return NewWienerParams(gain, b, c1, c2, floor)
}

func optionalFloat(s *string, name string, def float64) (float64, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidValue, "%s = %q", name, *s)
	}
	return v, nil
}

func halfWidth(s *string, name string) (int, error) {
	v, err := optionalFloat(s, name, 0)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.Wrapf(ErrInvalidValue, "%s = %g must be non-negative", name, v)
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, errors.Wrapf(ErrInvalidValue, "%s = %g must be an integer", name, v)
	}
	return int(v), nil
}

// OutputName returns the file name for source j: its name, or y<j> when it
// has none, with a .wav extension.
func OutputName(s *Source, j int) string {
	if s.Name != "" {
		return s.Name + ".wav"
	}
	return fmt.Sprintf("y%d.wav", j)
}
