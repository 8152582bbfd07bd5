package srcsep

import (
	"gonum.org/v1/gonum/mat"
)

// Factor is a nonnegative matrix or the identity placeholder standing in for
// an absent factor. The identity adapts to whatever dimension it is
// multiplied against.
type Factor struct {
	m *mat.Dense // nil for identity
}

// IdentityFactor returns the identity placeholder.
func IdentityFactor() Factor { return Factor{} }

// DenseFactor wraps m. A nil m yields the identity.
func DenseFactor(m *mat.Dense) Factor { return Factor{m: m} }

func (a Factor) IsIdentity() bool { return a.m == nil }

// Dense returns the underlying matrix, nil for the identity.
func (a Factor) Dense() *mat.Dense { return a.m }

// Dims returns the matrix dimensions, 0x0 for the identity.
func (a Factor) Dims() (int, int) {
	if a.m == nil {
		return 0, 0
	}
	return a.m.Dims()
}

// Mul returns a*b. Identity on either side returns the other operand
// unchanged.
func (a Factor) Mul(b Factor) Factor {
	switch {
	case a.m == nil:
		return b
	case b.m == nil:
		return a
	}
	var c mat.Dense
	c.Mul(a.m, b.m)
	return Factor{m: &c}
}

// T returns the transpose. The identity transposes to itself.
func (a Factor) T() Factor {
	if a.m == nil {
		return a
	}
	return Factor{m: mat.DenseCopyOf(a.m.T())}
}

// Adaptability marks whether a parameter is re-estimated or held fixed.
type Adaptability int

const (
	Free Adaptability = iota
	Fixed
)

func (a Adaptability) String() string {
	if a == Fixed {
		return "fixed"
	}
	return "free"
}

// Parameter is implemented by every quantity the estimator may update.
type Parameter interface {
	IsFree() bool
	// Payload serializes the current value as record text.
	Payload() string
}

// NonnegativeFactor is a Factor together with its adaptability.
type NonnegativeFactor struct {
	Factor
	Adaptability Adaptability
}

func (p *NonnegativeFactor) IsFree() bool { return p.Adaptability == Free }

// Payload returns the values column by column, each column on its own line,
// or "eye" for the identity.
func (p *NonnegativeFactor) Payload() string {
	return formatFactor(p.m)
}

// update applies one multiplicative Itakura-Saito step to the factor that
// sits between left and right in the product left*M*right, fitting the
// target xi. When e is non-nil the model is (left*M*right) .* e, elementwise.
//
//	M <- M .* (left^T (xi.*e ./ L.^2) right^T) ./ (left^T (e ./ L) right^T)
//	L  = (left M right) .* e
func (p *NonnegativeFactor) update(left, right Factor, xi, e *mat.Dense) {
	if p.m == nil {
		return
	}
	lambda := left.Mul(p.Factor).Mul(right).m
	if e != nil {
		var le mat.Dense
		le.MulElem(lambda, e)
		lambda = &le
	}

	var num, den mat.Dense
	num.Apply(func(i, j int, v float64) float64 {
		l := lambda.At(i, j)
		if e != nil {
			v *= e.At(i, j)
		}
		return v / (l * l)
	}, xi)
	den.Apply(func(i, j int, l float64) float64 {
		if e != nil {
			return e.At(i, j) / l
		}
		return 1 / l
	}, lambda)

	n := left.T().Mul(DenseFactor(&num)).Mul(right.T()).m
	d := left.T().Mul(DenseFactor(&den)).Mul(right.T()).m

	var ratio mat.Dense
	ratio.DivElem(n, d)
	p.m.MulElem(p.m, &ratio)
}
