package srcsep

import "srcsep/internal/cmat"

// Grid holds one small complex matrix per (bin, frame) cell.
type Grid struct {
	bins, frames int
	cells        []*cmat.Dense
}

// NewGrid returns a bins x frames grid of nil cells.
func NewGrid(bins, frames int) *Grid {
	return &Grid{bins: bins, frames: frames, cells: make([]*cmat.Dense, bins*frames)}
}

func (g *Grid) Bins() int { return g.bins }

func (g *Grid) Frames() int { return g.frames }

func (g *Grid) At(f, n int) *cmat.Dense { return g.cells[n*g.bins+f] }

func (g *Grid) Set(f, n int, m *cmat.Dense) { g.cells[n*g.bins+f] = m }

// MixtureCovariance is the grid of local spatial covariances Rx(f,n), each
// I x I and Hermitian positive semi-definite.
type MixtureCovariance struct {
	*Grid
	channels int
}

// NewMixtureCovariance returns a zero-filled covariance grid.
func NewMixtureCovariance(channels, bins, frames int) *MixtureCovariance {
	c := &MixtureCovariance{Grid: NewGrid(bins, frames), channels: channels}
	for i := range c.cells {
		c.cells[i] = cmat.Zeros(channels, channels)
	}
	return c
}

func (c *MixtureCovariance) Channels() int { return c.channels }

// outer returns x*x^H, exactly Hermitian with a real diagonal.
func outer(x []complex128) *cmat.Dense {
	n := len(x)
	m := cmat.Zeros(n, n)
	for i := 0; i < n; i++ {
		re, im := real(x[i]), imag(x[i])
		m.Set(i, i, complex(re*re+im*im, 0))
		for j := i + 1; j < n; j++ {
			v := x[i] * complex(real(x[j]), -imag(x[j]))
			m.Set(i, j, v)
			m.Set(j, i, complex(real(v), -imag(v)))
		}
	}
	return m
}

// ComputeMixtureCovariance analyses x with the transform selected by cfg.
func ComputeMixtureCovariance(x Audio, cfg Config) (*MixtureCovariance, error) {
	t, err := NewTransform(cfg)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.Covariance(x)
}
