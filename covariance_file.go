package srcsep

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"srcsep/internal/cmat"
)

// The covariance file is little-endian: int32 ndim (3), int32 dims
// [I*I, F, N], then I*I*F*N float32 values. Each cell occupies I*I values
// at offset f*I*I + n*F*I*I: the I real diagonal entries, then the upper
// triangle row by row as (re, im) pairs.

// maxCovarianceValues bounds the grid size ReadCovariance accepts from a
// stream whose length is unknown (1 GiB of float32).
const maxCovarianceValues = 1 << 28

// packedIndex returns the offset of the real part of entry (i1,i2), i1 < i2,
// within a cell.
func packedIndex(channels, i1, i2 int) int {
	// entries of rows above i1 in the upper triangle
	sum := 0
	for k := 0; k < i1; k++ {
		sum += channels - 1 - k
	}
	return (i2-i1+sum)*2 - 2 + channels
}

// WriteCovariance encodes rx.
func WriteCovariance(w io.Writer, rx *MixtureCovariance) error {
	I, F, N := rx.Channels(), rx.Bins(), rx.Frames()
	bw := bufio.NewWriter(w)
	header := []int32{3, int32(I * I), int32(F), int32(N)}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}

	cell := make([]float32, I*I)
	for n := 0; n < N; n++ {
		for f := 0; f < F; f++ {
			m := rx.At(f, n)
			for i := 0; i < I; i++ {
				cell[i] = float32(real(m.At(i, i)))
			}
			for i1 := 0; i1 < I-1; i1++ {
				for i2 := i1 + 1; i2 < I; i2++ {
					k := packedIndex(I, i1, i2)
					cell[k] = float32(real(m.At(i1, i2)))
					cell[k+1] = float32(imag(m.At(i1, i2)))
				}
			}
			if err := binary.Write(bw, binary.LittleEndian, cell); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// ReadCovariance decodes a covariance grid, restoring the lower triangle
// by conjugation. Headers announcing more than maxCovarianceValues values
// are rejected before anything is allocated.
func ReadCovariance(r io.Reader) (*MixtureCovariance, error) {
	return readCovariance(r, maxCovarianceValues)
}

// readCovariance decodes a grid of at most limit values.
func readCovariance(r io.Reader, limit int64) (*MixtureCovariance, error) {
	br := bufio.NewReader(r)
	var ndim int32
	if err := binary.Read(br, binary.LittleEndian, &ndim); err != nil {
		return nil, errors.Wrap(ErrBadCovarianceFile, err.Error())
	}
	if ndim != 3 {
		return nil, errors.Wrapf(ErrBadCovarianceFile, "ndim %d", ndim)
	}
	dims := make([]int32, 3)
	if err := binary.Read(br, binary.LittleEndian, dims); err != nil {
		return nil, errors.Wrap(ErrBadCovarianceFile, err.Error())
	}
	I := int(math.Round(math.Sqrt(float64(dims[0]))))
	if I <= 0 || int32(I*I) != dims[0] || dims[1] < 0 || dims[2] < 0 {
		return nil, errors.Wrapf(ErrBadCovarianceFile, "dims %v", dims)
	}
	if n := int64(dims[0]) * int64(dims[1]) * int64(dims[2]); n > limit {
		return nil, errors.Wrapf(ErrBadCovarianceFile, "dims %v need %d values, at most %d available", dims, n, limit)
	}
	F, N := int(dims[1]), int(dims[2])

	rx := NewMixtureCovariance(I, F, N)
	cell := make([]float32, I*I)
	for n := 0; n < N; n++ {
		for f := 0; f < F; f++ {
			if err := binary.Read(br, binary.LittleEndian, cell); err != nil {
				return nil, errors.Wrapf(ErrBadCovarianceFile, "cell (%d,%d): %v", f, n, err)
			}
			m := cmat.Zeros(I, I)
			for i := 0; i < I; i++ {
				m.Set(i, i, complex(float64(cell[i]), 0))
			}
			for i1 := 0; i1 < I-1; i1++ {
				for i2 := i1 + 1; i2 < I; i2++ {
					k := packedIndex(I, i1, i2)
					v := complex(float64(cell[k]), float64(cell[k+1]))
					m.Set(i1, i2, v)
					m.Set(i2, i1, complex(real(v), -imag(v)))
				}
			}
			rx.Set(f, n, m)
		}
	}
	return rx, nil
}

// WriteCovarianceFile writes rx to fileName.
func WriteCovarianceFile(fileName string, rx *MixtureCovariance) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "create %s", fileName)
	}
	if err := WriteCovariance(f, rx); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", fileName)
	}
	return f.Close()
}

// ReadCovarianceFile reads a covariance grid from fileName.
func ReadCovarianceFile(fileName string) (*MixtureCovariance, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", fileName)
	}
	// header is four int32
	limit := (fi.Size() - 16) / 4
	if limit > maxCovarianceValues {
		limit = maxCovarianceValues
	}
	rx, err := readCovariance(f, limit)
	return rx, errors.WithMessage(err, fileName)
}
