package variant

import (
	"fmt"

	"github.com/c360/visionflow/errors"
)

// Image is an 8-bit interleaved raster. Pix holds Height*Width*Channels bytes
// in row-major order.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// NewImage allocates a zeroed image.
func NewImage(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%dx%dx%d: %w", width, height, channels, errors.ErrInvalidData),
			"Image", "NewImage", "validate dimensions")
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}, nil
}

// At returns the sample at column x, row y and channel c.
func (img *Image) At(x, y, c int) byte {
	return img.Pix[(y*img.Width+x)*img.Channels+c]
}

// Set stores a sample. Only valid before the image is wrapped in a Variant.
func (img *Image) Set(x, y, c int, value byte) {
	img.Pix[(y*img.Width+x)*img.Channels+c] = value
}

// Equal implements Equaler.
func (img *Image) Equal(other any) bool {
	o, ok := other.(*Image)
	if !ok || o == nil || img == nil {
		return ok && o == img
	}
	if img.Width != o.Width || img.Height != o.Height || img.Channels != o.Channels {
		return false
	}
	return string(img.Pix) == string(o.Pix)
}

func (img *Image) String() string {
	return fmt.Sprintf("image(%dx%dx%d)", img.Width, img.Height, img.Channels)
}

// Matrix is a dense row-major float64 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// NewMatrix builds a matrix from row-major data.
func NewMatrix(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%dx%d with %d values: %w", rows, cols, len(data), errors.ErrInvalidData),
			"Matrix", "NewMatrix", "validate dimensions")
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	return &Matrix{Rows: rows, Cols: cols, Data: cp}, nil
}

// At returns the element at row r, column c.
func (m *Matrix) At(r, c int) float64 { return m.Data[r*m.Cols+c] }

// Equal implements Equaler.
func (m *Matrix) Equal(other any) bool {
	o, ok := other.(*Matrix)
	if !ok || o == nil || m == nil {
		return ok && o == m
	}
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

func (m *Matrix) String() string {
	return fmt.Sprintf("matrix(%dx%d)", m.Rows, m.Cols)
}

// Expect returns ErrTypeMismatch unless v carries one of the given tags.
func Expect(v Variant, tags ...Tag) error {
	for _, t := range tags {
		if v.Tag() == t {
			return nil
		}
	}
	return fmt.Errorf("got %q, want one of %v: %w", v.Tag(), tags, errors.ErrTypeMismatch)
}
