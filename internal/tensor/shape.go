package tensor

import (
	"strconv"
	"strings"
)

// MaxDepth is the maximum number of significant (non-batch) dimensions.
const MaxDepth = 8

// Shape describes the dimensions of a tensor plus its minibatch size.
//
// Trailing dimensions of size 1 are insignificant and removed on construction,
// so Shape{2, 1} and Shape{2} are the same shape. The zero value is the
// scalar shape with batch size 1. Shapes are immutable: every method that
// "changes" a shape returns a new one.
type Shape struct {
	dims  []int
	batch int
}

// NewShape creates a shape from its dimensions and batch size.
// It fails with ErrShape if a dimension or the batch is not positive, or if
// the number of significant dimensions exceeds MaxDepth.
func NewShape(dims []int, batch int) (Shape, error) {
	if batch <= 0 {
		return Shape{}, shapeErrorf("invalid batch size %d (must be > 0)", batch)
	}
	for i, d := range dims {
		if d <= 0 {
			return Shape{}, shapeErrorf("invalid dimension at index %d: %d (must be > 0)", i, d)
		}
	}
	n := len(dims)
	for n > 0 && dims[n-1] == 1 {
		n--
	}
	if n > MaxDepth {
		return Shape{}, shapeErrorf("too many dimensions: %d (max %d)", n, MaxDepth)
	}
	s := Shape{batch: batch}
	if n > 0 {
		s.dims = make([]int, n)
		copy(s.dims, dims[:n])
	}
	return s, nil
}

// Dims returns a copy of the significant dimensions.
func (s Shape) Dims() []int {
	out := make([]int, len(s.dims))
	copy(out, s.dims)
	return out
}

// Dim returns the size of dimension i; dimensions beyond Depth have size 1.
func (s Shape) Dim(i int) int {
	if i < len(s.dims) {
		return s.dims[i]
	}
	return 1
}

// Depth returns the number of significant dimensions.
func (s Shape) Depth() int {
	return len(s.dims)
}

// Batch returns the minibatch size.
func (s Shape) Batch() int {
	if s.batch == 0 {
		return 1
	}
	return s.batch
}

// Volume returns the number of elements in one minibatch item.
func (s Shape) Volume() int {
	v := 1
	for _, d := range s.dims {
		v *= d
	}
	return v
}

// Size returns the total number of elements including the batch.
func (s Shape) Size() int {
	return s.Volume() * s.Batch()
}

// LowerVolume returns the product of the dimensions below dim.
func (s Shape) LowerVolume(dim int) int {
	v := 1
	for i := 0; i < dim && i < len(s.dims); i++ {
		v *= s.dims[i]
	}
	return v
}

// HasBatch reports whether the batch size is greater than 1.
func (s Shape) HasBatch() bool {
	return s.Batch() > 1
}

// IsScalar reports whether the shape has no significant dimensions.
func (s Shape) IsScalar() bool {
	return len(s.dims) == 0
}

// IsColumnVector reports whether the shape has at most one significant dimension.
func (s Shape) IsColumnVector() bool {
	return len(s.dims) <= 1
}

// IsMatrix reports whether the shape has at most two significant dimensions.
func (s Shape) IsMatrix() bool {
	return len(s.dims) <= 2
}

// HasSameDims reports whether both shapes have identical dimensions,
// ignoring the batch.
func (s Shape) HasSameDims(other Shape) bool {
	if len(s.dims) != len(other.dims) {
		return false
	}
	for i := range s.dims {
		if s.dims[i] != other.dims[i] {
			return false
		}
	}
	return true
}

// HasCompatibleBatch reports whether the batch sizes are equal or one is 1.
func (s Shape) HasCompatibleBatch(other Shape) bool {
	a, b := s.Batch(), other.Batch()
	return a == b || a == 1 || b == 1
}

// Equal reports whether both dimensions and batch match.
func (s Shape) Equal(other Shape) bool {
	return s.Batch() == other.Batch() && s.HasSameDims(other)
}

// ResizeBatch returns a copy of the shape with the batch replaced by n.
func (s Shape) ResizeBatch(n int) (Shape, error) {
	return NewShape(s.dims, n)
}

// ResizeDim returns a copy of the shape with dimension dim replaced by n.
func (s Shape) ResizeDim(dim, n int) (Shape, error) {
	if dim < 0 || dim >= MaxDepth {
		return Shape{}, shapeErrorf("dimension index %d out of range [0, %d)", dim, MaxDepth)
	}
	dims := make([]int, max(len(s.dims), dim+1))
	for i := range dims {
		dims[i] = s.Dim(i)
	}
	dims[dim] = n
	return NewShape(dims, s.Batch())
}

// DimsString returns the dimensions joined by commas, e.g. "2,2".
// A scalar renders as "1".
func (s Shape) DimsString() string {
	if len(s.dims) == 0 {
		return "1"
	}
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// String returns a stable representation such as "[2,2]x3".
func (s Shape) String() string {
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ",") + "]x" + strconv.Itoa(s.Batch())
}

// Broadcast resolves the shape of an elementwise combination of a and b.
//
// Along every axis (and the batch) the sizes must be equal or one of them must
// be 1; the result takes the larger size. Incompatible sizes fail with
// ErrShape.
//
// Examples:
//
//	[2,2]x3 + []x3    -> [2,2]x3
//	[2,1]x1 + [2,5]x4 -> [2,5]x4
//	[2,3]x1 + [4,3]x1 -> ErrShape
func Broadcast(a, b Shape) (Shape, error) {
	depth := max(a.Depth(), b.Depth())
	dims := make([]int, depth)
	for i := range dims {
		da, db := a.Dim(i), b.Dim(i)
		switch {
		case da == db, db == 1:
			dims[i] = da
		case da == 1:
			dims[i] = db
		default:
			return Shape{}, shapeErrorf("shapes not compatible for broadcasting: %s vs %s (dimension %d: %d vs %d)",
				a, b, i, da, db)
		}
	}
	if !a.HasCompatibleBatch(b) {
		return Shape{}, shapeErrorf("batch sizes not compatible: %s vs %s", a, b)
	}
	return NewShape(dims, max(a.Batch(), b.Batch()))
}
