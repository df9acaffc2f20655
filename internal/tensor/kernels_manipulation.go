package tensor

import "github.com/pkg/errors"

// Broadcast tiles x along dimension dim, which must have size 1, to size.
func (d *Device) Broadcast(x *Tensor, dim, size int) (*Tensor, error) {
	if err := d.own("broadcast", x); err != nil {
		return nil, err
	}
	if dim < 0 || size <= 0 {
		return nil, argumentErrorf("%s: broadcast(dim=%d, size=%d)", d, dim, size)
	}
	if x.shape.Dim(dim) != 1 {
		return nil, shapeErrorf("%s: broadcast: dimension %d of %s is not 1", d, dim, x.shape)
	}
	shape, err := x.shape.ResizeDim(dim, size)
	if err != nil {
		return nil, err
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	base := x.shape.LowerVolume(dim)
	for j := 0; j < size; j++ {
		d.backend.Blocks(y.st.buf, x.st.buf, BlockCopy{
			DstOffset: j * base, DstStride: base * size,
			SrcStride: base,
			Len:       base, Count: x.shape.Size() / base,
		})
	}
	return y, nil
}

// Slice extracts the window [lo, hi) of dimension dim.
func (d *Device) Slice(x *Tensor, dim, lo, hi int) (*Tensor, error) {
	if err := d.own("slice", x); err != nil {
		return nil, err
	}
	if dim < 0 {
		return nil, argumentErrorf("%s: slice: negative dimension %d", d, dim)
	}
	n := x.shape.Dim(dim)
	if lo < 0 || lo >= hi || hi > n {
		return nil, shapeErrorf("%s: slice: invalid range [%d, %d) of dimension %d in %s", d, lo, hi, dim, x.shape)
	}
	shape, err := x.shape.ResizeDim(dim, hi-lo)
	if err != nil {
		return nil, err
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	base := x.shape.LowerVolume(dim)
	d.backend.Blocks(y.st.buf, x.st.buf, BlockCopy{
		DstStride: (hi - lo) * base,
		SrcOffset: lo * base, SrcStride: n * base,
		Len: (hi - lo) * base, Count: x.shape.Size() / (n * base),
	})
	return y, nil
}

// SliceBackward accumulates gy into the window of gx that starts at offset
// along dimension dim. Apart from that dimension the shapes must be equal.
func (d *Device) SliceBackward(gx, gy *Tensor, dim, offset int) error {
	if err := d.own("slice backward", gx, gy); err != nil {
		return err
	}
	if dim < 0 || offset < 0 {
		return argumentErrorf("%s: slice backward(dim=%d, offset=%d)", d, dim, offset)
	}
	n, m := gx.shape.Dim(dim), gy.shape.Dim(dim)
	want, err := gx.shape.ResizeDim(dim, m)
	if err != nil {
		return err
	}
	if !want.Equal(gy.shape) || offset+m > n {
		return shapeErrorf("%s: slice backward: %s at offset %d does not fit dimension %d of %s",
			d, gy.shape, offset, dim, gx.shape)
	}
	if err := d.makeUnique(gx); err != nil {
		return err
	}
	base := gx.shape.LowerVolume(dim)
	d.backend.Blocks(gx.st.buf, gy.st.buf, BlockCopy{
		DstOffset: offset * base, DstStride: n * base,
		SrcStride: m * base,
		Len:       m * base, Count: gy.shape.Size() / (m * base),
		Accumulate: true,
	})
	return nil
}

// Concat joins xs along dimension dim. Every input must match the others
// outside dim; batch sizes must be equal or 1.
func (d *Device) Concat(xs []*Tensor, dim int) (*Tensor, error) {
	if len(xs) == 0 {
		return nil, shapeErrorf("%s: concat: no inputs", d)
	}
	if err := d.own("concat", xs...); err != nil {
		return nil, err
	}
	shapes := make([]Shape, len(xs))
	for i, x := range xs {
		shapes[i] = x.shape
	}
	shape, err := ConcatShape(shapes, dim)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", d)
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	base := shape.LowerVolume(dim)
	total := shape.Dim(dim)
	vol := shape.Volume()
	offset := 0
	for _, x := range xs {
		n := x.shape.Dim(dim)
		span := n * base
		p := BlockCopy{
			DstOffset: offset * base, DstStride: total * base,
			SrcStride: span,
			Len:       span, Count: shape.Size() / (total * base),
		}
		if x.shape.Batch() != shape.Batch() {
			// batch-1 input repeated for every item
			p.Count = vol / (total * base)
			for b := 0; b < shape.Batch(); b++ {
				p.DstOffset = b*vol + offset*base
				d.backend.Blocks(y.st.buf, x.st.buf, p)
			}
		} else {
			d.backend.Blocks(y.st.buf, x.st.buf, p)
		}
		offset += n
	}
	return y, nil
}

// ConcatShape infers the shape of concatenating shapes along dim.
func ConcatShape(shapes []Shape, dim int) (Shape, error) {
	if len(shapes) == 0 {
		return Shape{}, shapeErrorf("concat: no inputs")
	}
	if dim < 0 || dim >= MaxDepth {
		return Shape{}, shapeErrorf("concat: dimension %d out of range", dim)
	}
	first := shapes[0]
	ref, err := first.ResizeDim(dim, 1)
	if err != nil {
		return Shape{}, err
	}
	total := 0
	batch := 1
	for _, s := range shapes {
		a, err := s.ResizeDim(dim, 1)
		if err != nil {
			return Shape{}, err
		}
		if !a.HasSameDims(ref) {
			return Shape{}, shapeErrorf("concat: %s and %s differ outside dimension %d", first, s, dim)
		}
		if s.Batch() != 1 {
			if batch != 1 && batch != s.Batch() {
				return Shape{}, shapeErrorf("concat: incompatible batch sizes %d and %d", batch, s.Batch())
			}
			batch = s.Batch()
		}
		total += s.Dim(dim)
	}
	out, err := first.ResizeDim(dim, total)
	if err != nil {
		return Shape{}, err
	}
	return out.ResizeBatch(batch)
}

// PickShape infers the shape of picking ids along dim of x.
func PickShape(x Shape, ids []int, dim int) (Shape, error) {
	if len(ids) == 0 {
		return Shape{}, shapeErrorf("pick: no ids")
	}
	if dim < 0 {
		return Shape{}, shapeErrorf("pick: negative dimension %d", dim)
	}
	if len(ids) != 1 && x.Batch() != 1 && len(ids) != x.Batch() {
		return Shape{}, shapeErrorf("pick: %d ids do not match batch of %s", len(ids), x)
	}
	n := x.Dim(dim)
	for _, id := range ids {
		if id < 0 || id >= n {
			return Shape{}, shapeErrorf("pick: id %d out of range [0, %d) in dimension %d of %s", id, n, dim, x)
		}
	}
	out, err := x.ResizeDim(dim, 1)
	if err != nil {
		return Shape{}, err
	}
	return out.ResizeBatch(max(len(ids), x.Batch()))
}

// pickItem returns the source item and id used for minibatch item b.
func pickItem(ids []int, xBatch, b int) (xb, id int) {
	if len(ids) > 1 {
		id = ids[b]
	} else {
		id = ids[0]
	}
	if xBatch > 1 {
		xb = b
	}
	return xb, id
}

// Pick gathers slice ids[b] of dimension dim for every minibatch item b.
// A single id is used for every item; a batch-1 x is shared by every id.
func (d *Device) Pick(x *Tensor, ids []int, dim int) (*Tensor, error) {
	if err := d.own("pick", x); err != nil {
		return nil, err
	}
	shape, err := PickShape(x.shape, ids, dim)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", d)
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	base := x.shape.LowerVolume(dim)
	n := x.shape.Dim(dim)
	xvol, yvol := x.shape.Volume(), shape.Volume()
	for b := 0; b < shape.Batch(); b++ {
		xb, id := pickItem(ids, x.shape.Batch(), b)
		d.backend.Blocks(y.st.buf, x.st.buf, BlockCopy{
			DstOffset: b * yvol, DstStride: base,
			SrcOffset: xb*xvol + id*base, SrcStride: n * base,
			Len: base, Count: xvol / (n * base),
		})
	}
	return y, nil
}

// PickBackward scatters gy back into gx at the picked positions, adding into
// what is already there.
func (d *Device) PickBackward(gx, gy *Tensor, ids []int, dim int) error {
	if err := d.own("pick backward", gx, gy); err != nil {
		return err
	}
	shape, err := PickShape(gx.shape, ids, dim)
	if err != nil {
		return errors.Wrapf(err, "%s", d)
	}
	if !shape.Equal(gy.shape) {
		return shapeErrorf("%s: pick backward: gradient %s, want %s", d, gy.shape, shape)
	}
	if err := d.makeUnique(gx); err != nil {
		return err
	}
	base := gx.shape.LowerVolume(dim)
	n := gx.shape.Dim(dim)
	xvol, yvol := gx.shape.Volume(), shape.Volume()
	for b := 0; b < shape.Batch(); b++ {
		xb, id := pickItem(ids, gx.shape.Batch(), b)
		d.backend.Blocks(gx.st.buf, gy.st.buf, BlockCopy{
			DstOffset: xb*xvol + id*base, DstStride: n * base,
			SrcOffset: b * yvol, SrcStride: base,
			Len: base, Count: xvol / (n * base),
			Accumulate: true,
		})
	}
	return nil
}

// ReshapeShape infers the result of reshaping x to target. The volumes must
// agree; the target batch must be 1 (keep x's batch) or equal to x's.
func ReshapeShape(x, target Shape) (Shape, error) {
	if target.Volume() != x.Volume() {
		return Shape{}, shapeErrorf("reshape: volume of %s differs from %s", target, x)
	}
	if target.Batch() != 1 && target.Batch() != x.Batch() {
		return Shape{}, shapeErrorf("reshape: batch of %s differs from %s", target, x)
	}
	return target.ResizeBatch(x.Batch())
}

// Reshape returns a copy of x with the dimensions of target.
func (d *Device) Reshape(x *Tensor, target Shape) (*Tensor, error) {
	if err := d.own("reshape", x); err != nil {
		return nil, err
	}
	shape, err := ReshapeShape(x.shape, target)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", d)
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.Copy(y.st.buf, x.st.buf)
	return y, nil
}

// Transpose swaps the two dimensions of a matrix.
func (d *Device) Transpose(x *Tensor) (*Tensor, error) {
	if err := d.own("transpose", x); err != nil {
		return nil, err
	}
	if !x.shape.IsMatrix() {
		return nil, shapeErrorf("%s: transpose: %s is not a matrix", d, x.shape)
	}
	r, c := x.shape.Dim(0), x.shape.Dim(1)
	shape, err := NewShape([]int{c, r}, x.shape.Batch())
	if err != nil {
		return nil, err
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.Transpose(y.st.buf, x.st.buf, r, c, x.shape.Batch(), false)
	return y, nil
}

// TransposeBackward accumulates the transpose of gy into gx.
func (d *Device) TransposeBackward(gx, gy *Tensor) error {
	if err := d.own("transpose backward", gx, gy); err != nil {
		return err
	}
	if !gx.shape.IsMatrix() || !gy.shape.IsMatrix() ||
		gx.shape.Dim(0) != gy.shape.Dim(1) || gx.shape.Dim(1) != gy.shape.Dim(0) ||
		gx.shape.Batch() != gy.shape.Batch() {
		return shapeErrorf("%s: transpose backward: %s is not the transpose of %s", d, gy.shape, gx.shape)
	}
	if err := d.makeUnique(gx); err != nil {
		return err
	}
	d.backend.Transpose(gx.st.buf, gy.st.buf, gy.shape.Dim(0), gy.shape.Dim(1), gy.shape.Batch(), true)
	return nil
}

// MatMulShape infers the shape of a·b.
func MatMulShape(a, b Shape) (Shape, error) {
	if !a.IsMatrix() || !b.IsMatrix() {
		return Shape{}, shapeErrorf("matmul: %s and %s must be matrices", a, b)
	}
	if a.Dim(1) != b.Dim(0) {
		return Shape{}, shapeErrorf("matmul: inner dimensions differ: %s vs %s", a, b)
	}
	if !a.HasCompatibleBatch(b) {
		return Shape{}, shapeErrorf("matmul: batch sizes not compatible: %s vs %s", a, b)
	}
	return NewShape([]int{a.Dim(0), b.Dim(1)}, max(a.Batch(), b.Batch()))
}

// MatMul computes the matrix product a·b per minibatch item; a batch-1
// operand is shared by every item.
func (d *Device) MatMul(a, b *Tensor) (*Tensor, error) {
	if err := d.own("matmul", a, b); err != nil {
		return nil, err
	}
	shape, err := MatMulShape(a.shape, b.shape)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", d)
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.MatMul(y.st.buf, a.st.buf, b.st.buf, Gemm{
		M: a.shape.Dim(0), K: a.shape.Dim(1), N: b.shape.Dim(1),
		BatchA: a.shape.Batch(), BatchB: b.shape.Batch(), BatchC: shape.Batch(),
	})
	return y, nil
}

// MatMulBackward accumulates ga += gy·bᵀ and gb += aᵀ·gy. Either
// accumulator may be nil.
func (d *Device) MatMulBackward(a, b, gy, ga, gb *Tensor) error {
	if err := d.own("matmul backward", a, b, gy); err != nil {
		return err
	}
	shape, err := MatMulShape(a.shape, b.shape)
	if err != nil {
		return errors.Wrapf(err, "%s", d)
	}
	if !gy.shape.Equal(shape) {
		return shapeErrorf("%s: matmul backward: gradient %s, want %s", d, gy.shape, shape)
	}
	m, k, n := a.shape.Dim(0), a.shape.Dim(1), b.shape.Dim(1)
	if ga != nil {
		if err := d.own("matmul backward", ga); err != nil {
			return err
		}
		if !ga.shape.Equal(a.shape) {
			return shapeErrorf("%s: matmul backward: gradient %s does not match %s", d, ga.shape, a.shape)
		}
	}
	if gb != nil {
		if err := d.own("matmul backward", gb); err != nil {
			return err
		}
		if !gb.shape.Equal(b.shape) {
			return shapeErrorf("%s: matmul backward: gradient %s does not match %s", d, gb.shape, b.shape)
		}
	}
	if ga != nil {
		if err := d.makeUnique(ga); err != nil {
			return err
		}
		d.backend.MatMul(ga.st.buf, gy.st.buf, b.st.buf, Gemm{
			M: m, K: n, N: k,
			BatchA: gy.shape.Batch(), BatchB: b.shape.Batch(), BatchC: ga.shape.Batch(),
			TransB: true, Accumulate: true,
		})
	}
	if gb != nil {
		if err := d.makeUnique(gb); err != nil {
			return err
		}
		d.backend.MatMul(gb.st.buf, a.st.buf, gy.st.buf, Gemm{
			M: k, K: m, N: n,
			BatchA: a.shape.Batch(), BatchB: gy.shape.Batch(), BatchC: gb.shape.Batch(),
			TransA: true, Accumulate: true,
		})
	}
	return nil
}
