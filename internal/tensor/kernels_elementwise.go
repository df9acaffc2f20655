package tensor

// broadcastPlan maps operands a and b onto the axes of their broadcast
// result r.
func broadcastPlan(a, b, r Shape) *BroadcastPlan {
	n := r.Depth() + 1
	p := &BroadcastPlan{
		Dims:     make([]int, n),
		AStrides: make([]int, n),
		BStrides: make([]int, n),
	}
	sa, sb := 1, 1
	for i := 0; i < r.Depth(); i++ {
		p.Dims[i] = r.Dim(i)
		if a.Dim(i) == r.Dim(i) {
			p.AStrides[i] = sa
		}
		if b.Dim(i) == r.Dim(i) {
			p.BStrides[i] = sb
		}
		sa *= a.Dim(i)
		sb *= b.Dim(i)
	}
	p.Dims[n-1] = r.Batch()
	if a.Batch() == r.Batch() {
		p.AStrides[n-1] = sa
	}
	if b.Batch() == r.Batch() {
		p.BStrides[n-1] = sb
	}
	return p
}

// bufferOf returns the tensor's buffer, or nil for a nil tensor.
func bufferOf(t *Tensor) Buffer {
	if t == nil {
		return nil
	}
	return t.st.buf
}

// Unary applies an elementwise unary kernel: y = f(x; k).
func (d *Device) Unary(op UnaryOp, k float32, x *Tensor) (*Tensor, error) {
	if op < 0 || op >= numUnaryOps {
		return nil, argumentErrorf("%s: unknown unary kernel %d", d, op)
	}
	if err := d.own(op.String(), x); err != nil {
		return nil, err
	}
	y, err := d.newTensor(x.shape)
	if err != nil {
		return nil, err
	}
	d.backend.Unary(op, k, y.st.buf, x.st.buf)
	return y, nil
}

// UnaryBackward accumulates gx += f'(x; k) * gy, where y = f(x; k) is the
// forward result. All four tensors must have the same shape.
func (d *Device) UnaryBackward(op UnaryOp, k float32, x, y, gy, gx *Tensor) error {
	if op < 0 || op >= numUnaryOps {
		return argumentErrorf("%s: unknown unary kernel %d", d, op)
	}
	if err := d.own(op.String()+" backward", x, y, gy, gx); err != nil {
		return err
	}
	for _, t := range []*Tensor{y, gy, gx} {
		if !t.shape.Equal(x.shape) {
			return shapeErrorf("%s: %s backward: shape mismatch %s vs %s", d, op, t.shape, x.shape)
		}
	}
	if err := d.makeUnique(gx); err != nil {
		return err
	}
	d.backend.UnaryBackward(op, k, gx.st.buf, x.st.buf, y.st.buf, gy.st.buf)
	return nil
}

// Binary applies an elementwise binary kernel with broadcasting along every
// axis and the batch: y = a (op) b.
func (d *Device) Binary(op BinaryOp, a, b *Tensor) (*Tensor, error) {
	if op < OpAdd || op > OpDivide {
		return nil, argumentErrorf("%s: unknown binary kernel %d", d, op)
	}
	if err := d.own(op.String(), a, b); err != nil {
		return nil, err
	}
	r, err := Broadcast(a.shape, b.shape)
	if err != nil {
		return nil, err
	}
	y, err := d.newTensor(r)
	if err != nil {
		return nil, err
	}
	d.backend.Binary(op, y.st.buf, a.st.buf, b.st.buf, broadcastPlan(a.shape, b.shape, r))
	return y, nil
}

// BinaryBackward accumulates the gradients of y = a (op) b into ga and gb.
// Contributions along broadcast axes are summed. Either accumulator may be
// nil to skip that operand.
func (d *Device) BinaryBackward(op BinaryOp, a, b, y, gy, ga, gb *Tensor) error {
	if op < OpAdd || op > OpDivide {
		return argumentErrorf("%s: unknown binary kernel %d", d, op)
	}
	name := op.String() + " backward"
	if err := d.own(name, a, b, y, gy); err != nil {
		return err
	}
	r, err := Broadcast(a.shape, b.shape)
	if err != nil {
		return err
	}
	if !y.shape.Equal(r) || !gy.shape.Equal(r) {
		return shapeErrorf("%s: %s: output %s / gradient %s, want %s", d, name, y.shape, gy.shape, r)
	}
	if ga != nil {
		if err := d.own(name, ga); err != nil {
			return err
		}
		if !ga.shape.Equal(a.shape) {
			return shapeErrorf("%s: %s: gradient %s does not match operand %s", d, name, ga.shape, a.shape)
		}
	}
	if gb != nil {
		if err := d.own(name, gb); err != nil {
			return err
		}
		if !gb.shape.Equal(b.shape) {
			return shapeErrorf("%s: %s: gradient %s does not match operand %s", d, name, gb.shape, b.shape)
		}
	}
	if ga == nil && gb == nil {
		return nil
	}
	if ga != nil {
		if err := d.makeUnique(ga); err != nil {
			return err
		}
	}
	if gb != nil {
		if err := d.makeUnique(gb); err != nil {
			return err
		}
	}
	d.backend.BinaryBackward(op, bufferOf(ga), bufferOf(gb), a.st.buf, b.st.buf, y.st.buf, gy.st.buf,
		broadcastPlan(a.shape, b.shape, r))
	return nil
}

// Accumulate adds gy into gx in place.
//
// The shapes must broadcast to either gx's shape (gy is tiled, e.g. a
// reduced gradient flowing back through Sum) or gy's shape (gy is summed
// over the axes where gx has size 1, e.g. a batch-broadcast operand).
func (d *Device) Accumulate(gx, gy *Tensor) error {
	if err := d.own("accumulate", gx, gy); err != nil {
		return err
	}
	r, err := Broadcast(gx.shape, gy.shape)
	if err != nil {
		return err
	}
	if err := d.makeUnique(gx); err != nil {
		return err
	}
	switch {
	case gx.shape.Equal(gy.shape):
		d.backend.Axpy(1, gy.st.buf, gx.st.buf)
	case r.Equal(gx.shape):
		// gx is dense along every result axis, so it can be both operand and
		// destination.
		d.backend.Binary(OpAdd, gx.st.buf, gx.st.buf, gy.st.buf, broadcastPlan(gx.shape, gy.shape, r))
	case r.Equal(gy.shape):
		d.backend.BinaryBackward(OpAdd, gx.st.buf, nil, gx.st.buf, gy.st.buf, gy.st.buf, gy.st.buf,
			broadcastPlan(gx.shape, gy.shape, r))
	default:
		return shapeErrorf("%s: cannot accumulate %s into %s", d, gy.shape, gx.shape)
	}
	return nil
}
