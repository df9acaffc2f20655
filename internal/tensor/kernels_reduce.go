package tensor

// reduction views x as [Repeat][N][Base] around dimension dim.
func reduction(x Shape, dim int) Reduction {
	base := x.LowerVolume(dim)
	n := x.Dim(dim)
	return Reduction{Base: base, N: n, Repeat: x.Size() / (base * n)}
}

func (d *Device) reduce(op ReduceOp, name string, x *Tensor, dim int) (*Tensor, error) {
	if err := d.own(name, x); err != nil {
		return nil, err
	}
	if dim < 0 {
		return nil, argumentErrorf("%s: %s: negative dimension %d", d, name, dim)
	}
	shape, err := x.shape.ResizeDim(dim, 1)
	if err != nil {
		return nil, err
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.Reduce(op, y.st.buf, x.st.buf, reduction(x.shape, dim))
	return y, nil
}

// Sum adds the elements of x along dimension dim; the result has size 1
// there.
func (d *Device) Sum(x *Tensor, dim int) (*Tensor, error) {
	return d.reduce(ReduceSum, "sum", x, dim)
}

// LogSumExp computes log(sum(exp(x))) along dimension dim in a numerically
// stable way; the result has size 1 there.
func (d *Device) LogSumExp(x *Tensor, dim int) (*Tensor, error) {
	return d.reduce(ReduceLogSumExp, "logsumexp", x, dim)
}

// BatchSum adds the minibatch items of x; the result has batch size 1.
func (d *Device) BatchSum(x *Tensor) (*Tensor, error) {
	if err := d.own("batch sum", x); err != nil {
		return nil, err
	}
	shape, err := x.shape.ResizeBatch(1)
	if err != nil {
		return nil, err
	}
	y, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.Reduce(ReduceSum, y.st.buf, x.st.buf, Reduction{Base: x.shape.Volume(), N: x.shape.Batch(), Repeat: 1})
	return y, nil
}
