package host

import "github.com/born-ml/gradcore/internal/tensor"

// cursor walks the result index space of a broadcast plan and tracks the
// matching element offsets of both operands.
type cursor struct {
	p      *tensor.BroadcastPlan
	coords []int
	ia, ib int
}

func newCursor(p *tensor.BroadcastPlan, start int) *cursor {
	c := &cursor{p: p, coords: make([]int, len(p.Dims))}
	for axis, d := range p.Dims {
		c.coords[axis] = start % d
		start /= d
		c.ia += c.coords[axis] * p.AStrides[axis]
		c.ib += c.coords[axis] * p.BStrides[axis]
	}
	return c
}

func (c *cursor) next() {
	for axis, d := range c.p.Dims {
		c.coords[axis]++
		c.ia += c.p.AStrides[axis]
		c.ib += c.p.BStrides[axis]
		if c.coords[axis] < d {
			return
		}
		c.ia -= d * c.p.AStrides[axis]
		c.ib -= d * c.p.BStrides[axis]
		c.coords[axis] = 0
	}
}

func binaryFunc(op tensor.BinaryOp) func(a, b float32) float32 {
	switch op {
	case tensor.OpAdd:
		return func(a, b float32) float32 { return a + b }
	case tensor.OpSubtract:
		return func(a, b float32) float32 { return a - b }
	case tensor.OpMultiply:
		return func(a, b float32) float32 { return a * b }
	case tensor.OpDivide:
		return func(a, b float32) float32 { return a / b }
	default:
		panic("host: unknown binary kernel " + op.String())
	}
}

// BinaryRange computes y[i] = a (op) b for result indices in [lo, hi).
// y may be the same buffer as an operand laid out exactly like the result.
func BinaryRange(op tensor.BinaryOp, y, a, b []float32, p *tensor.BroadcastPlan, lo, hi int) {
	f := binaryFunc(op)
	if p.Dense() {
		for i := lo; i < hi; i++ {
			y[i] = f(a[i], b[i])
		}
		return
	}
	c := newCursor(p, lo)
	for i := lo; i < hi; i++ {
		y[i] = f(a[c.ia], b[c.ib])
		c.next()
	}
}

// BinaryBackwardRange accumulates the operand gradients of result indices in
// [lo, hi). Broadcast operands receive the sum of their contributions, so a
// range split across goroutines is only safe for dense plans. ga or gb may
// be nil.
func BinaryBackwardRange(op tensor.BinaryOp, ga, gb, a, b, y, gy []float32, p *tensor.BroadcastPlan, lo, hi int) {
	c := newCursor(p, lo)
	for i := lo; i < hi; i++ {
		g := gy[i]
		switch op {
		case tensor.OpAdd:
			if ga != nil {
				ga[c.ia] += g
			}
			if gb != nil {
				gb[c.ib] += g
			}
		case tensor.OpSubtract:
			if ga != nil {
				ga[c.ia] += g
			}
			if gb != nil {
				gb[c.ib] -= g
			}
		case tensor.OpMultiply:
			if ga != nil {
				ga[c.ia] += b[c.ib] * g
			}
			if gb != nil {
				gb[c.ib] += a[c.ia] * g
			}
		case tensor.OpDivide:
			q := g / b[c.ib]
			if ga != nil {
				ga[c.ia] += q
			}
			if gb != nil {
				gb[c.ib] -= q * y[i]
			}
		}
		c.next()
	}
}
