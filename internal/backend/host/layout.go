package host

import (
	"math"

	"github.com/born-ml/gradcore/internal/tensor"
)

// BlocksRange copies (or adds) blocks c in [lo, hi) of a block copy.
func BlocksRange(dst, src []float32, p tensor.BlockCopy, lo, hi int) {
	for c := lo; c < hi; c++ {
		d := dst[p.DstOffset+c*p.DstStride:][:p.Len]
		s := src[p.SrcOffset+c*p.SrcStride:][:p.Len]
		if p.Accumulate {
			for i, v := range s {
				d[i] += v
			}
		} else {
			copy(d, s)
		}
	}
}

// ReduceRange computes outputs o in [lo, hi) of a reduction, where
// o = r*Base + i indexes y viewed as [Repeat][Base].
func ReduceRange(op tensor.ReduceOp, y, x []float32, p tensor.Reduction, lo, hi int) {
	for o := lo; o < hi; o++ {
		r, i := o/p.Base, o%p.Base
		first := r*p.N*p.Base + i
		switch op {
		case tensor.ReduceSum:
			var s float32
			for n := 0; n < p.N; n++ {
				s += x[first+n*p.Base]
			}
			y[o] = s
		case tensor.ReduceLogSumExp:
			m := float32(math.Inf(-1))
			for n := 0; n < p.N; n++ {
				m = max(m, x[first+n*p.Base])
			}
			if math.IsInf(float64(m), 0) {
				y[o] = m
				continue
			}
			var s float64
			for n := 0; n < p.N; n++ {
				s += math.Exp(float64(x[first+n*p.Base] - m))
			}
			y[o] = m + float32(math.Log(s))
		}
	}
}

// TransposeRange transposes minibatch items in [lo, hi). x holds rows×cols
// matrices and y cols×rows matrices, both with dim 0 fastest.
func TransposeRange(y, x []float32, rows, cols int, accumulate bool, lo, hi int) {
	vol := rows * cols
	for b := lo; b < hi; b++ {
		xs, ys := x[b*vol:][:vol], y[b*vol:][:vol]
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				if accumulate {
					ys[j+i*cols] += xs[i+j*rows]
				} else {
					ys[j+i*cols] = xs[i+j*rows]
				}
			}
		}
	}
}
