package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/gradcore/internal/backend/host"
	"github.com/born-ml/gradcore/internal/parallel"
	"github.com/born-ml/gradcore/internal/tensor"
)

// Unary runs f over every value in parallel chunks.
func (cpu *Backend) Unary(op tensor.UnaryOp, k float32, y, x tensor.Buffer) {
	ys, xs := host.Data(y), host.Data(x)
	parallel.ForRange(len(ys), cpu.cfg, func(lo, hi int) {
		host.UnaryRange(op, k, ys, xs, lo, hi)
	})
}

// UnaryBackward accumulates f'(x) * gy into gx in parallel chunks.
func (cpu *Backend) UnaryBackward(op tensor.UnaryOp, k float32, gx, x, y, gy tensor.Buffer) {
	gxs, xs, ys, gys := host.Data(gx), host.Data(x), host.Data(y), host.Data(gy)
	parallel.ForRange(len(gxs), cpu.cfg, func(lo, hi int) {
		host.UnaryBackwardRange(op, k, gxs, xs, ys, gys, lo, hi)
	})
}

// Binary runs a broadcast binary kernel in parallel chunks of the result.
func (cpu *Backend) Binary(op tensor.BinaryOp, y, a, b tensor.Buffer, p *tensor.BroadcastPlan) {
	ys, as, bs := host.Data(y), host.Data(a), host.Data(b)
	parallel.ForRange(p.Size(), cpu.cfg, func(lo, hi int) {
		host.BinaryRange(op, ys, as, bs, p, lo, hi)
	})
}

// BinaryBackward accumulates binary gradients. Broadcast plans sum several
// result elements into one gradient element and run serially.
func (cpu *Backend) BinaryBackward(op tensor.BinaryOp, ga, gb, a, b, y, gy tensor.Buffer, p *tensor.BroadcastPlan) {
	gas, gbs := host.Data(ga), host.Data(gb)
	as, bs, ys, gys := host.Data(a), host.Data(b), host.Data(y), host.Data(gy)
	if !p.Dense() {
		host.BinaryBackwardRange(op, gas, gbs, as, bs, ys, gys, p, 0, p.Size())
		return
	}
	parallel.ForRange(p.Size(), cpu.cfg, func(lo, hi int) {
		host.BinaryBackwardRange(op, gas, gbs, as, bs, ys, gys, p, lo, hi)
	})
}

// Axpy computes y += alpha * x with blas32 over parallel chunks.
func (cpu *Backend) Axpy(alpha float32, x, y tensor.Buffer) {
	xs, ys := host.Data(x), host.Data(y)
	parallel.ForRange(len(ys), cpu.cfg, func(lo, hi int) {
		blas32.Axpy(alpha,
			blas32.Vector{N: hi - lo, Data: xs[lo:hi], Inc: 1},
			blas32.Vector{N: hi - lo, Data: ys[lo:hi], Inc: 1})
	})
}

// Blocks runs a block copy, splitting the blocks across goroutines when no
// two blocks write the same destination values.
func (cpu *Backend) Blocks(dst, src tensor.Buffer, p tensor.BlockCopy) {
	ds, ss := host.Data(dst), host.Data(src)
	if p.Count > 1 && p.DstStride < p.Len {
		host.BlocksRange(ds, ss, p, 0, p.Count)
		return
	}
	cfg := cpu.cfg
	cfg.MinChunkSize = max(cfg.MinChunkSize/max(p.Len, 1), 1)
	parallel.ForRange(p.Count, cfg, func(lo, hi int) {
		host.BlocksRange(ds, ss, p, lo, hi)
	})
}

// Reduce runs a reduction, one goroutine per chunk of outputs.
func (cpu *Backend) Reduce(op tensor.ReduceOp, y, x tensor.Buffer, p tensor.Reduction) {
	ys, xs := host.Data(y), host.Data(x)
	cfg := cpu.cfg
	cfg.MinChunkSize = max(cfg.MinChunkSize/max(p.N, 1), 1)
	parallel.ForRange(p.Base*p.Repeat, cfg, func(lo, hi int) {
		host.ReduceRange(op, ys, xs, p, lo, hi)
	})
}

// Transpose transposes minibatch items in parallel.
func (cpu *Backend) Transpose(y, x tensor.Buffer, rows, cols, batch int, accumulate bool) {
	ys, xs := host.Data(y), host.Data(x)
	cfg := cpu.cfg
	cfg.MinChunkSize = max(cfg.MinChunkSize/(rows*cols), 1)
	parallel.ForRange(batch, cfg, func(lo, hi int) {
		host.TransposeRange(ys, xs, rows, cols, accumulate, lo, hi)
	})
}

// MatMul runs a batched matrix product through blas32.Gemm.
//
// A column-major r×c matrix has the same memory as a row-major c×r matrix,
// so C = op(A)·op(B) is computed as the row-major Cᵀ = op(B)ᵀ·op(A)ᵀ.
func (cpu *Backend) MatMul(c, a, b tensor.Buffer, p tensor.Gemm) {
	cs, as, bs := host.Data(c), host.Data(a), host.Data(b)
	m, k, n := p.M, p.K, p.N
	tA, tB := blas.NoTrans, blas.NoTrans
	aRows, aCols := m, k
	if p.TransA {
		tA, aRows, aCols = blas.Trans, k, m
	}
	bRows, bCols := k, n
	if p.TransB {
		tB, bRows, bCols = blas.Trans, n, k
	}
	var beta float32
	if p.Accumulate {
		beta = 1
	}
	gemm := func(t int) {
		ga := blas32.General{Rows: aCols, Cols: aRows, Stride: aRows, Data: as[slot(p.BatchA, t)*m*k:][:m*k]}
		gb := blas32.General{Rows: bCols, Cols: bRows, Stride: bRows, Data: bs[slot(p.BatchB, t)*k*n:][:k*n]}
		gc := blas32.General{Rows: n, Cols: m, Stride: m, Data: cs[slot(p.BatchC, t)*m*n:][:m*n]}
		blas32.Gemm(tB, tA, 1, gb, ga, beta, gc)
	}

	batches := p.Batches()
	if p.BatchC != batches {
		// several items accumulate into one output slot
		for t := 0; t < batches; t++ {
			gemm(t)
		}
		return
	}
	cfg := cpu.cfg
	cfg.MinChunkSize = max(cfg.MinChunkSize/(m*n*k), 1)
	parallel.For(batches, gemm, cfg)
}

func slot(batch, t int) int {
	if batch == 1 {
		return 0
	}
	return t
}
