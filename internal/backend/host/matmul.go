package host

import "github.com/born-ml/gradcore/internal/tensor"

// item returns the batch slot of an operand for loop iteration t.
func item(batch, t int) int {
	if batch == 1 {
		return 0
	}
	return t
}

// MatMulRange computes loop iterations t in [lo, hi) of a batched product.
// Matrices are stored with dim 0 fastest: element (i, j) of an r×c matrix
// sits at i + j*r.
func MatMulRange(c, a, b []float32, p tensor.Gemm, lo, hi int) {
	m, k, n := p.M, p.K, p.N
	for t := lo; t < hi; t++ {
		as := a[item(p.BatchA, t)*m*k:][:m*k]
		bs := b[item(p.BatchB, t)*k*n:][:k*n]
		cs := c[item(p.BatchC, t)*m*n:][:m*n]
		if !p.Accumulate {
			clear(cs)
		}
		for j := 0; j < n; j++ {
			for l := 0; l < k; l++ {
				var blj float32
				if p.TransB {
					blj = bs[j+l*n]
				} else {
					blj = bs[l+j*k]
				}
				for i := 0; i < m; i++ {
					var ail float32
					if p.TransA {
						ail = as[l+i*k]
					} else {
						ail = as[i+l*m]
					}
					cs[i+j*m] += ail * blj
				}
			}
		}
	}
}
