package tensor

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// sampler draws one value from a distribution.
type sampler interface {
	Rand() float64
}

// belowUpper keeps draws strictly below upper once narrowed to float32.
// Draws from just under upper would otherwise round up to upper itself.
type belowUpper struct {
	dist  sampler
	upper float32
}

func (b belowUpper) Rand() float64 {
	v := b.dist.Rand()
	if float32(v) >= b.upper {
		return float64(math.Nextafter32(b.upper, float32(math.Inf(-1))))
	}
	return v
}

// sample fills a new tensor with shape.Size() draws, in memory order.
// All draws come from the device generator, so a fixed seed and call
// sequence reproduce the same values on one backend.
func (d *Device) sample(name string, shape Shape, dist sampler) (*Tensor, error) {
	if err := d.checkOpen(name); err != nil {
		return nil, err
	}
	values := make([]float32, shape.Size())
	for i := range values {
		values[i] = float32(dist.Rand())
	}
	t, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.Upload(t.st.buf, values)
	return t, nil
}

// RandomBernoulli draws 1 with probability p and 0 otherwise.
func (d *Device) RandomBernoulli(shape Shape, p float32) (*Tensor, error) {
	if !(p >= 0 && p <= 1) {
		return nil, argumentErrorf("%s: bernoulli probability %g outside [0, 1]", d, p)
	}
	return d.sample("random bernoulli", shape, distuv.Bernoulli{P: float64(p), Src: d.src})
}

// RandomUniform draws from the uniform distribution on [lower, upper).
// lower can be drawn; upper never is, even after rounding to float32.
func (d *Device) RandomUniform(shape Shape, lower, upper float32) (*Tensor, error) {
	if !(lower < upper) || math.IsInf(float64(upper-lower), 0) {
		return nil, argumentErrorf("%s: uniform range [%g, %g) is empty or unbounded", d, lower, upper)
	}
	uniform := distuv.Uniform{Min: float64(lower), Max: float64(upper), Src: d.src}
	return d.sample("random uniform", shape, belowUpper{dist: uniform, upper: upper})
}

// RandomNormal draws from the normal distribution N(mean, sd²).
func (d *Device) RandomNormal(shape Shape, mean, sd float32) (*Tensor, error) {
	if !(sd > 0) {
		return nil, argumentErrorf("%s: normal standard deviation %g (must be > 0)", d, sd)
	}
	return d.sample("random normal", shape, distuv.Normal{Mu: float64(mean), Sigma: float64(sd), Src: d.src})
}

// RandomLogNormal draws exp(z) with z from N(mean, sd²).
func (d *Device) RandomLogNormal(shape Shape, mean, sd float32) (*Tensor, error) {
	if !(sd > 0) {
		return nil, argumentErrorf("%s: log-normal standard deviation %g (must be > 0)", d, sd)
	}
	return d.sample("random log-normal", shape, distuv.LogNormal{Mu: float64(mean), Sigma: float64(sd), Src: d.src})
}
