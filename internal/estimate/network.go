// Package estimate implements the knee moment estimator: a temporal
// convolutional sequence network mapping a fixed-length multichannel gait
// cycle (L x C) to the adduction and flexion moment curves (L x 2), plus
// its training loop, input scaling, metrics, and checkpointing.
//
// A sequence model is required here: moment at a given instant depends on
// the trajectory shape around it, not just the instantaneous sensor
// values, so each output timestep sees a receptive field of neighbouring
// inputs through two stacked temporal convolutions.
package estimate

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// OutputDim is the number of predicted moment curves per step.
const OutputDim = 2

// NetworkConfig describes the estimator architecture.
type NetworkConfig struct {
	SeqLen     int // L, canonical step length
	InputDim   int // C, input channels
	HiddenSize int // convolution filter count
	KernelSize int // temporal kernel width (odd)
}

// Network is a two-layer temporal CNN with a per-timestep linear head.
// Forward passes are deterministic: there are no stochastic layers, so
// inference depends only on the parameters and the input.
type Network struct {
	cfg NetworkConfig

	// Parameters. W1: (K*C x H), W2: (K*H x H), W3: (H x OutputDim).
	W1, W2, W3 *mat.Dense
	B1, B2, B3 []float64
}

// NewNetwork creates a network with Xavier-initialised weights drawn from
// the given RNG, so identical seeds yield identical models.
func NewNetwork(cfg NetworkConfig, rng *rand.Rand) (*Network, error) {
	if cfg.SeqLen < 2 || cfg.InputDim < 1 || cfg.HiddenSize < 1 {
		return nil, fmt.Errorf("invalid network config %+v", cfg)
	}
	if cfg.KernelSize < 1 || cfg.KernelSize%2 == 0 {
		return nil, fmt.Errorf("kernel size must be odd and positive, got %d", cfg.KernelSize)
	}
	n := &Network{cfg: cfg}
	n.W1 = xavier(cfg.KernelSize*cfg.InputDim, cfg.HiddenSize, rng)
	n.W2 = xavier(cfg.KernelSize*cfg.HiddenSize, cfg.HiddenSize, rng)
	n.W3 = xavier(cfg.HiddenSize, OutputDim, rng)
	n.B1 = make([]float64, cfg.HiddenSize)
	n.B2 = make([]float64, cfg.HiddenSize)
	n.B3 = make([]float64, OutputDim)
	return n, nil
}

// Config returns the architecture description.
func (n *Network) Config() NetworkConfig { return n.cfg }

func xavier(rows, cols int, rng *rand.Rand) *mat.Dense {
	scale := math.Sqrt(2.0 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(rows, cols, data)
}

// forwardState keeps the intermediate activations of one sample for the
// backward pass.
type forwardState struct {
	x1, z1, a1 *mat.Dense
	x2, z2, a2 *mat.Dense
	y          *mat.Dense
}

// Predict runs one input sequence (L x C) through the network and returns
// the predicted moment curves (L x OutputDim).
func (n *Network) Predict(input [][]float64) ([][]float64, error) {
	x, err := n.toDense(input)
	if err != nil {
		return nil, err
	}
	st := n.forward(x)
	L := n.cfg.SeqLen
	out := make([][]float64, L)
	for i := 0; i < L; i++ {
		out[i] = make([]float64, OutputDim)
		for j := 0; j < OutputDim; j++ {
			out[i][j] = st.y.At(i, j)
		}
	}
	return out, nil
}

func (n *Network) toDense(input [][]float64) (*mat.Dense, error) {
	if len(input) != n.cfg.SeqLen {
		return nil, fmt.Errorf("input length %d, want %d", len(input), n.cfg.SeqLen)
	}
	x := mat.NewDense(n.cfg.SeqLen, n.cfg.InputDim, nil)
	for i, row := range input {
		if len(row) != n.cfg.InputDim {
			return nil, fmt.Errorf("input row %d has %d channels, want %d", i, len(row), n.cfg.InputDim)
		}
		x.SetRow(i, row)
	}
	return x, nil
}

func (n *Network) forward(x *mat.Dense) *forwardState {
	st := &forwardState{}
	L, H := n.cfg.SeqLen, n.cfg.HiddenSize

	st.x1 = im2col(x, n.cfg.KernelSize)
	st.z1 = mat.NewDense(L, H, nil)
	st.z1.Mul(st.x1, n.W1)
	addBias(st.z1, n.B1)
	st.a1 = relu(st.z1)

	st.x2 = im2col(st.a1, n.cfg.KernelSize)
	st.z2 = mat.NewDense(L, H, nil)
	st.z2.Mul(st.x2, n.W2)
	addBias(st.z2, n.B2)
	st.a2 = relu(st.z2)

	st.y = mat.NewDense(L, OutputDim, nil)
	st.y.Mul(st.a2, n.W3)
	addBias(st.y, n.B3)
	return st
}

// gradients accumulates parameter gradients over a batch.
type gradients struct {
	W1, W2, W3 *mat.Dense
	B1, B2, B3 []float64
}

func (n *Network) newGradients() *gradients {
	r1, c1 := n.W1.Dims()
	r2, c2 := n.W2.Dims()
	r3, c3 := n.W3.Dims()
	return &gradients{
		W1: mat.NewDense(r1, c1, nil),
		W2: mat.NewDense(r2, c2, nil),
		W3: mat.NewDense(r3, c3, nil),
		B1: make([]float64, len(n.B1)),
		B2: make([]float64, len(n.B2)),
		B3: make([]float64, len(n.B3)),
	}
}

// backward accumulates gradients for one sample given dY, the loss
// gradient at the network output.
func (n *Network) backward(st *forwardState, dY *mat.Dense, g *gradients) {
	L, H := n.cfg.SeqLen, n.cfg.HiddenSize

	// Output head.
	var dW3 mat.Dense
	dW3.Mul(st.a2.T(), dY)
	g.W3.Add(g.W3, &dW3)
	addColSums(g.B3, dY)

	dA2 := mat.NewDense(L, H, nil)
	dA2.Mul(dY, n.W3.T())

	// Second convolution.
	dZ2 := reluBackward(dA2, st.z2)
	var dW2 mat.Dense
	dW2.Mul(st.x2.T(), dZ2)
	g.W2.Add(g.W2, &dW2)
	addColSums(g.B2, dZ2)

	var dX2 mat.Dense
	dX2.Mul(dZ2, n.W2.T())
	dA1 := col2im(&dX2, n.cfg.KernelSize, H)

	// First convolution.
	dZ1 := reluBackward(dA1, st.z1)
	var dW1 mat.Dense
	dW1.Mul(st.x1.T(), dZ1)
	g.W1.Add(g.W1, &dW1)
	addColSums(g.B1, dZ1)
}

// im2col unfolds a (L x C) sequence into (L x K*C) rows where row t holds
// the zero-padded window of K timesteps centred on t, flattened
// timestep-major. This turns same-padded temporal convolution into a
// single matrix multiply.
func im2col(x *mat.Dense, k int) *mat.Dense {
	L, C := x.Dims()
	half := k / 2
	out := mat.NewDense(L, k*C, nil)
	for t := 0; t < L; t++ {
		for kk := 0; kk < k; kk++ {
			src := t + kk - half
			if src < 0 || src >= L {
				continue // zero padding
			}
			for c := 0; c < C; c++ {
				out.Set(t, kk*C+c, x.At(src, c))
			}
		}
	}
	return out
}

// col2im folds gradients of an unfolded (L x K*C) matrix back onto the
// original (L x C) sequence, accumulating overlapping windows.
func col2im(d *mat.Dense, k, c int) *mat.Dense {
	L, _ := d.Dims()
	half := k / 2
	out := mat.NewDense(L, c, nil)
	for t := 0; t < L; t++ {
		for kk := 0; kk < k; kk++ {
			src := t + kk - half
			if src < 0 || src >= L {
				continue
			}
			for ch := 0; ch < c; ch++ {
				out.Set(src, ch, out.At(src, ch)+d.At(t, kk*c+ch))
			}
		}
	}
	return out
}

func relu(z *mat.Dense) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := z.At(i, j); v > 0 {
				out.Set(i, j, v)
			}
		}
	}
	return out
}

func reluBackward(dA, z *mat.Dense) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if z.At(i, j) > 0 {
				out.Set(i, j, dA.At(i, j))
			}
		}
	}
	return out
}

func addBias(z *mat.Dense, b []float64) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		for j := range b {
			z.Set(i, j, z.At(i, j)+b[j])
		}
	}
}

func addColSums(dst []float64, m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j := range dst {
			dst[j] += m.At(i, j)
		}
	}
}

// parameterCount returns the number of learned parameters.
func (n *Network) parameterCount() int {
	r1, c1 := n.W1.Dims()
	r2, c2 := n.W2.Dims()
	r3, c3 := n.W3.Dims()
	return r1*c1 + r2*c2 + r3*c3 + len(n.B1) + len(n.B2) + len(n.B3)
}
