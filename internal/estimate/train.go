package estimate

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/stride-data/gaitmoment/internal/assemble"
	"github.com/stride-data/gaitmoment/internal/config"
	"github.com/stride-data/gaitmoment/internal/monitoring"
	"github.com/stride-data/gaitmoment/internal/timeutil"
)

var logf = monitoring.Component("Estimator")

// TrainConfig carries the optimisation hyperparameters.
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	WeightDecay  float64
	HiddenSize   int
	KernelSize   int
	Seed         int64
}

// TrainConfigFromTuning builds a TrainConfig from the tuning file.
func TrainConfigFromTuning(t *config.TuningConfig) TrainConfig {
	return TrainConfig{
		Epochs:       t.GetEpochs(),
		BatchSize:    t.GetBatchSize(),
		LearningRate: t.GetLearningRate(),
		WeightDecay:  t.GetWeightDecay(),
		HiddenSize:   t.GetHiddenSize(),
		KernelSize:   t.GetKernelSize(),
		Seed:         t.GetSeed(),
	}
}

// NonFiniteLossError reports a NaN or Inf training loss together with the
// batch that produced it, so the offending sessions can be inspected.
type NonFiniteLossError struct {
	Epoch   int
	Batch   int
	Loss    float64
	Samples []string
}

func (e *NonFiniteLossError) Error() string {
	return fmt.Sprintf("non-finite loss %v at epoch %d batch %d (samples %v)",
		e.Loss, e.Epoch, e.Batch, e.Samples)
}

// Model bundles a trained network with the input scaler it was trained
// against. Predictions scale inputs the same way training did.
type Model struct {
	Net    *Network
	Scaler *Scaler
}

// Predict scales one canonical step's inputs and runs the network.
func (m *Model) Predict(inputs [][]float64) ([][]float64, error) {
	return m.Net.Predict(m.Scaler.Transform(inputs))
}

// PredictSample predicts the moment curves for an assembled step sample.
func (m *Model) PredictSample(s *assemble.StepSample) ([][]float64, error) {
	return m.Predict(s.Inputs)
}

// Trainer fits a Model to labeled step samples with minibatch Adam.
type Trainer struct {
	cfg   TrainConfig
	clock timeutil.Clock
}

// NewTrainer creates a trainer. A nil clock falls back to the wall clock.
func NewTrainer(cfg TrainConfig, clock timeutil.Clock) *Trainer {
	if clock == nil {
		clock = timeutil.NewClock()
	}
	return &Trainer{cfg: cfg, clock: clock}
}

// adamState holds first and second moment estimates for one parameter
// tensor.
type adamState struct {
	m, v []float64
	t    int
}

func newAdamState(n int) *adamState {
	return &adamState{m: make([]float64, n), v: make([]float64, n)}
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// step applies one Adam update. Weight decay stays out of the moment
// estimates and shrinks the parameters directly, so the decay rate is not
// rescaled by the adaptive step size.
func (a *adamState) step(params, grads []float64, lr, decay float64) {
	a.t++
	bc1 := 1 - math.Pow(adamBeta1, float64(a.t))
	bc2 := 1 - math.Pow(adamBeta2, float64(a.t))
	for i := range params {
		g := grads[i]
		a.m[i] = adamBeta1*a.m[i] + (1-adamBeta1)*g
		a.v[i] = adamBeta2*a.v[i] + (1-adamBeta2)*g*g
		mhat := a.m[i] / bc1
		vhat := a.v[i] / bc2
		params[i] -= lr * (mhat/(math.Sqrt(vhat)+adamEps) + decay*params[i])
	}
}

// Train fits a new model on the given labeled samples and returns it with
// the per-epoch mean training losses. Samples without labels are
// rejected. The run is deterministic for a fixed seed: initialisation and
// shuffling both derive from it.
func (tr *Trainer) Train(samples []*assemble.StepSample) (*Model, []float64, error) {
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("no training samples")
	}
	for _, s := range samples {
		if !s.HasLabels() {
			return nil, nil, fmt.Errorf("sample %s/%d has no labels", s.SessionID, s.StepID)
		}
	}
	seqLen := len(samples[0].Inputs)
	inputDim := len(samples[0].Inputs[0])

	scaler, err := FitScaler(samples)
	if err != nil {
		return nil, nil, err
	}

	rng := rand.New(rand.NewSource(tr.cfg.Seed))
	net, err := NewNetwork(NetworkConfig{
		SeqLen:     seqLen,
		InputDim:   inputDim,
		HiddenSize: tr.cfg.HiddenSize,
		KernelSize: tr.cfg.KernelSize,
	}, rng)
	if err != nil {
		return nil, nil, err
	}
	logf("training on %d steps (%d channels, %d params, seed %d)",
		len(samples), inputDim, net.parameterCount(), tr.cfg.Seed)

	// Pre-scale inputs once.
	inputs := make([]*mat.Dense, len(samples))
	targets := make([]*mat.Dense, len(samples))
	for i, s := range samples {
		x, err := net.toDense(scaler.Transform(s.Inputs))
		if err != nil {
			return nil, nil, fmt.Errorf("sample %s/%d: %w", s.SessionID, s.StepID, err)
		}
		inputs[i] = x
		t := mat.NewDense(seqLen, OutputDim, nil)
		for row, vals := range s.Labels {
			t.SetRow(row, vals)
		}
		targets[i] = t
	}

	opt := newOptimizer(net)
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	batchSize := tr.cfg.BatchSize
	if batchSize < 1 || batchSize > len(samples) {
		batchSize = len(samples)
	}

	losses := make([]float64, 0, tr.cfg.Epochs)
	for epoch := 0; epoch < tr.cfg.Epochs; epoch++ {
		start := tr.clock.Now()
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		var batches int
		for b := 0; b < len(order); b += batchSize {
			end := b + batchSize
			if end > len(order) {
				end = len(order)
			}
			batch := order[b:end]
			loss := tr.trainBatch(net, opt, inputs, targets, batch)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				ids := make([]string, len(batch))
				for i, idx := range batch {
					s := samples[idx]
					ids[i] = fmt.Sprintf("%s/%d", s.SessionID, s.StepID)
				}
				return nil, losses, &NonFiniteLossError{
					Epoch: epoch, Batch: batches, Loss: loss, Samples: ids,
				}
			}
			epochLoss += loss
			batches++
		}
		epochLoss /= float64(batches)
		losses = append(losses, epochLoss)
		if epoch == 0 || (epoch+1)%10 == 0 || epoch == tr.cfg.Epochs-1 {
			logf("epoch %d/%d loss %.6f (%v)",
				epoch+1, tr.cfg.Epochs, epochLoss, tr.clock.Since(start))
		}
	}

	return &Model{Net: net, Scaler: scaler}, losses, nil
}

// optimizer wires one Adam state per parameter tensor.
type optimizer struct {
	w1, w2, w3 *adamState
	b1, b2, b3 *adamState
}

func newOptimizer(net *Network) *optimizer {
	r1, c1 := net.W1.Dims()
	r2, c2 := net.W2.Dims()
	r3, c3 := net.W3.Dims()
	return &optimizer{
		w1: newAdamState(r1 * c1),
		w2: newAdamState(r2 * c2),
		w3: newAdamState(r3 * c3),
		b1: newAdamState(len(net.B1)),
		b2: newAdamState(len(net.B2)),
		b3: newAdamState(len(net.B3)),
	}
}

// trainBatch runs forward and backward over one minibatch and applies a
// single Adam step. Returns the mean squared error over the batch.
func (tr *Trainer) trainBatch(net *Network, opt *optimizer, inputs, targets []*mat.Dense, batch []int) float64 {
	g := net.newGradients()
	var loss float64
	norm := float64(len(batch) * net.cfg.SeqLen * OutputDim)

	for _, idx := range batch {
		st := net.forward(inputs[idx])
		dY := mat.NewDense(net.cfg.SeqLen, OutputDim, nil)
		for i := 0; i < net.cfg.SeqLen; i++ {
			for j := 0; j < OutputDim; j++ {
				diff := st.y.At(i, j) - targets[idx].At(i, j)
				loss += diff * diff
				dY.Set(i, j, 2*diff/norm)
			}
		}
		net.backward(st, dY, g)
	}

	lr, decay := tr.cfg.LearningRate, tr.cfg.WeightDecay
	opt.w1.step(net.W1.RawMatrix().Data, g.W1.RawMatrix().Data, lr, decay)
	opt.w2.step(net.W2.RawMatrix().Data, g.W2.RawMatrix().Data, lr, decay)
	opt.w3.step(net.W3.RawMatrix().Data, g.W3.RawMatrix().Data, lr, decay)
	opt.b1.step(net.B1, g.B1, lr, 0)
	opt.b2.step(net.B2, g.B2, lr, 0)
	opt.b3.step(net.B3, g.B3, lr, 0)

	return loss / norm
}
