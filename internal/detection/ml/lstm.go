package ml

import (
	"math"
	"math/rand"
)

// Encoder/decoder widths. The encoder narrows 50 -> 20 into a fixed-size
// latent vector; the decoder mirrors it back 20 -> 50 before the per-timestep
// linear projection.
const (
	wideUnits   = 50
	narrowUnits = 20
)

// LSTMLayer is a single LSTM layer operating on a full sequence. Weight
// matrices are laid out one row per hidden unit over the concatenated
// [input, previous hidden] vector. Fields are exported for gob encoding.
type LSTMLayer struct {
	InputSize  int
	HiddenSize int

	// Gate weights and biases: input, forget, output, candidate.
	Wi, Wf, Wo, Wg [][]float64
	Bi, Bf, Bo, Bg []float64
}

func newLSTMLayer(inputSize, hiddenSize int, rng *rand.Rand) *LSTMLayer {
	l := &LSTMLayer{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wi:         glorotMatrix(hiddenSize, inputSize+hiddenSize, rng),
		Wf:         glorotMatrix(hiddenSize, inputSize+hiddenSize, rng),
		Wo:         glorotMatrix(hiddenSize, inputSize+hiddenSize, rng),
		Wg:         glorotMatrix(hiddenSize, inputSize+hiddenSize, rng),
		Bi:         make([]float64, hiddenSize),
		Bf:         make([]float64, hiddenSize),
		Bo:         make([]float64, hiddenSize),
		Bg:         make([]float64, hiddenSize),
	}
	// Forget gate bias starts at 1 so early training does not wipe the cell
	// state before the gates have learned anything.
	for j := range l.Bf {
		l.Bf[j] = 1
	}
	return l
}

// lstmCache holds everything the backward pass needs from one forward pass.
type lstmCache struct {
	x          [][]float64 // inputs, T x InputSize
	i, f, o, g [][]float64 // gate activations, T x HiddenSize
	c, h, tc   [][]float64 // cell states, hidden states, tanh(cell)
}

// forward runs the layer over a T-step sequence starting from zero states
// and returns the hidden state at every step.
func (l *LSTMLayer) forward(x [][]float64) ([][]float64, *lstmCache) {
	T := len(x)
	cache := &lstmCache{
		x:  x,
		i:  make([][]float64, T),
		f:  make([][]float64, T),
		o:  make([][]float64, T),
		g:  make([][]float64, T),
		c:  make([][]float64, T),
		h:  make([][]float64, T),
		tc: make([][]float64, T),
	}

	hPrev := make([]float64, l.HiddenSize)
	cPrev := make([]float64, l.HiddenSize)
	z := make([]float64, l.InputSize+l.HiddenSize)

	for t := 0; t < T; t++ {
		copy(z[:l.InputSize], x[t])
		copy(z[l.InputSize:], hPrev)

		it := make([]float64, l.HiddenSize)
		ft := make([]float64, l.HiddenSize)
		ot := make([]float64, l.HiddenSize)
		gt := make([]float64, l.HiddenSize)
		ct := make([]float64, l.HiddenSize)
		ht := make([]float64, l.HiddenSize)
		tct := make([]float64, l.HiddenSize)

		for j := 0; j < l.HiddenSize; j++ {
			it[j] = sigmoid(dot(l.Wi[j], z) + l.Bi[j])
			ft[j] = sigmoid(dot(l.Wf[j], z) + l.Bf[j])
			ot[j] = sigmoid(dot(l.Wo[j], z) + l.Bo[j])
			gt[j] = math.Tanh(dot(l.Wg[j], z) + l.Bg[j])
			ct[j] = ft[j]*cPrev[j] + it[j]*gt[j]
			tct[j] = math.Tanh(ct[j])
			ht[j] = ot[j] * tct[j]
		}

		cache.i[t], cache.f[t], cache.o[t], cache.g[t] = it, ft, ot, gt
		cache.c[t], cache.h[t], cache.tc[t] = ct, ht, tct
		hPrev, cPrev = ht, ct
	}

	return cache.h, cache
}

// lstmGrads accumulates parameter gradients for one layer across a batch.
type lstmGrads struct {
	Wi, Wf, Wo, Wg [][]float64
	Bi, Bf, Bo, Bg []float64
}

func newLSTMGrads(l *LSTMLayer) *lstmGrads {
	return &lstmGrads{
		Wi: zeroMatrix(l.HiddenSize, l.InputSize+l.HiddenSize),
		Wf: zeroMatrix(l.HiddenSize, l.InputSize+l.HiddenSize),
		Wo: zeroMatrix(l.HiddenSize, l.InputSize+l.HiddenSize),
		Wg: zeroMatrix(l.HiddenSize, l.InputSize+l.HiddenSize),
		Bi: make([]float64, l.HiddenSize),
		Bf: make([]float64, l.HiddenSize),
		Bo: make([]float64, l.HiddenSize),
		Bg: make([]float64, l.HiddenSize),
	}
}

// backward runs backpropagation through the full cached sequence. dH carries the
// gradient flowing into each timestep's hidden output from the layer above
// (zero rows where the upper layer consumed nothing). It accumulates
// parameter gradients into g and returns the gradient w.r.t. the inputs.
func (l *LSTMLayer) backward(cache *lstmCache, dH [][]float64, g *lstmGrads) [][]float64 {
	T := len(cache.x)
	dX := make([][]float64, T)

	dhNext := make([]float64, l.HiddenSize)
	dcNext := make([]float64, l.HiddenSize)
	z := make([]float64, l.InputSize+l.HiddenSize)

	for t := T - 1; t >= 0; t-- {
		copy(z[:l.InputSize], cache.x[t])
		if t > 0 {
			copy(z[l.InputSize:], cache.h[t-1])
		} else {
			for k := l.InputSize; k < len(z); k++ {
				z[k] = 0
			}
		}

		dx := make([]float64, l.InputSize)
		dhPrev := make([]float64, l.HiddenSize)
		dcPrev := make([]float64, l.HiddenSize)

		for j := 0; j < l.HiddenSize; j++ {
			dh := dH[t][j] + dhNext[j]

			i, f, o, gg := cache.i[t][j], cache.f[t][j], cache.o[t][j], cache.g[t][j]
			tc := cache.tc[t][j]

			dc := dh*o*(1-tc*tc) + dcNext[j]

			cPrev := 0.0
			if t > 0 {
				cPrev = cache.c[t-1][j]
			}

			// Pre-activation gate gradients.
			di := dc * gg * i * (1 - i)
			df := dc * cPrev * f * (1 - f)
			do := dh * tc * o * (1 - o)
			dg := dc * i * (1 - gg*gg)

			dcPrev[j] = dc * f

			g.Bi[j] += di
			g.Bf[j] += df
			g.Bo[j] += do
			g.Bg[j] += dg

			wi, wf, wo, wg := l.Wi[j], l.Wf[j], l.Wo[j], l.Wg[j]
			gwi, gwf, gwo, gwg := g.Wi[j], g.Wf[j], g.Wo[j], g.Wg[j]
			for k, zk := range z {
				gwi[k] += di * zk
				gwf[k] += df * zk
				gwo[k] += do * zk
				gwg[k] += dg * zk

				dz := di*wi[k] + df*wf[k] + do*wo[k] + dg*wg[k]
				if k < l.InputSize {
					dx[k] += dz
				} else {
					dhPrev[k-l.InputSize] += dz
				}
			}
		}

		dX[t] = dx
		dhNext, dcNext = dhPrev, dcPrev
	}

	return dX
}

// DenseLayer is the per-timestep linear projection back to feature space.
type DenseLayer struct {
	InputSize  int
	OutputSize int
	W          [][]float64 // OutputSize x InputSize
	B          []float64
}

func newDenseLayer(inputSize, outputSize int, rng *rand.Rand) *DenseLayer {
	return &DenseLayer{
		InputSize:  inputSize,
		OutputSize: outputSize,
		W:          glorotMatrix(outputSize, inputSize, rng),
		B:          make([]float64, outputSize),
	}
}

func (d *DenseLayer) forward(h []float64) []float64 {
	out := make([]float64, d.OutputSize)
	for o := 0; o < d.OutputSize; o++ {
		out[o] = dot(d.W[o], h) + d.B[o]
	}
	return out
}

// Autoencoder is the sequence reconstruction model: a two-layer LSTM encoder
// narrowing into a latent vector, the latent vector repeated across every
// timestep, a two-layer LSTM decoder widening back out, and a linear
// projection to the feature count. Reconstruct is deterministic for fixed
// parameters and safe for concurrent callers; only training mutates weights.
type Autoencoder struct {
	Timesteps int
	Features  int

	Enc1, Enc2 *LSTMLayer
	Dec1, Dec2 *LSTMLayer
	Output     *DenseLayer
}

// NewAutoencoder builds a freshly initialized model for windows of the given
// shape. Initialization is fully determined by seed.
func NewAutoencoder(timesteps, features int, seed int64) *Autoencoder {
	rng := rand.New(rand.NewSource(seed))
	return &Autoencoder{
		Timesteps: timesteps,
		Features:  features,
		Enc1:      newLSTMLayer(features, wideUnits, rng),
		Enc2:      newLSTMLayer(wideUnits, narrowUnits, rng),
		Dec1:      newLSTMLayer(narrowUnits, narrowUnits, rng),
		Dec2:      newLSTMLayer(narrowUnits, wideUnits, rng),
		Output:    newDenseLayer(wideUnits, features, rng),
	}
}

// windowCache captures all per-layer state from one training forward pass.
type windowCache struct {
	c1, c2, c3, c4 *lstmCache
	hs4            [][]float64
	y              [][]float64
}

func (a *Autoencoder) forwardWindow(x [][]float64) *windowCache {
	hs1, c1 := a.Enc1.forward(x)
	hs2, c2 := a.Enc2.forward(hs1)
	latent := hs2[len(hs2)-1]

	// RepeatVector: the decoder sees the latent vector at every timestep.
	repeated := make([][]float64, a.Timesteps)
	for t := range repeated {
		repeated[t] = latent
	}

	hs3, c3 := a.Dec1.forward(repeated)
	hs4, c4 := a.Dec2.forward(hs3)

	y := make([][]float64, a.Timesteps)
	for t := range y {
		y[t] = a.Output.forward(hs4[t])
	}

	return &windowCache{c1: c1, c2: c2, c3: c3, c4: c4, hs4: hs4, y: y}
}

// Reconstruct returns the model's reconstruction of a single window, with
// the same (timesteps x features) shape as the input.
func (a *Autoencoder) Reconstruct(window [][]float64) [][]float64 {
	return a.forwardWindow(window).y
}

// ReconstructBatch reconstructs every window in the batch.
func (a *Autoencoder) ReconstructBatch(windows [][][]float64) [][][]float64 {
	out := make([][][]float64, len(windows))
	for i, w := range windows {
		out[i] = a.Reconstruct(w)
	}
	return out
}

// autoencoderGrads holds accumulated gradients for every parameter.
type autoencoderGrads struct {
	enc1, enc2, dec1, dec2 *lstmGrads
	outW                   [][]float64
	outB                   []float64
}

func newAutoencoderGrads(a *Autoencoder) *autoencoderGrads {
	return &autoencoderGrads{
		enc1: newLSTMGrads(a.Enc1),
		enc2: newLSTMGrads(a.Enc2),
		dec1: newLSTMGrads(a.Dec1),
		dec2: newLSTMGrads(a.Dec2),
		outW: zeroMatrix(a.Output.OutputSize, a.Output.InputSize),
		outB: make([]float64, a.Output.OutputSize),
	}
}

// backwardWindow backpropagates the output gradient dY (T x F) through the
// whole network, accumulating parameter gradients into g.
func (a *Autoencoder) backwardWindow(wc *windowCache, dY [][]float64, g *autoencoderGrads) {
	T := a.Timesteps

	// Output projection.
	dh4 := zeroMatrix(T, a.Dec2.HiddenSize)
	for t := 0; t < T; t++ {
		for o := 0; o < a.Output.OutputSize; o++ {
			dyo := dY[t][o]
			g.outB[o] += dyo
			w := a.Output.W[o]
			gw := g.outW[o]
			for k, hk := range wc.hs4[t] {
				gw[k] += dyo * hk
				dh4[t][k] += dyo * w[k]
			}
		}
	}

	dx4 := a.Dec2.backward(wc.c4, dh4, g.dec2)
	dx3 := a.Dec1.backward(wc.c3, dx4, g.dec1)

	// RepeatVector: the latent gradient is the sum over timesteps of the
	// first decoder layer's input gradients.
	dLatent := make([]float64, a.Enc2.HiddenSize)
	for t := 0; t < T; t++ {
		for j, v := range dx3[t] {
			dLatent[j] += v
		}
	}

	// The second encoder layer only exposes its final hidden state.
	dh2 := zeroMatrix(T, a.Enc2.HiddenSize)
	dh2[T-1] = dLatent

	dx2 := a.Enc2.backward(wc.c2, dh2, g.enc2)
	a.Enc1.backward(wc.c1, dx2, g.enc1)
}

// paramSlices enumerates every parameter vector in a fixed order. Gradient
// and optimizer state slices use the identical ordering.
func (a *Autoencoder) paramSlices() [][]float64 {
	var ps [][]float64
	for _, l := range []*LSTMLayer{a.Enc1, a.Enc2, a.Dec1, a.Dec2} {
		for _, w := range [][][]float64{l.Wi, l.Wf, l.Wo, l.Wg} {
			ps = append(ps, w...)
		}
		ps = append(ps, l.Bi, l.Bf, l.Bo, l.Bg)
	}
	ps = append(ps, a.Output.W...)
	ps = append(ps, a.Output.B)
	return ps
}

func (g *autoencoderGrads) slices() [][]float64 {
	var ps [][]float64
	for _, lg := range []*lstmGrads{g.enc1, g.enc2, g.dec1, g.dec2} {
		for _, w := range [][][]float64{lg.Wi, lg.Wf, lg.Wo, lg.Wg} {
			ps = append(ps, w...)
		}
		ps = append(ps, lg.Bi, lg.Bf, lg.Bo, lg.Bg)
	}
	ps = append(ps, g.outW...)
	ps = append(ps, g.outB)
	return ps
}

func (g *autoencoderGrads) reset() {
	for _, s := range g.slices() {
		for k := range s {
			s[k] = 0
		}
	}
}

// snapshotWeights deep-copies all parameters, for best-epoch retention.
func (a *Autoencoder) snapshotWeights() [][]float64 {
	params := a.paramSlices()
	snap := make([][]float64, len(params))
	for i, p := range params {
		cp := make([]float64, len(p))
		copy(cp, p)
		snap[i] = cp
	}
	return snap
}

// restoreWeights copies a snapshot back into the live parameters.
func (a *Autoencoder) restoreWeights(snap [][]float64) {
	for i, p := range a.paramSlices() {
		copy(p, snap[i])
	}
}

// adam implements the Adam optimizer over the flattened parameter slices.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	o := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	o.m = make([][]float64, len(params))
	o.v = make([][]float64, len(params))
	for i, p := range params {
		o.m[i] = make([]float64, len(p))
		o.v[i] = make([]float64, len(p))
	}
	return o
}

func (o *adam) step(params, grads [][]float64) {
	o.t++
	mc := 1 - math.Pow(o.beta1, float64(o.t))
	vc := 1 - math.Pow(o.beta2, float64(o.t))
	for i, p := range params {
		g := grads[i]
		m := o.m[i]
		v := o.v[i]
		for k := range p {
			m[k] = o.beta1*m[k] + (1-o.beta1)*g[k]
			v[k] = o.beta2*v[k] + (1-o.beta2)*g[k]*g[k]
			p[k] -= o.lr * (m[k] / mc) / (math.Sqrt(v[k]/vc) + o.eps)
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	var sum float64
	for k, av := range a {
		sum += av * b[k]
	}
	return sum
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// glorotMatrix draws weights from the Glorot uniform distribution.
func glorotMatrix(rows, cols int, rng *rand.Rand) [][]float64 {
	limit := math.Sqrt(6 / float64(rows+cols))
	m := make([][]float64, rows)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			row[j] = (rng.Float64()*2 - 1) * limit
		}
		m[i] = row
	}
	return m
}
