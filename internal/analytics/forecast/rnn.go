package forecast

import (
	"math"
	"math/rand"
)

// A small Elman recurrent network for scalar sequence regression, trained
// from scratch on one call's data only. The network reads a window of scaled
// daily totals and predicts the next value; forecasting feeds predictions
// back in autoregressively.
const (
	rnnSeed       = 42
	rnnHidden     = 16
	rnnEpochs     = 80
	rnnLearnRate  = 0.01
	rnnDropout    = 0.2
	rnnClipSignal = 5.0
)

type rnn struct {
	hidden int
	wxh    []float64   // input -> hidden
	whh    [][]float64 // hidden -> hidden
	bh     []float64
	why    []float64 // hidden -> output
	by     float64
}

func newRNN(hidden int, rng *rand.Rand) *rnn {
	n := &rnn{
		hidden: hidden,
		wxh:    make([]float64, hidden),
		whh:    make([][]float64, hidden),
		bh:     make([]float64, hidden),
		why:    make([]float64, hidden),
	}
	for i := 0; i < hidden; i++ {
		n.wxh[i] = rng.NormFloat64() * 0.1
		n.why[i] = rng.NormFloat64() * 0.1
		n.whh[i] = make([]float64, hidden)
		for j := 0; j < hidden; j++ {
			n.whh[i][j] = rng.NormFloat64() * 0.1
		}
	}
	return n
}

// forward runs the window through the network and returns every hidden state
// plus the scalar output. mask is the dropout mask applied to the final
// hidden state during training; nil means no dropout (inference).
func (n *rnn) forward(window []float64, mask []float64) (states [][]float64, out float64) {
	h := make([]float64, n.hidden)
	states = make([][]float64, len(window))
	for t, x := range window {
		next := make([]float64, n.hidden)
		for i := 0; i < n.hidden; i++ {
			a := n.wxh[i]*x + n.bh[i]
			for j := 0; j < n.hidden; j++ {
				a += n.whh[i][j] * h[j]
			}
			next[i] = math.Tanh(a)
		}
		h = next
		states[t] = h
	}
	for i := 0; i < n.hidden; i++ {
		v := h[i]
		if mask != nil {
			v *= mask[i]
		}
		out += n.why[i] * v
	}
	out += n.by
	return states, out
}

// train fits the network with per-sample gradient descent and backprop
// through time. windows[i] predicts targets[i].
func (n *rnn) train(windows [][]float64, targets []float64, rng *rand.Rand) {
	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}
	keep := 1 - rnnDropout

	for epoch := 0; epoch < rnnEpochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, s := range order {
			window, target := windows[s], targets[s]

			mask := make([]float64, n.hidden)
			for i := range mask {
				if rng.Float64() < keep {
					mask[i] = 1 / keep
				}
			}

			states, out := n.forward(window, mask)
			dOut := 2 * (out - target)

			dWhy := make([]float64, n.hidden)
			dh := make([]float64, n.hidden)
			last := states[len(states)-1]
			for i := 0; i < n.hidden; i++ {
				dWhy[i] = dOut * last[i] * mask[i]
				dh[i] = dOut * n.why[i] * mask[i]
			}
			dBy := dOut

			dWxh := make([]float64, n.hidden)
			dBh := make([]float64, n.hidden)
			dWhh := make([][]float64, n.hidden)
			for i := range dWhh {
				dWhh[i] = make([]float64, n.hidden)
			}

			for t := len(window) - 1; t >= 0; t-- {
				var prev []float64
				if t > 0 {
					prev = states[t-1]
				}
				da := make([]float64, n.hidden)
				for i := 0; i < n.hidden; i++ {
					da[i] = dh[i] * (1 - states[t][i]*states[t][i])
					dWxh[i] += da[i] * window[t]
					dBh[i] += da[i]
					if prev != nil {
						for j := 0; j < n.hidden; j++ {
							dWhh[i][j] += da[i] * prev[j]
						}
					}
				}
				next := make([]float64, n.hidden)
				for j := 0; j < n.hidden; j++ {
					for i := 0; i < n.hidden; i++ {
						next[j] += n.whh[i][j] * da[i]
					}
				}
				dh = next
			}

			for i := 0; i < n.hidden; i++ {
				n.why[i] -= rnnLearnRate * clipGrad(dWhy[i])
				n.wxh[i] -= rnnLearnRate * clipGrad(dWxh[i])
				n.bh[i] -= rnnLearnRate * clipGrad(dBh[i])
				for j := 0; j < n.hidden; j++ {
					n.whh[i][j] -= rnnLearnRate * clipGrad(dWhh[i][j])
				}
			}
			n.by -= rnnLearnRate * clipGrad(dBy)
		}
	}
}

// predict runs inference on one window without dropout.
func (n *rnn) predict(window []float64) float64 {
	_, out := n.forward(window, nil)
	return out
}

func clipGrad(g float64) float64 {
	if g > rnnClipSignal {
		return rnnClipSignal
	}
	if g < -rnnClipSignal {
		return -rnnClipSignal
	}
	return g
}

// slidingWindows builds lookback/target pairs from a scaled series.
func slidingWindows(series []float64, lookback int) (windows [][]float64, targets []float64) {
	for i := 0; i+lookback < len(series); i++ {
		windows = append(windows, series[i:i+lookback])
		targets = append(targets, series[i+lookback])
	}
	return windows, targets
}
