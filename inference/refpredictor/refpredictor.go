// Package refpredictor provides a deterministic, ML-free inference.Predictor
// for tests and benchmarks that don't need a real model: heuristic values
// are computed directly from the observation tensor rather than learned.
package refpredictor

import (
	"github.com/kepford/phsstar/game"
	"github.com/kepford/phsstar/inference"
)

// Predictor estimates remaining cost as the count of uncollected diamonds
// visible in the observation and returns a uniform action distribution. It
// implements inference.Predictor without any external runtime dependency.
type Predictor struct {
	shape inference.Shape
}

// New builds a reference predictor for observations of the given shape.
func New(shape inference.Shape) *Predictor {
	return &Predictor{shape: shape}
}

// Shape returns the observation shape the predictor was constructed with.
func (p *Predictor) Shape() inference.Shape { return p.shape }

// Infer computes one Output per input observation.
func (p *Predictor) Infer(inputs []inference.Observation) ([]inference.Output, error) {
	outputs := make([]inference.Output, len(inputs))
	uniform := make([]float64, game.NumActions)
	for i := range uniform {
		uniform[i] = 1.0 / float64(game.NumActions)
	}
	cellCount := p.shape.H * p.shape.W
	diamondOffset := int(game.VisDiamond) * cellCount
	fallingOffset := int(game.VisDiamondFalling) * cellCount
	for i, obs := range inputs {
		policy := make([]float64, game.NumActions)
		copy(policy, uniform)
		var remaining float64
		if len(obs) >= fallingOffset+cellCount {
			for c := 0; c < cellCount; c++ {
				remaining += float64(obs[diamondOffset+c])
				remaining += float64(obs[fallingOffset+c])
			}
		}
		outputs[i] = inference.Output{Policy: policy, Heuristic: remaining}
	}
	return outputs, nil
}

// Close is a no-op; the reference predictor owns no external resources.
func (p *Predictor) Close() error { return nil }
