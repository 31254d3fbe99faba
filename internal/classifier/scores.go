package classifier

import (
	"fmt"
	"math"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
)

// distributionTolerance is how far a score vector's sum may drift from 1 and
// still be treated as probabilities rather than logits. It covers the rounding
// of dequantized 8-bit outputs (up to one step of 1/256 per class).
const distributionTolerance = 0.02

// SelectTop maps a raw score vector to the top-1 labeled prediction.
// Vectors that already form a probability distribution are used as is;
// anything else is treated as logits and passed through softmax. Ties go to
// the lowest index.
func SelectTop(scores []float32, labels []string) (models.Prediction, error) {
	return selectTop(scores, labels, false)
}

// selectTop skips the distribution check when probabilities is set.
func selectTop(scores []float32, labels []string, probabilities bool) (models.Prediction, error) {
	if len(scores) == 0 || len(scores) != len(labels) {
		return models.Prediction{}, fmt.Errorf("%w: %d scores for %d classes", ErrShapeMismatch, len(scores), len(labels))
	}

	probs := make([]float64, len(scores))
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Prediction{}, fmt.Errorf("%w: score %d is %v", ErrInvalidScores, i, v)
		}
		probs[i] = v
	}

	if !probabilities && !isDistribution(probs) {
		softmax(probs)
	}

	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	return models.Prediction{
		Label:      labels[best],
		Index:      best,
		Confidence: clamp01(probs[best]),
	}, nil
}

func isDistribution(p []float64) bool {
	var sum float64
	for _, v := range p {
		if v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= distributionTolerance
}

// softmax rewrites p in place, shifting by the maximum for numerical stability.
func softmax(p []float64) {
	maxV := p[0]
	for _, v := range p[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range p {
		p[i] = math.Exp(v - maxV)
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
