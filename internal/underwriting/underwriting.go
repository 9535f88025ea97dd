// Package underwriting scores merchants against benchmark risk predictors
// and gates credit decisions.
package underwriting

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/lendsim/internal/num"
)

// ErrUnknownPredictor indicates a configured predictor has no accessor.
var ErrUnknownPredictor = errors.New("underwriting: unknown predictor")

// Score is the current state of one predictor for a merchant.
type Score struct {
	PredictorConfig
	Value float64
	Score float64
}

// Underwriting holds a per-merchant copy of the predictor configuration and
// the scores derived from it.
type Underwriting struct {
	cfg      Config
	merchant Observable
	scores   []Score
	initial  map[Predictor]float64
}

// New copies cfg and scores every predictor against merchant on day.
func New(cfg Config, merchant Observable, day int) (*Underwriting, error) {
	scores := make([]Score, 0, len(cfg.Predictors))
	for _, pc := range cfg.Predictors {
		if _, ok := accessors[pc.Name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPredictor, pc.Name)
		}
		scores = append(scores, Score{PredictorConfig: pc})
	}
	cfg.Predictors = append([]PredictorConfig(nil), cfg.Predictors...)
	u := &Underwriting{cfg: cfg, merchant: merchant, scores: scores}
	u.UpdateScore(day)
	u.initial = u.ScoreMap()
	return u, nil
}

// BenchmarkComparison maps value onto [0,1] against benchmark. A value equal
// to benchmark/factor scores 1; favourable values saturate at 1 and
// unfavourable ones decay toward 0.
func BenchmarkComparison(benchmark, value, factor float64, higherIsBetter bool) float64 {
	scaled := factor * value
	if higherIsBetter {
		if benchmark <= 0 {
			return 1
		}
		return num.Clip(scaled/benchmark, 0, 1)
	}
	if scaled <= 0 {
		return 1
	}
	return num.Clip(benchmark/scaled, 0, 1)
}

func (u *Underwriting) score(pc PredictorConfig, day int) (value, score float64) {
	value = accessors[pc.Name](u.merchant, day)
	return value, BenchmarkComparison(pc.Benchmark, value, u.cfg.BenchmarkFactor, pc.HigherIsBetter)
}

// UpdateScore rescores every predictor against the merchant on day.
func (u *Underwriting) UpdateScore(day int) {
	for i := range u.scores {
		s := &u.scores[i]
		s.Value, s.Score = u.score(s.PredictorConfig, day)
	}
}

// AggregatedScore is the weight-averaged predictor score.
func (u *Underwriting) AggregatedScore() float64 {
	values := make([]float64, len(u.scores))
	weights := make([]float64, len(u.scores))
	for i, s := range u.scores {
		values[i] = s.Score
		weights[i] = s.Weight
	}
	return num.WeightedAverage(values, weights)
}

// AggregatedScoreOn scores the merchant as of day without touching the
// stored scores that Approved reads.
func (u *Underwriting) AggregatedScoreOn(day int) float64 {
	values := make([]float64, len(u.scores))
	weights := make([]float64, len(u.scores))
	for i, s := range u.scores {
		_, values[i] = u.score(s.PredictorConfig, day)
		weights[i] = s.Weight
	}
	return num.WeightedAverage(values, weights)
}

// Approved requires every predictor to clear its own threshold and the
// aggregate to clear the lender minimum.
func (u *Underwriting) Approved(day int) bool {
	if u.cfg.RescoreDaily {
		u.UpdateScore(day)
	}
	for _, s := range u.scores {
		if s.Score < s.Threshold {
			return false
		}
	}
	return u.AggregatedScore() >= u.cfg.MinAggregateScore
}

// Scores returns a copy of the current predictor scores.
func (u *Underwriting) Scores() []Score {
	return append([]Score(nil), u.scores...)
}

// ScoreMap returns the current score per predictor.
func (u *Underwriting) ScoreMap() map[Predictor]float64 {
	out := make(map[Predictor]float64, len(u.scores))
	for _, s := range u.scores {
		out[s.Name] = s.Score
	}
	return out
}

// InitialScores returns the scores computed at construction.
func (u *Underwriting) InitialScores() map[Predictor]float64 {
	out := make(map[Predictor]float64, len(u.initial))
	for k, v := range u.initial {
		out[k] = v
	}
	return out
}
