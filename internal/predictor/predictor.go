// Package predictor provides the optional external win-probability source.
package predictor

import (
	"context"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/scoring"
)

// Predictor returns an external win probability for a match context. ok is false
// when no prediction is available; callers treat that as a missing signal.
type Predictor interface {
	Predict(ctx context.Context, match bucket.MatchContext) (prediction scoring.ExternalPrediction, ok bool)
}

// Noop never predicts.
type Noop struct{}

func (Noop) Predict(context.Context, bucket.MatchContext) (scoring.ExternalPrediction, bool) {
	return scoring.ExternalPrediction{}, false
}

// Func adapts a plain function to a Predictor.
type Func func(ctx context.Context, match bucket.MatchContext) (scoring.ExternalPrediction, bool)

func (f Func) Predict(ctx context.Context, match bucket.MatchContext) (scoring.ExternalPrediction, bool) {
	return f(ctx, match)
}
