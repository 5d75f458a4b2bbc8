package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// MaxScore is the top of the difficulty scale. 0 is a certain win.
const MaxScore = 5.0

// Label is a coarse difficulty label.
type Label string

const (
	LabelVeryEasy Label = "Very Easy"
	LabelEasy     Label = "Easy"
	LabelModerate Label = "Moderate"
	LabelHard     Label = "Hard"
	LabelVeryHard Label = "Very Hard"
)

// LabelFor maps a difficulty value on the 0-5 scale to its label.
func LabelFor(value float64) Label {
	switch {
	case value < 1:
		return LabelVeryEasy
	case value < 2:
		return LabelEasy
	case value < 3:
		return LabelModerate
	case value < 4:
		return LabelHard
	default:
		return LabelVeryHard
	}
}

// ConfidenceBand buckets a confidence value.
type ConfidenceBand string

const (
	ConfidenceLow    ConfidenceBand = "low"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceHigh   ConfidenceBand = "high"
)

// BandFor maps a confidence value to its band.
func BandFor(confidence float64) ConfidenceBand {
	switch {
	case confidence < 0.4:
		return ConfidenceLow
	case confidence < 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// ExternalPrediction is a win probability from an outside predictor.
type ExternalPrediction struct {
	WinProbability float64 `json:"win_probability"`
	// ModelDeployed is true when the probability came from a trained model rather
	// than the predictor's own heuristic fallback.
	ModelDeployed bool   `json:"model_deployed"`
	Source        string `json:"source,omitempty"`
}

// Factor is one input that contributed to a score.
type Factor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail,omitempty"`
}

// MatchupScore is the result of scoring one potential fight.
type MatchupScore struct {
	Value               float64        `json:"value"`
	Label               Label          `json:"label"`
	Confidence          float64        `json:"confidence"`
	ConfidenceBand      ConfidenceBand `json:"confidence_band"`
	WinProbability      float64        `json:"win_probability"`
	FairFight           float64        `json:"fair_fight"`
	SelfBattleScore     float64        `json:"self_battle_score"`
	OpponentBattleScore float64        `json:"opponent_battle_score"`
	RespectPerEnergy    float64        `json:"respect_per_energy,omitempty"`
	Fallback            bool           `json:"fallback"`
	Factors             []Factor       `json:"factors"`
	// AsOf is when the community data behind the score was merged. Zero when no
	// merge has completed yet.
	AsOf time.Time `json:"as_of"`
}

// LevelEstimator estimates total stats from a level.
type LevelEstimator interface {
	Estimate(level int) float64
}

// Config holds the scoring knobs.
type Config struct {
	// MinSamplesForConfidence is the global bucket size below which the community
	// signal is ignored. Default: 10
	MinSamplesForConfidence int64

	// MinLocalSamples is the local bucket size below which the client's own
	// history is ignored. Default: 3
	MinLocalSamples int64

	// MaxExternalWeight caps the external predictor's share of the final
	// probability. Default: 0.5
	MaxExternalWeight float64

	// ExternalPseudoCount is how many outcomes one external prediction is worth
	// when blended against observed samples. Default: 25
	ExternalPseudoCount float64

	// BaselinePriorSamples is how many outcomes the level/stat baseline is worth.
	// Default: 5
	BaselinePriorSamples float64

	// LevelScale is the level difference that moves the level baseline from
	// 50% to about 73%. Default: 10
	LevelScale float64

	// ConfidenceSampleScale is the sample count at which the sample-size part of
	// confidence reaches half its maximum. Default: 30
	ConfidenceSampleScale float64
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() *Config {
	return &Config{
		MinSamplesForConfidence: 10,
		MinLocalSamples:         3,
		MaxExternalWeight:       0.5,
		ExternalPseudoCount:     25,
		BaselinePriorSamples:    5,
		LevelScale:              10,
		ConfidenceSampleScale:   30,
	}
}

const (
	confidenceFloor    = 0.1
	confidenceSamples  = 0.6
	confidenceExternal = 0.2
	confidenceModel    = 0.1
)

// Engine scores matchups. It never performs I/O.
type Engine struct {
	config    *Config
	estimator LevelEstimator
}

// NewEngine creates an engine. estimator may be nil, in which case unknown stats
// fall back to a level-only baseline.
func NewEngine(config *Config, estimator LevelEstimator) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config, estimator: estimator}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return *e.config }

type side struct {
	score    float64
	observed bool
}

func (e *Engine) battleScore(stats *bucket.Stats, level int) side {
	if stats != nil && stats.Sum() > 0 {
		return side{score: BattleScore(*stats), observed: true}
	}
	if e.estimator != nil {
		return side{score: BattleScore(bucket.Stats{Total: e.estimator.Estimate(level)})}
	}
	return side{}
}

// Score blends the level/stat baseline, the client's own bucket, the community
// bucket and an optional external prediction. Missing signals are expected; with
// none available the score is the baseline alone at the lowest confidence.
func (e *Engine) Score(ctx bucket.MatchContext, local, global *aggregate.BucketAggregate, external *ExternalPrediction) MatchupScore {
	cfg := e.config
	self := e.battleScore(ctx.SelfStats, ctx.SelfLevel)
	opp := e.battleScore(ctx.OpponentStats, ctx.OpponentLevel)
	ff := FairFight(self.score, opp.score)

	factors := []Factor{{
		Name:   "fair_fight",
		Value:  ff,
		Detail: fmt.Sprintf("battle scores %.1f vs %.1f", self.score, opp.score),
	}}

	baseline, baselineDetail := e.baseline(ctx, self, opp)
	factors = append(factors, Factor{Name: "baseline", Value: baseline, Weight: cfg.BaselinePriorSamples, Detail: baselineDetail})

	var evidence, samples float64
	if local != nil && local.Count > 0 && local.Count >= cfg.MinLocalSamples {
		n := float64(local.Count)
		evidence += local.WinRate() * n
		samples += n
		factors = append(factors, Factor{Name: "local", Value: local.WinRate(), Weight: n})
	}

	var respectPerEnergy float64
	if global != nil && global.Count > 0 && global.Count >= cfg.MinSamplesForConfidence {
		n := float64(global.Count)
		evidence += global.WinRate() * n
		samples += n
		respectPerEnergy = global.AvgRespectPerEnergy()
		factors = append(factors, Factor{Name: "community", Value: global.WinRate(), Weight: n})
	} else if global != nil && global.Count > 0 {
		factors = append(factors, Factor{
			Name:   "community",
			Detail: fmt.Sprintf("ignored: %d samples below %d", global.Count, cfg.MinSamplesForConfidence),
		})
	}

	p := baseline
	if samples > 0 {
		observed := evidence / samples
		p = (observed*samples + baseline*cfg.BaselinePriorSamples) / (samples + cfg.BaselinePriorSamples)
	}

	hasExternal := external != nil && validProbability(external.WinProbability)
	if hasExternal {
		k := cfg.ExternalPseudoCount
		w := math.Min(k/(samples+k), cfg.MaxExternalWeight)
		p = (1-w)*p + w*external.WinProbability
		factors = append(factors, Factor{Name: "external", Value: external.WinProbability, Weight: w, Detail: external.Source})
	}

	p = clamp(p, 0, 1)
	value := clamp(MaxScore*(1-p), 0, MaxScore)
	confidence := e.confidence(samples, hasExternal, hasExternal && external.ModelDeployed)

	return MatchupScore{
		Value:               value,
		Label:               LabelFor(value),
		Confidence:          confidence,
		ConfidenceBand:      BandFor(confidence),
		WinProbability:      p,
		FairFight:           ff,
		SelfBattleScore:     self.score,
		OpponentBattleScore: opp.score,
		RespectPerEnergy:    respectPerEnergy,
		Fallback:            samples == 0 && !hasExternal,
		Factors:             factors,
	}
}

// baseline is the prior win probability before any outcome data: the share of
// combined battle score when both sides have a score, otherwise a logistic curve
// over the level difference.
func (e *Engine) baseline(ctx bucket.MatchContext, self, opp side) (float64, string) {
	if self.score > 0 && opp.score > 0 {
		detail := "estimated stats"
		if self.observed && opp.observed {
			detail = "observed stats"
		} else if self.observed || opp.observed {
			detail = "partially observed stats"
		}
		return self.score / (self.score + opp.score), detail
	}

	scale := e.config.LevelScale
	if scale <= 0 {
		scale = 10
	}
	diff := float64(ctx.SelfLevel - ctx.OpponentLevel)
	return 1 / (1 + math.Exp(-diff/scale)), "level difference"
}

// confidence grows with the number of usable samples and with the presence of an
// external prediction and a deployed model. It is capped at 1.
func (e *Engine) confidence(samples float64, external, model bool) float64 {
	scale := e.config.ConfidenceSampleScale
	if scale <= 0 {
		scale = 30
	}
	c := confidenceFloor + confidenceSamples*samples/(samples+scale)
	if external {
		c += confidenceExternal
	}
	if model {
		c += confidenceModel
	}
	return math.Min(c, 1)
}

func validProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
