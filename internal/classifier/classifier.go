// Package classifier separates actionable trade calls from market
// commentary and extracts structured signal fields from free text.
package classifier

import (
	"strings"

	"github.com/rs/zerolog"

	"signal-trader/internal/models"
)

const (
	// scoreThreshold is the minimum raw keyword score for a signal.
	scoreThreshold = 20
	// confidenceFloor is the minimum normalized confidence for a signal.
	confidenceFloor = 0.5
	// scoreNormalizer maps raw score to a 0..1 confidence.
	scoreNormalizer = 35.0
)

// Classifier is a rule-based trading-signal classifier. It is stateless
// after construction: Classify is a pure function of its input.
type Classifier struct {
	validSymbols map[string]struct{}
	logger       zerolog.Logger
}

// New creates a classifier. validSymbols is the preloaded underlying-symbol
// set used by the extraction step's symbol scan; it may be empty.
func New(validSymbols map[string]struct{}, logger zerolog.Logger) *Classifier {
	return &Classifier{
		validSymbols: validSymbols,
		logger:       logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify scores text against the keyword lexicons and, when the score
// clears the signal threshold, extracts structured fields. It is total:
// malformed input yields a non-signal result, never an error.
func (c *Classifier) Classify(text string) models.Classification {
	textLower := strings.ToLower(text)
	score := 0

	// Anti-patterns first
	for _, anti := range antiPatterns {
		if anti.MatchString(text) {
			score -= 10
		}
	}

	// Action keywords; the first directional match sets the inferred action
	var action models.OrderSide
	for _, k := range actionKeywords {
		if !k.re.MatchString(textLower) {
			continue
		}
		score += k.weight
		if action == "" {
			switch k.word {
			case "buy", "long":
				action = models.OrderSideBuy
			case "sell", "short":
				action = models.OrderSideSell
			}
		}
	}

	// Instrument keywords
	for _, k := range instrumentKeywords {
		if k.re.MatchString(textLower) {
			score += k.weight
		}
	}

	// Parameter keywords; SL+TGT together is the hallmark of a real call
	hasSL, hasTGT := false, false
	for _, k := range paramKeywords {
		if !k.re.MatchString(textLower) {
			continue
		}
		score += k.weight
		if slKeywords[k.word] {
			hasSL = true
		}
		if tgtKeywords[k.word] {
			hasTGT = true
		}
	}
	if hasSL && hasTGT {
		score += 12
	}

	// Noise keywords subtract
	for _, k := range noiseKeywords {
		if k.re.MatchString(textLower) {
			score += k.weight
		}
	}
	if strings.Contains(text, "?") {
		score += questionMarkWeight
	}

	// Price-count bonus: entry + SL + TGT means three numbers
	switch prices := pricePattern.FindAllString(text, -1); {
	case len(prices) >= 3:
		score += 8
	case len(prices) >= 2:
		score += 4
	}

	// Structural pattern bonus, first match only
	for _, p := range signalPatterns {
		if p.MatchString(text) {
			score += 10
			break
		}
	}

	confidence := float64(score) / scoreNormalizer
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	isSignal := score >= scoreThreshold && confidence >= confidenceFloor

	var sig *models.Signal
	if isSignal {
		sig = c.extract(text, action)

		// Quality gate: high keyword density alone is not actionable
		meaningful := sig.Action != "" ||
			(sig.Symbol != "" && (sig.Price > 0 || sig.StopLoss > 0 || sig.HasTarget()))
		if !meaningful {
			c.logger.Debug().Str("text", text).Msg("Signal downgraded, insufficient extracted data")
			isSignal = false
			confidence *= 0.5
			sig = nil
		}
	}

	c.logger.Debug().
		Int("score", score).
		Float64("confidence", confidence).
		Bool("is_signal", isSignal).
		Msg("Classified message")

	return models.Classification{
		IsSignal:   isSignal,
		Confidence: confidence,
		Score:      score,
		Signal:     sig,
	}
}
