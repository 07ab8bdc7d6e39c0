package classifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"signal-trader/internal/models"
)

// Parser turns raw message text into a classification. Implementations
// must be total in the sense that a non-signal result is preferred over
// an error for merely unparseable text; errors are reserved for
// infrastructure failures (e.g. an LLM call).
type Parser interface {
	Name() string
	Parse(ctx context.Context, text string) (models.Classification, error)
}

var _ Parser = (*Classifier)(nil)

// Name implements Parser.
func (c *Classifier) Name() string { return "rules" }

// Parse implements Parser by delegating to Classify.
func (c *Classifier) Parse(_ context.Context, text string) (models.Classification, error) {
	return c.Classify(text), nil
}

// regexParserConfidence is assumed for a structural regex match.
const regexParserConfidence = 0.8

// fallbackSignalPattern matches the rigid broadcast format
// "BUY NIFTY 22000 CE @ 150 SL 120 TGT 200" with optional strike/type.
var fallbackSignalPattern = regexp.MustCompile(
	`(?i)(?P<action>BUY|SELL)\s+` +
		`(?P<symbol>[A-Z0-9]+)\s*` +
		`(?P<strike>\d+)?\s*` +
		`(?P<option_type>CE|PE)?\s*` +
		`(?:@|AT|ABOVE|CMP)?\s*(?P<price>[\d.]+)\s*` +
		`SL\s*(?P<sl>[\d.]+)\s*` +
		`TGT\s*(?P<tgt>[\d.]+)`)

// RegexParser is the fixed-format fallback behind the rule classifier.
type RegexParser struct{}

// NewRegexParser creates the fallback parser.
func NewRegexParser() *RegexParser { return &RegexParser{} }

var _ Parser = (*RegexParser)(nil)

// Name implements Parser.
func (p *RegexParser) Name() string { return "regex" }

// Parse implements Parser.
func (p *RegexParser) Parse(_ context.Context, text string) (models.Classification, error) {
	m := fallbackSignalPattern.FindStringSubmatch(text)
	if m == nil {
		return models.Classification{}, nil
	}

	groups := make(map[string]string)
	for i, name := range fallbackSignalPattern.SubexpNames() {
		if name != "" && i < len(m) {
			groups[name] = m[i]
		}
	}

	sig := &models.Signal{
		Action:   models.OrderSide(strings.ToUpper(groups["action"])),
		Symbol:   strings.ToUpper(groups["symbol"]),
		Strike:   groups["strike"],
		Price:    parseNum(groups["price"]),
		StopLoss: parseNum(groups["sl"]),
	}
	if ot := strings.ToUpper(groups["option_type"]); ot != "" {
		sig.OptionType = models.OptionType(ot)
	}
	if tgt := parseNum(groups["tgt"]); tgt > 0 {
		sig.Target = tgt
		sig.Targets = []float64{tgt}
	}

	return models.Classification{
		IsSignal:   true,
		Confidence: regexParserConfidence,
		Signal:     sig,
	}, nil
}

// Chain tries parsers in priority order and returns the first signal
// result. Parser errors are logged and skipped. When no parser finds a
// signal, the primary parser's result is returned so callers still see
// its confidence.
type Chain struct {
	parsers []Parser
	logger  zerolog.Logger
}

// NewChain creates a parser chain. At least one parser is required.
func NewChain(logger zerolog.Logger, parsers ...Parser) *Chain {
	return &Chain{
		parsers: parsers,
		logger:  logger.With().Str("component", "parser_chain").Logger(),
	}
}

// Parse implements Parser.
func (c *Chain) Parse(ctx context.Context, text string) (models.Classification, error) {
	var primary models.Classification
	for i, p := range c.parsers {
		result, err := p.Parse(ctx, text)
		if err != nil {
			c.logger.Warn().Err(err).Str("parser", p.Name()).Msg("Parser failed, trying next")
			continue
		}
		if i == 0 {
			primary = result
		}
		if result.IsSignal {
			c.logger.Debug().
				Str("parser", p.Name()).
				Float64("confidence", result.Confidence).
				Msg("Parser matched signal")
			return result, nil
		}
	}
	return primary, nil
}

// Name implements Parser.
func (c *Chain) Name() string { return "chain" }

var _ Parser = (*Chain)(nil)
