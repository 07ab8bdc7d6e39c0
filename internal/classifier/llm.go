package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"signal-trader/internal/models"
)

const llmPrompt = `You are a trading signal parser. Analyze this message and determine if it contains a trading signal.

Message: %q

Return ONLY a JSON object with these fields (no markdown, no extra text):
{
  "is_signal": true/false,
  "action": "BUY" or "SELL" (if is_signal is true),
  "symbol": "symbol name" (e.g., "NIFTY", "BANKNIFTY"),
  "strike": "strike price as string",
  "option_type": "CE" or "PE",
  "price": entry price as number (see rules below),
  "sl": stop loss as number (null if not mentioned),
  "targets": [list of all targets found as numbers],
  "confidence": 0.0 to 1.0
}

RULES:
1. Entry price: if a range is given like "370-390" or "above 370-390", ALWAYS select the LOWER BOUND (e.g. 370) as the price.
2. Targets: parse multiple targets separated by dashes ("410-420-430") or spaces. Return all in the targets array.
3. Stop loss: if missing, set "sl" to null.

Return ONLY the JSON.`

// llmResult is the JSON contract the model is asked to emit.
type llmResult struct {
	IsSignal   bool      `json:"is_signal"`
	Action     string    `json:"action"`
	Symbol     string    `json:"symbol"`
	Strike     string    `json:"strike"`
	OptionType string    `json:"option_type"`
	Price      float64   `json:"price"`
	SL         *float64  `json:"sl"`
	Targets    []float64 `json:"targets"`
	Confidence float64   `json:"confidence"`
}

// LLMParser parses signals with a chat-completion model. It sits last in
// the parser chain; any failure yields a non-signal result plus an error
// for the chain to log.
type LLMParser struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewLLMParser creates an LLM-backed parser.
func NewLLMParser(apiKey, model string, logger zerolog.Logger) *LLMParser {
	return &LLMParser{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger.With().Str("component", "llm_parser").Logger(),
	}
}

var _ Parser = (*LLMParser)(nil)

// Name implements Parser.
func (p *LLMParser) Name() string { return "llm" }

// Parse implements Parser.
func (p *LLMParser) Parse(ctx context.Context, text string) (models.Classification, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.1,
		MaxTokens:   256,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(llmPrompt, text)},
		},
	})
	if err != nil {
		return models.Classification{}, fmt.Errorf("llm completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Classification{}, fmt.Errorf("no response from llm")
	}

	raw := stripMarkdownFences(resp.Choices[0].Message.Content)

	var result llmResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return models.Classification{}, fmt.Errorf("llm returned invalid JSON: %w", err)
	}

	if !result.IsSignal {
		return models.Classification{Confidence: result.Confidence}, nil
	}

	sig := &models.Signal{
		Action:     models.OrderSide(strings.ToUpper(result.Action)),
		Symbol:     strings.ToUpper(result.Symbol),
		Strike:     result.Strike,
		OptionType: models.OptionType(strings.ToUpper(result.OptionType)),
		Price:      result.Price,
		Targets:    result.Targets,
	}
	if result.SL != nil {
		sig.StopLoss = *result.SL
	}
	if len(result.Targets) > 0 {
		if sig.Action == models.OrderSideSell {
			sig.Target = minOf(result.Targets)
		} else {
			sig.Target = maxOf(result.Targets)
		}
	}

	p.logger.Info().
		Float64("confidence", result.Confidence).
		Str("symbol", sig.Symbol).
		Msg("LLM parsed signal")

	return models.Classification{
		IsSignal:   true,
		Confidence: result.Confidence,
		Signal:     sig,
	}, nil
}

// stripMarkdownFences removes a surrounding ```json ... ``` block when the
// model ignores the no-markdown instruction.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.Split(s, "```")
	if len(parts) < 2 {
		return s
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}
