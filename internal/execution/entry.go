package execution

import (
	"context"

	apperrors "signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/pkg/utils"
)

// entryDecision is the order type and price legs chosen for a signal.
type entryDecision struct {
	Type         models.OrderType
	Price        float64
	TriggerPrice float64
}

// Fallback bands used when no live quote is available and the message
// carried an above/below condition.
const (
	condTriggerOffset = 0.1
	condLimitOffset   = 1.0
)

// decideEntry picks the order type and prices for a signal against the
// live quote. For a BUY with entry reference E and tolerances (min, max):
//
//	quote < E            breakout pending, stop order trigger E+min limit E+max
//	E ≤ quote < E+min    too close to confirm, refused (waiting)
//	E+min ≤ quote ≤ E+max  breaking out, limit at quote+0.05
//	quote > E+max        moved too far, refused (pullback)
//
// SELL mirrors the bands below the entry. Without a quote the extracted
// condition decides; without a price the order goes out at market.
func (s *Service) decideEntry(ctx context.Context, sig *models.Signal, symbol string, exchange models.Exchange) (entryDecision, error) {
	if sig.Price == 0 {
		return entryDecision{Type: models.OrderTypeMarket}, nil
	}

	quote, err := s.broker.GetQuote(ctx, exchange, symbol)
	if err != nil || quote == nil || quote.LTP == 0 {
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote unavailable, falling back to condition logic")
		}
		return s.decideEntryWithoutQuote(sig), nil
	}

	entry := sig.Price
	ltp := quote.LTP
	minTol := s.cfg.MinEntryTolerance
	maxTol := s.cfg.MaxEntryTolerance

	if sig.Action == models.OrderSideSell {
		switch {
		case ltp > entry:
			return entryDecision{
				Type:         models.OrderTypeStopLoss,
				TriggerPrice: utils.RoundTick(entry - minTol),
				Price:        utils.RoundTick(entry - maxTol),
			}, nil
		case ltp >= entry-minTol:
			return entryDecision{}, apperrors.NewEntryError(symbol, "waiting", ltp, entry)
		case ltp >= entry-maxTol:
			return entryDecision{
				Type:  models.OrderTypeLimit,
				Price: utils.RoundTick(ltp - 0.05),
			}, nil
		default:
			return entryDecision{}, apperrors.NewEntryError(symbol, "pullback", ltp, entry)
		}
	}

	switch {
	case ltp < entry:
		return entryDecision{
			Type:         models.OrderTypeStopLoss,
			TriggerPrice: utils.RoundTick(entry + minTol),
			Price:        utils.RoundTick(entry + maxTol),
		}, nil
	case ltp < entry+minTol:
		return entryDecision{}, apperrors.NewEntryError(symbol, "waiting", ltp, entry)
	case ltp <= entry+maxTol:
		return entryDecision{
			Type:  models.OrderTypeLimit,
			Price: utils.RoundTick(ltp + 0.05),
		}, nil
	default:
		return entryDecision{}, apperrors.NewEntryError(symbol, "pullback", ltp, entry)
	}
}

// decideEntryWithoutQuote falls back to the extracted condition when the
// quote service is down or the instrument has no price yet.
func (s *Service) decideEntryWithoutQuote(sig *models.Signal) entryDecision {
	entry := sig.Price

	switch sig.Condition {
	case "above":
		return entryDecision{
			Type:         models.OrderTypeStopLoss,
			TriggerPrice: utils.RoundTick(entry + condTriggerOffset),
			Price:        utils.RoundTick(entry + condLimitOffset),
		}
	case "below":
		return entryDecision{
			Type:         models.OrderTypeStopLoss,
			TriggerPrice: utils.RoundTick(entry - condTriggerOffset),
			Price:        utils.RoundTick(entry - condLimitOffset),
		}
	}

	if sig.Action == models.OrderSideSell {
		return entryDecision{
			Type:  models.OrderTypeLimit,
			Price: utils.RoundTick(entry - condTriggerOffset),
		}
	}
	return entryDecision{
		Type:  models.OrderTypeLimit,
		Price: utils.RoundTick(entry + condTriggerOffset),
	}
}
