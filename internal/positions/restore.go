package positions

import (
	"context"
	"fmt"

	"signal-trader/internal/models"
	"signal-trader/internal/store"
	"signal-trader/pkg/utils"
)

// slFallbackPct is applied to the entry price when no stop loss can be
// recovered from the signal or the order ledger.
const slFallbackPct = 0.10

// RestoreFromSandbox rebuilds the active book from open ledger rows after a
// restart. Rows last touched on a previous trading day are force-closed
// instead (intraday positions do not survive the daily reset). Returns the
// number of positions restored.
func (m *Monitor) RestoreFromSandbox(ctx context.Context) (int, error) {
	if m.ledger == nil {
		return 0, nil
	}

	rows, err := m.ledger.OpenSandboxPositions(ctx, m.user)
	if err != nil {
		return 0, fmt.Errorf("failed to load sandbox positions: %w", err)
	}

	restored := 0
	for i := range rows {
		row := &rows[i]

		if !utils.SameTradingDay(row.UpdatedAt, m.now()) {
			if err := m.ledger.ZeroSandboxPosition(ctx, m.user, row.Symbol); err != nil {
				m.logger.Warn().Err(err).Str("symbol", row.Symbol).Msg("Failed to close stale position")
				continue
			}
			m.logger.Info().Str("symbol", row.Symbol).Msg("Stale position from previous day closed")
			continue
		}

		pos := m.positionFromRow(ctx, row)
		m.mu.Lock()
		m.active[pos.OrderID] = pos
		m.mu.Unlock()
		restored++

		m.logger.Info().
			Str("order_id", pos.OrderID).
			Str("symbol", pos.Symbol).
			Float64("entry", pos.EntryPrice).
			Float64("sl", pos.CurrentSL).
			Msg("Position restored from sandbox")
	}

	return restored, nil
}

// positionFromRow reconstructs the monitor state for one open ledger row.
// The stop loss comes from the stored signal when present, then from a
// resting protective order's trigger, then from the latest historical one,
// and finally falls back to 10% off the entry.
func (m *Monitor) positionFromRow(ctx context.Context, row *store.SandboxPosition) *models.Position {
	action := models.OrderSideBuy
	qty := row.Quantity
	if qty < 0 {
		action = models.OrderSideSell
		qty = -qty
	}

	pos := &models.Position{
		OrderID:           fmt.Sprintf("SANDBOX_%d", row.ID),
		Symbol:            row.Symbol,
		Exchange:          models.Exchange(row.Exchange),
		Action:            action,
		Product:           models.ProductType(row.Product),
		Username:          row.User,
		OriginalQuantity:  qty,
		RemainingQuantity: qty,
		EntryPrice:        row.AveragePrice,
		Status:            models.StatusActive,
		TrailingEnabled:   true,
		SignalData:        row.SignalData,
		CreatedAt:         row.CreatedAt,
	}

	if sig := row.SignalData; sig != nil {
		pos.Targets = sig.Targets
		pos.FinalTarget = sig.Target
		if sig.StopLoss > 0 {
			pos.CurrentSL = sig.StopLoss
			pos.OriginalSL = sig.StopLoss
		}
	}

	if pos.CurrentSL == 0 {
		pos.CurrentSL = m.recoverSL(ctx, row.Symbol)
		pos.OriginalSL = pos.CurrentSL
	}
	if pos.CurrentSL == 0 {
		pos.CurrentSL = fallbackSL(action, row.AveragePrice)
		pos.OriginalSL = pos.CurrentSL
		m.logger.Warn().
			Str("symbol", row.Symbol).
			Float64("sl", pos.CurrentSL).
			Msg("No stop loss found, using 10% fallback")
	}

	return pos
}

// recoverSL pulls a trigger price from the order ledger, preferring a
// still-resting protective order over the latest historical one.
func (m *Monitor) recoverSL(ctx context.Context, symbol string) float64 {
	order, err := m.ledger.OpenSLOrder(ctx, m.user, symbol)
	if err != nil {
		m.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to query resting SL order")
	}
	if order != nil && order.TriggerPrice > 0 {
		return order.TriggerPrice
	}

	order, err = m.ledger.LatestSLOrder(ctx, m.user, symbol)
	if err != nil {
		m.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to query latest SL order")
	}
	if order != nil && order.TriggerPrice > 0 {
		return order.TriggerPrice
	}
	return 0
}

// fallbackSL is 10% below entry for longs, 10% above for shorts, rounded
// to one decimal.
func fallbackSL(action models.OrderSide, entry float64) float64 {
	if action == models.OrderSideSell {
		return utils.Round1(entry * (1 + slFallbackPct))
	}
	return utils.Round1(entry * (1 - slFallbackPct))
}
