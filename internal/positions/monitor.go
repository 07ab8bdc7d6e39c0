// Package positions tracks auto-executed positions through their
// multi-target trailing lifecycle.
package positions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-trader/internal/models"
	"signal-trader/internal/store"
)

// defaultHistoryLimit bounds the closed-position history buffer.
const defaultHistoryLimit = 100

// Ledger is the slice of the store the monitor persists through and
// restores from. Nil in live mode; the broker is the source of truth there.
type Ledger interface {
	UpsertSandboxPosition(ctx context.Context, p *store.SandboxPosition) error
	ZeroSandboxPosition(ctx context.Context, user, symbol string) error
	OpenSandboxPositions(ctx context.Context, user string) ([]store.SandboxPosition, error)
	OpenSLOrder(ctx context.Context, user, symbol string) (*store.SandboxOrder, error)
	LatestSLOrder(ctx context.Context, user, symbol string) (*store.SandboxOrder, error)
}

// MonitorStats summarizes the monitor's books.
type MonitorStats struct {
	Active     int
	Closed     int
	SLHits     int
	TargetHits int
}

// Monitor holds active positions keyed by entry order id plus a bounded
// history of closed ones. Every mutation commits in memory first; ledger
// writes follow and are best-effort (a failed write is logged, never
// rolled back).
type Monitor struct {
	ledger Ledger
	logger zerolog.Logger
	user   string

	active       map[string]*models.Position
	history      []*models.Position
	historyLimit int

	now func() time.Time

	mu sync.RWMutex
}

// NewMonitor creates a position monitor. historyLimit <= 0 selects the
// default of 100.
func NewMonitor(user string, ledger Ledger, historyLimit int, logger zerolog.Logger) *Monitor {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Monitor{
		ledger:       ledger,
		logger:       logger.With().Str("component", "position_monitor").Logger(),
		user:         user,
		active:       make(map[string]*models.Position),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Add registers a position under its entry order id. An existing entry for
// the same id is replaced. Positions enter in pending_open until a fill
// confirmation moves them to active via UpdateStatus.
func (m *Monitor) Add(ctx context.Context, pos *models.Position) {
	m.mu.Lock()
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = m.now()
	}
	if pos.Status == "" {
		pos.Status = models.StatusPendingOpen
	}
	if pos.Username == "" {
		pos.Username = m.user
	}
	m.active[pos.OrderID] = pos
	snapshot := *pos
	m.mu.Unlock()

	m.persist(ctx, &snapshot)

	m.logger.Info().
		Str("order_id", pos.OrderID).
		Str("symbol", pos.Symbol).
		Float64("entry", pos.EntryPrice).
		Float64("sl", pos.CurrentSL).
		Msg("Position added to monitor")
}

// mutate applies fn to the position under lock. It returns false without
// mutating anything when the id is unknown.
func (m *Monitor) mutate(id string, fn func(*models.Position)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.active[id]
	if !ok {
		return false
	}
	fn(pos)
	return true
}

// signalBlob returns a copy of the position's signal for ledger writes,
// synthesizing one when the position was restored without a blob.
func signalBlob(p *models.Position) *models.Signal {
	if p.SignalData != nil {
		sig := *p.SignalData
		return &sig
	}
	return &models.Signal{
		Action:   p.Action,
		Symbol:   p.Symbol,
		StopLoss: p.CurrentSL,
		Targets:  p.Targets,
		Target:   p.FinalTarget,
	}
}

// UpdateSL sets the stop loss and, when given, the protective order id.
// The new value is mirrored into the ledger row's signal blob so a trailed
// stop survives a restart.
func (m *Monitor) UpdateSL(ctx context.Context, id string, sl float64, slOrderID string) bool {
	ok := m.mutate(id, func(p *models.Position) {
		p.CurrentSL = sl
		if slOrderID != "" {
			p.SLOrderID = slOrderID
		}
		sig := signalBlob(p)
		sig.StopLoss = sl
		p.SignalData = sig
	})
	if ok {
		m.persistByID(ctx, id)
	}
	return ok
}

// UpdateTarget sets the final target and mirrors it to the ledger.
func (m *Monitor) UpdateTarget(ctx context.Context, id string, target float64) bool {
	ok := m.mutate(id, func(p *models.Position) {
		p.FinalTarget = target
		sig := signalBlob(p)
		sig.Target = target
		p.SignalData = sig
	})
	if ok {
		m.persistByID(ctx, id)
	}
	return ok
}

// UpdateTargets replaces the target ladder and mirrors it to the ledger.
func (m *Monitor) UpdateTargets(ctx context.Context, id string, targets []float64) bool {
	ok := m.mutate(id, func(p *models.Position) {
		p.Targets = append([]float64(nil), targets...)
		sig := signalBlob(p)
		sig.Targets = append([]float64(nil), targets...)
		p.SignalData = sig
	})
	if ok {
		m.persistByID(ctx, id)
	}
	return ok
}

// UpdateStatus sets the lifecycle status without closing the position.
func (m *Monitor) UpdateStatus(id string, status models.PositionStatus) bool {
	return m.mutate(id, func(p *models.Position) {
		p.Status = status
	})
}

// UpdateSLOrderID records the broker-side protective order id.
func (m *Monitor) UpdateSLOrderID(id, slOrderID string) bool {
	return m.mutate(id, func(p *models.Position) {
		p.SLOrderID = slOrderID
	})
}

// UpdateHighestPrice advances the trailing reference. Only a strictly
// greater price moves it.
func (m *Monitor) UpdateHighestPrice(id string, price float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.active[id]
	if !ok {
		return false
	}
	if price <= pos.HighestPrice {
		return false
	}
	pos.HighestPrice = price
	return true
}

// UpdateQuantity sets both original and remaining quantities.
func (m *Monitor) UpdateQuantity(ctx context.Context, id string, qty int) bool {
	ok := m.mutate(id, func(p *models.Position) {
		p.OriginalQuantity = qty
		p.RemainingQuantity = qty
	})
	if ok {
		m.persistByID(ctx, id)
	}
	return ok
}

// UpdateRemainingQuantity sets the remaining quantity after a partial exit.
func (m *Monitor) UpdateRemainingQuantity(ctx context.Context, id string, qty int) bool {
	ok := m.mutate(id, func(p *models.Position) {
		p.RemainingQuantity = qty
	})
	if ok {
		m.persistByID(ctx, id)
	}
	return ok
}

// MarkT1ExitDone records that the half-exit at the first target completed.
// The flag write is persisted like the other mutators.
func (m *Monitor) MarkT1ExitDone(ctx context.Context, id string) bool {
	ok := m.mutate(id, func(p *models.Position) {
		p.T1ExitDone = true
	})
	if ok {
		m.persistByID(ctx, id)
	}
	return ok
}

// SetTargetHit marks target level 1, 2 or 3 as hit and persists the row.
func (m *Monitor) SetTargetHit(ctx context.Context, id string, level int) bool {
	if level < 1 || level > 3 {
		return false
	}
	ok := m.mutate(id, func(p *models.Position) {
		switch level {
		case 1:
			p.T1Hit = true
		case 2:
			p.T2Hit = true
		case 3:
			p.T3Hit = true
		}
	})
	if ok {
		m.persistByID(ctx, id)
	}
	return ok
}

// EnableTrailing turns trailing on for a position.
func (m *Monitor) EnableTrailing(id string) bool {
	return m.mutate(id, func(p *models.Position) {
		p.TrailingEnabled = true
	})
}

// DisableTrailing turns trailing off for a position.
func (m *Monitor) DisableTrailing(id string) bool {
	return m.mutate(id, func(p *models.Position) {
		p.TrailingEnabled = false
	})
}

// RemovePosition closes a position with the given reason, stamps ClosedAt,
// moves it to history, and zeroes its ledger row. Unknown ids return nil;
// calling twice for the same id is a no-op the second time.
func (m *Monitor) RemovePosition(ctx context.Context, id string, reason models.PositionStatus) *models.Position {
	m.mu.Lock()
	pos, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.active, id)

	pos.Status = reason
	pos.ClosedAt = m.now()
	pos.RemainingQuantity = 0

	m.history = append(m.history, pos)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	symbol := pos.Symbol
	snapshot := *pos
	m.mu.Unlock()

	if m.ledger != nil {
		if err := m.ledger.ZeroSandboxPosition(ctx, m.user, symbol); err != nil {
			m.logger.Warn().Err(err).Str("order_id", id).Msg("Ledger write failed, closed position not persisted")
		}
	}

	m.logger.Info().
		Str("order_id", id).
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Msg("Position closed")

	return &snapshot
}

// Get returns a copy of an active position.
func (m *Monitor) Get(id string) (*models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.active[id]
	if !ok {
		return nil, false
	}
	cp := *pos
	return &cp, true
}

// Active returns copies of all active positions.
func (m *Monitor) Active() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Position, 0, len(m.active))
	for _, pos := range m.active {
		out = append(out, *pos)
	}
	return out
}

// History returns copies of closed positions, most recent last.
func (m *Monitor) History() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Position, len(m.history))
	for i, pos := range m.history {
		out[i] = *pos
	}
	return out
}

// Stats summarizes active and closed counts.
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MonitorStats{
		Active: len(m.active),
		Closed: len(m.history),
	}
	for _, pos := range m.history {
		switch pos.Status {
		case models.StatusSLHit:
			stats.SLHits++
		case models.StatusTargetHit:
			stats.TargetHits++
		}
	}
	return stats
}

// persistByID snapshots the position and writes it to the ledger.
func (m *Monitor) persistByID(ctx context.Context, id string) {
	m.mu.RLock()
	pos, ok := m.active[id]
	var snapshot models.Position
	if ok {
		snapshot = *pos
	}
	m.mu.RUnlock()

	if ok {
		m.persist(ctx, &snapshot)
	}
}

// persist mirrors a position to the sandbox ledger. Best-effort.
func (m *Monitor) persist(ctx context.Context, pos *models.Position) {
	if m.ledger == nil {
		return
	}

	qty := pos.RemainingQuantity
	if pos.Action == models.OrderSideSell {
		qty = -qty
	}

	err := m.ledger.UpsertSandboxPosition(ctx, &store.SandboxPosition{
		User:         pos.Username,
		Symbol:       pos.Symbol,
		Exchange:     string(pos.Exchange),
		Product:      string(pos.Product),
		Quantity:     qty,
		AveragePrice: pos.EntryPrice,
		SignalData:   pos.SignalData,
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("order_id", pos.OrderID).Msg("Ledger write failed, position not persisted")
	}
}
