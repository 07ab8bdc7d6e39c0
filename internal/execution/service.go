// Package execution turns classified signals into broker orders behind
// safety gates (enable flag, confidence threshold, duplicate window).
package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-trader/internal/broker"
	"signal-trader/internal/models"
	"signal-trader/internal/notify"
	"signal-trader/internal/positions"
	"signal-trader/pkg/utils"
)

// autoSLPct is applied to the entry price when the message carried no
// stop loss.
const autoSLPct = 0.10

// Offsets for synthesizing the second and third targets from a sole
// extracted target.
const (
	t2Offset = 2.0
	t3Offset = 4.0
)

// SymbolResolver maps a generic options signal to a tradable contract.
type SymbolResolver interface {
	Resolve(ctx context.Context, base, strike, optType, exchange, expiryTag string) (string, int, error)
}

// Config holds the execution service's tunables.
type Config struct {
	Enabled             bool
	ConfidenceThreshold float64
	DuplicateWindow     time.Duration
	TradingLots         int
	MinEntryTolerance   float64
	MaxEntryTolerance   float64
	DefaultProduct      models.ProductType
	Username            string
}

// Stats is a snapshot of the execution counters.
type Stats struct {
	Total                int
	Executed             int
	SkippedDisabled      int
	SkippedLowConfidence int
	SkippedDuplicate     int
	SkippedInvalid       int
	Failed               int
	Enabled              bool
	Threshold            float64
}

// seenSignal is one entry in a channel's duplicate window.
type seenSignal struct {
	hash string
	at   time.Time
}

// Service executes classified signals. One broker order per accepted
// signal; every rejection is a benign skip with a reason, never an error.
type Service struct {
	cfg      Config
	broker   broker.Broker
	monitor  *positions.Monitor
	resolver SymbolResolver
	notifier notify.Notifier
	logger   zerolog.Logger

	enabled bool
	recent  map[string][]seenSignal
	stats   Stats

	now func() time.Time

	mu sync.Mutex
}

// NewService creates an execution service. resolver and notifier may be
// nil; symbol resolution then degrades to the generic symbol and alerts
// are skipped.
func NewService(cfg Config, b broker.Broker, monitor *positions.Monitor, resolver SymbolResolver, notifier notify.Notifier, logger zerolog.Logger) *Service {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.DuplicateWindow == 0 {
		cfg.DuplicateWindow = 60 * time.Second
	}
	if cfg.MinEntryTolerance == 0 {
		cfg.MinEntryTolerance = 0.1
	}
	if cfg.MaxEntryTolerance == 0 {
		cfg.MaxEntryTolerance = 1.5
	}
	if cfg.DefaultProduct == "" {
		cfg.DefaultProduct = models.ProductMIS
	}

	return &Service{
		cfg:      cfg,
		broker:   b,
		monitor:  monitor,
		resolver: resolver,
		notifier: notifier,
		logger:   logger.With().Str("component", "execution").Logger(),
		enabled:  cfg.Enabled,
		recent:   make(map[string][]seenSignal),
		now:      time.Now,
	}
}

// Enable turns auto-execution on.
func (s *Service) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	s.logger.Info().Msg("Auto-execution enabled")
}

// Disable turns auto-execution off.
func (s *Service) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	s.logger.Info().Msg("Auto-execution disabled")
}

// IsEnabled reports the enable flag.
func (s *Service) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Stats returns a snapshot of the counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.stats
	snapshot.Enabled = s.enabled
	snapshot.Threshold = s.cfg.ConfidenceThreshold
	return snapshot
}

// ExecuteSignal runs a classified signal through the execution pipeline.
// The boolean reports whether an order was placed; the message carries the
// order id on success or the skip/failure reason otherwise.
func (s *Service) ExecuteSignal(ctx context.Context, sig *models.Signal, channel, rawText string, confidence float64) (bool, string) {
	s.mu.Lock()
	s.stats.Total++
	s.mu.Unlock()

	// Implied BUY: an option leg with no action verb
	if sig.Action == "" && (sig.OptionType == models.OptionCall || sig.OptionType == models.OptionPut) {
		sig.Action = models.OrderSideBuy
	}

	// Auto stop loss at 10% off the entry
	if sig.StopLoss == 0 && sig.Price > 0 {
		if sig.Action == models.OrderSideSell {
			sig.StopLoss = utils.Round1(sig.Price * (1 + autoSLPct))
		} else {
			sig.StopLoss = utils.Round1(sig.Price * (1 - autoSLPct))
		}
		s.logger.Info().Float64("sl", sig.StopLoss).Msg("Auto-computed stop loss")
	}

	if !s.IsEnabled() {
		s.count(func(st *Stats) { st.SkippedDisabled++ })
		return false, "Auto-execution disabled"
	}

	if confidence < s.cfg.ConfidenceThreshold {
		s.count(func(st *Stats) { st.SkippedLowConfidence++ })
		return false, fmt.Sprintf("Low confidence (%.2f < %.2f)", confidence, s.cfg.ConfidenceThreshold)
	}

	if s.isDuplicate(channel, sig) {
		s.count(func(st *Stats) { st.SkippedDuplicate++ })
		return false, "Duplicate signal"
	}

	if reason := validate(sig); reason != "" {
		s.count(func(st *Stats) { st.SkippedInvalid++ })
		return false, reason
	}

	exchange := routeExchange(sig)

	symbol, lotSize := sig.Symbol, 1
	if sig.IsOptions() && s.resolver != nil {
		resolved, lot, err := s.resolver.Resolve(ctx, sig.Symbol, sig.Strike, string(sig.OptionType), string(exchange), sig.Expiry)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("symbol", sig.Symbol).
				Msg("Symbol resolution failed, using generic symbol")
		} else {
			symbol, lotSize = resolved, lot
		}
	}

	decision, err := s.decideEntry(ctx, sig, symbol, exchange)
	if err != nil {
		s.count(func(st *Stats) { st.Failed++ })
		return false, err.Error()
	}

	quantity := lotSize
	if sig.Quantity > 0 {
		quantity = sig.Quantity
	}
	if s.cfg.TradingLots > 1 {
		quantity *= s.cfg.TradingLots
	}

	req := &models.OrderRequest{
		Symbol:       symbol,
		Exchange:     exchange,
		Side:         sig.Action,
		Type:         decision.Type,
		Product:      s.cfg.DefaultProduct,
		Quantity:     quantity,
		Price:        decision.Price,
		TriggerPrice: decision.TriggerPrice,
		Tag:          "signal-trader",
	}

	result, err := s.broker.PlaceOrder(ctx, req)
	if err != nil {
		s.count(func(st *Stats) { st.Failed++ })
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Order placement failed")
		return false, fmt.Sprintf("Order failed: %v", err)
	}
	if result.Status == "rejected" {
		s.count(func(st *Stats) { st.Failed++ })
		return false, fmt.Sprintf("Order rejected: %s", result.Message)
	}

	s.count(func(st *Stats) { st.Executed++ })
	s.logger.Info().
		Str("order_id", result.OrderID).
		Str("symbol", symbol).
		Str("type", string(decision.Type)).
		Int("quantity", quantity).
		Msg("Order placed")

	filled, fillPrice := s.checkFill(ctx, decision.Type, result)
	if filled {
		s.registerPosition(ctx, sig, result.OrderID, symbol, exchange, quantity, fillPrice)
	} else {
		s.logger.Info().Str("order_id", result.OrderID).Msg("Order resting, position registration deferred to fill")
	}

	s.sendAlert(sig, symbol, result.OrderID, quantity)

	return true, fmt.Sprintf("Order placed: %s", result.OrderID)
}

// checkFill reports whether the order is known filled. Market orders are
// immediate; the rest get one status query.
func (s *Service) checkFill(ctx context.Context, orderType models.OrderType, result *models.OrderResult) (bool, float64) {
	if orderType == models.OrderTypeMarket || result.Status == models.OrderStatusComplete {
		if status, err := s.broker.GetOrderStatus(ctx, result.OrderID); err == nil {
			return true, status.AveragePrice
		}
		return true, 0
	}

	status, err := s.broker.GetOrderStatus(ctx, result.OrderID)
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", result.OrderID).Msg("Fill check failed")
		return false, 0
	}
	if status.Status == models.OrderStatusComplete {
		return true, status.AveragePrice
	}
	return false, 0
}

// registerPosition hands a filled order to the monitor, synthesizing the
// target ladder when the message carried a single target.
func (s *Service) registerPosition(ctx context.Context, sig *models.Signal, orderID, symbol string, exchange models.Exchange, quantity int, fillPrice float64) {
	entry := fillPrice
	if entry == 0 {
		entry = sig.Price
	}

	targets := append([]float64(nil), sig.Targets...)
	if len(targets) == 1 {
		t1 := targets[0]
		if sig.Action == models.OrderSideSell {
			targets = append(targets, t1-t2Offset, t1-t3Offset)
		} else {
			targets = append(targets, t1+t2Offset, t1+t3Offset)
		}
	}
	finalTarget := sig.Target
	if len(targets) > 0 && finalTarget == 0 {
		finalTarget = targets[len(targets)-1]
	}

	s.monitor.Add(ctx, &models.Position{
		OrderID:           orderID,
		Symbol:            symbol,
		Exchange:          exchange,
		Action:            sig.Action,
		Product:           s.cfg.DefaultProduct,
		Username:          s.cfg.Username,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		EntryPrice:        entry,
		OriginalSL:        sig.StopLoss,
		CurrentSL:         sig.StopLoss,
		Targets:           targets,
		FinalTarget:       finalTarget,
		HighestPrice:      entry,
		Status:            models.StatusActive,
		TrailingEnabled:   true,
		SignalData:        sig,
	})
}

// sendAlert fires the success notification without blocking the pipeline.
func (s *Service) sendAlert(sig *models.Signal, symbol, orderID string, quantity int) {
	if s.notifier == nil {
		return
	}

	n := notify.Notification{
		Type:  notify.NotificationTrade,
		Title: fmt.Sprintf("Signal executed: %s %s", sig.Action, symbol),
		Message: fmt.Sprintf("%s %d x %s @ %s (order %s)",
			sig.Action, quantity, symbol, utils.FormatIndianCurrency(sig.Price), orderID),
		Data: map[string]interface{}{
			"symbol":   symbol,
			"action":   string(sig.Action),
			"quantity": quantity,
			"order_id": orderID,
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Send(ctx, n); err != nil {
			s.logger.Warn().Err(err).Msg("Notification failed")
		}
	}()
}

// count applies a counter update under the lock.
func (s *Service) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// isDuplicate checks and updates the per-channel duplicate window. Expired
// entries are pruned lazily on access.
func (s *Service) isDuplicate(channel string, sig *models.Signal) bool {
	hash := signalHash(sig)
	now := s.now()
	cutoff := now.Add(-s.cfg.DuplicateWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.recent[channel][:0]
	dup := false
	for _, seen := range s.recent[channel] {
		if seen.at.Before(cutoff) {
			continue
		}
		if seen.hash == hash {
			dup = true
		}
		kept = append(kept, seen)
	}
	if !dup {
		kept = append(kept, seenSignal{hash: hash, at: now})
	}
	s.recent[channel] = kept
	return dup
}

// signalHash is the duplicate-window identity of a signal.
func signalHash(sig *models.Signal) string {
	return strings.ToUpper(fmt.Sprintf("%s|%s|%s|%s", sig.Action, sig.Symbol, sig.Strike, sig.OptionType))
}

// validate enforces the structural minimum for an executable signal.
func validate(sig *models.Signal) string {
	if sig.Action == "" {
		return "Missing 'action' (BUY/SELL)"
	}
	if sig.Symbol == "" {
		return "Missing 'symbol'"
	}
	if !sig.HasTarget() {
		return "Missing Mandatory Target"
	}
	if sig.OptionType != "" && sig.Strike == "" {
		return "Options signal missing 'strike'"
	}
	if sig.Strike != "" && sig.OptionType == "" {
		return "Options signal missing 'option_type' (CE/PE)"
	}
	return ""
}

// routeExchange maps a signal to its trading exchange: index and commodity
// derivatives to their F&O segments, other option legs to NFO, everything
// else to the cash market.
func routeExchange(sig *models.Signal) models.Exchange {
	switch sig.Symbol {
	case "NIFTY", "BANKNIFTY", "FINNIFTY", "MIDCPNIFTY":
		return models.NFO
	case "SENSEX", "BANKEX":
		return models.BFO
	case "CRUDEOIL", "GOLD", "SILVER", "NATURALGAS", "COPPER", "ZINC":
		return models.MCX
	}
	if sig.IsOptions() {
		return models.NFO
	}
	return models.NSE
}
