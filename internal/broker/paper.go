package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/internal/store"
)

// Sandbox order statuses. Lowercase throughout, matching the ledger rows.
const (
	statusOpen           = "open"
	statusTriggerPending = "trigger pending"
	statusComplete       = models.OrderStatusComplete
	statusRejected       = "rejected"
	statusCancelled      = "cancelled"
)

// OrderLedger is the slice of the store the paper broker persists through.
// Writes are best-effort; the simulation state lives in memory.
type OrderLedger interface {
	SaveSandboxOrder(ctx context.Context, o *store.SandboxOrder) error
	UpdateSandboxOrderStatus(ctx context.Context, orderID, status string, avgPrice float64) error
	UpsertSandboxPosition(ctx context.Context, p *store.SandboxPosition) error
	GetSandboxPosition(ctx context.Context, user, symbol string) (*store.SandboxPosition, error)
}

// paperOrder is the in-memory state of a simulated order.
type paperOrder struct {
	req       models.OrderRequest
	status    string
	filledQty int
	avgPrice  float64
	updatedAt time.Time
}

// PaperBroker simulates order fills against cached prices. MARKET orders
// fill immediately; LIMIT and SL orders rest until a tick makes them
// marketable. Fills update a (user, symbol) position with weighted average
// pricing and are mirrored to the sandbox ledger.
type PaperBroker struct {
	ledger OrderLedger
	logger zerolog.Logger
	user   string

	orders     map[string]*paperOrder
	priceCache map[string]float64

	orderCounter int

	now func() time.Time

	mu sync.RWMutex
}

// NewPaperBroker creates a paper trading broker. The ledger may be nil for
// throwaway simulations.
func NewPaperBroker(user string, ledger OrderLedger, logger zerolog.Logger) *PaperBroker {
	return &PaperBroker{
		ledger:     ledger,
		logger:     logger.With().Str("component", "paper_broker").Logger(),
		user:       user,
		orders:     make(map[string]*paperOrder),
		priceCache: make(map[string]float64),
		now:        time.Now,
	}
}

var _ Broker = (*PaperBroker)(nil)

func priceKey(exchange models.Exchange, symbol string) string {
	return fmt.Sprintf("%s:%s", exchange, symbol)
}

// UpdatePrice sets the cached price for a symbol without running fills.
func (p *PaperBroker) UpdatePrice(exchange models.Exchange, symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceCache[priceKey(exchange, symbol)] = price
}

// PlaceOrder simulates order placement.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, apperrors.NewValidationError("quantity", fmt.Sprintf("%d", req.Quantity), "must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderCounter++
	orderID := fmt.Sprintf("PAPER_%d_%d", p.now().Unix(), p.orderCounter)

	price := p.priceCache[priceKey(req.Exchange, req.Symbol)]

	order := &paperOrder{
		req:       *req,
		updatedAt: p.now(),
	}

	switch req.Type {
	case models.OrderTypeMarket:
		execPrice := price
		if execPrice == 0 {
			execPrice = req.Price
		}
		if execPrice == 0 {
			order.status = statusRejected
			p.orders[orderID] = order
			return &models.OrderResult{
				OrderID: orderID,
				Status:  statusRejected,
				Message: "no market price available",
			}, nil
		}
		p.fillLocked(ctx, orderID, order, execPrice)

	case models.OrderTypeLimit:
		// Marketable limit fills at the limit price
		if price > 0 && limitMarketable(req.Side, price, req.Price) {
			p.fillLocked(ctx, orderID, order, req.Price)
		} else {
			order.status = statusOpen
		}

	case models.OrderTypeStopLoss, models.OrderTypeStopLossM:
		order.status = statusTriggerPending

	default:
		return nil, apperrors.NewValidationError("order_type", string(req.Type), "unsupported order type")
	}

	p.orders[orderID] = order
	p.saveOrderLocked(ctx, orderID, order)

	p.logger.Info().
		Str("order_id", orderID).
		Str("symbol", req.Symbol).
		Str("type", string(req.Type)).
		Str("status", order.status).
		Msg("Paper order placed")

	return &models.OrderResult{
		OrderID: orderID,
		Status:  order.status,
		Message: "paper order placed",
	}, nil
}

// GetOrderStatus returns the simulated state of an order.
func (p *PaperBroker) GetOrderStatus(_ context.Context, orderID string) (*models.OrderStatus, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, apperrors.NewOrderError(orderID, "", "", "order not found", apperrors.ErrDataNotFound)
	}
	return &models.OrderStatus{
		OrderID:      orderID,
		Status:       order.status,
		FilledQty:    order.filledQty,
		AveragePrice: order.avgPrice,
		UpdatedAt:    order.updatedAt,
	}, nil
}

// GetQuote serves the last cached price.
func (p *PaperBroker) GetQuote(_ context.Context, exchange models.Exchange, symbol string) (*models.Quote, error) {
	p.mu.RLock()
	price, ok := p.priceCache[priceKey(exchange, symbol)]
	p.mu.RUnlock()

	if !ok || price == 0 {
		return nil, fmt.Errorf("%s %s: %w", exchange, symbol, apperrors.ErrQuoteUnavailable)
	}
	return &models.Quote{
		Symbol:    symbol,
		Exchange:  exchange,
		LTP:       price,
		Timestamp: p.now(),
	}, nil
}

// ProcessTick updates the price cache and fills any resting order the tick
// makes marketable. SL orders trigger against the price moving through the
// trigger level; a plain SL then fills at its limit price, SL-M at the tick.
func (p *PaperBroker) ProcessTick(ctx context.Context, exchange models.Exchange, symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.priceCache[priceKey(exchange, symbol)] = price

	for orderID, order := range p.orders {
		if order.req.Symbol != symbol || order.req.Exchange != exchange {
			continue
		}

		switch order.status {
		case statusOpen:
			if order.req.Type == models.OrderTypeLimit && limitMarketable(order.req.Side, price, order.req.Price) {
				p.fillLocked(ctx, orderID, order, order.req.Price)
				p.saveOrderLocked(ctx, orderID, order)
			}

		case statusTriggerPending:
			if !slTriggered(order.req.Side, price, order.req.TriggerPrice) {
				continue
			}
			execPrice := price
			if order.req.Type == models.OrderTypeStopLoss && order.req.Price > 0 {
				execPrice = order.req.Price
			}
			p.fillLocked(ctx, orderID, order, execPrice)
			p.saveOrderLocked(ctx, orderID, order)
		}
	}
}

// CancelOrder cancels a resting order.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return apperrors.NewOrderError(orderID, "", "", "order not found", apperrors.ErrDataNotFound)
	}
	if order.status != statusOpen && order.status != statusTriggerPending {
		return apperrors.NewOrderError(orderID, order.req.Symbol, string(order.req.Side),
			fmt.Sprintf("cannot cancel order with status %q", order.status), apperrors.ErrInvalidOrder)
	}

	order.status = statusCancelled
	order.updatedAt = p.now()
	p.saveOrderLocked(ctx, orderID, order)
	return nil
}

// Close is a no-op for paper trading.
func (p *PaperBroker) Close() error { return nil }

// fillLocked completes an order at execPrice and merges the fill into the
// position ledger. Caller holds p.mu.
func (p *PaperBroker) fillLocked(ctx context.Context, orderID string, order *paperOrder, execPrice float64) {
	order.status = statusComplete
	order.filledQty = order.req.Quantity
	order.avgPrice = execPrice
	order.updatedAt = p.now()

	if p.ledger == nil {
		return
	}

	pos, err := p.ledger.GetSandboxPosition(ctx, p.user, order.req.Symbol)
	if err != nil {
		p.logger.Warn().Err(err).Str("order_id", orderID).Msg("Ledger read failed, position not updated")
		return
	}

	qty := 0
	avg := 0.0
	if pos != nil {
		qty = pos.Quantity
		avg = pos.AveragePrice
	}

	delta := order.req.Quantity
	if order.req.Side == models.OrderSideSell {
		delta = -delta
	}
	newQty := qty + delta

	switch {
	case qty == 0 || sameSign(qty, delta):
		// Opening or adding: weighted average
		total := avg*absFloat(qty) + execPrice*absFloat(delta)
		if newQty != 0 {
			avg = total / absFloat(newQty)
		}
	case sameSign(qty, newQty):
		// Partial reduction keeps the entry average
	default:
		// Flat or flipped
		avg = execPrice
		if newQty == 0 {
			avg = 0
		}
	}

	if err := p.ledger.UpsertSandboxPosition(ctx, &store.SandboxPosition{
		User:         p.user,
		Symbol:       order.req.Symbol,
		Exchange:     string(order.req.Exchange),
		Product:      string(order.req.Product),
		Quantity:     newQty,
		AveragePrice: avg,
	}); err != nil {
		p.logger.Warn().Err(err).Str("order_id", orderID).Msg("Ledger write failed, position not persisted")
	}
}

// saveOrderLocked mirrors the order to the sandbox ledger. Caller holds p.mu.
func (p *PaperBroker) saveOrderLocked(ctx context.Context, orderID string, order *paperOrder) {
	if p.ledger == nil {
		return
	}
	err := p.ledger.SaveSandboxOrder(ctx, &store.SandboxOrder{
		OrderID:      orderID,
		User:         p.user,
		Symbol:       order.req.Symbol,
		Exchange:     string(order.req.Exchange),
		Action:       string(order.req.Side),
		Quantity:     order.req.Quantity,
		Price:        order.req.Price,
		PriceType:    string(order.req.Type),
		TriggerPrice: order.req.TriggerPrice,
		Product:      string(order.req.Product),
		Status:       order.status,
		AveragePrice: order.avgPrice,
		Timestamp:    order.updatedAt,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("order_id", orderID).Msg("Ledger write failed, order not persisted")
	}
}

// limitMarketable reports whether a limit order at limitPrice is fillable
// at the current price.
func limitMarketable(side models.OrderSide, price, limitPrice float64) bool {
	if side == models.OrderSideBuy {
		return price <= limitPrice
	}
	return price >= limitPrice
}

// slTriggered reports whether a stop order's trigger has been crossed. A
// BUY stop triggers on the price rising to the trigger, a SELL stop on it
// falling to the trigger.
func slTriggered(side models.OrderSide, price, trigger float64) bool {
	if trigger == 0 {
		return false
	}
	if side == models.OrderSideBuy {
		return price >= trigger
	}
	return price <= trigger
}

func sameSign(a, b int) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func absFloat(n int) float64 {
	if n < 0 {
		return float64(-n)
	}
	return float64(n)
}

// IsPaperOrderID reports whether an order id was generated by the paper
// broker.
func IsPaperOrderID(id string) bool {
	return strings.HasPrefix(id, "PAPER_") || strings.HasPrefix(id, "SANDBOX_")
}
