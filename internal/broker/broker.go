// Package broker provides order placement and quote lookup implementations.
package broker

import (
	"context"

	"signal-trader/internal/models"
)

// Broker is the order/quote surface the execution service and position
// monitor depend on.
type Broker interface {
	// PlaceOrder submits an order and returns the broker's order id.
	PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error)

	// GetOrderStatus returns the current state of a placed order.
	GetOrderStatus(ctx context.Context, orderID string) (*models.OrderStatus, error)

	// GetQuote returns the latest quote for a tradable symbol.
	GetQuote(ctx context.Context, exchange models.Exchange, symbol string) (*models.Quote, error)

	// Close releases broker resources.
	Close() error
}
