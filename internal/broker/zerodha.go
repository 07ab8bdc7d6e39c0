package broker

import (
	"context"
	"fmt"
	"strings"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/pkg/utils"
)

// ZerodhaBroker is the live-mode adapter over Kite Connect. It expects a
// valid access token; session establishment happens elsewhere.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	authenticated bool
}

// ZerodhaConfig holds credentials for the Kite Connect client.
type ZerodhaConfig struct {
	APIKey      string
	AccessToken string
}

// NewZerodhaBroker creates a live broker instance.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	client := kiteconnect.New(cfg.APIKey)

	zb := &ZerodhaBroker{client: client}
	if cfg.AccessToken != "" {
		client.SetAccessToken(cfg.AccessToken)
		zb.authenticated = true
	}
	return zb
}

var _ Broker = (*ZerodhaBroker)(nil)

// IsAuthenticated reports whether an access token is set.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	return z.authenticated
}

// PlaceOrder submits a regular-variety order.
func (z *ZerodhaBroker) PlaceOrder(_ context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(req.Exchange),
		Tradingsymbol:   req.Symbol,
		TransactionType: string(req.Side),
		OrderType:       string(req.Type),
		Product:         string(req.Product),
		Quantity:        req.Quantity,
		Price:           req.Price,
		TriggerPrice:    req.TriggerPrice,
		Validity:        req.Validity,
		Tag:             req.Tag,
	}

	if params.Validity == "" {
		params.Validity = "DAY"
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return nil, apperrors.NewBrokerError("place_order", "failed to place order", err)
	}

	return &models.OrderResult{
		OrderID: resp.OrderID,
		Status:  "pending",
		Message: "order placed",
	}, nil
}

// GetOrderStatus looks up an order in the day's order book.
func (z *ZerodhaBroker) GetOrderStatus(_ context.Context, orderID string) (*models.OrderStatus, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	orders, err := z.client.GetOrders()
	if err != nil {
		return nil, apperrors.NewBrokerError("get_orders", "failed to get orders", err)
	}

	for _, o := range orders {
		if o.OrderID != orderID {
			continue
		}
		return &models.OrderStatus{
			OrderID:      o.OrderID,
			Status:       strings.ToLower(o.Status),
			FilledQty:    int(o.FilledQuantity),
			AveragePrice: o.AveragePrice,
			UpdatedAt:    o.OrderTimestamp.Time,
		}, nil
	}

	return nil, apperrors.NewOrderError(orderID, "", "", "order not found", apperrors.ErrDataNotFound)
}

// GetQuote fetches a full quote for a single instrument. Quote calls
// are retried with backoff since entry pricing depends on them.
func (z *ZerodhaBroker) GetQuote(ctx context.Context, exchange models.Exchange, symbol string) (*models.Quote, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	instrument := fmt.Sprintf("%s:%s", exchange, symbol)

	quotes, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() (kiteconnect.Quote, error) {
		return z.client.GetQuote(instrument)
	})
	if err != nil {
		return nil, apperrors.NewBrokerError("get_quote", "failed to get quote", err)
	}

	q, ok := quotes[instrument]
	if !ok {
		return nil, fmt.Errorf("%s: %w", instrument, apperrors.ErrQuoteUnavailable)
	}

	quote := &models.Quote{
		Symbol:    symbol,
		Exchange:  exchange,
		LTP:       q.LastPrice,
		Open:      q.OHLC.Open,
		High:      q.OHLC.High,
		Low:       q.OHLC.Low,
		Close:     q.OHLC.Close,
		Volume:    int64(q.Volume),
		Change:    q.NetChange,
		Timestamp: q.LastTradeTime.Time,
	}
	if q.OHLC.Close > 0 {
		quote.ChangePercent = (q.NetChange / q.OHLC.Close) * 100
	}
	return quote, nil
}

// CancelOrder cancels a regular-variety order.
func (z *ZerodhaBroker) CancelOrder(_ context.Context, orderID string) error {
	if !z.IsAuthenticated() {
		return apperrors.ErrNotAuthenticated
	}

	if _, err := z.client.CancelOrder(kiteconnect.VarietyRegular, orderID, nil); err != nil {
		return apperrors.NewBrokerError("cancel_order", "failed to cancel order", err)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no persistent connection.
func (z *ZerodhaBroker) Close() error { return nil }
