package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/internal/positions"
)

// fakeBroker records the last order and serves a canned quote.
type fakeBroker struct {
	quote     float64
	quoteErr  error
	lastOrder *models.OrderRequest
	placeErr  error
	status    string
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.lastOrder = req
	status := f.status
	if status == "" {
		status = models.OrderStatusComplete
	}
	return &models.OrderResult{OrderID: "ORD_TEST_1", Status: status, Message: "ok"}, nil
}

func (f *fakeBroker) GetOrderStatus(_ context.Context, orderID string) (*models.OrderStatus, error) {
	status := f.status
	if status == "" {
		status = models.OrderStatusComplete
	}
	return &models.OrderStatus{OrderID: orderID, Status: status, FilledQty: 1, AveragePrice: f.quote}, nil
}

func (f *fakeBroker) GetQuote(_ context.Context, _ models.Exchange, symbol string) (*models.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &models.Quote{Symbol: symbol, LTP: f.quote}, nil
}

func (f *fakeBroker) Close() error { return nil }

// fakeResolver resolves everything to a fixed contract.
type fakeResolver struct {
	symbol string
	lot    int
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, base, strike, optType, _, _ string) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.symbol, f.lot, nil
}

func newTestService(b *fakeBroker, r SymbolResolver) (*Service, *positions.Monitor) {
	monitor := positions.NewMonitor("TEST01", nil, 0, zerolog.Nop())
	svc := NewService(Config{
		Enabled:             true,
		ConfidenceThreshold: 0.7,
		DuplicateWindow:     60 * time.Second,
		Username:            "TEST01",
	}, b, monitor, r, nil, zerolog.Nop())
	return svc, monitor
}

func buySignal() *models.Signal {
	return &models.Signal{
		Action:  models.OrderSideBuy,
		Symbol:  "RELIANCE",
		Price:   100.0,
		Targets: []float64{110},
		Target:  110,
	}
}

func TestExecuteSignalImpliedBuyForOptionLeg(t *testing.T) {
	b := &fakeBroker{quote: 99.0}
	svc, _ := newTestService(b, &fakeResolver{symbol: "NIFTY25MAR22000CE", lot: 75})

	sig := &models.Signal{
		Symbol:     "NIFTY",
		Strike:     "22000",
		OptionType: models.OptionCall,
		Price:      100.0,
		Targets:    []float64{120},
		Target:     120,
	}
	ok, msg := svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
	if !ok {
		t.Fatalf("execution failed: %s", msg)
	}
	if sig.Action != models.OrderSideBuy {
		t.Errorf("action = %q, want BUY inferred from CE leg", sig.Action)
	}
	if b.lastOrder.Side != models.OrderSideBuy {
		t.Errorf("order side = %q, want BUY", b.lastOrder.Side)
	}
}

func TestExecuteSignalAutoStopLoss(t *testing.T) {
	tests := []struct {
		action models.OrderSide
		wantSL float64
	}{
		{models.OrderSideBuy, 90.0},
		{models.OrderSideSell, 110.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			b := &fakeBroker{quote: 99.0}
			svc, _ := newTestService(b, nil)
			svc.Disable() // stop at the enable gate, after SL computation

			sig := buySignal()
			sig.Action = tt.action
			sig.StopLoss = 0

			svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
			if sig.StopLoss != tt.wantSL {
				t.Errorf("auto SL = %.1f, want %.1f", sig.StopLoss, tt.wantSL)
			}
		})
	}
}

func TestExecuteSignalDisabled(t *testing.T) {
	svc, _ := newTestService(&fakeBroker{quote: 99.0}, nil)
	svc.Disable()

	ok, msg := svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.9)
	if ok || msg != "Auto-execution disabled" {
		t.Errorf("got (%v, %q), want disabled skip", ok, msg)
	}
	if svc.Stats().SkippedDisabled != 1 {
		t.Errorf("SkippedDisabled = %d, want 1", svc.Stats().SkippedDisabled)
	}
}

func TestExecuteSignalLowConfidence(t *testing.T) {
	svc, _ := newTestService(&fakeBroker{quote: 99.0}, nil)

	ok, msg := svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.5)
	if ok || !strings.HasPrefix(msg, "Low confidence") {
		t.Errorf("got (%v, %q), want low-confidence skip", ok, msg)
	}
	if svc.Stats().SkippedLowConfidence != 1 {
		t.Errorf("SkippedLowConfidence = %d, want 1", svc.Stats().SkippedLowConfidence)
	}
}

func TestExecuteSignalDuplicateWindow(t *testing.T) {
	b := &fakeBroker{quote: 99.0}
	svc, _ := newTestService(b, nil)

	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	now := base
	svc.now = func() time.Time { return now }

	ok, _ := svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.9)
	if !ok {
		t.Fatal("first signal rejected")
	}

	ok, msg := svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.9)
	if ok || msg != "Duplicate signal" {
		t.Errorf("got (%v, %q), want duplicate skip", ok, msg)
	}

	// Same signal from another channel is independent
	ok, _ = svc.ExecuteSignal(context.Background(), buySignal(), "chan2", "raw", 0.9)
	if !ok {
		t.Error("same signal on a different channel was blocked")
	}

	// After the window elapses it is evaluated fresh
	now = base.Add(61 * time.Second)
	ok, _ = svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.9)
	if !ok {
		t.Error("signal still blocked after window elapsed")
	}
}

func TestExecuteSignalValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Signal)
		want   string
	}{
		{"missing action", func(s *models.Signal) { s.Action = "" }, "Missing 'action' (BUY/SELL)"},
		{"missing symbol", func(s *models.Signal) { s.Symbol = "" }, "Missing 'symbol'"},
		{"missing target", func(s *models.Signal) { s.Targets = nil; s.Target = 0 }, "Missing Mandatory Target"},
		{"option type without strike", func(s *models.Signal) { s.OptionType = models.OptionCall }, "Options signal missing 'strike'"},
		{"strike without option type", func(s *models.Signal) { s.Strike = "22000" }, "Options signal missing 'option_type' (CE/PE)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(&fakeBroker{quote: 99.0}, nil)
			sig := buySignal()
			tt.mutate(sig)

			ok, msg := svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
			if ok || msg != tt.want {
				t.Errorf("got (%v, %q), want %q", ok, msg, tt.want)
			}
		})
	}
}

func TestEntryPricingBands(t *testing.T) {
	tests := []struct {
		name        string
		quote       float64
		wantOK      bool
		wantType    models.OrderType
		wantPrice   float64
		wantTrigger float64
		wantReason  string
	}{
		{"breakout pending", 99.0, true, models.OrderTypeStopLoss, 101.5, 100.1, ""},
		{"breaking out", 100.5, true, models.OrderTypeLimit, 100.55, 0, ""},
		{"too close", 100.05, false, "", 0, 0, "waiting"},
		{"moved too far", 102.0, false, "", 0, 0, "pullback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{quote: tt.quote}
			svc, _ := newTestService(b, nil)

			ok, msg := svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.9)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v (%s), want %v", ok, msg, tt.wantOK)
			}
			if !tt.wantOK {
				if !strings.Contains(msg, tt.wantReason) {
					t.Errorf("msg = %q, want reason %q", msg, tt.wantReason)
				}
				return
			}
			if b.lastOrder.Type != tt.wantType {
				t.Errorf("order type = %q, want %q", b.lastOrder.Type, tt.wantType)
			}
			if b.lastOrder.Price != tt.wantPrice {
				t.Errorf("price = %v, want %v", b.lastOrder.Price, tt.wantPrice)
			}
			if b.lastOrder.TriggerPrice != tt.wantTrigger {
				t.Errorf("trigger = %v, want %v", b.lastOrder.TriggerPrice, tt.wantTrigger)
			}
		})
	}
}

func TestEntryPricingSellMirrored(t *testing.T) {
	tests := []struct {
		name        string
		quote       float64
		wantOK      bool
		wantType    models.OrderType
		wantTrigger float64
	}{
		{"breakdown pending", 101.0, true, models.OrderTypeStopLoss, 99.9},
		{"breaking down", 99.5, true, models.OrderTypeLimit, 0},
		{"too close", 99.95, false, "", 0},
		{"moved too far", 98.0, false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{quote: tt.quote}
			svc, _ := newTestService(b, nil)

			sig := buySignal()
			sig.Action = models.OrderSideSell
			sig.Targets = []float64{90}
			sig.Target = 90

			ok, _ := svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK {
				if b.lastOrder.Type != tt.wantType {
					t.Errorf("order type = %q, want %q", b.lastOrder.Type, tt.wantType)
				}
				if b.lastOrder.TriggerPrice != tt.wantTrigger {
					t.Errorf("trigger = %v, want %v", b.lastOrder.TriggerPrice, tt.wantTrigger)
				}
			}
		})
	}
}

func TestEntryPricingNoQuoteConditionFallback(t *testing.T) {
	tests := []struct {
		name        string
		condition   string
		wantType    models.OrderType
		wantPrice   float64
		wantTrigger float64
	}{
		{"above", "above", models.OrderTypeStopLoss, 101.0, 100.1},
		{"below", "below", models.OrderTypeStopLoss, 99.0, 99.9},
		{"no condition", "", models.OrderTypeLimit, 100.1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{quoteErr: apperrors.ErrQuoteUnavailable}
			svc, _ := newTestService(b, nil)

			sig := buySignal()
			sig.Condition = tt.condition

			ok, msg := svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
			if !ok {
				t.Fatalf("execution failed: %s", msg)
			}
			if b.lastOrder.Type != tt.wantType || b.lastOrder.Price != tt.wantPrice || b.lastOrder.TriggerPrice != tt.wantTrigger {
				t.Errorf("order = %s %v/%v, want %s %v/%v",
					b.lastOrder.Type, b.lastOrder.Price, b.lastOrder.TriggerPrice,
					tt.wantType, tt.wantPrice, tt.wantTrigger)
			}
		})
	}
}

func TestEntryPricingNoPriceMarketOrder(t *testing.T) {
	b := &fakeBroker{quote: 99.0}
	svc, _ := newTestService(b, nil)

	sig := buySignal()
	sig.Price = 0

	ok, msg := svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
	if !ok {
		t.Fatalf("execution failed: %s", msg)
	}
	if b.lastOrder.Type != models.OrderTypeMarket {
		t.Errorf("order type = %q, want MARKET", b.lastOrder.Type)
	}
}

func TestExecuteSignalTargetSynthesis(t *testing.T) {
	b := &fakeBroker{quote: 100.5}
	svc, monitor := newTestService(b, nil)

	ok, msg := svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.9)
	if !ok {
		t.Fatalf("execution failed: %s", msg)
	}

	active := monitor.Active()
	if len(active) != 1 {
		t.Fatalf("active positions = %d, want 1", len(active))
	}
	targets := active[0].Targets
	if len(targets) != 3 || targets[0] != 110 || targets[1] != 112 || targets[2] != 114 {
		t.Errorf("targets = %v, want [110 112 114]", targets)
	}
}

func TestExecuteSignalResolutionDegrades(t *testing.T) {
	b := &fakeBroker{quote: 100.5}
	svc, _ := newTestService(b, &fakeResolver{err: apperrors.ErrSymbolNotFound})

	sig := &models.Signal{
		Action:     models.OrderSideBuy,
		Symbol:     "NIFTY",
		Strike:     "22000",
		OptionType: models.OptionCall,
		Price:      100.0,
		Targets:    []float64{120},
		Target:     120,
	}

	ok, msg := svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
	if !ok {
		t.Fatalf("execution failed: %s", msg)
	}
	if b.lastOrder.Symbol != "NIFTY" {
		t.Errorf("symbol = %q, want generic NIFTY after failed resolution", b.lastOrder.Symbol)
	}
}

func TestExecuteSignalLotsMultiplier(t *testing.T) {
	b := &fakeBroker{quote: 100.5}
	monitor := positions.NewMonitor("TEST01", nil, 0, zerolog.Nop())
	svc := NewService(Config{
		Enabled:             true,
		ConfidenceThreshold: 0.7,
		TradingLots:         3,
	}, b, monitor, &fakeResolver{symbol: "NIFTY25MAR22000CE", lot: 75}, nil, zerolog.Nop())

	sig := &models.Signal{
		Action:     models.OrderSideBuy,
		Symbol:     "NIFTY",
		Strike:     "22000",
		OptionType: models.OptionCall,
		Price:      100.0,
		Targets:    []float64{120},
		Target:     120,
	}
	ok, msg := svc.ExecuteSignal(context.Background(), sig, "chan1", "raw", 0.9)
	if !ok {
		t.Fatalf("execution failed: %s", msg)
	}
	if b.lastOrder.Quantity != 225 {
		t.Errorf("quantity = %d, want 225 (lot 75 x 3)", b.lastOrder.Quantity)
	}
}

func TestExecuteSignalExchangeRouting(t *testing.T) {
	tests := []struct {
		symbol  string
		options bool
		want    models.Exchange
	}{
		{"NIFTY", true, models.NFO},
		{"BANKNIFTY", true, models.NFO},
		{"SENSEX", true, models.BFO},
		{"BANKEX", true, models.BFO},
		{"CRUDEOIL", true, models.MCX},
		{"GOLD", true, models.MCX},
		{"DALBHARAT", true, models.NFO},
		{"RELIANCE", false, models.NSE},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			sig := &models.Signal{Symbol: tt.symbol}
			if tt.options {
				sig.Strike = "100"
				sig.OptionType = models.OptionCall
			}
			if got := routeExchange(sig); got != tt.want {
				t.Errorf("routeExchange(%s) = %s, want %s", tt.symbol, got, tt.want)
			}
		})
	}
}

func TestExecuteSignalBrokerFailure(t *testing.T) {
	b := &fakeBroker{quote: 100.5, placeErr: apperrors.NewBrokerError("RMS", "margin exceeded", nil)}
	svc, monitor := newTestService(b, nil)

	ok, msg := svc.ExecuteSignal(context.Background(), buySignal(), "chan1", "raw", 0.9)
	if ok {
		t.Fatal("execution succeeded despite broker failure")
	}
	if !strings.Contains(msg, "margin exceeded") {
		t.Errorf("msg = %q, want broker message surfaced", msg)
	}
	if len(monitor.Active()) != 0 {
		t.Error("position registered despite failed placement")
	}
	if svc.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", svc.Stats().Failed)
	}
}

func TestStatsCounters(t *testing.T) {
	b := &fakeBroker{quote: 100.5}
	svc, _ := newTestService(b, nil)

	svc.ExecuteSignal(context.Background(), buySignal(), "c1", "raw", 0.9)  // executed
	svc.ExecuteSignal(context.Background(), buySignal(), "c1", "raw", 0.1)  // low confidence
	svc.ExecuteSignal(context.Background(), buySignal(), "c1", "raw", 0.9)  // duplicate
	badSig := buySignal()
	badSig.Symbol = ""
	svc.ExecuteSignal(context.Background(), badSig, "c1", "raw", 0.9) // invalid

	stats := svc.Stats()
	if stats.Total != 4 || stats.Executed != 1 || stats.SkippedLowConfidence != 1 ||
		stats.SkippedDuplicate != 1 || stats.SkippedInvalid != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.Enabled || stats.Threshold != 0.7 {
		t.Errorf("enabled/threshold = %v/%v", stats.Enabled, stats.Threshold)
	}
}
