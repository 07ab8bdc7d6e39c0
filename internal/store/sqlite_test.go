package store

import (
	"context"
	"testing"
	"time"

	"signal-trader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertSandboxPositionPreservesSignalData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sig := &models.Signal{Action: models.OrderSideBuy, Symbol: "NIFTY", StopLoss: 140, Targets: []float64{180, 200}}
	err := s.UpsertSandboxPosition(ctx, &SandboxPosition{
		User: "trader1", Symbol: "NIFTY25SEP25000CE", Exchange: "NFO", Product: "MIS",
		Quantity: 75, AveragePrice: 150, SignalData: sig,
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Quantity-only update without signal data keeps the stored blob
	err = s.UpsertSandboxPosition(ctx, &SandboxPosition{
		User: "trader1", Symbol: "NIFTY25SEP25000CE", Exchange: "NFO", Product: "MIS",
		Quantity: 37, AveragePrice: 150,
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	pos, err := s.GetSandboxPosition(ctx, "trader1", "NIFTY25SEP25000CE")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if pos == nil {
		t.Fatal("position not found")
	}
	if pos.Quantity != 37 {
		t.Errorf("quantity = %d, want 37", pos.Quantity)
	}
	if pos.SignalData == nil || pos.SignalData.StopLoss != 140 {
		t.Errorf("signal data lost on update: %+v", pos.SignalData)
	}

	// A fresh signal blob replaces the stored one
	err = s.UpsertSandboxPosition(ctx, &SandboxPosition{
		User: "trader1", Symbol: "NIFTY25SEP25000CE", Exchange: "NFO", Product: "MIS",
		Quantity: 37, AveragePrice: 150,
		SignalData: &models.Signal{Action: models.OrderSideBuy, Symbol: "NIFTY", StopLoss: 155},
	})
	if err != nil {
		t.Fatalf("third upsert failed: %v", err)
	}
	pos, err = s.GetSandboxPosition(ctx, "trader1", "NIFTY25SEP25000CE")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if pos.SignalData == nil || pos.SignalData.StopLoss != 155 {
		t.Errorf("signal data not replaced: %+v", pos.SignalData)
	}
}

func TestOpenSandboxPositionsSkipsClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, symbol := range []string{"RELIANCE", "TCS"} {
		err := s.UpsertSandboxPosition(ctx, &SandboxPosition{
			User: "trader1", Symbol: symbol, Exchange: "NSE", Product: "CNC",
			Quantity: 10, AveragePrice: 100,
		})
		if err != nil {
			t.Fatalf("upsert %s failed: %v", symbol, err)
		}
	}

	if err := s.ZeroSandboxPosition(ctx, "trader1", "RELIANCE"); err != nil {
		t.Fatalf("zero failed: %v", err)
	}

	open, err := s.OpenSandboxPositions(ctx, "trader1")
	if err != nil {
		t.Fatalf("open positions failed: %v", err)
	}
	if len(open) != 1 || open[0].Symbol != "TCS" {
		t.Errorf("open positions = %+v, want only TCS", open)
	}

	// Other users see nothing
	open, err = s.OpenSandboxPositions(ctx, "trader2")
	if err != nil {
		t.Fatalf("open positions failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("trader2 positions = %d, want 0", len(open))
	}
}

func TestSandboxOrderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SaveSandboxOrder(ctx, &SandboxOrder{
		OrderID: "PAPER_1_1", User: "trader1", Symbol: "NIFTY25SEP25000CE", Exchange: "NFO",
		Action: "BUY", Quantity: 75, Price: 150, PriceType: "LIMIT", Status: "open",
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := s.UpdateSandboxOrderStatus(ctx, "PAPER_1_1", "complete", 149.5); err != nil {
		t.Fatalf("status update failed: %v", err)
	}

	order, err := s.GetSandboxOrder(ctx, "PAPER_1_1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if order == nil {
		t.Fatal("order not found")
	}
	if order.Status != "complete" || order.AveragePrice != 149.5 {
		t.Errorf("order = %s @ %v, want complete @ 149.5", order.Status, order.AveragePrice)
	}

	if err := s.UpdateSandboxOrderStatus(ctx, "NO_SUCH_ORDER", "cancelled", 0); err == nil {
		t.Error("updating unknown order succeeded")
	}
}

func TestOpenSLOrderFiltersStatusAndType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	orders := []*SandboxOrder{
		{OrderID: "O1", User: "trader1", Symbol: "GOLD", Exchange: "MCX", Action: "SELL",
			Quantity: 100, PriceType: "MARKET", Status: "complete", Timestamp: base},
		{OrderID: "O2", User: "trader1", Symbol: "GOLD", Exchange: "MCX", Action: "SELL",
			Quantity: 100, Price: 70800, PriceType: "SL", TriggerPrice: 70850, Status: "trigger pending",
			Timestamp: base.Add(time.Minute)},
		{OrderID: "O3", User: "trader1", Symbol: "GOLD", Exchange: "MCX", Action: "SELL",
			Quantity: 100, Price: 70500, PriceType: "SL", TriggerPrice: 70550, Status: "cancelled",
			Timestamp: base.Add(2 * time.Minute)},
	}
	for _, o := range orders {
		if err := s.SaveSandboxOrder(ctx, o); err != nil {
			t.Fatalf("save %s failed: %v", o.OrderID, err)
		}
	}

	open, err := s.OpenSLOrder(ctx, "trader1", "GOLD")
	if err != nil {
		t.Fatalf("open SL order failed: %v", err)
	}
	if open == nil || open.OrderID != "O2" {
		t.Fatalf("open SL order = %+v, want O2", open)
	}
	if open.TriggerPrice != 70850 {
		t.Errorf("trigger = %v, want 70850", open.TriggerPrice)
	}

	// Latest ignores status and picks the newest protective order
	latest, err := s.LatestSLOrder(ctx, "trader1", "GOLD")
	if err != nil {
		t.Fatalf("latest SL order failed: %v", err)
	}
	if latest == nil || latest.OrderID != "O3" {
		t.Errorf("latest SL order = %+v, want O3", latest)
	}

	// Completing the resting order leaves nothing open
	if err := s.UpdateSandboxOrderStatus(ctx, "O2", "complete", 70800); err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	open, err = s.OpenSLOrder(ctx, "trader1", "GOLD")
	if err != nil {
		t.Fatalf("open SL order failed: %v", err)
	}
	if open != nil {
		t.Errorf("open SL order = %+v, want nil", open)
	}
}

func TestFindOptionContractsSuffixMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []SymbolRow{
		{Symbol: "NIFTY25SEP25000CE", Name: "NIFTY", Exchange: "NFO", Strike: 25000, Expiry: "25-Sep-2025", LotSize: 75},
		{Symbol: "NIFTY25O0725000CE", Name: "NIFTY", Exchange: "NFO", Strike: 25000, Expiry: "07-Oct-2025", LotSize: 75},
		{Symbol: "NIFTY25SEP25000PE", Name: "NIFTY", Exchange: "NFO", Strike: 25000, Expiry: "25-Sep-2025", LotSize: 75},
		{Symbol: "NIFTY25SEP26000CE", Name: "NIFTY", Exchange: "NFO", Strike: 26000, Expiry: "25-Sep-2025", LotSize: 75},
		{Symbol: "BANKNIFTY25SEP25000CE", Name: "BANKNIFTY", Exchange: "NFO", Strike: 25000, Expiry: "25-Sep-2025", LotSize: 35},
	}
	if err := s.SaveInstruments(ctx, rows); err != nil {
		t.Fatalf("save instruments failed: %v", err)
	}

	contracts, err := s.FindOptionContracts(ctx, "NIFTY", "NFO", "25000", "CE")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(contracts) != 2 {
		t.Fatalf("contracts = %d, want 2", len(contracts))
	}
	for _, c := range contracts {
		if c.Name != "NIFTY" || c.Strike != 25000 {
			t.Errorf("unexpected contract %+v", c)
		}
	}

	contracts, err = s.FindOptionContracts(ctx, "NIFTY", "NFO", "31000", "CE")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(contracts) != 0 {
		t.Errorf("contracts = %d, want 0 for unknown strike", len(contracts))
	}
}

func TestGetSignalsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*SignalLog{
		{Channel: "chan1", Message: "BUY NIFTY 25000 CE", Status: "executed", Confidence: 0.9, Executed: true,
			Parsed: &models.Signal{Action: models.OrderSideBuy, Symbol: "NIFTY"}},
		{Channel: "chan1", Message: "good morning", Status: "ignored", Confidence: 0.1},
		{Channel: "chan2", Message: "SELL GOLD", Status: "Duplicate signal", Confidence: 0.8},
	}
	for _, e := range entries {
		if err := s.LogSignal(ctx, e); err != nil {
			t.Fatalf("log failed: %v", err)
		}
	}

	rows, err := s.GetSignals(ctx, SignalFilter{Channel: "chan1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("chan1 rows = %d, want 2", len(rows))
	}

	rows, err = s.GetSignals(ctx, SignalFilter{Status: "executed"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("executed rows = %d, want 1", len(rows))
	}
	if !rows[0].Executed || rows[0].Parsed == nil || rows[0].Parsed.Symbol != "NIFTY" {
		t.Errorf("row = %+v, want executed NIFTY signal with parsed blob", rows[0])
	}

	rows, err = s.GetSignals(ctx, SignalFilter{Limit: 1})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("limited rows = %d, want 1", len(rows))
	}
}
