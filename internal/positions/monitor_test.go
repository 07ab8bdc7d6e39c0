package positions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"signal-trader/internal/models"
	"signal-trader/internal/store"
)

func newTestMonitor(t *testing.T) (*Monitor, *store.SQLiteStore) {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return NewMonitor("TEST01", s, 0, zerolog.Nop()), s
}

func testPosition(orderID string) *models.Position {
	return &models.Position{
		OrderID:           orderID,
		Symbol:            "NIFTY25MAR22000CE",
		Exchange:          models.NFO,
		Action:            models.OrderSideBuy,
		Product:           models.ProductNRML,
		OriginalQuantity:  75,
		RemainingQuantity: 75,
		EntryPrice:        150.0,
		OriginalSL:        135.0,
		CurrentSL:         135.0,
		Targets:           []float64{160, 170, 180},
		FinalTarget:       180,
		Status:            models.StatusActive,
		TrailingEnabled:   true,
	}
}

func TestMonitorAddAndGet(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	m.Add(ctx, testPosition("ORD1"))

	pos, ok := m.Get("ORD1")
	if !ok {
		t.Fatal("Get returned false for added position")
	}
	if pos.Symbol != "NIFTY25MAR22000CE" || pos.CurrentSL != 135.0 {
		t.Errorf("unexpected position: %+v", pos)
	}
	if len(m.Active()) != 1 {
		t.Errorf("Active() = %d positions, want 1", len(m.Active()))
	}
}

func TestMonitorMutatorsUnknownID(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	checks := map[string]bool{
		"UpdateSL":                m.UpdateSL(ctx, "missing", 140, ""),
		"UpdateTarget":            m.UpdateTarget(ctx, "missing", 200),
		"UpdateTargets":           m.UpdateTargets(ctx, "missing", []float64{200}),
		"UpdateStatus":            m.UpdateStatus("missing", models.StatusActive),
		"UpdateSLOrderID":         m.UpdateSLOrderID("missing", "SL1"),
		"UpdateHighestPrice":      m.UpdateHighestPrice("missing", 160),
		"UpdateQuantity":          m.UpdateQuantity(ctx, "missing", 10),
		"UpdateRemainingQuantity": m.UpdateRemainingQuantity(ctx, "missing", 10),
		"MarkT1ExitDone":          m.MarkT1ExitDone(ctx, "missing"),
		"SetTargetHit":            m.SetTargetHit(ctx, "missing", 1),
		"EnableTrailing":          m.EnableTrailing("missing"),
		"DisableTrailing":         m.DisableTrailing("missing"),
	}
	for name, got := range checks {
		if got {
			t.Errorf("%s returned true for unknown id", name)
		}
	}
	if m.RemovePosition(ctx, "missing", models.StatusClosed) != nil {
		t.Error("RemovePosition returned non-nil for unknown id")
	}
}

func TestMonitorUpdateSL(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()
	m.Add(ctx, testPosition("ORD1"))

	if !m.UpdateSL(ctx, "ORD1", 150.0, "SL_ORD_9") {
		t.Fatal("UpdateSL returned false")
	}
	pos, _ := m.Get("ORD1")
	if pos.CurrentSL != 150.0 || pos.SLOrderID != "SL_ORD_9" {
		t.Errorf("sl = %.2f order = %q, want 150.00 / SL_ORD_9", pos.CurrentSL, pos.SLOrderID)
	}
	if pos.OriginalSL != 135.0 {
		t.Errorf("OriginalSL changed to %.2f", pos.OriginalSL)
	}

	// Empty order id leaves the existing one
	m.UpdateSL(ctx, "ORD1", 155.0, "")
	pos, _ = m.Get("ORD1")
	if pos.SLOrderID != "SL_ORD_9" {
		t.Errorf("SLOrderID = %q, want SL_ORD_9", pos.SLOrderID)
	}
}

// recordingLedger counts ledger writes without a database behind them.
type recordingLedger struct {
	upserts int
	last    *store.SandboxPosition
}

func (r *recordingLedger) UpsertSandboxPosition(_ context.Context, p *store.SandboxPosition) error {
	r.upserts++
	r.last = p
	return nil
}

func (r *recordingLedger) ZeroSandboxPosition(context.Context, string, string) error { return nil }

func (r *recordingLedger) OpenSandboxPositions(context.Context, string) ([]store.SandboxPosition, error) {
	return nil, nil
}

func (r *recordingLedger) OpenSLOrder(context.Context, string, string) (*store.SandboxOrder, error) {
	return nil, nil
}

func (r *recordingLedger) LatestSLOrder(context.Context, string, string) (*store.SandboxOrder, error) {
	return nil, nil
}

func TestMonitorMutatorsPersistToLedger(t *testing.T) {
	ledger := &recordingLedger{}
	m := NewMonitor("TEST01", ledger, 0, zerolog.Nop())
	ctx := context.Background()

	m.Add(ctx, testPosition("ORD1"))
	writes := ledger.upserts
	if writes == 0 {
		t.Fatal("Add did not write to the ledger")
	}

	if !m.UpdateSL(ctx, "ORD1", 99.0, "") {
		t.Fatal("UpdateSL returned false")
	}
	writes++
	if ledger.upserts != writes {
		t.Fatalf("ledger writes = %d after UpdateSL, want %d", ledger.upserts, writes)
	}
	if ledger.last.SignalData == nil || ledger.last.SignalData.StopLoss != 99.0 {
		t.Errorf("persisted blob = %+v, want stop loss 99.0", ledger.last.SignalData)
	}

	if !m.UpdateTargets(ctx, "ORD1", []float64{110, 120}) {
		t.Fatal("UpdateTargets returned false")
	}
	writes++
	if ledger.upserts != writes {
		t.Fatalf("ledger writes = %d after UpdateTargets, want %d", ledger.upserts, writes)
	}
	if got := ledger.last.SignalData.Targets; len(got) != 2 || got[0] != 110 || got[1] != 120 {
		t.Errorf("persisted targets = %v, want [110 120]", got)
	}

	if !m.UpdateTarget(ctx, "ORD1", 120) {
		t.Fatal("UpdateTarget returned false")
	}
	writes++
	if ledger.upserts != writes || ledger.last.SignalData.Target != 120 {
		t.Errorf("writes/target = %d/%v, want %d/120", ledger.upserts, ledger.last.SignalData.Target, writes)
	}

	for name, fn := range map[string]func() bool{
		"MarkT1ExitDone": func() bool { return m.MarkT1ExitDone(ctx, "ORD1") },
		"SetTargetHit":   func() bool { return m.SetTargetHit(ctx, "ORD1", 1) },
	} {
		if !fn() {
			t.Fatalf("%s returned false", name)
		}
		writes++
		if ledger.upserts != writes {
			t.Errorf("ledger writes = %d after %s, want %d", ledger.upserts, name, writes)
		}
	}
}

func TestMonitorTrailedSLSurvivesRestart(t *testing.T) {
	m, s := newTestMonitor(t)
	ctx := context.Background()

	pos := testPosition("ORD1")
	pos.SignalData = &models.Signal{
		Action:   models.OrderSideBuy,
		Symbol:   "NIFTY",
		StopLoss: 135.0,
		Targets:  []float64{160, 170, 180},
		Target:   180,
	}
	m.Add(ctx, pos)

	if !m.UpdateSL(ctx, "ORD1", 152.5, "") {
		t.Fatal("UpdateSL returned false")
	}

	row, err := s.GetSandboxPosition(ctx, "TEST01", "NIFTY25MAR22000CE")
	if err != nil {
		t.Fatalf("GetSandboxPosition failed: %v", err)
	}
	if row == nil || row.SignalData == nil || row.SignalData.StopLoss != 152.5 {
		t.Fatalf("ledger row = %+v, want signal blob with trailed SL 152.5", row)
	}

	// A fresh monitor on the same store sees the trailed stop, not the
	// one the signal originally carried.
	m2 := NewMonitor("TEST01", s, 0, zerolog.Nop())
	if _, err := m2.RestoreFromSandbox(ctx); err != nil {
		t.Fatalf("RestoreFromSandbox failed: %v", err)
	}
	got := m2.Active()[0]
	if got.CurrentSL != 152.5 {
		t.Errorf("restored CurrentSL = %.2f, want trailed 152.50", got.CurrentSL)
	}
}

func TestMonitorHighestPriceStrictlyIncreases(t *testing.T) {
	m, _ := newTestMonitor(t)
	m.Add(context.Background(), testPosition("ORD1"))

	if !m.UpdateHighestPrice("ORD1", 155.0) {
		t.Error("first advance rejected")
	}
	if m.UpdateHighestPrice("ORD1", 155.0) {
		t.Error("equal price accepted")
	}
	if m.UpdateHighestPrice("ORD1", 150.0) {
		t.Error("lower price accepted")
	}
	pos, _ := m.Get("ORD1")
	if pos.HighestPrice != 155.0 {
		t.Errorf("HighestPrice = %.2f, want 155.00", pos.HighestPrice)
	}
}

func TestMonitorTargetHitLevels(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()
	m.Add(ctx, testPosition("ORD1"))

	for _, level := range []int{0, 4, -1} {
		if m.SetTargetHit(ctx, "ORD1", level) {
			t.Errorf("SetTargetHit accepted level %d", level)
		}
	}

	m.SetTargetHit(ctx, "ORD1", 1)
	m.SetTargetHit(ctx, "ORD1", 2)
	pos, _ := m.Get("ORD1")
	if !pos.T1Hit || !pos.T2Hit || pos.T3Hit {
		t.Errorf("hit flags = %v/%v/%v, want true/true/false", pos.T1Hit, pos.T2Hit, pos.T3Hit)
	}
}

func TestMonitorRemovePosition(t *testing.T) {
	m, s := newTestMonitor(t)
	ctx := context.Background()

	m.Add(ctx, testPosition("ORD1"))

	closed := m.RemovePosition(ctx, "ORD1", models.StatusTargetHit)
	if closed == nil {
		t.Fatal("RemovePosition returned nil")
	}
	if closed.Status != models.StatusTargetHit || closed.ClosedAt.IsZero() {
		t.Errorf("closed = %+v, want target_hit with ClosedAt stamped", closed)
	}
	if closed.RemainingQuantity != 0 {
		t.Errorf("RemainingQuantity = %d, want 0", closed.RemainingQuantity)
	}
	if _, ok := m.Get("ORD1"); ok {
		t.Error("position still active after removal")
	}
	if len(m.History()) != 1 {
		t.Errorf("history = %d entries, want 1", len(m.History()))
	}

	// Idempotent: second removal is a no-op
	if m.RemovePosition(ctx, "ORD1", models.StatusClosed) != nil {
		t.Error("second removal returned non-nil")
	}
	if len(m.History()) != 1 {
		t.Errorf("history grew on repeated removal")
	}

	// Ledger row zeroed
	row, err := s.GetSandboxPosition(ctx, "TEST01", "NIFTY25MAR22000CE")
	if err != nil {
		t.Fatalf("GetSandboxPosition failed: %v", err)
	}
	if row == nil || row.Quantity != 0 {
		t.Errorf("ledger row = %+v, want quantity 0", row)
	}
}

func TestMonitorLifecycle(t *testing.T) {
	m, _ := newTestMonitor(t)
	ctx := context.Background()

	pos := testPosition("ORD1")
	pos.Status = ""
	m.Add(ctx, pos)

	entered, _ := m.Get("ORD1")
	if entered.Status != models.StatusPendingOpen || entered.Status.Terminal() {
		t.Fatalf("entry status = %q, want pending_open", entered.Status)
	}

	if !m.UpdateStatus("ORD1", models.StatusActive) {
		t.Fatal("UpdateStatus failed")
	}
	got, _ := m.Get("ORD1")
	if got.Status != models.StatusActive || got.Status.Terminal() {
		t.Errorf("status = %q, want active non-terminal", got.Status)
	}

	closed := m.RemovePosition(ctx, "ORD1", models.StatusSLHit)
	if !closed.Status.Terminal() {
		t.Errorf("status %q not terminal", closed.Status)
	}

	stats := m.Stats()
	if stats.Active != 0 || stats.Closed != 1 || stats.SLHits != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMonitorHistoryBounded(t *testing.T) {
	m, _ := newTestMonitor(t)
	m.historyLimit = 5
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("ORD%d", i)
		pos := testPosition(id)
		pos.Symbol = fmt.Sprintf("SYM%d", i)
		m.Add(ctx, pos)
		m.RemovePosition(ctx, id, models.StatusClosed)
	}

	history := m.History()
	if len(history) != 5 {
		t.Fatalf("history = %d entries, want 5", len(history))
	}
	// Oldest entries evicted first
	if history[0].OrderID != "ORD7" || history[4].OrderID != "ORD11" {
		t.Errorf("history window = %s..%s, want ORD7..ORD11", history[0].OrderID, history[4].OrderID)
	}
}

func TestRestoreFromSandbox(t *testing.T) {
	m, s := newTestMonitor(t)
	ctx := context.Background()

	sig := &models.Signal{
		Action:   models.OrderSideBuy,
		Symbol:   "NIFTY",
		StopLoss: 140.0,
		Targets:  []float64{160, 170},
		Target:   170,
	}
	if err := s.UpsertSandboxPosition(ctx, &store.SandboxPosition{
		User: "TEST01", Symbol: "NIFTY25MAR22000CE", Exchange: "NFO",
		Product: "NRML", Quantity: 75, AveragePrice: 150.0, SignalData: sig,
	}); err != nil {
		t.Fatalf("seed position failed: %v", err)
	}

	restored, err := m.RestoreFromSandbox(ctx)
	if err != nil {
		t.Fatalf("RestoreFromSandbox failed: %v", err)
	}
	if restored != 1 {
		t.Fatalf("restored = %d, want 1", restored)
	}

	active := m.Active()
	pos := active[0]
	if pos.CurrentSL != 140.0 || pos.FinalTarget != 170 || len(pos.Targets) != 2 {
		t.Errorf("restored position = %+v", pos)
	}
	if pos.OrderID[:8] != "SANDBOX_" {
		t.Errorf("order id = %q, want SANDBOX_ prefix", pos.OrderID)
	}
	if pos.Action != models.OrderSideBuy || pos.RemainingQuantity != 75 {
		t.Errorf("side/qty = %s/%d, want BUY/75", pos.Action, pos.RemainingQuantity)
	}
}

func TestRestoreSLFromRestingOrder(t *testing.T) {
	m, s := newTestMonitor(t)
	ctx := context.Background()

	// Open row without a signal blob; SL lives on a resting protective order
	if err := s.UpsertSandboxPosition(ctx, &store.SandboxPosition{
		User: "TEST01", Symbol: "RELIANCE", Exchange: "NSE",
		Product: "MIS", Quantity: 10, AveragePrice: 100.0,
	}); err != nil {
		t.Fatalf("seed position failed: %v", err)
	}
	if err := s.SaveSandboxOrder(ctx, &store.SandboxOrder{
		OrderID: "PAPER_1_1", User: "TEST01", Symbol: "RELIANCE", Exchange: "NSE",
		Action: "SELL", Quantity: 10, Price: 89.0, PriceType: "SL",
		TriggerPrice: 90.0, Status: "trigger pending",
	}); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}

	if _, err := m.RestoreFromSandbox(ctx); err != nil {
		t.Fatalf("RestoreFromSandbox failed: %v", err)
	}

	pos := m.Active()[0]
	if pos.CurrentSL != 90.0 {
		t.Errorf("CurrentSL = %.2f, want 90.00 from resting order", pos.CurrentSL)
	}
}

func TestRestoreSLFallbackTenPercent(t *testing.T) {
	m, s := newTestMonitor(t)
	ctx := context.Background()

	if err := s.UpsertSandboxPosition(ctx, &store.SandboxPosition{
		User: "TEST01", Symbol: "TCS", Exchange: "NSE",
		Product: "MIS", Quantity: 5, AveragePrice: 123.45,
	}); err != nil {
		t.Fatalf("seed position failed: %v", err)
	}

	if _, err := m.RestoreFromSandbox(ctx); err != nil {
		t.Fatalf("RestoreFromSandbox failed: %v", err)
	}

	pos := m.Active()[0]
	// 123.45 * 0.9 = 111.105, rounded to one decimal
	if pos.CurrentSL != 111.1 {
		t.Errorf("CurrentSL = %.3f, want 111.1", pos.CurrentSL)
	}
}

func TestRestoreShortPosition(t *testing.T) {
	m, s := newTestMonitor(t)
	ctx := context.Background()

	if err := s.UpsertSandboxPosition(ctx, &store.SandboxPosition{
		User: "TEST01", Symbol: "BANKNIFTY25MAR48000PE", Exchange: "NFO",
		Product: "NRML", Quantity: -30, AveragePrice: 200.0,
	}); err != nil {
		t.Fatalf("seed position failed: %v", err)
	}

	if _, err := m.RestoreFromSandbox(ctx); err != nil {
		t.Fatalf("RestoreFromSandbox failed: %v", err)
	}

	pos := m.Active()[0]
	if pos.Action != models.OrderSideSell || pos.RemainingQuantity != 30 {
		t.Errorf("side/qty = %s/%d, want SELL/30", pos.Action, pos.RemainingQuantity)
	}
	// Short fallback SL sits above entry
	if pos.CurrentSL != 220.0 {
		t.Errorf("CurrentSL = %.2f, want 220.00", pos.CurrentSL)
	}
}

func TestRestoreClosesStaleRows(t *testing.T) {
	m, s := newTestMonitor(t)
	ctx := context.Background()

	if err := s.UpsertSandboxPosition(ctx, &store.SandboxPosition{
		User: "TEST01", Symbol: "INFY", Exchange: "NSE",
		Product: "MIS", Quantity: 10, AveragePrice: 100.0,
	}); err != nil {
		t.Fatalf("seed position failed: %v", err)
	}

	// Pretend the restart happens two days later
	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	restored, err := m.RestoreFromSandbox(ctx)
	if err != nil {
		t.Fatalf("RestoreFromSandbox failed: %v", err)
	}
	if restored != 0 {
		t.Errorf("restored = %d, want 0", restored)
	}

	row, _ := s.GetSandboxPosition(ctx, "TEST01", "INFY")
	if row == nil || row.Quantity != 0 {
		t.Errorf("stale row = %+v, want quantity 0", row)
	}
}

func TestMonitorHistoryNeverExceedsLimitProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("history stays within limit", prop.ForAll(
		func(n int, limit int) bool {
			m := NewMonitor("TEST01", nil, limit, zerolog.Nop())
			ctx := context.Background()
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("ORD%d", i)
				m.Add(ctx, testPosition(id))
				m.RemovePosition(ctx, id, models.StatusClosed)
			}
			want := limit
			if n < want {
				want = n
			}
			return len(m.History()) == want && m.Stats().Active == 0
		},
		gen.IntRange(0, 200),
		gen.IntRange(1, 50),
	))

	properties.Property("highest price is monotonic", prop.ForAll(
		func(prices []float64) bool {
			m := NewMonitor("TEST01", nil, 0, zerolog.Nop())
			pos := testPosition("ORD1")
			pos.HighestPrice = pos.EntryPrice
			m.Add(context.Background(), pos)

			prev := pos.EntryPrice
			for _, price := range prices {
				m.UpdateHighestPrice("ORD1", price)
				got, _ := m.Get("ORD1")
				if got.HighestPrice < prev {
					return false
				}
				prev = got.HighestPrice
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1000)),
	))

	properties.TestingRun(t)
}
