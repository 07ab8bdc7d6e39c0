package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-trader/internal/models"
)

// SQLiteStore implements the durable ledger, symbol master, and signal
// audit log using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access. In-memory databases
	// are per-connection, so they must stay on a single connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Paper-trading position ledger, one row per (user, symbol)
	CREATE TABLE IF NOT EXISTS sandbox_positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user TEXT NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		product TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		average_price REAL NOT NULL,
		signal_data TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user, symbol)
	);

	-- Paper-trading order ledger
	CREATE TABLE IF NOT EXISTS sandbox_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		orderid TEXT NOT NULL UNIQUE,
		user TEXT NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL DEFAULT 0,
		price_type TEXT NOT NULL,
		trigger_price REAL DEFAULT 0,
		product TEXT,
		order_status TEXT NOT NULL,
		average_price REAL DEFAULT 0,
		order_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Symbol master
	CREATE TABLE IF NOT EXISTS symtoken (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL,
		exchange TEXT NOT NULL,
		strike REAL DEFAULT 0,
		expiry TEXT,
		lotsize INTEGER DEFAULT 1,
		UNIQUE(symbol, exchange)
	);

	-- Processed-message audit log
	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel TEXT NOT NULL,
		message TEXT NOT NULL,
		parsed TEXT,
		status TEXT NOT NULL,
		confidence REAL DEFAULT 0,
		executed INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sandbox_positions_user ON sandbox_positions(user);
	CREATE INDEX IF NOT EXISTS idx_sandbox_orders_user_symbol ON sandbox_orders(user, symbol);
	CREATE INDEX IF NOT EXISTS idx_sandbox_orders_status ON sandbox_orders(order_status);
	CREATE INDEX IF NOT EXISTS idx_symtoken_name ON symtoken(name, exchange);
	CREATE INDEX IF NOT EXISTS idx_signals_channel ON signals(channel);
	CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Sandbox Position Methods
// ============================================================================

// UpsertSandboxPosition inserts or updates the ledger row for (user, symbol).
func (s *SQLiteStore) UpsertSandboxPosition(ctx context.Context, p *SandboxPosition) error {
	var signalJSON interface{}
	if p.SignalData != nil {
		b, err := json.Marshal(p.SignalData)
		if err != nil {
			return fmt.Errorf("failed to marshal signal data: %w", err)
		}
		signalJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sandbox_positions (user, symbol, exchange, product, quantity, average_price, signal_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user, symbol) DO UPDATE SET
			exchange = excluded.exchange,
			product = excluded.product,
			quantity = excluded.quantity,
			average_price = excluded.average_price,
			signal_data = COALESCE(excluded.signal_data, sandbox_positions.signal_data),
			updated_at = CURRENT_TIMESTAMP
	`, p.User, p.Symbol, p.Exchange, p.Product, p.Quantity, p.AveragePrice, signalJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert sandbox position: %w", err)
	}
	return nil
}

// ZeroSandboxPosition marks the ledger row closed by zeroing its quantity.
func (s *SQLiteStore) ZeroSandboxPosition(ctx context.Context, user, symbol string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sandbox_positions SET quantity = 0, updated_at = CURRENT_TIMESTAMP
		WHERE user = ? AND symbol = ?
	`, user, symbol)
	if err != nil {
		return fmt.Errorf("failed to zero sandbox position: %w", err)
	}
	return nil
}

// GetSandboxPosition retrieves a single ledger row, or nil if absent.
func (s *SQLiteStore) GetSandboxPosition(ctx context.Context, user, symbol string) (*SandboxPosition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user, symbol, exchange, product, quantity, average_price, COALESCE(signal_data, ''), created_at, updated_at
		FROM sandbox_positions WHERE user = ? AND symbol = ?
	`, user, symbol)

	p, err := scanSandboxPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sandbox position: %w", err)
	}
	return p, nil
}

// OpenSandboxPositions retrieves all ledger rows with non-zero quantity.
func (s *SQLiteStore) OpenSandboxPositions(ctx context.Context, user string) ([]SandboxPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user, symbol, exchange, product, quantity, average_price, COALESCE(signal_data, ''), created_at, updated_at
		FROM sandbox_positions WHERE user = ? AND quantity != 0
		ORDER BY created_at ASC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query sandbox positions: %w", err)
	}
	defer rows.Close()

	var positions []SandboxPosition
	for rows.Next() {
		p, err := scanSandboxPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sandbox position: %w", err)
		}
		positions = append(positions, *p)
	}

	return positions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSandboxPosition(r rowScanner) (*SandboxPosition, error) {
	var p SandboxPosition
	var signalJSON string
	if err := r.Scan(&p.ID, &p.User, &p.Symbol, &p.Exchange, &p.Product, &p.Quantity, &p.AveragePrice, &signalJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if signalJSON != "" {
		var sig models.Signal
		if err := json.Unmarshal([]byte(signalJSON), &sig); err == nil {
			p.SignalData = &sig
		}
	}
	return &p, nil
}

// ============================================================================
// Sandbox Order Methods
// ============================================================================

// SaveSandboxOrder inserts or replaces an order ledger row.
func (s *SQLiteStore) SaveSandboxOrder(ctx context.Context, o *SandboxOrder) error {
	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sandbox_orders (orderid, user, symbol, exchange, action, quantity, price, price_type, trigger_price, product, order_status, average_price, order_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.OrderID, o.User, o.Symbol, o.Exchange, o.Action, o.Quantity, o.Price, o.PriceType, o.TriggerPrice, o.Product, o.Status, o.AveragePrice, ts)
	if err != nil {
		return fmt.Errorf("failed to save sandbox order: %w", err)
	}
	return nil
}

// UpdateSandboxOrderStatus updates an order's status and fill price.
func (s *SQLiteStore) UpdateSandboxOrderStatus(ctx context.Context, orderID, status string, avgPrice float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sandbox_orders SET order_status = ?, average_price = ? WHERE orderid = ?
	`, status, avgPrice, orderID)
	if err != nil {
		return fmt.Errorf("failed to update sandbox order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("sandbox order not found: %s", orderID)
	}
	return nil
}

// GetSandboxOrder retrieves an order by id, or nil if absent.
func (s *SQLiteStore) GetSandboxOrder(ctx context.Context, orderID string) (*SandboxOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, orderid, user, symbol, exchange, action, quantity, price, price_type, trigger_price, COALESCE(product, ''), order_status, average_price, order_timestamp
		FROM sandbox_orders WHERE orderid = ?
	`, orderID)

	o, err := scanSandboxOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sandbox order: %w", err)
	}
	return o, nil
}

// OpenSLOrder returns the latest open protective order for (user, symbol),
// or nil when none is resting.
func (s *SQLiteStore) OpenSLOrder(ctx context.Context, user, symbol string) (*SandboxOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, orderid, user, symbol, exchange, action, quantity, price, price_type, trigger_price, COALESCE(product, ''), order_status, average_price, order_timestamp
		FROM sandbox_orders
		WHERE user = ? AND symbol = ? AND price_type IN ('SL', 'SL-M')
			AND order_status IN ('open', 'trigger pending')
		ORDER BY order_timestamp DESC LIMIT 1
	`, user, symbol)

	o, err := scanSandboxOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open SL order: %w", err)
	}
	return o, nil
}

// LatestSLOrder returns the most recent protective order regardless of
// status, or nil when the symbol never had one.
func (s *SQLiteStore) LatestSLOrder(ctx context.Context, user, symbol string) (*SandboxOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, orderid, user, symbol, exchange, action, quantity, price, price_type, trigger_price, COALESCE(product, ''), order_status, average_price, order_timestamp
		FROM sandbox_orders
		WHERE user = ? AND symbol = ? AND price_type IN ('SL', 'SL-M')
		ORDER BY order_timestamp DESC LIMIT 1
	`, user, symbol)

	o, err := scanSandboxOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest SL order: %w", err)
	}
	return o, nil
}

func scanSandboxOrder(r rowScanner) (*SandboxOrder, error) {
	var o SandboxOrder
	if err := r.Scan(&o.ID, &o.OrderID, &o.User, &o.Symbol, &o.Exchange, &o.Action, &o.Quantity, &o.Price, &o.PriceType, &o.TriggerPrice, &o.Product, &o.Status, &o.AveragePrice, &o.Timestamp); err != nil {
		return nil, err
	}
	return &o, nil
}

// ============================================================================
// Symbol Master Methods
// ============================================================================

// SaveInstruments bulk-loads symbol master rows.
func (s *SQLiteStore) SaveInstruments(ctx context.Context, instruments []SymbolRow) error {
	if len(instruments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO symtoken (symbol, name, exchange, strike, expiry, lotsize)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ins := range instruments {
		if _, err := stmt.ExecContext(ctx, ins.Symbol, ins.Name, ins.Exchange, ins.Strike, ins.Expiry, ins.LotSize); err != nil {
			return fmt.Errorf("failed to insert instrument: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindOptionContracts returns symbol master rows whose trading symbol ends
// with the strike+option-type suffix for the given underlying.
func (s *SQLiteStore) FindOptionContracts(ctx context.Context, base, exchange, strike, optType string) ([]SymbolRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, exchange, strike, COALESCE(expiry, ''), lotsize
		FROM symtoken
		WHERE exchange = ? AND name = ? AND symbol LIKE '%' || ? || ?
	`, exchange, base, strike, optType)
	if err != nil {
		return nil, fmt.Errorf("failed to query option contracts: %w", err)
	}
	defer rows.Close()

	var contracts []SymbolRow
	for rows.Next() {
		var c SymbolRow
		if err := rows.Scan(&c.Symbol, &c.Name, &c.Exchange, &c.Strike, &c.Expiry, &c.LotSize); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}

	return contracts, rows.Err()
}

// GetInstrument retrieves a symbol master row by trading symbol, or nil.
func (s *SQLiteStore) GetInstrument(ctx context.Context, symbol, exchange string) (*SymbolRow, error) {
	var c SymbolRow
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, name, exchange, strike, COALESCE(expiry, ''), lotsize
		FROM symtoken WHERE symbol = ? AND exchange = ?
	`, symbol, exchange).Scan(&c.Symbol, &c.Name, &c.Exchange, &c.Strike, &c.Expiry, &c.LotSize)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return &c, nil
}

// ============================================================================
// Signal Audit Methods
// ============================================================================

// LogSignal appends a processed-message audit row.
func (s *SQLiteStore) LogSignal(ctx context.Context, entry *SignalLog) error {
	var parsedJSON interface{}
	if entry.Parsed != nil {
		b, err := json.Marshal(entry.Parsed)
		if err != nil {
			return fmt.Errorf("failed to marshal parsed signal: %w", err)
		}
		parsedJSON = string(b)
	}

	executed := 0
	if entry.Executed {
		executed = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (channel, message, parsed, status, confidence, executed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Channel, entry.Message, parsedJSON, entry.Status, entry.Confidence, executed)
	if err != nil {
		return fmt.Errorf("failed to log signal: %w", err)
	}
	return nil
}

// GetSignals retrieves audit rows matching the filter, newest first.
func (s *SQLiteStore) GetSignals(ctx context.Context, filter SignalFilter) ([]SignalLog, error) {
	query := "SELECT id, channel, message, COALESCE(parsed, ''), status, confidence, executed, created_at FROM signals WHERE 1=1"
	args := []interface{}{}

	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if !filter.StartDate.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var entries []SignalLog
	for rows.Next() {
		var e SignalLog
		var parsedJSON string
		var executed int
		if err := rows.Scan(&e.ID, &e.Channel, &e.Message, &parsedJSON, &e.Status, &e.Confidence, &executed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if parsedJSON != "" {
			var sig models.Signal
			if err := json.Unmarshal([]byte(parsedJSON), &sig); err == nil {
				e.Parsed = &sig
			}
		}
		e.Executed = executed == 1
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
