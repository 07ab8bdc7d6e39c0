// Package store provides data persistence implementations.
package store

import (
	"time"

	"signal-trader/internal/models"
)

// SandboxPosition is a durable ledger row for a paper-trading position,
// keyed by (user, symbol). Quantity 0 means closed.
type SandboxPosition struct {
	ID           int64
	User         string
	Symbol       string
	Exchange     string
	Product      string
	Quantity     int
	AveragePrice float64
	SignalData   *models.Signal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SandboxOrder is a durable ledger row for a paper-trading order.
type SandboxOrder struct {
	ID           int64
	OrderID      string
	User         string
	Symbol       string
	Exchange     string
	Action       string
	Quantity     int
	Price        float64
	PriceType    string // MARKET, LIMIT, SL, SL-M
	TriggerPrice float64
	Product      string
	Status       string
	AveragePrice float64
	Timestamp    time.Time
}

// SymbolRow is a row of the symtoken symbol master.
type SymbolRow struct {
	Symbol   string
	Name     string
	Exchange string
	Strike   float64
	Expiry   string // broker format, e.g. "26-Sep-2025"
	LotSize  int
}

// SignalLog is an audit row for a processed message.
type SignalLog struct {
	ID         int64
	Channel    string
	Message    string
	Parsed     *models.Signal
	Status     string // signal, noise, executed, skipped, failed
	Confidence float64
	Executed   bool
	CreatedAt  time.Time
}

// SignalFilter narrows signal audit queries.
type SignalFilter struct {
	Channel   string
	Status    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
