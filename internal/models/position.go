package models

import "time"

// PositionStatus represents the lifecycle state of a monitored position.
type PositionStatus string

const (
	StatusPendingOpen PositionStatus = "pending_open"
	StatusActive      PositionStatus = "active"

	// Closure reasons double as terminal statuses; RemovePosition stamps
	// the reason it was given.
	StatusSLHit       PositionStatus = "sl_hit"
	StatusTargetHit   PositionStatus = "target_hit"
	StatusManualClose PositionStatus = "manual_close"
	StatusClosed      PositionStatus = "closed"
)

// Terminal reports whether the status is a closed state.
func (s PositionStatus) Terminal() bool {
	return s != StatusPendingOpen && s != StatusActive
}

// Position is a monitored auto-executed position with its multi-target
// progressive trailing state.
type Position struct {
	OrderID  string
	Symbol   string
	Exchange Exchange
	Action   OrderSide
	Product  ProductType
	Username string

	OriginalQuantity  int
	RemainingQuantity int

	EntryPrice   float64
	OriginalSL   float64
	CurrentSL    float64
	Targets      []float64
	FinalTarget  float64
	HighestPrice float64 // best price seen, trailing reference

	Status          PositionStatus
	SLOrderID       string // broker-side protective order, when placed
	TrailingEnabled bool

	// Multi-target progressive exit state: T1 exits half and trails SL to
	// entry, T2 trails SL to T1, T3 exits the remainder.
	T1Hit      bool
	T2Hit      bool
	T3Hit      bool
	T1ExitDone bool

	SignalData *Signal // original signal, retained for audit/persistence
	CreatedAt  time.Time
	ClosedAt   time.Time
}
