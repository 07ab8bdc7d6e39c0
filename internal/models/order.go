package models

import "time"

// OrderRequest is the broker-facing order derived from a signal.
type OrderRequest struct {
	Symbol       string // resolved tradable instrument
	Exchange     Exchange
	Side         OrderSide
	Type         OrderType
	Product      ProductType
	Quantity     int
	Price        float64
	TriggerPrice float64 // set for SL/SL-M orders
	Validity     string  // DAY, IOC
	Tag          string
}

// OrderResult is the broker's response to an order placement.
type OrderResult struct {
	OrderID string
	Status  string
	Message string
}

// OrderStatus is the broker-side state of a previously placed order.
type OrderStatus struct {
	OrderID      string
	Status       string // pending, open, complete, rejected, cancelled
	FilledQty    int
	AveragePrice float64
	UpdatedAt    time.Time
}

// OrderStatusComplete is the broker status for a fully filled order.
const OrderStatusComplete = "complete"
