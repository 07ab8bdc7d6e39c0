package models

import "time"

// RawMessage is an inbound chat message before classification.
type RawMessage struct {
	Text      string
	Channel   string
	Timestamp time.Time
}

// Signal is a structured trade instruction extracted from free text.
//
// Numeric fields are parsed at the classifier boundary; a zero value means
// the field was absent from the message (domain prices are always positive).
type Signal struct {
	Action     OrderSide  `json:"action,omitempty"` // empty when the message carried no action verb
	Symbol     string     `json:"symbol,omitempty"`
	Strike     string     `json:"strike,omitempty"`      // raw strike digits, empty for cash signals
	OptionType OptionType `json:"option_type,omitempty"` // CE/PE, empty for cash signals
	Expiry     string     `json:"expiry,omitempty"`      // normalized "25JAN" or bare month "FEB"
	Price      float64    `json:"price,omitempty"`       // entry reference level
	Condition  string     `json:"condition,omitempty"`   // above, below, around, near, at, @
	StopLoss   float64    `json:"stop_loss,omitempty"`
	Targets    []float64  `json:"targets,omitempty"` // extraction order, not necessarily price order
	Target     float64    `json:"target,omitempty"`  // final target: max for BUY, min for SELL
	Quantity   int        `json:"quantity,omitempty"` // explicit quantity when the message carried one
}

// IsOptions reports whether the signal references an option leg.
func (s *Signal) IsOptions() bool {
	return s.Strike != "" || s.OptionType != ""
}

// HasTarget reports whether any target was extracted.
func (s *Signal) HasTarget() bool {
	return s.Target > 0 || len(s.Targets) > 0
}

// Classification is the result of running a parser over a raw message.
type Classification struct {
	IsSignal   bool
	Confidence float64 // 0..1
	Score      int     // raw keyword score, kept for diagnostics
	Signal     *Signal // nil unless IsSignal
}
