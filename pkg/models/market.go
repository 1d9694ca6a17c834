package models

import (
	"time"
)

// Tenor is the settlement term a leg trades at.
type Tenor string

const (
	// TenorNear settles immediately (contado inmediato).
	TenorNear Tenor = "CI"
	// TenorFar settles a configurable number of days later.
	TenorFar Tenor = "24hs"
)

// Tenors lists every tenor a traded instrument carries, near first.
var Tenors = []Tenor{TenorNear, TenorFar}

func (t Tenor) Valid() bool {
	return t == TenorNear || t == TenorFar
}

// SettlementDays is 0 for the near tenor and farDays for the far tenor.
func (t Tenor) SettlementDays(farDays int) int {
	if t == TenorNear {
		return 0
	}
	return farDays
}

// Snapshot is the top of book for one symbol. A zero price or size means the
// side was absent from the update.
type Snapshot struct {
	Symbol     string    `json:"symbol"`
	BidPrice   float64   `json:"bid_price"`
	BidSize    float64   `json:"bid_size"`
	OfferPrice float64   `json:"offer_price"`
	OfferSize  float64   `json:"offer_size"`
	LastPrice  float64   `json:"last_price"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Snapshot) HasBid() bool {
	return s != nil && s.BidPrice > 0
}

func (s *Snapshot) HasOffer() bool {
	return s != nil && s.OfferPrice > 0
}

func (s *Snapshot) HasLast() bool {
	return s != nil && s.LastPrice > 0
}

// Crossed reports a locked or crossed book, or a book missing either side.
func (s *Snapshot) Crossed() bool {
	return !s.HasBid() || !s.HasOffer() || s.BidPrice >= s.OfferPrice
}
