package oms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gregtusar/termarb/pkg/models"
)

// Market data entry codes.
const (
	EntryBid   = "BI"
	EntryOffer = "OF"
	EntryLast  = "LA"
)

// number accepts a JSON number, a numeric string or null.
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		n.value, n.set = v, true
		return nil
	}
	if err := json.Unmarshal(b, &n.value); err != nil {
		return err
	}
	n.set = true
	return nil
}

type entry struct {
	Type  string `json:"type"`
	Price number `json:"price"`
	Size  number `json:"size"`
}

type listItem struct {
	Symbol    string  `json:"symbol"`
	Entries   []entry `json:"entries"`
	Bid       number  `json:"bid"`
	BidSize   number  `json:"bidSize"`
	Offer     number  `json:"offer"`
	OfferSize number  `json:"offerSize"`
	Last      number  `json:"last"`
}

type mdMessage struct {
	Type         string `json:"type"`
	InstrumentID struct {
		MarketID string `json:"marketId"`
		Symbol   string `json:"symbol"`
	} `json:"instrumentId"`
	MarketData map[string]json.RawMessage `json:"marketData"`
}

type book struct {
	bid, bidSize, offer, offerSize, last number
}

func (b book) snapshot(symbol string, now time.Time) (models.Snapshot, bool) {
	if !b.bid.set && !b.offer.set && !b.last.set {
		return models.Snapshot{}, false
	}
	return models.Snapshot{
		Symbol:     symbol,
		BidPrice:   b.bid.value,
		BidSize:    b.bidSize.value,
		OfferPrice: b.offer.value,
		OfferSize:  b.offerSize.value,
		LastPrice:  b.last.value,
		Timestamp:  now,
	}, true
}

// ParseMarketData extracts top-of-book snapshots from a market data message.
// It accepts the venue's Md push ({"type":"Md","instrumentId":...,
// "marketData":{"BI":[...],"OF":[...],"LA":{...}}}) as well as list payloads
// under "marketData" or "data", or a bare array, whose items carry either an
// "entries" array or flat bid/bidSize/offer/offerSize/last fields. Items
// without a symbol or without any price are skipped. Only malformed JSON is
// an error.
func ParseMarketData(raw []byte, now time.Time) ([]models.Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		return parseList(raw, now)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode market data: %w", err)
	}

	if md, ok := envelope["marketData"]; ok {
		md = bytes.TrimSpace(md)
		switch {
		case len(md) > 0 && md[0] == '[':
			return parseList(md, now)
		case len(md) > 0 && md[0] == '{':
			return parseMd(raw, now)
		}
	}
	if data, ok := envelope["data"]; ok {
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '[' {
			return parseList(data, now)
		}
	}
	return nil, nil
}

func parseList(raw []byte, now time.Time) ([]models.Snapshot, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode market data list: %w", err)
	}

	var out []models.Snapshot
	for _, rawItem := range items {
		var item listItem
		if err := json.Unmarshal(rawItem, &item); err != nil {
			continue
		}
		if item.Symbol == "" {
			continue
		}

		var b book
		if len(item.Entries) > 0 {
			for _, e := range item.Entries {
				if !e.Price.set {
					continue
				}
				switch e.Type {
				case EntryBid:
					b.bid, b.bidSize = e.Price, e.Size
				case EntryOffer:
					b.offer, b.offerSize = e.Price, e.Size
				case EntryLast:
					b.last = e.Price
				}
			}
		} else {
			b = book{item.Bid, item.BidSize, item.Offer, item.OfferSize, item.Last}
		}

		if snap, ok := b.snapshot(item.Symbol, now); ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func parseMd(raw []byte, now time.Time) ([]models.Snapshot, error) {
	var msg mdMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode Md message: %w", err)
	}
	if msg.InstrumentID.Symbol == "" {
		return nil, nil
	}

	var b book
	if e, ok := topEntry(msg.MarketData[EntryBid]); ok {
		b.bid, b.bidSize = e.Price, e.Size
	}
	if e, ok := topEntry(msg.MarketData[EntryOffer]); ok {
		b.offer, b.offerSize = e.Price, e.Size
	}
	if e, ok := topEntry(msg.MarketData[EntryLast]); ok {
		b.last = e.Price
	}

	snap, ok := b.snapshot(msg.InstrumentID.Symbol, now)
	if !ok {
		return nil, nil
	}
	return []models.Snapshot{snap}, nil
}

// topEntry reads the best level from either an array of levels or a single
// level object.
func topEntry(raw json.RawMessage) (entry, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return entry{}, false
	}
	switch raw[0] {
	case '[':
		var levels []entry
		if err := json.Unmarshal(raw, &levels); err != nil || len(levels) == 0 {
			return entry{}, false
		}
		return levels[0], levels[0].Price.set
	case '{':
		var level entry
		if err := json.Unmarshal(raw, &level); err != nil {
			return entry{}, false
		}
		return level, level.Price.set
	}
	return entry{}, false
}
