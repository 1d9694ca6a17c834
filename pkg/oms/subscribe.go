package oms

// MaxProductsPerMessage caps the products carried by one subscription.
const MaxProductsPerMessage = 1000

// DefaultEntries are the book entries the scanner needs.
var DefaultEntries = []string{EntryBid, EntryOffer, EntryLast}

type Product struct {
	Symbol   string `json:"symbol"`
	MarketID string `json:"marketId"`
}

// Subscription is a market data subscription request ("smd").
type Subscription struct {
	Type     string    `json:"type"`
	Level    int       `json:"level"`
	Entries  []string  `json:"entries"`
	Products []Product `json:"products"`
}

// BuildSubscriptions splits symbols into level-1 subscriptions of at most
// maxPerMessage products each. A non-positive maxPerMessage uses
// MaxProductsPerMessage; nil entries use DefaultEntries.
func BuildSubscriptions(symbols []string, marketID string, entries []string, maxPerMessage int) []Subscription {
	if maxPerMessage <= 0 || maxPerMessage > MaxProductsPerMessage {
		maxPerMessage = MaxProductsPerMessage
	}
	if entries == nil {
		entries = DefaultEntries
	}

	var subs []Subscription
	for start := 0; start < len(symbols); start += maxPerMessage {
		end := min(start+maxPerMessage, len(symbols))
		products := make([]Product, 0, end-start)
		for _, s := range symbols[start:end] {
			products = append(products, Product{Symbol: s, MarketID: marketID})
		}
		subs = append(subs, Subscription{
			Type:     "smd",
			Level:    1,
			Entries:  entries,
			Products: products,
		})
	}
	return subs
}
