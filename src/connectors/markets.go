package connectors

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies one price-feed gateway.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

// PriceUpdate is the normalized event a feed connection emits for every
// recognized snapshot frame.
type PriceUpdate struct {
	Market Market
	Symbol string
	Price  float64
	Time   time.Time
}

const (
	spotTopicPrefix    = "/market/snapshot:"
	futuresTopicPrefix = "/contractMarket/snapshot:"
)

// Spot snapshots nest the payload one level deeper than futures and quote the
// last traded price. decimal handles both quoted and bare JSON numbers.
type spotSnapshot struct {
	Data struct {
		LastTradedPrice decimal.Decimal `json:"lastTradedPrice"`
		Datetime        int64           `json:"datetime"`
	} `json:"data"`
}

type futuresSnapshot struct {
	MarkPrice decimal.Decimal `json:"markPrice"`
	Timestamp int64           `json:"timestamp"`
}

func parseSpotSnapshot(symbol string, data json.RawMessage) (PriceUpdate, bool) {
	var snap spotSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return PriceUpdate{}, false
	}

	price := snap.Data.LastTradedPrice.InexactFloat64()
	if price <= 0 {
		return PriceUpdate{}, false
	}

	ts := time.Now().UTC()
	if snap.Data.Datetime > 0 {
		ts = time.UnixMilli(snap.Data.Datetime).UTC()
	}

	return PriceUpdate{Market: MarketSpot, Symbol: symbol, Price: price, Time: ts}, true
}

func parseFuturesSnapshot(symbol string, data json.RawMessage) (PriceUpdate, bool) {
	var snap futuresSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return PriceUpdate{}, false
	}

	price := snap.MarkPrice.InexactFloat64()
	if price <= 0 {
		return PriceUpdate{}, false
	}

	ts := time.Now().UTC()
	if snap.Timestamp > 0 {
		ts = time.UnixMilli(snap.Timestamp).UTC()
	}

	return PriceUpdate{Market: MarketFutures, Symbol: symbol, Price: price, Time: ts}, true
}
