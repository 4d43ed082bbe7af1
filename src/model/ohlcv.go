package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCVBase is the driver-independent candle shape used by the backfill
// command before it picks the destination table.
type OHLCVBase struct {
	ID       uint            `json:"id"`
	Datetime time.Time       `json:"datetime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	Symbol   string          `json:"symbol"`
}

func (o *OHLCVBase) ConvertToOHLCVCrypto1m() *OHLCVCrypto1m {
	return &OHLCVCrypto1m{
		ID:       o.ID,
		Datetime: o.Datetime.Truncate(time.Minute),
		Open:     o.Open,
		High:     o.High,
		Low:      o.Low,
		Close:    o.Close,
		Volume:   o.Volume,
		Symbol:   o.Symbol,
	}
}

func (o *OHLCVBase) ConvertToOHLCVCrypto1h() *OHLCVCrypto1h {
	return &OHLCVCrypto1h{
		ID:       o.ID,
		Datetime: o.Datetime.Truncate(time.Hour),
		Open:     o.Open,
		High:     o.High,
		Low:      o.Low,
		Close:    o.Close,
		Volume:   o.Volume,
		Symbol:   o.Symbol,
	}
}

// Candle history backing the dashboard charts. Filled by the ohlcv backfill
// command, read by the dashboard service.

type OHLCVCrypto1m struct {
	ID       uint            `gorm:"primaryKey"`
	Symbol   string          `json:"symbol"   gorm:"type:varchar(50);not null;uniqueIndex:ux_ohlcv_crypto_1m_symbol_datetime,priority:1"`
	Datetime time.Time       `json:"datetime" gorm:"not null;uniqueIndex:ux_ohlcv_crypto_1m_symbol_datetime,priority:2;index:idx_ohlcv_crypto_1m_datetime"`
	Open     decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High     decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low      decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close    decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
}

func (OHLCVCrypto1m) TableName() string {
	return "ohlcv_crypto_1m"
}

type OHLCVCrypto1h struct {
	ID       uint            `gorm:"primaryKey"`
	Symbol   string          `json:"symbol"   gorm:"type:varchar(50);not null;uniqueIndex:ux_ohlcv_crypto_1h_symbol_datetime,priority:1"`
	Datetime time.Time       `json:"datetime" gorm:"not null;uniqueIndex:ux_ohlcv_crypto_1h_symbol_datetime,priority:2;index:idx_ohlcv_crypto_1h_datetime"`
	Open     decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High     decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low      decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close    decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
}

func (OHLCVCrypto1h) TableName() string {
	return "ohlcv_crypto_1h"
}
