package ohlcv

import (
	"context"
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"triggerengine/src/model"
	"triggerengine/src/repository"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// Backfill pulls candle history from the exchange REST API into the candle
// tables the dashboard charts read from. Live prices come from the websocket
// feeds; this command only fills the historical gap.
type Backfill struct {
	Log      *logger.Entry
	Repo     *repository.OHLCVRepository
	Config   *Config
	exchange goex.API
}

func (b *Backfill) Start() error {
	b.Config = GetConfig()

	b.exchange = b.newBinanceInstance()

	ctx := context.Background()

	if b.Config.AutoMode {
		if err := b.determineStartPoint(ctx); err != nil {
			return err
		}
	}

	return b.aggregateAndSave(ctx)
}

func (*Backfill) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (b *Backfill) aggregateAndSave(ctx context.Context) error {
	series, err := b.fetchOHLCVSeries()
	if err != nil {
		return err
	}

	for i := range series {
		result := series[i]

		base := &model.OHLCVBase{
			Datetime: time.Unix(result.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(result.Open),
			High:     decimal.NewFromFloat(result.High),
			Low:      decimal.NewFromFloat(result.Low),
			Close:    decimal.NewFromFloat(result.Close),
			Volume:   decimal.NewFromFloat(result.Vol),
			Symbol:   result.Pair.String(),
		}

		var target interface{}
		switch b.Config.DurationStr {
		case Duration1m:
			target = base.ConvertToOHLCVCrypto1m()
		case Duration1h:
			target = base.ConvertToOHLCVCrypto1h()
		default:
			panic("invalid DURATION env var")
		}

		if err := b.Repo.Upsert(ctx, target); err != nil {
			b.Log.WithError(err).Error("aggregateAndSave, Upsert, ")
			return err
		}
	}

	b.Log.WithFields(logger.Fields{
		"Symbol":  b.Config.Symbol,
		"Candles": len(series),
	}).Info("OHLCV data inserted or updated in database")

	return nil
}

func (b *Backfill) determineStartPoint(ctx context.Context) error {
	b.Config.StartDt = b.Config.StartDt.Add(-b.parseDuration())
	b.Config.EndDt = time.Now()

	latest, err := b.Repo.LatestDatetime(ctx,
		b.Config.Symbol+"_"+b.Config.Quote, b.Config.DurationStr)
	if err != nil {
		b.Log.WithError(err).Error("Failed to query latest datetime")
		return err
	}

	if !latest.IsZero() {
		// Re-fetch the last stored candle too; the upsert rewrites it with
		// its final values.
		b.Config.StartDt = latest.Add(-b.parseDuration())
		b.Log.
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	} else {
		b.Log.
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Info("determineStartPoint no existing candles, starting from StartDt")
	}

	return nil
}

func (b *Backfill) fetchOHLCVSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(
		goex.Currency{Symbol: b.Config.Symbol},
		goex.Currency{Symbol: b.Config.Quote},
	)

	const millis = 1000
	klines, err := b.exchange.GetKlineRecords(
		targetSymbol,
		b.parseDurationToGoex(),
		b.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", b.Config.StartDt.Unix()*millis).
			Optional("endTime", b.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

func (b *Backfill) parseDuration() time.Duration {
	switch b.Config.DurationStr {
	case Duration1m:
		return time.Minute
	case Duration1h:
		return time.Hour
	default:
		panic("invalid DURATION env var")
	}
}

func (b *Backfill) parseDurationToGoex() goex.KlinePeriod {
	switch b.Config.DurationStr {
	case Duration1m:
		return goex.KLINE_PERIOD_1MIN
	case Duration1h:
		return goex.KLINE_PERIOD_1H
	default:
		panic("invalid DURATION env var")
	}
}
