package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SpotTokenURL    string `envconfig:"SPOT_TOKEN_URL" default:"https://api.kucoin.com/api/v1/bullet-public"`
	FuturesTokenURL string `envconfig:"FUTURES_TOKEN_URL" default:"https://api-futures.kucoin.com/api/v1/bullet-public"`

	// Reconnect backoff window. Starts at min, doubles per failed attempt,
	// caps at max, resets after a successful open.
	ReconnectMin time.Duration `envconfig:"FEED_RECONNECT_MIN" default:"1s"`
	ReconnectMax time.Duration `envconfig:"FEED_RECONNECT_MAX" default:"30s"`

	HandshakeTimeout time.Duration `envconfig:"FEED_HANDSHAKE_TIMEOUT" default:"15s"`
	TokenTimeout     time.Duration `envconfig:"FEED_TOKEN_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
