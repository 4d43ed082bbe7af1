package engine

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Workers is the size of the evaluator pool draining price events.
	Workers int `envconfig:"EVALUATOR_WORKERS" default:"4"`
	// EventBuffer bounds the feed-to-evaluator channel. A full buffer applies
	// backpressure to the feed read loops.
	EventBuffer int `envconfig:"EVENT_BUFFER" default:"256"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
