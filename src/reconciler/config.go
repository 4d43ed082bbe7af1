package reconciler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Interval     time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30s"`
	InitialDelay time.Duration `envconfig:"RECONCILE_INITIAL_DELAY" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
