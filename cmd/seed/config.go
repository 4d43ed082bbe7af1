package seed

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Username string  `envconfig:"SEED_USERNAME" default:"demo"`
	Password string  `envconfig:"SEED_PASSWORD" default:"demo1234"`
	Balance  float64 `envconfig:"SEED_BALANCE" default:"10000"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
