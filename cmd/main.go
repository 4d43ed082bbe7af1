package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"triggerengine/cmd/engine"
	"triggerengine/cmd/ohlcv"
	"triggerengine/cmd/seed"
	"triggerengine/src/database"
	"triggerengine/src/repository"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Trigger Engine CMD"
	app.Usage = "The paper-trading trigger engine command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		seedCMD,
		ohlcvCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the trigger engine",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the realtime trigger engine`,
	}
	seedCMD = cli.Command{
		Name:        "seed",
		Usage:       "seed a demo user and account",
		Action:      seedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Seed a demo user with a funded paper-trading account`,
	}
	ohlcvCMD = cli.Command{
		Name:        "ohlcv",
		Usage:       "backfill OHLCV candles",
		Action:      ohlcvAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill OHLCV candle history for the dashboard charts`,
	}
)

func engineAction(_ *cli.Context) error {

	logrus.Info("Starting engine CMD")
	logrus.WithField("cmd", "engine")

	eng := &engine.Engine{}
	err := eng.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func seedAction(_ *cli.Context) error {

	logrus.Info("Starting seed CMD")
	logrus.WithField("cmd", "seed")

	seeder := &seed.Seeder{}
	err := seeder.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// ohlcvAction backfills OHLCV candles for the configured symbol.
func ohlcvAction(_ *cli.Context) error {

	logrus.Info("Starting OHLCV backfill CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	backfill := &ohlcv.Backfill{
		Log:  logrus.WithField("cmd", "ohlcv"),
		Repo: repository.NewOHLCVRepository(),
	}

	err := backfill.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting OHLCV cmd")
		return err
	}

	return nil
}
