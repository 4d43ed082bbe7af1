package engine

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"triggerengine/src/connectors"
	"triggerengine/src/database"
	"triggerengine/src/evaluator"
	"triggerengine/src/reconciler"
	"triggerengine/src/server"
)

// Engine is the long-running trigger engine process: two market feeds, the
// evaluator pool, the subscription reconciler and the health endpoint.
type Engine struct{}

func (t *Engine) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to read-only database")
		return err
	}

	events := make(chan connectors.PriceUpdate, config.EventBuffer)

	feedConfig := connectors.GetConfig()
	spot := connectors.NewSpotFeed(feedConfig, events)
	futures := connectors.NewFuturesFeed(feedConfig, events)
	spot.Start(ctx)
	futures.Start(ctx)

	rec := reconciler.NewReconciler(reconciler.GetConfig(), spot, futures)
	go rec.Run(ctx)

	eval := evaluator.NewEvaluator()
	evalDone := make(chan struct{})
	go func() {
		defer close(evalDone)
		eval.Run(ctx, events, config.Workers)
	}()

	logrus.WithField("workers", config.Workers).Info("trigger engine running")

	// Blocks until ctx is cancelled by a signal.
	server.StartServer(ctx, server.GetConfig().Port, spot, futures)

	spot.Wait()
	futures.Wait()

	// Executions already handed to the pool run on a detached context; wait
	// for the workers so their transactions complete before exit.
	<-evalDone

	logrus.Info("trigger engine stopped")

	return nil
}
