// Command awap analyses AWAP gridded climate fields over the sub-regions
// of a region mask: area-weighted time series, windowed densities and
// their KL divergence matrices.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const version = "0.1.0"

func main() {
	// .env is optional; AWAP_ variables may also come from the shell.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logrus.New()
	if err := newRootCmd(log).ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("awap failed")
		stop()
		os.Exit(1)
	}
}
