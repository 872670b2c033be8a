// main is the entry point of the mcstatus application.
// It parses the configuration, initializes the logger, and runs the selected command:
// a one-shot probe (ping, status, query, json), the HTTP probe API (serve) or a re-check of stored servers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcstatus/internal/config"
	"github.com/woozymasta/mcstatus/internal/logger"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var err error
	switch cfg.Command {
	case config.CommandServe:
		err = serve(ctx, cfg)
	case config.CommandRecheck:
		err = recheck(ctx, cfg)
	default:
		err = probe(ctx, cfg, os.Stdout)
	}
	stop()

	if err != nil {
		log.Error().Err(err).Str("command", cfg.Command).Msg("Command failed")
		os.Exit(1)
	}
}
