package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server"
	"github.com/dmitrijs2005/teamsync/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: 3,
	})

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
