package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/formaai/ledger-api/internal/config"
	"github.com/formaai/ledger-api/internal/pkg/database"
	"github.com/formaai/ledger-api/internal/pkg/logger"
)

const usage = `usage: migrate up
       migrate down [steps]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	_ = logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	db, err := database.NewPostgres(context.Background(), database.PostgresConfig{
		URL:      cfg.DatabaseURL,
		Attempts: cfg.DBConnectAttempts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	switch os.Args[1] {
	case "up":
		err = database.MigrateUp(db)
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil || steps < 1 {
				log.Fatal().Str("steps", os.Args[2]).Msg("steps must be a positive integer")
			}
		}
		err = database.MigrateDown(db, steps)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Str("command", os.Args[1]).Msg("Migration finished")
}
