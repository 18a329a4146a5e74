package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PostgresConfig holds pool and connect-retry settings.
type PostgresConfig struct {
	URL           string
	MaxOpenConns  int
	MaxIdleConns  int
	Attempts      int
	RetryInterval time.Duration
}

// NewPostgres connects to PostgreSQL, retrying while the server comes up.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*sqlx.DB, error) {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		db, err := connect(ctx, cfg)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("Connected to PostgreSQL")
			return db, nil
		}
		lastErr = err

		if attempt == cfg.Attempts {
			break
		}
		log.Warn().Err(err).
			Str("attempt", fmt.Sprintf("#%d / %d", attempt, cfg.Attempts)).
			Msgf("PostgreSQL not reachable, retrying in %.f seconds", cfg.RetryInterval.Seconds())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", cfg.Attempts, lastErr)
}

func connect(ctx context.Context, cfg PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ClosePostgres closes the database connection
func ClosePostgres(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		return
	}
	log.Info().Msg("PostgreSQL connection closed")
}
