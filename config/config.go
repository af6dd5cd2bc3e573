package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, parsed from the environment.
type Config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	StartingLifePoints int           `env:"STARTING_LIFE_POINTS" envDefault:"8000"`
	DuelTTL            time.Duration `env:"DUEL_TTL" envDefault:"168h"`

	// BroadcastMode picks the recipient resolution strategy:
	// "participants" targets the two ids on each record, "all" is the
	// legacy mode that fans every change out to every connection.
	BroadcastMode string `env:"BROADCAST_MODE" envDefault:"participants"`

	MediaRoot    string `env:"MEDIA_ROOT" envDefault:"media-data"`
	MediaBaseURL string `env:"MEDIA_BASE_URL" envDefault:"/media"`

	FeedConsumer     string        `env:"FEED_CONSUMER" envDefault:"broadcaster"`
	FeedPollInterval time.Duration `env:"FEED_POLL_INTERVAL" envDefault:"5s"`
}

// Load reads .env if present, then parses the environment.
func Load() (Config, error) {
	// Missing .env is fine outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BroadcastMode != "participants" && cfg.BroadcastMode != "all" {
		return Config{}, fmt.Errorf("invalid BROADCAST_MODE %q", cfg.BroadcastMode)
	}
	return cfg, nil
}
