// Package ledger parses ledger command flags and launches the ledger runtime.
package ledger

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog"

	entrypoint "github.com/louisbranch/folio/internal/platform/cmd"
	"github.com/louisbranch/folio/internal/platform/logging"
	ledgerapp "github.com/louisbranch/folio/internal/services/ledger/app"
)

// Config holds ledger command configuration.
type Config struct {
	Port         int           `env:"FOLIO_LEDGER_PORT" envDefault:"8095"`
	DBPath       string        `env:"FOLIO_LEDGER_DB_PATH" envDefault:"data/ledger.db"`
	PollInterval time.Duration `env:"FOLIO_LEDGER_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"FOLIO_LEDGER_BATCH_SIZE" envDefault:"64"`
	MessageCodec string        `env:"FOLIO_LEDGER_MESSAGE_CODEC" envDefault:"json"`
	Logging      logging.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The ledger health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The ledger SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Consumer poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Events read per stream per pass")
	fs.StringVar(&cfg.MessageCodec, "message-codec", cfg.MessageCodec, "Outbox message codec: json or msgpack")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Logging.Pretty, "log-pretty", cfg.Logging.Pretty, "Human-readable console logs")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the ledger runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedger, entrypoint.RunOptions{Logging: cfg.Logging}, func(ctx context.Context, logger zerolog.Logger) error {
		return ledgerapp.Run(ctx, ledgerapp.RuntimeConfig{
			Port:         cfg.Port,
			DBPath:       cfg.DBPath,
			PollInterval: cfg.PollInterval,
			BatchSize:    cfg.BatchSize,
			MessageCodec: cfg.MessageCodec,
			Logger:       logger,
		})
	})
}
