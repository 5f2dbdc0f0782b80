// Package maintenance implements the operator CLI for the ledger: read-model
// rebuilds, consumer cursor inspection and recovery, stream verification and
// position reports.
package maintenance

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/louisbranch/folio/internal/platform/config"
	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/platform/logging"
	ledgerapp "github.com/louisbranch/folio/internal/services/ledger/app"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath     string        `env:"FOLIO_LEDGER_DB_PATH" envDefault:"data/ledger.db"`
	Timeout    time.Duration `env:"FOLIO_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	JSONOutput bool
	Logging    logging.Config
	// Args are the subcommand and its arguments.
	Args []string
}

// ParseConfig parses the environment and the global flags. Everything after
// the global flags is kept in Args.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the ledger sqlite database (default: FOLIO_LEDGER_DB_PATH or data/ledger.db)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level for diagnostics written to stderr")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Args = fs.Args()
	return cfg, nil
}

// Run opens the ledger at cfg.DBPath and executes the subcommand in cfg.Args.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	logger := logging.NewWithWriter(cfg.Logging, errOut)
	ledger, err := ledgerapp.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "Error: close ledger store: %v\n", closeErr)
		}
	}()
	return Execute(ctx, ledger, cfg, out, errOut)
}

// session is what every subcommand receives from the commander.
type session struct {
	ledger *ledgerapp.Ledger
	json   bool
	out    io.Writer
	errOut io.Writer
	logger zerolog.Logger
}

// Execute dispatches cfg.Args against an opened ledger.
func Execute(ctx context.Context, ledger *ledgerapp.Ledger, cfg Config, out io.Writer, errOut io.Writer) error {
	top := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	top.SetOutput(errOut)
	if err := top.Parse(cfg.Args); err != nil {
		return err
	}
	commander := subcommands.NewCommander(top, "maintenance")
	commander.Output = out
	commander.Error = errOut
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	for _, c := range commands() {
		commander.Register(c, "ledger")
	}

	sess := &session{
		ledger: ledger,
		json:   cfg.JSONOutput,
		out:    out,
		errOut: errOut,
		logger: logging.NewWithWriter(cfg.Logging, errOut),
	}
	switch status := commander.Execute(ctx, sess); status {
	case subcommands.ExitSuccess:
		return nil
	case subcommands.ExitUsageError:
		return fmt.Errorf("usage error in %v", cfg.Args)
	default:
		return fmt.Errorf("maintenance failed with status %d", status)
	}
}

func commands() []subcommands.Command {
	return []subcommands.Command{
		&rebuildCmd{},
		&cursorsCmd{},
		&resumeCmd{},
		&verifyCmd{},
		&positionsCmd{},
		&incomeCmd{},
	}
}

func sessionFrom(args []interface{}) *session {
	if len(args) == 0 {
		return nil
	}
	sess, _ := args[0].(*session)
	return sess
}

func (s *session) fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(s.errOut, "Error: "+format+"\n", args...)
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			if code := apperrors.CodeOf(err); code != apperrors.CodeUnknown {
				fmt.Fprintf(s.errOut, "Code: %s\n", code)
			}
		}
	}
	return subcommands.ExitFailure
}

func (s *session) writeJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return s.fail("encode json: %v", err)
	}
	return subcommands.ExitSuccess
}

func (s *session) table() *tabwriter.Writer {
	return tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
}
