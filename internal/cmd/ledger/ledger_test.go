package ledger

import (
	"flag"
	"io"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	t.Setenv("FOLIO_LEDGER_PORT", "9099")
	t.Setenv("FOLIO_LOG_LEVEL", "debug")

	cfg, err := ParseConfig(fs, []string{"-message-codec", "msgpack", "-batch-size", "16"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9099 {
		t.Fatalf("port = %d, want 9099", cfg.Port)
	}
	if cfg.MessageCodec != "msgpack" {
		t.Fatalf("message codec = %q, want msgpack", cfg.MessageCodec)
	}
	if cfg.BatchSize != 16 {
		t.Fatalf("batch size = %d, want 16", cfg.BatchSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(flag.NewFlagSet("ledger", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/ledger.db" || cfg.PollInterval != 2*time.Second || cfg.BatchSize != 64 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseConfig_RejectsMaxAttempts(t *testing.T) {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := ParseConfig(fs, []string{"-max-attempts", "3"}); err == nil {
		t.Fatal("expected -max-attempts to be rejected")
	}
}
