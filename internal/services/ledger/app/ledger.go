// Package app assembles the ledger: the SQLite store, the command engine, the
// query service and the background consumers.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/louisbranch/folio/internal/platform/logging"
	"github.com/louisbranch/folio/internal/services/ledger/domain/catalog"
	"github.com/louisbranch/folio/internal/services/ledger/domain/engine"
	"github.com/louisbranch/folio/internal/services/ledger/domain/position"
	"github.com/louisbranch/folio/internal/services/ledger/projection"
	"github.com/louisbranch/folio/internal/services/ledger/query"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
	"github.com/louisbranch/folio/internal/services/ledger/storage/sqlite"
)

const defaultDBPath = "data/ledger.db"

// Ledger bundles the components that share one store.
type Ledger struct {
	Store  storage.Store
	Engine *engine.Service
	Query  *query.Service
}

// Open opens the SQLite store at path and wires the engine and query service
// to it. The caller closes the returned Ledger.
func Open(path string, logger zerolog.Logger) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultDBPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger storage dir: %w", err)
		}
	}
	registry, err := catalog.NewRegistry()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(path,
		sqlite.WithRegistry(registry),
		sqlite.WithLogger(logging.Component(logger, "storage")),
	)
	if err != nil {
		return nil, fmt.Errorf("open ledger sqlite store: %w", err)
	}
	return Wire(store, logger)
}

// Wire builds a Ledger over an already opened store.
func Wire(store storage.Store, logger zerolog.Logger) (*Ledger, error) {
	commands, err := engine.New(store, engine.WithLogger(logging.Component(logger, "engine")))
	if err != nil {
		return nil, err
	}
	queries, err := query.NewService(store,
		query.WithCache(position.NewCache(0)),
		query.WithProgress(store, projection.ConsumerName),
		query.WithLogger(logging.Component(logger, "query")),
	)
	if err != nil {
		return nil, err
	}
	return &Ledger{Store: store, Engine: commands, Query: queries}, nil
}

// Close closes the store.
func (l *Ledger) Close() error {
	if l == nil || l.Store == nil {
		return nil
	}
	return l.Store.Close()
}
