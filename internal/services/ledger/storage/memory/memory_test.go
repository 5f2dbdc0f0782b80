package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/folio/internal/services/ledger/domain/catalog"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
	"github.com/louisbranch/folio/internal/services/ledger/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New(WithRegistry(catalog.MustRegistry()))
	})
}

func TestAppendRejectsUnregisteredType(t *testing.T) {
	store := New(WithRegistry(catalog.MustRegistry()))
	events := storagetest.PortfolioEvents(t, "p1", 1)
	events[0].Type = "portfolio.exploded"

	_, err := store.Append(context.Background(), portfolio.StreamID("p1"), 0, events)
	if !errors.Is(err, event.ErrTypeUnknown) {
		t.Fatalf("append error = %v, want %v", err, event.ErrTypeUnknown)
	}
}

func TestLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Append(ctx, portfolio.StreamID("p1"), 0, storagetest.PortfolioEvents(t, "p1", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	first, _, _ := store.Load(ctx, portfolio.StreamID("p1"))
	first[0].PayloadJSON[0] = 'x'

	second, _, _ := store.Load(ctx, portfolio.StreamID("p1"))
	if second[0].PayloadJSON[0] != '{' {
		t.Fatalf("stored payload was mutated: %q", second[0].PayloadJSON)
	}
}

func TestAppendHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := New()
	if _, err := store.Append(ctx, portfolio.StreamID("p1"), 0, storagetest.PortfolioEvents(t, "p1", 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("append error = %v, want context.Canceled", err)
	}
}
