// Package repository defines the persistence boundary of the reconciliation
// engine. The engine reads the backlog and stages writes through a Tx; the
// single commit or rollback at the end of a run is the only transaction
// control the engine performs.
package repository

import (
	"context"

	"github.com/WilsonNous/NousCard/internal/models"
)

// PairKey identifies a sale/receipt pair for the duplicate-match guard.
type PairKey struct {
	SaleID    int64
	ReceiptID int64
}

// Tx is one run's transaction boundary. All reads and writes of a run go
// through a single Tx so the orchestrator can commit or discard the run
// atomically.
type Tx interface {
	// LoadUnsettled returns the tenant's not-yet-fully-settled sales and
	// receipts in stable order (expected/value date, then id). Archived
	// rows and data the upstream importer soft-deleted never appear.
	LoadUnsettled(ctx context.Context, tenantID string) ([]*models.Sale, []*models.Receipt, error)

	// LoadMatchedPairs returns the sale/receipt pairs that already have a
	// match row, so a re-run over a partially committed backlog skips them.
	LoadMatchedPairs(ctx context.Context, tenantID string) (map[PairKey]bool, error)

	// CreateMatch stages a new match row.
	CreateMatch(ctx context.Context, match *models.Match) error

	// SaveSale stages the updated running totals and status of a sale.
	SaveSale(ctx context.Context, sale *models.Sale) error

	// SaveReceipt stages the updated running totals and settled flag of a
	// receipt.
	SaveReceipt(ctx context.Context, receipt *models.Receipt) error

	// Commit makes every staged write visible atomically.
	Commit() error

	// Rollback discards every staged write. Safe to call after Commit.
	Rollback() error
}

// Repository opens per-run transactions.
type Repository interface {
	Begin(ctx context.Context) (Tx, error)
}
