package matcher

import (
	"github.com/WilsonNous/NousCard/internal/models"
)

// Pool is the per-tenant, per-run working set of unmatched sales and
// receipts. It is the single point that prevents two strategies, or two
// passes of the same strategy, from allocating the same receipt or sale
// twice within one run.
//
// Iteration order is the load order, which the repository fixes, so that
// tie-breaks are deterministic across runs. The Pool does not enforce
// cross-run exclusivity; that is the recorder's job via persisted running
// totals, since a receipt may keep an unallocated remainder usable by a
// later run.
type Pool struct {
	sales    []*models.Sale
	receipts []*models.Receipt

	takenSales    map[int64]bool
	takenReceipts map[int64]bool
}

// NewPool builds a pool over the loaded backlog, preserving slice order.
func NewPool(sales []*models.Sale, receipts []*models.Receipt) *Pool {
	return &Pool{
		sales:         sales,
		receipts:      receipts,
		takenSales:    make(map[int64]bool),
		takenReceipts: make(map[int64]bool),
	}
}

// TakeReceipt removes a receipt from the pool and returns it. Taking an
// already-taken or unknown receipt is an idempotent no-op returning nil,
// which guards against a strategy double-claiming one receipt.
func (p *Pool) TakeReceipt(receiptID int64) *models.Receipt {
	if p.takenReceipts[receiptID] {
		return nil
	}
	for _, r := range p.receipts {
		if r.ID == receiptID {
			p.takenReceipts[receiptID] = true
			return r
		}
	}
	return nil
}

// TakeSale removes a sale from the pool with the same idempotent semantics
// as TakeReceipt.
func (p *Pool) TakeSale(saleID int64) *models.Sale {
	if p.takenSales[saleID] {
		return nil
	}
	for _, s := range p.sales {
		if s.ID == saleID {
			p.takenSales[saleID] = true
			return s
		}
	}
	return nil
}

// RemainingReceipts returns a snapshot of not-yet-taken receipts in load
// order, for stable iteration.
func (p *Pool) RemainingReceipts() []*models.Receipt {
	var out []*models.Receipt
	for _, r := range p.receipts {
		if !p.takenReceipts[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// RemainingSales returns a snapshot of not-yet-taken sales in load order.
func (p *Pool) RemainingSales() []*models.Sale {
	var out []*models.Sale
	for _, s := range p.sales {
		if !p.takenSales[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// IsEmpty reports whether either side of the pool has been exhausted.
// Matching cannot progress without both sales and receipts.
func (p *Pool) IsEmpty() bool {
	return len(p.RemainingSales()) == 0 || len(p.RemainingReceipts()) == 0
}
