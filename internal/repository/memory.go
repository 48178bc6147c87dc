package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/WilsonNous/NousCard/internal/models"
)

// MemoryRepository is an in-memory Repository used by tests and by
// collaborators that stub persistence. Writes stage inside the transaction
// and only become visible on Commit, mirroring the production adapter's
// all-or-nothing behavior.
type MemoryRepository struct {
	mu       sync.Mutex
	sales    map[int64]*models.Sale
	receipts map[int64]*models.Receipt
	matches  []*models.Match
	nextID   int64

	// FailCommit forces Commit to return this error, for rollback tests.
	FailCommit error
}

// Compile-time check that MemoryRepository implements Repository
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sales:    make(map[int64]*models.Sale),
		receipts: make(map[int64]*models.Receipt),
		nextID:   1,
	}
}

// AddSale seeds a sale, assigning an id if unset.
func (r *MemoryRepository) AddSale(sale *models.Sale) *models.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sale.ID == 0 {
		sale.ID = r.nextID
		r.nextID++
	}
	r.sales[sale.ID] = sale
	return sale
}

// AddReceipt seeds a receipt, assigning an id if unset.
func (r *MemoryRepository) AddReceipt(receipt *models.Receipt) *models.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if receipt.ID == 0 {
		receipt.ID = r.nextID
		r.nextID++
	}
	r.receipts[receipt.ID] = receipt
	return receipt
}

// AddMatch seeds a committed match row, assigning an id if unset.
func (r *MemoryRepository) AddMatch(match *models.Match) *models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	if match.ID == 0 {
		match.ID = r.nextID
		r.nextID++
	}
	r.matches = append(r.matches, match)
	return match
}

// Matches returns the committed match rows.
func (r *MemoryRepository) Matches() []*models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, len(r.matches))
	copy(out, r.matches)
	return out
}

// Sale returns a committed sale by id, or nil.
func (r *MemoryRepository) Sale(id int64) *models.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sales[id]
}

// Receipt returns a committed receipt by id, or nil.
func (r *MemoryRepository) Receipt(id int64) *models.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receipts[id]
}

// Begin opens a staging transaction over the current state.
func (r *MemoryRepository) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{repo: r}, nil
}

type memoryTx struct {
	repo *MemoryRepository

	stagedMatches  []*models.Match
	stagedSales    []*models.Sale
	stagedReceipts []*models.Receipt
	done           bool
}

func (t *memoryTx) LoadUnsettled(ctx context.Context, tenantID string) ([]*models.Sale, []*models.Receipt, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	var sales []*models.Sale
	for _, s := range t.repo.sales {
		if s.TenantID != tenantID || s.Archived {
			continue
		}
		if s.Status != models.SaleStatusPending && s.Status != models.SaleStatusPartial {
			continue
		}
		// Work on copies so an uncommitted run never leaks mutations.
		copied := *s
		sales = append(sales, &copied)
	}
	sort.Slice(sales, func(i, j int) bool {
		di, dj := sales[i].ExpectedDate, sales[j].ExpectedDate
		if di != nil && dj != nil && !di.Equal(*dj) {
			return di.Before(*dj)
		}
		return sales[i].ID < sales[j].ID
	})

	var receipts []*models.Receipt
	for _, rec := range t.repo.receipts {
		if rec.TenantID != tenantID || rec.Archived || rec.Settled {
			continue
		}
		copied := *rec
		receipts = append(receipts, &copied)
	}
	sort.Slice(receipts, func(i, j int) bool {
		if !receipts[i].ValueDate.Equal(receipts[j].ValueDate) {
			return receipts[i].ValueDate.Before(receipts[j].ValueDate)
		}
		return receipts[i].ID < receipts[j].ID
	})

	return sales, receipts, nil
}

func (t *memoryTx) LoadMatchedPairs(ctx context.Context, tenantID string) (map[PairKey]bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	pairs := make(map[PairKey]bool)
	for _, m := range t.repo.matches {
		if m.TenantID != tenantID || m.SaleID == nil {
			continue
		}
		pairs[PairKey{SaleID: *m.SaleID, ReceiptID: m.ReceiptID}] = true
	}
	return pairs, nil
}

func (t *memoryTx) CreateMatch(ctx context.Context, match *models.Match) error {
	t.stagedMatches = append(t.stagedMatches, match)
	return nil
}

func (t *memoryTx) SaveSale(ctx context.Context, sale *models.Sale) error {
	t.stagedSales = append(t.stagedSales, sale)
	return nil
}

func (t *memoryTx) SaveReceipt(ctx context.Context, receipt *models.Receipt) error {
	t.stagedReceipts = append(t.stagedReceipts, receipt)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	if t.repo.FailCommit != nil {
		return t.repo.FailCommit
	}

	for _, m := range t.stagedMatches {
		if m.ID == 0 {
			m.ID = t.repo.nextID
			t.repo.nextID++
		}
		t.repo.matches = append(t.repo.matches, m)
	}
	for _, s := range t.stagedSales {
		copied := *s
		t.repo.sales[s.ID] = &copied
	}
	for _, r := range t.stagedReceipts {
		copied := *r
		t.repo.receipts[r.ID] = &copied
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	t.done = true
	t.stagedMatches = nil
	t.stagedSales = nil
	t.stagedReceipts = nil
	return nil
}
