package matcher

import (
	"sort"

	"github.com/WilsonNous/NousCard/internal/models"

	"github.com/shopspring/decimal"
)

// Allocation is one proposed pairing: a portion of a receipt's balance
// assigned to a sale. Strategies produce allocations; the settlement
// recorder turns them into persisted match rows.
type Allocation struct {
	Sale    *models.Sale
	Receipt *models.Receipt
	Amount  decimal.Decimal
	Kind    models.MatchKind
}

// Engine applies the ordered matching strategies against a candidate pool.
// Strategies are first-applicable-wins per sale and scan the pool in load
// order, so output is deterministic for a given backlog.
type Engine struct {
	config *Config
}

// NewEngine creates a matching engine with the given configuration.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Config returns the engine's tolerance configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// FindExact scans the receipt pool for a receipt whose outstanding balance
// exactly equals the sale's outstanding balance and whose value date falls
// within the settlement window. The first receipt in pool order wins; there
// is no secondary ranking.
func (e *Engine) FindExact(sale *models.Sale, pool *Pool) *Allocation {
	balance := sale.OutstandingBalance()
	for _, r := range pool.RemainingReceipts() {
		if !r.OutstandingBalance().Equal(balance) {
			continue
		}
		if !DatesWithinWindow(sale.ExpectedDate, r.ValueDate, e.config.ToleranceDays) {
			continue
		}
		return &Allocation{Sale: sale, Receipt: r, Amount: balance, Kind: models.MatchKindExact}
	}
	return nil
}

// FindTolerant relaxes the amount predicate to the configured epsilon. It
// only fires when FindExact found nothing, so exact candidates always win.
// The receipt's remaining balance is allocated in full; it may overshoot
// the sale's balance by at most epsilon.
func (e *Engine) FindTolerant(sale *models.Sale, pool *Pool) *Allocation {
	balance := sale.OutstandingBalance()
	for _, r := range pool.RemainingReceipts() {
		available := r.OutstandingBalance()
		if !AmountsCloseEnough(available, balance, e.config.Epsilon) {
			continue
		}
		if !DatesWithinWindow(sale.ExpectedDate, r.ValueDate, e.config.ToleranceDays) {
			continue
		}
		return &Allocation{Sale: sale, Receipt: r, Amount: available, Kind: models.MatchKindTolerant}
	}
	return nil
}

// FindPartial accepts the largest in-window receipt whose outstanding
// balance is strictly below the sale's, allocating the receipt's full
// remaining balance and leaving the sale partially settled.
func (e *Engine) FindPartial(sale *models.Sale, pool *Pool) *Allocation {
	balance := sale.OutstandingBalance()
	var best *models.Receipt
	var bestAmount decimal.Decimal

	for _, r := range pool.RemainingReceipts() {
		available := r.OutstandingBalance()
		if !available.IsPositive() || available.GreaterThanOrEqual(balance) {
			continue
		}
		if !DatesWithinWindow(sale.ExpectedDate, r.ValueDate, e.config.ToleranceDays) {
			continue
		}
		if best == nil || available.GreaterThan(bestAmount) {
			best = r
			bestAmount = available
		}
	}

	if best == nil {
		return nil
	}
	return &Allocation{Sale: sale, Receipt: best, Amount: bestAmount, Kind: models.MatchKindPartial}
}

// FindConsolidation covers one receipt with the combined balances of
// several still-open sales, largest outstanding balance first. This is a
// greedy bin-packing heuristic, not globally optimal; callers depend on the
// documented greedy order, so it must not be replaced by a solver.
//
// Accumulation stops once the running sum reaches the receipt balance
// within epsilon. A non-exact sum is still returned as a partial
// consolidation when it is the best the greedy pass achieved.
func (e *Engine) FindConsolidation(receipt *models.Receipt, pool *Pool) []Allocation {
	total := receipt.OutstandingBalance()
	if !total.IsPositive() {
		return nil
	}

	candidates := pool.RemainingSales()
	// Stable sort keeps load order on equal balances for deterministic ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].OutstandingBalance().GreaterThan(candidates[j].OutstandingBalance())
	})

	accumulated := decimal.Zero
	var allocations []Allocation

	for _, sale := range candidates {
		balance := sale.OutstandingBalance()
		if !balance.IsPositive() {
			continue
		}
		if accumulated.Add(balance).GreaterThan(total) {
			continue
		}
		accumulated = accumulated.Add(balance)
		allocations = append(allocations, Allocation{
			Sale:    sale,
			Receipt: receipt,
			Amount:  balance,
			Kind:    models.MatchKindConsolidated,
		})
		if AmountsCloseEnough(accumulated, total, e.config.Epsilon) {
			break
		}
	}

	return allocations
}
