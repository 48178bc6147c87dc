// Package reconciler drives the reconciliation run for one tenant: it
// loads the unsettled backlog, applies the matching strategies in order,
// records the resulting settlements and commits the whole run atomically.
package reconciler

import (
	"context"
	"fmt"

	"github.com/WilsonNous/NousCard/internal/matcher"
	"github.com/WilsonNous/NousCard/internal/models"
	"github.com/WilsonNous/NousCard/internal/repository"
	"github.com/WilsonNous/NousCard/pkg/logger"

	"github.com/shopspring/decimal"
)

// SettlementRecorder turns allocations into staged writes on the run's
// transaction: a match row plus updated running totals on both sides.
// It enforces the duplicate-pair guard, so re-running over a partially
// committed backlog never produces a second match row for the same
// sale/receipt pair.
type SettlementRecorder struct {
	tx       repository.Tx
	tenantID string
	epsilon  decimal.Decimal
	matched  map[repository.PairKey]bool
	log      logger.Logger

	skippedPairs int
}

// NewSettlementRecorder creates a recorder over the run's transaction.
// matched holds the pairs already persisted before this run started; the
// recorder extends it as it stages new matches.
func NewSettlementRecorder(tx repository.Tx, tenantID string, matched map[repository.PairKey]bool, epsilon decimal.Decimal, log logger.Logger) *SettlementRecorder {
	if matched == nil {
		matched = make(map[repository.PairKey]bool)
	}
	return &SettlementRecorder{
		tx:       tx,
		tenantID: tenantID,
		epsilon:  epsilon,
		matched:  matched,
		log:      log.WithComponent("recorder"),
	}
}

// SkippedPairs returns how many allocations were dropped by the
// duplicate-pair guard during this run.
func (r *SettlementRecorder) SkippedPairs() int {
	return r.skippedPairs
}

// Record stages one allocation. It returns false without error when the
// allocation is dropped: either the pair is already matched, or the
// balances moved since the strategy proposed it and nothing is left to
// allocate. A persistence error aborts the run.
func (r *SettlementRecorder) Record(ctx context.Context, alloc *matcher.Allocation) (bool, error) {
	key := repository.PairKey{SaleID: alloc.Sale.ID, ReceiptID: alloc.Receipt.ID}
	if r.matched[key] {
		r.skippedPairs++
		r.log.WithFields(logger.Fields{
			"sale_id":    alloc.Sale.ID,
			"receipt_id": alloc.Receipt.ID,
		}).Warn("Skipping already matched pair")
		return false, nil
	}

	expected := alloc.Sale.OutstandingBalance()
	amount := alloc.Amount

	// Re-check against the live balances: a strategy holds its allocation
	// only as long as neither side was touched in between.
	if available := alloc.Receipt.OutstandingBalance(); amount.GreaterThan(available) {
		amount = available
	}
	if !amount.IsPositive() {
		r.log.WithFields(logger.Fields{
			"sale_id":    alloc.Sale.ID,
			"receipt_id": alloc.Receipt.ID,
		}).Warn("Dropping allocation with no remaining balance")
		return false, nil
	}

	match := r.buildMatch(alloc, expected, amount)
	if err := r.tx.CreateMatch(ctx, match); err != nil {
		return false, err
	}

	r.applyToSale(alloc.Sale, alloc.Receipt, amount)
	if err := r.tx.SaveSale(ctx, alloc.Sale); err != nil {
		return false, err
	}

	alloc.Receipt.MatchedAmount = alloc.Receipt.MatchedAmount.Add(amount)
	alloc.Receipt.RecomputeSettled()
	if err := r.tx.SaveReceipt(ctx, alloc.Receipt); err != nil {
		return false, err
	}

	r.matched[key] = true

	r.log.WithFields(logger.Fields{
		"sale_id":    alloc.Sale.ID,
		"receipt_id": alloc.Receipt.ID,
		"amount":     amount.StringFixed(2),
		"kind":       alloc.Kind.String(),
		"outcome":    match.Outcome.String(),
	}).Debug("Settlement recorded")

	return true, nil
}

// buildMatch assembles the append-only match row for an allocation.
func (r *SettlementRecorder) buildMatch(alloc *matcher.Allocation, expected, amount decimal.Decimal) *models.Match {
	saleID := alloc.Sale.ID
	match := &models.Match{
		TenantID:       r.tenantID,
		SaleID:         &saleID,
		ReceiptID:      alloc.Receipt.ID,
		ExpectedAmount: expected,
		SettledAmount:  amount,
		Kind:           alloc.Kind,
		Reason:         matchReason(alloc.Kind),
	}

	if matcher.AmountsCloseEnough(amount, expected, r.epsilon) {
		match.Outcome = models.MatchOutcomeSettled
	} else {
		match.Outcome = models.MatchOutcomePending
		match.Reason = fmt.Sprintf("%s; %s of %s still open",
			match.Reason, expected.Sub(amount).StringFixed(2), expected.StringFixed(2))
	}

	return match
}

// applyToSale folds the allocated amount into the sale's running totals
// and receipt date range, then rederives its status.
func (r *SettlementRecorder) applyToSale(sale *models.Sale, receipt *models.Receipt, amount decimal.Decimal) {
	sale.MatchedAmount = sale.MatchedAmount.Add(amount)

	valueDate := receipt.ValueDate
	if sale.FirstReceipt == nil || valueDate.Before(*sale.FirstReceipt) {
		sale.FirstReceipt = &valueDate
	}
	if sale.LastReceipt == nil || valueDate.After(*sale.LastReceipt) {
		sale.LastReceipt = &valueDate
	}

	sale.RecomputeStatus(r.epsilon)
}

// matchReason returns the persisted explanation for a strategy's match.
func matchReason(kind models.MatchKind) string {
	switch kind {
	case models.MatchKindExact:
		return "amount and settlement date matched exactly"
	case models.MatchKindTolerant:
		return "amount matched within tolerance"
	case models.MatchKindPartial:
		return "receipt covers part of the outstanding balance"
	case models.MatchKindConsolidated:
		return "sale grouped into a consolidated deposit"
	default:
		return ""
	}
}
