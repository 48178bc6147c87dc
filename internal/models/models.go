// Package models defines the normalized reconciliation entities: acquirer
// sales, bank receipts and the match records that link them.
//
// All monetary values use decimal.Decimal; binary floating-point comparison
// is forbidden because acquirer fee computations accumulate rounding error
// upstream.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus tracks how much of a sale's net amount has been covered by
// receipts.
type SaleStatus string

const (
	// SaleStatusPending means no receipt has been allocated to the sale yet.
	SaleStatusPending SaleStatus = "pending"
	// SaleStatusPartial means the sale is covered for more than zero but
	// less than its net amount.
	SaleStatusPartial SaleStatus = "partial"
	// SaleStatusSettled means the matched amount covers the net amount
	// within tolerance.
	SaleStatusSettled SaleStatus = "settled"
	// SaleStatusUnrecovered is applied by an external aging policy, never
	// by the matching engine itself.
	SaleStatusUnrecovered SaleStatus = "unrecovered"
)

// String returns the string representation of SaleStatus
func (s SaleStatus) String() string {
	return string(s)
}

// IsValid checks if the sale status is valid
func (s SaleStatus) IsValid() bool {
	switch s {
	case SaleStatusPending, SaleStatusPartial, SaleStatusSettled, SaleStatusUnrecovered:
		return true
	}
	return false
}

// MatchKind identifies which strategy produced a match record.
type MatchKind string

const (
	// MatchKindExact is a single-receipt match with equal outstanding balances.
	MatchKindExact MatchKind = "exact"
	// MatchKindTolerant is a single-receipt match within the amount epsilon.
	MatchKindTolerant MatchKind = "tolerant"
	// MatchKindPartial is a single receipt fully allocated to a sale it does
	// not fully cover.
	MatchKindPartial MatchKind = "partial"
	// MatchKindConsolidated links one receipt to one of several sales that
	// jointly cover it.
	MatchKindConsolidated MatchKind = "consolidated"
	// MatchKindManual marks matches created by a user, outside this engine.
	MatchKindManual MatchKind = "manual"
)

// String returns the string representation of MatchKind
func (k MatchKind) String() string {
	return string(k)
}

// IsValid checks if the match kind is valid
func (k MatchKind) IsValid() bool {
	switch k {
	case MatchKindExact, MatchKindTolerant, MatchKindPartial, MatchKindConsolidated, MatchKindManual:
		return true
	}
	return false
}

// MatchOutcome is the settlement outcome recorded on a match row.
type MatchOutcome string

const (
	MatchOutcomeSettled   MatchOutcome = "settled"
	MatchOutcomePending   MatchOutcome = "pending"
	MatchOutcomeDivergent MatchOutcome = "divergent"
)

// String returns the string representation of MatchOutcome
func (o MatchOutcome) String() string {
	return string(o)
}

// Sale represents one acquirer settlement line: a card/PIX transaction
// awaiting bank payout. Created by the upstream importer and mutated only by
// the settlement recorder; never deleted, only archived.
type Sale struct {
	ID       int64  `gorm:"primary_key" json:"id"`
	TenantID string `gorm:"index;not null" json:"tenant_id"`

	AcquirerRef   string     `gorm:"size:50;index" json:"acquirer_ref"`
	SaleDate      time.Time  `gorm:"not null;index" json:"sale_date"`
	ExpectedDate  *time.Time `gorm:"index" json:"expected_date"`
	GrossAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"gross_amount"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"net_amount"`
	MatchedAmount decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"matched_amount"`

	Status       SaleStatus `gorm:"size:20;default:'pending';index" json:"status"`
	FirstReceipt *time.Time `json:"first_receipt"`
	LastReceipt  *time.Time `json:"last_receipt"`

	Archived  bool      `gorm:"default:false" json:"archived"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OutstandingBalance returns the portion of the net amount not yet covered
// by receipts. Never negative.
func (s *Sale) OutstandingBalance() decimal.Decimal {
	b := s.NetAmount.Sub(s.MatchedAmount)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// RecomputeStatus derives the sale status from the running matched amount.
// epsilon absorbs the same rounding slack used by the matching predicates.
// A sale with zero matched amount keeps its current status: reclassifying
// pending sales as unrecovered is an external aging policy, not the engine's.
func (s *Sale) RecomputeStatus(epsilon decimal.Decimal) {
	switch {
	case s.MatchedAmount.GreaterThanOrEqual(s.NetAmount.Sub(epsilon)):
		s.Status = SaleStatusSettled
	case s.MatchedAmount.IsPositive():
		s.Status = SaleStatusPartial
	}
}

// Validate performs basic validation on the Sale
func (s *Sale) Validate() error {
	if strings.TrimSpace(s.TenantID) == "" {
		return fmt.Errorf("sale tenant id cannot be empty")
	}
	if s.SaleDate.IsZero() {
		return fmt.Errorf("sale date cannot be zero")
	}
	if !s.NetAmount.IsPositive() {
		return fmt.Errorf("sale net amount must be positive, got %s", s.NetAmount)
	}
	if s.NetAmount.GreaterThan(s.GrossAmount) {
		return fmt.Errorf("sale net amount %s exceeds gross amount %s", s.NetAmount, s.GrossAmount)
	}
	if s.MatchedAmount.IsNegative() {
		return fmt.Errorf("sale matched amount cannot be negative")
	}
	return nil
}

// String returns a string representation of the Sale
func (s *Sale) String() string {
	return fmt.Sprintf("Sale{ID: %d, Ref: %s, Net: %s, Matched: %s, Status: %s}",
		s.ID, s.AcquirerRef, s.NetAmount.String(), s.MatchedAmount.String(), s.Status)
}

// Receipt represents one bank statement line: money actually deposited.
// The acquirer origin tag is produced upstream from the free-text
// description; the engine never inspects the description itself.
type Receipt struct {
	ID       int64  `gorm:"primary_key" json:"id"`
	TenantID string `gorm:"index;not null" json:"tenant_id"`

	ValueDate     time.Time       `gorm:"not null;index" json:"value_date"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	MatchedAmount decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"matched_amount"`
	Settled       bool            `gorm:"default:false;index" json:"settled"`

	Description string `gorm:"size:255" json:"description"`
	OriginTag   string `gorm:"size:50;index" json:"origin_tag"`

	Archived  bool      `gorm:"default:false" json:"archived"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OutstandingBalance returns the deposited amount not yet allocated to any
// sale. Never negative.
func (r *Receipt) OutstandingBalance() decimal.Decimal {
	b := r.Amount.Sub(r.MatchedAmount)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// RecomputeSettled updates the settled flag from the running matched amount.
func (r *Receipt) RecomputeSettled() {
	r.Settled = r.MatchedAmount.GreaterThanOrEqual(r.Amount)
}

// Validate performs basic validation on the Receipt
func (r *Receipt) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("receipt tenant id cannot be empty")
	}
	if r.ValueDate.IsZero() {
		return fmt.Errorf("receipt value date cannot be zero")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("receipt amount must be positive, got %s", r.Amount)
	}
	if r.MatchedAmount.IsNegative() {
		return fmt.Errorf("receipt matched amount cannot be negative")
	}
	return nil
}

// String returns a string representation of the Receipt
func (r *Receipt) String() string {
	return fmt.Sprintf("Receipt{ID: %d, Date: %s, Amount: %s, Matched: %s}",
		r.ID, r.ValueDate.Format("2006-01-02"), r.Amount.String(), r.MatchedAmount.String())
}

// Match is the persisted join record linking a sale to a receipt with the
// amount allocated between them. Match rows are append-only: a correction is
// a new row plus a reversal, never an edit. The only permitted mutation is
// the recompute-outcome pass.
type Match struct {
	ID       int64  `gorm:"primary_key" json:"id"`
	TenantID string `gorm:"index;not null" json:"tenant_id"`

	// SaleID is nullable for manual-only flows but always set by the engine.
	SaleID    *int64 `gorm:"index" json:"sale_id"`
	ReceiptID int64  `gorm:"index;not null" json:"receipt_id"`

	ExpectedAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"expected_amount"`
	SettledAmount  decimal.Decimal `gorm:"type:decimal(15,2)" json:"settled_amount"`

	Kind    MatchKind    `gorm:"size:20;index" json:"kind"`
	Outcome MatchOutcome `gorm:"size:20;index" json:"outcome"`
	Reason  string       `gorm:"size:255" json:"reason"`

	// UserID is set for manual matches only.
	UserID    *string   `gorm:"size:50" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Difference returns expected minus settled amount for this match row.
func (m *Match) Difference() decimal.Decimal {
	return m.ExpectedAmount.Sub(m.SettledAmount)
}

// RecomputeOutcome reclassifies the match outcome from the amount difference.
// This is the only mutation permitted on an existing match row.
func (m *Match) RecomputeOutcome(epsilon decimal.Decimal) {
	diff := m.Difference().Abs()
	if diff.LessThanOrEqual(epsilon) {
		m.Outcome = MatchOutcomeSettled
		return
	}
	m.Outcome = MatchOutcomeDivergent
	m.Reason = fmt.Sprintf("amount difference of %s", diff.StringFixed(2))
}

// Validate performs basic validation on the Match
func (m *Match) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("match tenant id cannot be empty")
	}
	if m.SaleID == nil && m.ReceiptID == 0 {
		return fmt.Errorf("match must reference at least one side")
	}
	if m.SettledAmount.IsNegative() {
		return fmt.Errorf("match settled amount cannot be negative")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid match kind: %s", m.Kind)
	}
	return nil
}

// String returns a string representation of the Match
func (m *Match) String() string {
	saleID := int64(0)
	if m.SaleID != nil {
		saleID = *m.SaleID
	}
	return fmt.Sprintf("Match{Sale: %d, Receipt: %d, Settled: %s, Kind: %s, Outcome: %s}",
		saleID, m.ReceiptID, m.SettledAmount.String(), m.Kind, m.Outcome)
}

// RunStatistics summarizes one reconciliation run. It is returned to the
// caller and discarded; it is never persisted as an entity.
type RunStatistics struct {
	SettledCount      int `json:"settled_count"`
	TolerantCount     int `json:"tolerant_count"`
	PartialCount      int `json:"partial_count"`
	ConsolidatedCount int `json:"consolidated_count"`

	StillPendingSaleCount int `json:"still_pending_sale_count"`
	StillOpenReceiptCount int `json:"still_open_receipt_count"`

	SkippedSaleCount    int      `json:"skipped_sale_count"`
	SkippedReceiptCount int      `json:"skipped_receipt_count"`
	Notes               []string `json:"notes,omitempty"`

	PartialTimeout bool          `json:"partial_timeout"`
	Duration       time.Duration `json:"duration"`
}

// MatchedSaleCount returns the number of sales the run allocated at least
// one receipt to, across all single-receipt strategies.
func (rs *RunStatistics) MatchedSaleCount() int {
	return rs.SettledCount + rs.TolerantCount + rs.PartialCount
}

// CountsByKind returns per-kind match counts in audit fact form.
func (rs *RunStatistics) CountsByKind() map[string]int {
	return map[string]int{
		MatchKindExact.String():        rs.SettledCount,
		MatchKindTolerant.String():     rs.TolerantCount,
		MatchKindPartial.String():      rs.PartialCount,
		MatchKindConsolidated.String(): rs.ConsolidatedCount,
	}
}

// AddNote appends a per-item processing note (e.g. a skipped anomaly).
func (rs *RunStatistics) AddNote(format string, args ...interface{}) {
	rs.Notes = append(rs.Notes, fmt.Sprintf(format, args...))
}
