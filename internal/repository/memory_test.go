package repository

import (
	"context"
	"testing"
	"time"

	"github.com/WilsonNous/NousCard/internal/models"

	"github.com/shopspring/decimal"
)

func seedDate(day int) time.Time {
	return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
}

func seedBacklog(repo *MemoryRepository) {
	late := seedDate(12)
	early := seedDate(10)
	repo.AddSale(&models.Sale{
		TenantID:     "tenant-1",
		SaleDate:     seedDate(11),
		ExpectedDate: &late,
		GrossAmount:  decimal.RequireFromString("210.00"),
		NetAmount:    decimal.RequireFromString("200.00"),
		Status:       models.SaleStatusPending,
	})
	repo.AddSale(&models.Sale{
		TenantID:     "tenant-1",
		SaleDate:     seedDate(9),
		ExpectedDate: &early,
		GrossAmount:  decimal.RequireFromString("110.00"),
		NetAmount:    decimal.RequireFromString("100.00"),
		Status:       models.SaleStatusPending,
	})
	repo.AddReceipt(&models.Receipt{
		TenantID:  "tenant-1",
		ValueDate: seedDate(12),
		Amount:    decimal.RequireFromString("200.00"),
	})
	repo.AddReceipt(&models.Receipt{
		TenantID:  "tenant-1",
		ValueDate: seedDate(10),
		Amount:    decimal.RequireFromString("100.00"),
	})
}

func TestMemoryLoadUnsettledOrdering(t *testing.T) {
	repo := NewMemoryRepository()
	seedBacklog(repo)

	tx, err := repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback()

	sales, receipts, err := tx.LoadUnsettled(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("LoadUnsettled failed: %v", err)
	}

	if len(sales) != 2 || len(receipts) != 2 {
		t.Fatalf("Expected 2 sales and 2 receipts, got %d/%d", len(sales), len(receipts))
	}
	if !sales[0].ExpectedDate.Before(*sales[1].ExpectedDate) {
		t.Error("Expected sales ordered by expected date")
	}
	if !receipts[0].ValueDate.Before(receipts[1].ValueDate) {
		t.Error("Expected receipts ordered by value date")
	}
}

func TestMemoryLoadUnsettledFilters(t *testing.T) {
	repo := NewMemoryRepository()
	expected := seedDate(10)
	repo.AddSale(&models.Sale{
		TenantID: "tenant-1", SaleDate: seedDate(9), ExpectedDate: &expected,
		GrossAmount: decimal.RequireFromString("110.00"),
		NetAmount:   decimal.RequireFromString("100.00"),
		Status:      models.SaleStatusSettled,
	})
	repo.AddSale(&models.Sale{
		TenantID: "tenant-1", SaleDate: seedDate(9), ExpectedDate: &expected,
		GrossAmount: decimal.RequireFromString("110.00"),
		NetAmount:   decimal.RequireFromString("100.00"),
		Status:      models.SaleStatusPending,
		Archived:    true,
	})
	repo.AddSale(&models.Sale{
		TenantID: "tenant-2", SaleDate: seedDate(9), ExpectedDate: &expected,
		GrossAmount: decimal.RequireFromString("110.00"),
		NetAmount:   decimal.RequireFromString("100.00"),
		Status:      models.SaleStatusPending,
	})
	repo.AddReceipt(&models.Receipt{
		TenantID: "tenant-1", ValueDate: seedDate(10),
		Amount: decimal.RequireFromString("100.00"), Settled: true,
	})

	tx, _ := repo.Begin(context.Background())
	defer tx.Rollback()

	sales, receipts, err := tx.LoadUnsettled(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("LoadUnsettled failed: %v", err)
	}
	if len(sales) != 0 {
		t.Errorf("Expected settled, archived and foreign-tenant sales filtered, got %d", len(sales))
	}
	if len(receipts) != 0 {
		t.Errorf("Expected settled receipts filtered, got %d", len(receipts))
	}
}

func TestMemoryStagingVisibility(t *testing.T) {
	repo := NewMemoryRepository()
	seedBacklog(repo)

	tx, _ := repo.Begin(context.Background())
	sales, _, _ := tx.LoadUnsettled(context.Background(), "tenant-1")

	sale := sales[0]
	sale.MatchedAmount = decimal.RequireFromString("100.00")
	if err := tx.SaveSale(context.Background(), sale); err != nil {
		t.Fatalf("SaveSale failed: %v", err)
	}
	saleID := int64(1)
	if err := tx.CreateMatch(context.Background(), &models.Match{
		TenantID: "tenant-1", SaleID: &saleID, ReceiptID: 3,
		SettledAmount: decimal.RequireFromString("100.00"),
		Kind:          models.MatchKindExact,
	}); err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	// Staged writes are invisible before commit.
	if len(repo.Matches()) != 0 {
		t.Error("Expected no matches visible before commit")
	}
	if !repo.Sale(sale.ID).MatchedAmount.Equal(decimal.Zero) {
		t.Error("Expected sale unchanged before commit")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if len(repo.Matches()) != 1 {
		t.Error("Expected the match visible after commit")
	}
	if !repo.Sale(sale.ID).MatchedAmount.Equal(decimal.RequireFromString("100.00")) {
		t.Error("Expected the sale update visible after commit")
	}
}

func TestMemoryRollbackDiscardsStagedWrites(t *testing.T) {
	repo := NewMemoryRepository()
	seedBacklog(repo)

	tx, _ := repo.Begin(context.Background())
	saleID := int64(1)
	tx.CreateMatch(context.Background(), &models.Match{
		TenantID: "tenant-1", SaleID: &saleID, ReceiptID: 3,
		SettledAmount: decimal.RequireFromString("100.00"),
		Kind:          models.MatchKindExact,
	})

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if len(repo.Matches()) != 0 {
		t.Error("Expected staged match discarded by rollback")
	}
}

func TestMemoryLoadMatchedPairs(t *testing.T) {
	repo := NewMemoryRepository()
	saleID := int64(7)
	repo.AddMatch(&models.Match{
		TenantID: "tenant-1", SaleID: &saleID, ReceiptID: 9,
		SettledAmount: decimal.RequireFromString("50.00"),
		Kind:          models.MatchKindManual,
	})
	repo.AddMatch(&models.Match{
		TenantID: "tenant-2", SaleID: &saleID, ReceiptID: 9,
		SettledAmount: decimal.RequireFromString("50.00"),
		Kind:          models.MatchKindManual,
	})

	tx, _ := repo.Begin(context.Background())
	defer tx.Rollback()

	pairs, err := tx.LoadMatchedPairs(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("LoadMatchedPairs failed: %v", err)
	}
	if len(pairs) != 1 || !pairs[PairKey{SaleID: 7, ReceiptID: 9}] {
		t.Errorf("Expected only tenant-1's pair, got %v", pairs)
	}
}
