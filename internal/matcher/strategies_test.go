package matcher

import (
	"testing"
	"time"

	"github.com/WilsonNous/NousCard/internal/models"

	"github.com/shopspring/decimal"
)

func testDate(day int) time.Time {
	return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
}

func createTestSale(id int64, net string, expectedDay int) *models.Sale {
	expected := testDate(expectedDay)
	netAmount := decimal.RequireFromString(net)
	return &models.Sale{
		ID:           id,
		TenantID:     "tenant-1",
		SaleDate:     expected.AddDate(0, 0, -1),
		ExpectedDate: &expected,
		GrossAmount:  netAmount.Add(decimal.RequireFromString("1.00")),
		NetAmount:    netAmount,
		Status:       models.SaleStatusPending,
	}
}

func createTestReceipt(id int64, amount string, valueDay int) *models.Receipt {
	return &models.Receipt{
		ID:        id,
		TenantID:  "tenant-1",
		ValueDate: testDate(valueDay),
		Amount:    decimal.RequireFromString(amount),
	}
}

func TestFindExact(t *testing.T) {
	engine := NewEngine(nil)
	sale := createTestSale(1, "100.00", 10)

	tests := []struct {
		name     string
		receipts []*models.Receipt
		wantID   int64
	}{
		{
			name:     "equal amount in window",
			receipts: []*models.Receipt{createTestReceipt(10, "100.00", 11)},
			wantID:   10,
		},
		{
			name:     "one cent off is not exact",
			receipts: []*models.Receipt{createTestReceipt(10, "100.01", 11)},
			wantID:   0,
		},
		{
			name:     "outside date window",
			receipts: []*models.Receipt{createTestReceipt(10, "100.00", 15)},
			wantID:   0,
		},
		{
			name: "first in load order wins",
			receipts: []*models.Receipt{
				createTestReceipt(10, "100.00", 10),
				createTestReceipt(11, "100.00", 11),
			},
			wantID: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool([]*models.Sale{sale}, tt.receipts)
			alloc := engine.FindExact(sale, pool)
			if tt.wantID == 0 {
				if alloc != nil {
					t.Fatalf("Expected no allocation, got receipt %d", alloc.Receipt.ID)
				}
				return
			}
			if alloc == nil {
				t.Fatal("Expected an allocation, got none")
			}
			if alloc.Receipt.ID != tt.wantID {
				t.Errorf("Expected receipt %d, got %d", tt.wantID, alloc.Receipt.ID)
			}
			if alloc.Kind != models.MatchKindExact {
				t.Errorf("Expected exact kind, got %s", alloc.Kind)
			}
			if !alloc.Amount.Equal(sale.OutstandingBalance()) {
				t.Errorf("Expected allocation of %s, got %s", sale.OutstandingBalance(), alloc.Amount)
			}
		})
	}
}

func TestFindTolerant(t *testing.T) {
	engine := NewEngine(nil)
	sale := createTestSale(1, "100.00", 10)

	pool := NewPool([]*models.Sale{sale}, []*models.Receipt{
		createTestReceipt(10, "100.02", 11),
	})
	alloc := engine.FindTolerant(sale, pool)
	if alloc == nil {
		t.Fatal("Expected a tolerant allocation")
	}
	if alloc.Kind != models.MatchKindTolerant {
		t.Errorf("Expected tolerant kind, got %s", alloc.Kind)
	}
	// The receipt's full balance is allocated, not the sale's.
	if !alloc.Amount.Equal(decimal.RequireFromString("100.02")) {
		t.Errorf("Expected allocation of 100.02, got %s", alloc.Amount)
	}

	pool = NewPool([]*models.Sale{sale}, []*models.Receipt{
		createTestReceipt(10, "100.03", 11),
	})
	if alloc := engine.FindTolerant(sale, pool); alloc != nil {
		t.Errorf("Expected 100.03 to exceed the tolerance, got allocation of %s", alloc.Amount)
	}
}

func TestFindPartial(t *testing.T) {
	engine := NewEngine(nil)
	sale := createTestSale(1, "100.00", 10)

	t.Run("picks largest receipt below balance", func(t *testing.T) {
		pool := NewPool([]*models.Sale{sale}, []*models.Receipt{
			createTestReceipt(10, "40.00", 10),
			createTestReceipt(11, "60.00", 11),
			createTestReceipt(12, "25.00", 11),
		})
		alloc := engine.FindPartial(sale, pool)
		if alloc == nil {
			t.Fatal("Expected a partial allocation")
		}
		if alloc.Receipt.ID != 11 {
			t.Errorf("Expected largest receipt 11, got %d", alloc.Receipt.ID)
		}
		if alloc.Kind != models.MatchKindPartial {
			t.Errorf("Expected partial kind, got %s", alloc.Kind)
		}
	})

	t.Run("equal balance is not partial", func(t *testing.T) {
		pool := NewPool([]*models.Sale{sale}, []*models.Receipt{
			createTestReceipt(10, "100.00", 10),
		})
		if alloc := engine.FindPartial(sale, pool); alloc != nil {
			t.Error("Expected no partial allocation for an equal receipt")
		}
	})

	t.Run("out of window receipts are skipped", func(t *testing.T) {
		pool := NewPool([]*models.Sale{sale}, []*models.Receipt{
			createTestReceipt(10, "60.00", 20),
		})
		if alloc := engine.FindPartial(sale, pool); alloc != nil {
			t.Error("Expected no partial allocation outside the window")
		}
	})
}

func TestFindConsolidation(t *testing.T) {
	engine := NewEngine(nil)

	t.Run("covers receipt with largest sales first", func(t *testing.T) {
		sales := []*models.Sale{
			createTestSale(1, "100.00", 10),
			createTestSale(2, "200.00", 10),
			createTestSale(3, "50.00", 10),
		}
		receipt := createTestReceipt(10, "300.00", 10)
		pool := NewPool(sales, []*models.Receipt{receipt})

		allocations := engine.FindConsolidation(receipt, pool)
		if len(allocations) != 2 {
			t.Fatalf("Expected 2 allocations, got %d", len(allocations))
		}
		if allocations[0].Sale.ID != 2 || allocations[1].Sale.ID != 1 {
			t.Errorf("Expected sales [2 1] by descending balance, got [%d %d]",
				allocations[0].Sale.ID, allocations[1].Sale.ID)
		}
		for _, alloc := range allocations {
			if alloc.Kind != models.MatchKindConsolidated {
				t.Errorf("Expected consolidated kind, got %s", alloc.Kind)
			}
		}
	})

	t.Run("skips sales that would overshoot", func(t *testing.T) {
		sales := []*models.Sale{
			createTestSale(1, "250.00", 10),
			createTestSale(2, "180.00", 10),
			createTestSale(3, "120.00", 10),
		}
		receipt := createTestReceipt(10, "300.00", 10)
		pool := NewPool(sales, []*models.Receipt{receipt})

		allocations := engine.FindConsolidation(receipt, pool)
		// Greedy: 250 fits, 180 would overshoot, 120 would overshoot.
		if len(allocations) != 1 {
			t.Fatalf("Expected 1 allocation, got %d", len(allocations))
		}
		if allocations[0].Sale.ID != 1 {
			t.Errorf("Expected sale 1, got %d", allocations[0].Sale.ID)
		}
	})

	t.Run("returns partial accumulation", func(t *testing.T) {
		sales := []*models.Sale{
			createTestSale(1, "100.00", 10),
		}
		receipt := createTestReceipt(10, "300.00", 10)
		pool := NewPool(sales, []*models.Receipt{receipt})

		allocations := engine.FindConsolidation(receipt, pool)
		if len(allocations) != 1 {
			t.Fatalf("Expected partial consolidation of 1 sale, got %d allocations", len(allocations))
		}
	})

	t.Run("deterministic on equal balances", func(t *testing.T) {
		sales := []*models.Sale{
			createTestSale(1, "100.00", 10),
			createTestSale(2, "100.00", 10),
		}
		receipt := createTestReceipt(10, "100.00", 10)

		for i := 0; i < 5; i++ {
			pool := NewPool(sales, []*models.Receipt{receipt})
			allocations := engine.FindConsolidation(receipt, pool)
			if len(allocations) != 1 || allocations[0].Sale.ID != 1 {
				t.Fatalf("Expected sale 1 on every run, got %v", allocations)
			}
		}
	})
}
