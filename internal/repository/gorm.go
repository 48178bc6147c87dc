package repository

import (
	"context"
	"fmt"

	"github.com/WilsonNous/NousCard/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormRepository is the MySQL-backed repository used in production.
type GormRepository struct {
	db *gorm.DB
}

// Compile-time check that GormRepository implements Repository
var _ Repository = (*GormRepository)(nil)

// NewGormRepository opens a MySQL connection and migrates the
// reconciliation tables.
func NewGormRepository(dsn string) (*GormRepository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&models.Sale{}, &models.Receipt{}, &models.Match{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GormRepository{db: db}, nil
}

// NewGormRepositoryFromDB wraps an existing gorm handle, for callers that
// manage the connection themselves.
func NewGormRepositoryFromDB(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Begin opens a database transaction for one run.
func (r *GormRepository) Begin(ctx context.Context) (Tx, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	return &gormTx{tx: tx}, nil
}

type gormTx struct {
	tx   *gorm.DB
	done bool
}

func (t *gormTx) LoadUnsettled(ctx context.Context, tenantID string) ([]*models.Sale, []*models.Receipt, error) {
	var sales []*models.Sale
	err := t.tx.WithContext(ctx).
		Where("tenant_id = ? AND archived = ? AND status IN ?",
			tenantID, false, []models.SaleStatus{models.SaleStatusPending, models.SaleStatusPartial}).
		Order("expected_date, id").
		Find(&sales).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load unsettled sales: %w", err)
	}

	var receipts []*models.Receipt
	err = t.tx.WithContext(ctx).
		Where("tenant_id = ? AND archived = ? AND settled = ?", tenantID, false, false).
		Order("value_date, id").
		Find(&receipts).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load unsettled receipts: %w", err)
	}

	return sales, receipts, nil
}

func (t *gormTx) LoadMatchedPairs(ctx context.Context, tenantID string) (map[PairKey]bool, error) {
	var rows []struct {
		SaleID    *int64
		ReceiptID int64
	}
	err := t.tx.WithContext(ctx).
		Model(&models.Match{}).
		Select("sale_id", "receipt_id").
		Where("tenant_id = ? AND sale_id IS NOT NULL", tenantID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load matched pairs: %w", err)
	}

	pairs := make(map[PairKey]bool, len(rows))
	for _, row := range rows {
		pairs[PairKey{SaleID: *row.SaleID, ReceiptID: row.ReceiptID}] = true
	}
	return pairs, nil
}

func (t *gormTx) CreateMatch(ctx context.Context, match *models.Match) error {
	if err := t.tx.WithContext(ctx).Create(match).Error; err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (t *gormTx) SaveSale(ctx context.Context, sale *models.Sale) error {
	if err := t.tx.WithContext(ctx).Save(sale).Error; err != nil {
		return fmt.Errorf("failed to save sale %d: %w", sale.ID, err)
	}
	return nil
}

func (t *gormTx) SaveReceipt(ctx context.Context, receipt *models.Receipt) error {
	if err := t.tx.WithContext(ctx).Save(receipt).Error; err != nil {
		return fmt.Errorf("failed to save receipt %d: %w", receipt.ID, err)
	}
	return nil
}

func (t *gormTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func (t *gormTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback().Error
}
