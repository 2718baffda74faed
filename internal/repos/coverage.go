package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
)

type CoverageRepo interface {
	// Upsert writes the current verification state for (store, lineage),
	// updating in place when a row already exists.
	Upsert(ctx context.Context, tx *gorm.DB, record *types.CoverageRecord) error

	// SnapshotForStore returns the store's full ledger keyed by lineage id.
	// One call per selection so every scoring decision sees one view.
	SnapshotForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (map[uuid.UUID]*types.CoverageRecord, error)

	ListForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) ([]*types.CoverageRecord, error)
}

type coverageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCoverageRepo(db *gorm.DB, baseLog *logger.Logger) CoverageRepo {
	repoLog := baseLog.With("repo", "CoverageRepo")
	return &coverageRepo{db: db, log: repoLog}
}

func (r *coverageRepo) Upsert(ctx context.Context, tx *gorm.DB, record *types.CoverageRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if record == nil {
		return nil
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.UpdatedAt = time.Now()
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "store_id"}, {Name: "lineage_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_verified_at", "last_status", "last_verified_by", "updated_at",
			}),
		}).
		Create(record).Error
}

func (r *coverageRepo) SnapshotForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (map[uuid.UUID]*types.CoverageRecord, error) {
	records, err := r.ListForStore(ctx, tx, storeID)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[uuid.UUID]*types.CoverageRecord, len(records))
	for _, rec := range records {
		snapshot[rec.LineageID] = rec
	}
	return snapshot, nil
}

func (r *coverageRepo) ListForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) ([]*types.CoverageRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var records []*types.CoverageRecord
	if err := transaction.WithContext(ctx).
		Where("store_id = ?", storeID).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
