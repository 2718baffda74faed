package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/repos"
	"github.com/anicol/peokops-sub001/internal/types"
)

// CoverageService is the ledger of when and with what outcome each check
// lineage was last verified at each store. Only the response lifecycle
// writes it; selection reads one snapshot per invocation.
type CoverageService interface {
	RecordOutcome(ctx context.Context, tx *gorm.DB, storeID, lineageID uuid.UUID, status types.ResponseStatus, verifiedBy *string, at time.Time) error
	Snapshot(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (map[uuid.UUID]*types.CoverageRecord, error)
	ListForStore(ctx context.Context, storeID uuid.UUID) ([]*types.CoverageRecord, error)
}

type coverageService struct {
	db           *gorm.DB
	log          *logger.Logger
	coverageRepo repos.CoverageRepo
}

func NewCoverageService(db *gorm.DB, log *logger.Logger, coverageRepo repos.CoverageRepo) CoverageService {
	serviceLog := log.With("service", "CoverageService")
	return &coverageService{db: db, log: serviceLog, coverageRepo: coverageRepo}
}

func (s *coverageService) RecordOutcome(ctx context.Context, tx *gorm.DB, storeID, lineageID uuid.UUID, status types.ResponseStatus, verifiedBy *string, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid response status %q", status)
	}
	statusCopy := status
	record := &types.CoverageRecord{
		StoreID:        storeID,
		LineageID:      lineageID,
		LastVerifiedAt: &at,
		LastStatus:     &statusCopy,
		LastVerifiedBy: verifiedBy,
	}
	if err := s.coverageRepo.Upsert(ctx, tx, record); err != nil {
		return fmt.Errorf("record outcome for store %s lineage %s: %w", storeID, lineageID, err)
	}
	return nil
}

func (s *coverageService) Snapshot(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (map[uuid.UUID]*types.CoverageRecord, error) {
	return s.coverageRepo.SnapshotForStore(ctx, tx, storeID)
}

func (s *coverageService) ListForStore(ctx context.Context, storeID uuid.UUID) ([]*types.CoverageRecord, error) {
	return s.coverageRepo.ListForStore(ctx, nil, storeID)
}
