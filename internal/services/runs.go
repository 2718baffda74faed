package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/apierr"
	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/repos"
	"github.com/anicol/peokops-sub001/internal/requestdata"
	"github.com/anicol/peokops-sub001/internal/types"
)

// SubmitResponseInput carries one pass/fail outcome for a run item.
type SubmitResponseInput struct {
	RunItemID uuid.UUID
	Status    types.ResponseStatus
	Notes     string
	PhotoRef  string
}

// ResponseSummary is returned to the responder after a successful submit.
type ResponseSummary struct {
	Response     *types.Response `json:"response"`
	RunCompleted bool            `json:"run_completed"`
	RunID        uuid.UUID       `json:"run_id"`
}

// RunService is the run/response lifecycle: it serves run reads to token
// bearers and ingests responses, feeding outcomes into the coverage ledger
// and the streak counters in the same transaction that may complete the
// run.
type RunService interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error)
	SubmitResponse(ctx context.Context, input SubmitResponseInput) (*ResponseSummary, error)
}

type runService struct {
	db           *gorm.DB
	log          *logger.Logger
	runRepo      repos.RunRepo
	responseRepo repos.ResponseRepo
	storeRepo    repos.StoreRepo
	coverage     CoverageService
	streaks      StreakService

	now func() time.Time
}

func NewRunService(
	db *gorm.DB,
	log *logger.Logger,
	runRepo repos.RunRepo,
	responseRepo repos.ResponseRepo,
	storeRepo repos.StoreRepo,
	coverage CoverageService,
	streaks StreakService,
) RunService {
	serviceLog := log.With("service", "RunService")
	return &runService{
		db:           db,
		log:          serviceLog,
		runRepo:      runRepo,
		responseRepo: responseRepo,
		storeRepo:    storeRepo,
		coverage:     coverage,
		streaks:      streaks,
		now:          time.Now,
	}
}

func (s *runService) GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	if rd := requestdata.GetRequestData(ctx); rd != nil && rd.RunID != uuid.Nil && rd.RunID != runID {
		// The token grants access to exactly one run; reads are scoped the
		// same way submits are.
		return nil, apierr.ErrUnauthorized
	}
	run, err := s.runRepo.GetByIDWithItems(ctx, nil, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if run == nil {
		return nil, apierr.ErrNotFound
	}
	return run, nil
}

// SubmitResponse records one outcome atomically: response row, coverage
// upsert, run completion when this was the last open item, and the streak
// cascade. A crash mid-way rolls all of it back together.
func (s *runService) SubmitResponse(ctx context.Context, input SubmitResponseInput) (*ResponseSummary, error) {
	if !input.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", input.Status, apierr.ErrInvalidArgument)
	}

	rd := requestdata.GetRequestData(ctx)
	now := s.now()
	var summary *ResponseSummary

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.runRepo.GetItemByID(ctx, tx, input.RunItemID)
		if err != nil {
			return fmt.Errorf("load run item %s: %w", input.RunItemID, err)
		}
		if item == nil {
			return apierr.ErrNotFound
		}
		if rd != nil && rd.RunID != uuid.Nil && rd.RunID != item.RunID {
			// Token for a different run must not reach this item.
			return apierr.ErrUnauthorized
		}

		run, err := s.runRepo.GetByID(ctx, tx, item.RunID)
		if err != nil {
			return fmt.Errorf("load run %s: %w", item.RunID, err)
		}
		if run == nil {
			return apierr.ErrNotFound
		}
		if run.Status == types.RunStatusExpired {
			return fmt.Errorf("run %s has expired: %w", run.ID, apierr.ErrInvalidResponseTransition)
		}

		existing, err := s.responseRepo.GetByRunItemID(ctx, tx, item.ID)
		if err != nil {
			return fmt.Errorf("check existing response: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("run item %s already answered: %w", item.ID, apierr.ErrInvalidResponseTransition)
		}

		response := &types.Response{
			ID:          uuid.New(),
			RunItemID:   item.ID,
			Status:      input.Status,
			Notes:       input.Notes,
			PhotoRef:    input.PhotoRef,
			RespondedBy: rd.Actor(),
			RespondedAt: now,
		}
		if err := s.responseRepo.Create(ctx, tx, response); err != nil {
			if errors.Is(err, repos.ErrResponseExists) {
				return fmt.Errorf("run item %s already answered: %w", item.ID, apierr.ErrInvalidResponseTransition)
			}
			return fmt.Errorf("create response: %w", err)
		}

		if err := s.coverage.RecordOutcome(ctx, tx, run.StoreID, item.LineageID, input.Status, rd.Actor(), now); err != nil {
			return err
		}

		summary = &ResponseSummary{Response: response, RunID: run.ID}

		unanswered, err := s.runRepo.CountUnanswered(ctx, tx, run.ID)
		if err != nil {
			return fmt.Errorf("count unanswered items: %w", err)
		}
		if unanswered > 0 || run.Status != types.RunStatusPending {
			return nil
		}

		// Last item answered: complete the run and apply streaks in the
		// same unit of work.
		if err := s.runRepo.UpdateFields(ctx, tx, run.ID, map[string]interface{}{
			"status":       types.RunStatusCompleted,
			"completed_at": now,
			"completed_by": rd.Actor(),
			"updated_at":   now,
		}); err != nil {
			return fmt.Errorf("complete run %s: %w", run.ID, err)
		}
		run.Status = types.RunStatusCompleted

		store, err := s.storeRepo.GetByID(ctx, tx, run.StoreID)
		if err != nil {
			return fmt.Errorf("load store %s: %w", run.StoreID, err)
		}
		if store == nil {
			return fmt.Errorf("store %s missing for run %s", run.StoreID, run.ID)
		}
		var userID *uuid.UUID
		if rd != nil {
			userID = rd.UserID
		}
		if err := s.streaks.ApplyCompletion(ctx, tx, run, store, userID, now); err != nil {
			return err
		}
		summary.RunCompleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if summary.RunCompleted {
		s.log.Info("run completed", "run_id", summary.RunID)
	}
	return summary, nil
}
