package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/apierr"
	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/repos"
	"github.com/anicol/peokops-sub001/internal/selection"
	"github.com/anicol/peokops-sub001/internal/types"
)

// ErrNoEligibleTemplates means zero templates passed the eligibility
// filter for the store. It is a valid empty outcome, not a failure; the
// API layer maps it to a role-appropriate "configure templates" prompt.
var ErrNoEligibleTemplates = errors.New("no eligible templates for store")

// RunSummary is the externally exposed view of a materialized run.
type RunSummary struct {
	Run         *types.Run       `json:"run"`
	Items       []*types.RunItem `json:"items"`
	AccessToken string           `json:"access_token,omitempty"`
}

// RunSchedulerService guarantees at most one run per (store, local
// calendar date). EnsureRunForToday is idempotent and race-safe: the
// database uniqueness constraint decides the winner, the loser's
// transaction rolls back and the loser returns the winner's run.
type RunSchedulerService interface {
	EnsureRunForToday(ctx context.Context, storeID uuid.UUID) (*RunSummary, error)
	CreateInstantRun(ctx context.Context, storeID uuid.UUID) (*RunSummary, error)
	ExpireOverdue(ctx context.Context) (int64, error)
	StartSweep(ctx context.Context)
}

type SchedulerConfig struct {
	DesiredCount   int
	SweepInterval  time.Duration
	SweepParallel  int
	ExpiryGrace    time.Duration // added past local midnight before a pending run expires
	SweepLockRedis *goredis.Client
}

type runSchedulerService struct {
	db           *gorm.DB
	log          *logger.Logger
	storeRepo    repos.StoreRepo
	templateRepo repos.TemplateRepo
	coverageRepo repos.CoverageRepo
	runRepo      repos.RunRepo
	engine       *selection.Engine
	risk         RiskProvider
	tokens       RunTokenService
	notifier     RunNotifier
	cfg          SchedulerConfig

	now func() time.Time
}

func NewRunSchedulerService(
	db *gorm.DB,
	log *logger.Logger,
	storeRepo repos.StoreRepo,
	templateRepo repos.TemplateRepo,
	coverageRepo repos.CoverageRepo,
	runRepo repos.RunRepo,
	engine *selection.Engine,
	risk RiskProvider,
	tokens RunTokenService,
	notifier RunNotifier,
	cfg SchedulerConfig,
) RunSchedulerService {
	serviceLog := log.With("service", "RunSchedulerService")
	if cfg.DesiredCount <= 0 {
		cfg.DesiredCount = 3
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.SweepParallel <= 0 {
		cfg.SweepParallel = 8
	}
	return &runSchedulerService{
		db:           db,
		log:          serviceLog,
		storeRepo:    storeRepo,
		templateRepo: templateRepo,
		coverageRepo: coverageRepo,
		runRepo:      runRepo,
		engine:       engine,
		risk:         risk,
		tokens:       tokens,
		notifier:     notifier,
		cfg:          cfg,
		now:          time.Now,
	}
}

func (s *runSchedulerService) EnsureRunForToday(ctx context.Context, storeID uuid.UUID) (*RunSummary, error) {
	return s.ensureRun(ctx, storeID, types.RunTriggerScheduled)
}

func (s *runSchedulerService) CreateInstantRun(ctx context.Context, storeID uuid.UUID) (*RunSummary, error) {
	return s.ensureRun(ctx, storeID, types.RunTriggerManual)
}

func (s *runSchedulerService) ensureRun(ctx context.Context, storeID uuid.UUID, trigger types.RunTrigger) (*RunSummary, error) {
	store, err := s.storeRepo.GetByID(ctx, nil, storeID)
	if err != nil {
		return nil, fmt.Errorf("load store %s: %w", storeID, err)
	}
	if store == nil {
		return nil, apierr.ErrNotFound
	}

	now := s.now()
	localDate := store.LocalDate(now)

	existing, err := s.runRepo.GetByStoreAndDate(ctx, nil, storeID, localDate)
	if err != nil {
		return nil, fmt.Errorf("check existing run: %w", err)
	}
	if existing != nil {
		return s.summarize(ctx, existing)
	}

	picks, err := s.selectForStore(ctx, store, now)
	if err != nil {
		return nil, err
	}
	if len(picks) == 0 {
		return nil, ErrNoEligibleTemplates
	}

	run, items := s.materialize(store, localDate, trigger, picks, now)
	if err := s.runRepo.CreateWithItems(ctx, nil, run, items); err != nil {
		if errors.Is(err, repos.ErrRunExists) {
			// Lost the (store, local_date) race; the half-built state was
			// rolled back with the transaction. Return the winner.
			winner, wErr := s.runRepo.GetByStoreAndDate(ctx, nil, storeID, localDate)
			if wErr != nil {
				return nil, fmt.Errorf("resolve run conflict: %w", wErr)
			}
			if winner == nil {
				return nil, fmt.Errorf("run conflict with no winner for store %s on %s", storeID, localDate)
			}
			s.log.Debug("run materialization race resolved to winner", "store_id", storeID, "local_date", localDate, "run_id", winner.ID)
			return s.summarize(ctx, winner)
		}
		return nil, fmt.Errorf("materialize run: %w", err)
	}

	token, err := s.tokens.Mint(run)
	if err != nil {
		// The run exists either way; token minting failure only degrades
		// the notification.
		s.log.Warn("failed to mint run access token", "run_id", run.ID, "error", err)
		token = ""
	}
	s.notifier.RunCreated(ctx, run, len(items), token)
	s.log.Info("run materialized", "run_id", run.ID, "store_id", storeID, "local_date", localDate, "trigger", trigger, "items", len(items))

	return &RunSummary{Run: run, Items: items, AccessToken: token}, nil
}

// selectForStore assembles one consistent view (eligible templates, one
// coverage snapshot, optional risk scores) and runs the pure engine over
// it.
func (s *runSchedulerService) selectForStore(ctx context.Context, store *types.Store, now time.Time) ([]selection.Selected, error) {
	storeCtx := store.Context()

	templates, err := s.templateRepo.ListEligibleForStore(ctx, nil, storeCtx)
	if err != nil {
		return nil, fmt.Errorf("list eligible templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, nil
	}

	coverage, err := s.coverageRepo.SnapshotForStore(ctx, nil, store.ID)
	if err != nil {
		return nil, fmt.Errorf("coverage snapshot: %w", err)
	}

	candidates := make([]selection.Candidate, 0, len(templates))
	for _, tpl := range templates {
		// Risk lookups are bounded and degrade to absent inside the
		// provider; a down provider must never block selection.
		signal, rErr := s.risk.GetRiskScore(ctx, store.ID, tpl.LineageID)
		if rErr != nil {
			s.log.Debug("risk lookup failed, continuing without signal", "lineage_id", tpl.LineageID, "error", rErr)
			signal = nil
		}
		candidates = append(candidates, selection.Candidate{
			Template: tpl,
			Coverage: coverage[tpl.LineageID],
			Risk:     signal,
		})
	}

	return s.engine.Select(storeCtx, candidates, s.cfg.DesiredCount, now), nil
}

func (s *runSchedulerService) materialize(store *types.Store, localDate string, trigger types.RunTrigger, picks []selection.Selected, now time.Time) (*types.Run, []*types.RunItem) {
	day, err := time.ParseInLocation("2006-01-02", localDate, store.Location())
	var expiresAt time.Time
	if err != nil {
		expiresAt = now.Add(24 * time.Hour)
	} else {
		expiresAt = day.AddDate(0, 0, 1).Add(s.cfg.ExpiryGrace)
	}

	run := &types.Run{
		ID:        uuid.New(),
		StoreID:   store.ID,
		LocalDate: localDate,
		Status:    types.RunStatusPending,
		Trigger:   trigger,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	items := make([]*types.RunItem, 0, len(picks))
	for i, pick := range picks {
		tpl := pick.Template
		items = append(items, &types.RunItem{
			ID:              uuid.New(),
			RunID:           run.ID,
			TemplateID:      tpl.ID,
			LineageID:       tpl.LineageID,
			TemplateVersion: tpl.Version,
			Position:        i,
			Title:           tpl.Title,
			Category:        tpl.Category,
			Severity:        tpl.Severity,
			SuccessCriteria: tpl.SuccessCriteria,
			PhotoRequired:   pick.PhotoRequired,
			PhotoReason:     pick.PhotoReason,
			CreatedAt:       now,
		})
	}
	return run, items
}

func (s *runSchedulerService) summarize(ctx context.Context, run *types.Run) (*RunSummary, error) {
	items, err := s.runRepo.ListItems(ctx, nil, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load run items: %w", err)
	}
	token, err := s.tokens.Mint(run)
	if err != nil {
		s.log.Warn("failed to mint run access token", "run_id", run.ID, "error", err)
		token = ""
	}
	return &RunSummary{Run: run, Items: items, AccessToken: token}, nil
}

func (s *runSchedulerService) ExpireOverdue(ctx context.Context) (int64, error) {
	expired, err := s.runRepo.ExpireOverdue(ctx, nil, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire overdue runs: %w", err)
	}
	if expired > 0 {
		s.log.Info("expired overdue runs", "count", expired)
	}
	return expired, nil
}

// StartSweep runs the hourly tick: expire overdue runs, then ensure a run
// for every active store whose configured local send hour has arrived.
// The tick is at-least-once safe because ensureRun is idempotent; the
// optional redis lock only trims duplicate work across replicas.
func (s *runSchedulerService) StartSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	s.log.Info("scheduler sweep started", "interval", s.cfg.SweepInterval)
}

func (s *runSchedulerService) tick(ctx context.Context) {
	if _, err := s.ExpireOverdue(ctx); err != nil {
		s.log.Warn("sweep expiry pass failed", "error", err)
	}

	stores, err := s.storeRepo.ListActive(ctx, nil)
	if err != nil {
		s.log.Warn("sweep could not list stores", "error", err)
		return
	}

	now := s.now()
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.SweepParallel)
	for _, store := range stores {
		localNow := now.In(store.Location())
		if localNow.Hour() < store.SendHourLocal {
			continue
		}
		st := store
		group.Go(func() error {
			if !s.acquireSweepLock(groupCtx, st.ID, st.LocalDate(now)) {
				return nil
			}
			_, runErr := s.EnsureRunForToday(groupCtx, st.ID)
			if runErr != nil && !errors.Is(runErr, ErrNoEligibleTemplates) {
				s.log.Warn("sweep run creation failed", "store_id", st.ID, "error", runErr)
			}
			return nil
		})
	}
	_ = group.Wait()
}

// acquireSweepLock dedups concurrent sweeps across replicas. Losing the
// lock (or having no redis at all) is harmless: ensureRun is idempotent
// and the database constraint is the real guarantee.
func (s *runSchedulerService) acquireSweepLock(ctx context.Context, storeID uuid.UUID, localDate string) bool {
	if s.cfg.SweepLockRedis == nil {
		return true
	}
	key := fmt.Sprintf("sweep:lock:%s:%s", storeID, localDate)
	ok, err := s.cfg.SweepLockRedis.SetNX(ctx, key, "1", 2*time.Minute).Result()
	if err != nil {
		return true
	}
	return ok
}
