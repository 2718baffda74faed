package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/anicol/peokops-sub001/internal/repos"
	"github.com/anicol/peokops-sub001/internal/types"
)

// openTestDB opens an in-memory database used only for transaction
// plumbing; the fake repos below keep all state in maps.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

type fakeStoreRepo struct {
	stores map[uuid.UUID]*types.Store
}

func newFakeStoreRepo(stores ...*types.Store) *fakeStoreRepo {
	f := &fakeStoreRepo{stores: map[uuid.UUID]*types.Store{}}
	for _, s := range stores {
		f.stores[s.ID] = s
	}
	return f
}

func (f *fakeStoreRepo) Create(ctx context.Context, tx *gorm.DB, stores []*types.Store) ([]*types.Store, error) {
	for _, s := range stores {
		f.stores[s.ID] = s
	}
	return stores, nil
}

func (f *fakeStoreRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Store, error) {
	return f.stores[id], nil
}

func (f *fakeStoreRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.Store, error) {
	var out []*types.Store
	for _, s := range f.stores {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeTemplateRepo struct {
	templates map[uuid.UUID]*types.Template
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: map[uuid.UUID]*types.Template{}}
}

func (f *fakeTemplateRepo) Create(ctx context.Context, tx *gorm.DB, templates []*types.Template) ([]*types.Template, error) {
	for _, tpl := range templates {
		copied := *tpl
		f.templates[tpl.ID] = &copied
	}
	return templates, nil
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Template, error) {
	if tpl, ok := f.templates[id]; ok {
		copied := *tpl
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeTemplateRepo) ListEligibleForStore(ctx context.Context, tx *gorm.DB, store types.StoreContext) ([]*types.Template, error) {
	var out []*types.Template
	for _, tpl := range f.templates {
		if !tpl.IsActive || !tpl.IncludeInRotation {
			continue
		}
		if !tpl.Scope().IsAncestorOf(store) {
			continue
		}
		copied := *tpl
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeTemplateRepo) ListLineage(ctx context.Context, tx *gorm.DB, lineageID uuid.UUID) ([]*types.Template, error) {
	var out []*types.Template
	for _, tpl := range f.templates {
		if tpl.LineageID == lineageID {
			copied := *tpl
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeTemplateRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	tpl, ok := f.templates[id]
	if !ok {
		return fmt.Errorf("template %s not found", id)
	}
	if v, ok := updates["is_active"]; ok {
		tpl.IsActive = v.(bool)
	}
	if v, ok := updates["include_in_rotation"]; ok {
		tpl.IncludeInRotation = v.(bool)
	}
	return nil
}

type fakeRunRepo struct {
	runs      map[uuid.UUID]*types.Run
	items     map[uuid.UUID][]*types.RunItem
	responses *fakeResponseRepo

	// missFirstLookup simulates the materialization race: the first
	// GetByStoreAndDate sees no run even though a writer is about to win.
	missFirstLookup bool
	createErr       error
}

func newFakeRunRepo(responses *fakeResponseRepo) *fakeRunRepo {
	return &fakeRunRepo{
		runs:      map[uuid.UUID]*types.Run{},
		items:     map[uuid.UUID][]*types.RunItem{},
		responses: responses,
	}
}

func (f *fakeRunRepo) CreateWithItems(ctx context.Context, tx *gorm.DB, run *types.Run, items []*types.RunItem) error {
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return err
	}
	for _, existing := range f.runs {
		if existing.StoreID == run.StoreID && existing.LocalDate == run.LocalDate {
			return repos.ErrRunExists
		}
	}
	copied := *run
	f.runs[run.ID] = &copied
	f.items[run.ID] = items
	return nil
}

func (f *fakeRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Run, error) {
	if run, ok := f.runs[id]; ok {
		copied := *run
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRunRepo) GetByIDWithItems(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Run, error) {
	run, err := f.GetByID(ctx, tx, id)
	if err != nil || run == nil {
		return run, err
	}
	for _, item := range f.items[id] {
		run.Items = append(run.Items, *item)
	}
	return run, nil
}

func (f *fakeRunRepo) GetByStoreAndDate(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, localDate string) (*types.Run, error) {
	if f.missFirstLookup {
		f.missFirstLookup = false
		return nil, nil
	}
	for _, run := range f.runs {
		if run.StoreID == storeID && run.LocalDate == localDate {
			copied := *run
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) GetItemByID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (*types.RunItem, error) {
	for _, items := range f.items {
		for _, item := range items {
			if item.ID == itemID {
				copied := *item
				return &copied, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeRunRepo) ListItems(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.RunItem, error) {
	return f.items[runID], nil
}

func (f *fakeRunRepo) CountUnanswered(ctx context.Context, tx *gorm.DB, runID uuid.UUID) (int64, error) {
	var count int64
	for _, item := range f.items[runID] {
		if _, answered := f.responses.byItem[item.ID]; !answered {
			count++
		}
	}
	return count, nil
}

func (f *fakeRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	run, ok := f.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	if v, ok := updates["status"]; ok {
		run.Status = v.(types.RunStatus)
	}
	if v, ok := updates["completed_at"]; ok {
		at := v.(time.Time)
		run.CompletedAt = &at
	}
	if v, ok := updates["completed_by"]; ok {
		run.CompletedBy, _ = v.(*string)
	}
	return nil
}

func (f *fakeRunRepo) ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	var expired int64
	for _, run := range f.runs {
		if run.Status == types.RunStatusPending && run.ExpiresAt != nil && run.ExpiresAt.Before(now) {
			run.Status = types.RunStatusExpired
			expired++
		}
	}
	return expired, nil
}

type fakeResponseRepo struct {
	byItem map[uuid.UUID]*types.Response
}

func newFakeResponseRepo() *fakeResponseRepo {
	return &fakeResponseRepo{byItem: map[uuid.UUID]*types.Response{}}
}

func (f *fakeResponseRepo) Create(ctx context.Context, tx *gorm.DB, response *types.Response) error {
	if _, exists := f.byItem[response.RunItemID]; exists {
		return repos.ErrResponseExists
	}
	copied := *response
	f.byItem[response.RunItemID] = &copied
	return nil
}

func (f *fakeResponseRepo) GetByRunItemID(ctx context.Context, tx *gorm.DB, runItemID uuid.UUID) (*types.Response, error) {
	if r, ok := f.byItem[runItemID]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

type fakeCoverageRepo struct {
	records map[string]*types.CoverageRecord
}

func newFakeCoverageRepo() *fakeCoverageRepo {
	return &fakeCoverageRepo{records: map[string]*types.CoverageRecord{}}
}

func coverageKey(storeID, lineageID uuid.UUID) string {
	return storeID.String() + "|" + lineageID.String()
}

func (f *fakeCoverageRepo) Upsert(ctx context.Context, tx *gorm.DB, record *types.CoverageRecord) error {
	key := coverageKey(record.StoreID, record.LineageID)
	if existing, ok := f.records[key]; ok {
		existing.LastVerifiedAt = record.LastVerifiedAt
		existing.LastStatus = record.LastStatus
		existing.LastVerifiedBy = record.LastVerifiedBy
		return nil
	}
	copied := *record
	if copied.ID == uuid.Nil {
		copied.ID = uuid.New()
	}
	f.records[key] = &copied
	return nil
}

func (f *fakeCoverageRepo) SnapshotForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) (map[uuid.UUID]*types.CoverageRecord, error) {
	out := map[uuid.UUID]*types.CoverageRecord{}
	for _, r := range f.records {
		if r.StoreID == storeID {
			copied := *r
			out[r.LineageID] = &copied
		}
	}
	return out, nil
}

func (f *fakeCoverageRepo) ListForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) ([]*types.CoverageRecord, error) {
	var out []*types.CoverageRecord
	for _, r := range f.records {
		if r.StoreID == storeID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

type stubRiskProvider struct {
	signals map[uuid.UUID]*types.RiskSignal
}

func (s *stubRiskProvider) GetRiskScore(ctx context.Context, storeID, lineageID uuid.UUID) (*types.RiskSignal, error) {
	return s.signals[lineageID], nil
}

type recordingNotifier struct {
	runs   []uuid.UUID
	tokens []string
}

func (r *recordingNotifier) RunCreated(ctx context.Context, run *types.Run, itemCount int, accessToken string) {
	r.runs = append(r.runs, run.ID)
	r.tokens = append(r.tokens, accessToken)
}
