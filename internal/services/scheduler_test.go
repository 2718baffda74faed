package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/selection"
	"github.com/anicol/peokops-sub001/internal/types"
)

type schedulerFixture struct {
	svc       *runSchedulerService
	store     *types.Store
	stores    *fakeStoreRepo
	templates *fakeTemplateRepo
	coverage  *fakeCoverageRepo
	runs      *fakeRunRepo
	notifier  *recordingNotifier
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	log := testLogger(t)
	store := &types.Store{
		ID:            uuid.New(),
		AccountID:     uuid.New(),
		BrandID:       uuid.New(),
		Name:          "Downtown",
		Timezone:      "UTC",
		SendHourLocal: 9,
		IsActive:      true,
	}
	stores := newFakeStoreRepo(store)
	templates := newFakeTemplateRepo()
	coverage := newFakeCoverageRepo()
	runs := newFakeRunRepo(newFakeResponseRepo())
	notifier := &recordingNotifier{}

	svc := NewRunSchedulerService(
		openTestDB(t),
		log,
		stores,
		templates,
		coverage,
		runs,
		selection.NewEngine(selection.DefaultWeights(), 7),
		NoopRiskProvider{},
		NewRunTokenService(log, "test-secret", time.Hour),
		notifier,
		SchedulerConfig{DesiredCount: 3},
	).(*runSchedulerService)

	return &schedulerFixture{
		svc:       svc,
		store:     store,
		stores:    stores,
		templates: templates,
		coverage:  coverage,
		runs:      runs,
		notifier:  notifier,
	}
}

func (f *schedulerFixture) addStoreTemplates(t *testing.T, count int) {
	t.Helper()
	batch := make([]*types.Template, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		batch = append(batch, &types.Template{
			ID:                id,
			LineageID:         id,
			Version:           1,
			ScopeLevel:        types.ScopeLevelStore,
			ScopeID:           f.store.ID,
			Title:             "check",
			Severity:          types.SeverityMedium,
			RotationPriority:  50,
			IncludeInRotation: true,
			IsActive:          true,
		})
	}
	if _, err := f.templates.Create(context.Background(), nil, batch); err != nil {
		t.Fatalf("seed templates: %v", err)
	}
}

func TestEnsureRunForTodayIsIdempotent(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addStoreTemplates(t, 5)

	first, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if first.Run.Trigger != types.RunTriggerScheduled {
		t.Fatalf("expected SCHEDULED trigger, got %s", first.Run.Trigger)
	}
	if first.Run.Status != types.RunStatusPending {
		t.Fatalf("expected PENDING run, got %s", first.Run.Status)
	}
	if len(first.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(first.Items))
	}
	if first.AccessToken == "" {
		t.Fatalf("expected an access token on the fresh run")
	}

	second, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if second.Run.ID != first.Run.ID {
		t.Fatalf("expected same run on repeat, got %s and %s", first.Run.ID, second.Run.ID)
	}
	if len(f.runs.runs) != 1 {
		t.Fatalf("expected exactly one stored run, got %d", len(f.runs.runs))
	}
	if len(f.notifier.runs) != 1 {
		t.Fatalf("expected one run.created event, got %d", len(f.notifier.runs))
	}
}

func TestEnsureRunWithNoTemplates(t *testing.T) {
	f := newSchedulerFixture(t)

	_, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if !errors.Is(err, ErrNoEligibleTemplates) {
		t.Fatalf("expected ErrNoEligibleTemplates, got %v", err)
	}
	if len(f.runs.runs) != 0 {
		t.Fatalf("expected no run row for an empty selection, got %d", len(f.runs.runs))
	}
}

func TestEnsureRunLosingRaceReturnsWinner(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addStoreTemplates(t, 4)

	winner, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("seed winner: %v", err)
	}

	// The loser's pre-insert lookup raced ahead of the winner's commit;
	// its insert then hits the uniqueness constraint.
	f.runs.missFirstLookup = true
	got, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("loser ensure: %v", err)
	}
	if got.Run.ID != winner.Run.ID {
		t.Fatalf("expected loser to adopt winner run %s, got %s", winner.Run.ID, got.Run.ID)
	}
	if len(f.runs.runs) != 1 {
		t.Fatalf("expected one run after race, got %d", len(f.runs.runs))
	}
}

func TestInstantRunUsesManualTrigger(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addStoreTemplates(t, 2)

	summary, err := f.svc.CreateInstantRun(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("instant run: %v", err)
	}
	if summary.Run.Trigger != types.RunTriggerManual {
		t.Fatalf("expected MANUAL trigger, got %s", summary.Run.Trigger)
	}
	if len(summary.Items) != 2 {
		t.Fatalf("expected both templates selected, got %d items", len(summary.Items))
	}
}

func TestRunItemsSnapshotTemplateContent(t *testing.T) {
	f := newSchedulerFixture(t)
	id := uuid.New()
	tpl := &types.Template{
		ID:                id,
		LineageID:         id,
		Version:           4,
		ScopeLevel:        types.ScopeLevelStore,
		ScopeID:           f.store.ID,
		Title:             "Sanitizer bucket at 200ppm",
		Category:          "food_safety",
		SuccessCriteria:   "Test strip reads 200ppm",
		Severity:          types.SeverityCritical,
		RotationPriority:  80,
		IncludeInRotation: true,
		IsActive:          true,
	}
	if _, err := f.templates.Create(context.Background(), nil, []*types.Template{tpl}); err != nil {
		t.Fatalf("seed template: %v", err)
	}

	summary, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(summary.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(summary.Items))
	}
	item := summary.Items[0]
	if item.TemplateID != tpl.ID || item.LineageID != tpl.LineageID || item.TemplateVersion != 4 {
		t.Fatalf("expected snapshot to pin template identity, got %+v", item)
	}
	if item.Title != tpl.Title || item.Severity != types.SeverityCritical {
		t.Fatalf("expected snapshot to copy content, got %+v", item)
	}
	if !item.PhotoRequired || item.PhotoReason == "" {
		t.Fatalf("expected critical check to require a photo with a reason")
	}
	if item.Position != 0 {
		t.Fatalf("expected position 0, got %d", item.Position)
	}
}

func TestEnsureRunBrandScopedTemplatesOnly(t *testing.T) {
	f := newSchedulerFixture(t)

	// A fresh store with no templates of its own draws everything from the
	// brand-wide pool.
	batch := make([]*types.Template, 0, 15)
	for i := 0; i < 15; i++ {
		id := uuid.New()
		batch = append(batch, &types.Template{
			ID:                id,
			LineageID:         id,
			Version:           1,
			ScopeLevel:        types.ScopeLevelBrand,
			ScopeID:           f.store.BrandID,
			Title:             "brand check",
			Severity:          types.SeverityMedium,
			RotationPriority:  50,
			IncludeInRotation: true,
			IsActive:          true,
		})
	}
	if _, err := f.templates.Create(context.Background(), nil, batch); err != nil {
		t.Fatalf("seed brand templates: %v", err)
	}

	summary, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(summary.Items) != 3 {
		t.Fatalf("expected 3 picks from the brand pool, got %d", len(summary.Items))
	}
	seen := map[uuid.UUID]bool{}
	for _, item := range summary.Items {
		if seen[item.LineageID] {
			t.Fatalf("expected distinct lineages, got %s twice", item.LineageID)
		}
		seen[item.LineageID] = true
		tpl := f.templates.templates[item.TemplateID]
		if tpl == nil || tpl.ScopeLevel != types.ScopeLevelBrand {
			t.Fatalf("expected every pick brand-scoped, got %+v", tpl)
		}
	}
}

func TestEnsureRunHighRiskLineageDisplacesHigherRuleScore(t *testing.T) {
	f := newSchedulerFixture(t)
	f.svc.cfg.DesiredCount = 1

	quiet := uuid.New()
	hot := uuid.New()
	batch := []*types.Template{
		{
			ID:                quiet,
			LineageID:         quiet,
			Version:           1,
			ScopeLevel:        types.ScopeLevelStore,
			ScopeID:           f.store.ID,
			Title:             "high priority, quiet history",
			Severity:          types.SeverityMedium,
			RotationPriority:  90,
			IncludeInRotation: true,
			IsActive:          true,
		},
		{
			ID:                hot,
			LineageID:         hot,
			Version:           1,
			ScopeLevel:        types.ScopeLevelStore,
			ScopeID:           f.store.ID,
			Title:             "low priority, failing elsewhere",
			Severity:          types.SeverityMedium,
			RotationPriority:  10,
			IncludeInRotation: true,
			IsActive:          true,
		},
	}
	if _, err := f.templates.Create(context.Background(), nil, batch); err != nil {
		t.Fatalf("seed templates: %v", err)
	}
	f.svc.risk = &stubRiskProvider{signals: map[uuid.UUID]*types.RiskSignal{
		hot: {Score: 1.0},
	}}

	summary, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(summary.Items) != 1 {
		t.Fatalf("expected a single pick, got %d", len(summary.Items))
	}
	if summary.Items[0].LineageID != hot {
		t.Fatalf("expected the high-risk lineage to win the slot, got %s", summary.Items[0].Title)
	}
}

func TestExpireOverdueFlipsPendingRuns(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addStoreTemplates(t, 1)

	summary, err := f.svc.EnsureRunForToday(context.Background(), f.store.ID)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	f.svc.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	expired, err := f.svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expired run, got %d", expired)
	}
	run, _ := f.runs.GetByID(context.Background(), nil, summary.Run.ID)
	if run.Status != types.RunStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", run.Status)
	}
}
