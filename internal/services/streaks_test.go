package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
)

type fakeStreakRepo struct {
	counters map[string]*types.StreakCounter
}

func newFakeStreakRepo() *fakeStreakRepo {
	return &fakeStreakRepo{counters: map[string]*types.StreakCounter{}}
}

func streakKey(subjectType types.StreakSubject, subjectID, storeID uuid.UUID) string {
	return string(subjectType) + "|" + subjectID.String() + "|" + storeID.String()
}

func (f *fakeStreakRepo) Get(ctx context.Context, tx *gorm.DB, subjectType types.StreakSubject, subjectID, storeID uuid.UUID) (*types.StreakCounter, error) {
	if c, ok := f.counters[streakKey(subjectType, subjectID, storeID)]; ok {
		copied := *c
		return &copied, nil
	}
	return &types.StreakCounter{
		ID:          uuid.New(),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		StoreID:     storeID,
	}, nil
}

func (f *fakeStreakRepo) Save(ctx context.Context, tx *gorm.DB, counter *types.StreakCounter) error {
	copied := *counter
	f.counters[streakKey(counter.SubjectType, counter.SubjectID, counter.StoreID)] = &copied
	return nil
}

func (f *fakeStreakRepo) ListForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) ([]*types.StreakCounter, error) {
	var out []*types.StreakCounter
	for _, c := range f.counters {
		if c.StoreID == storeID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func streakFixture(t *testing.T) (StreakService, *fakeStreakRepo, *types.Store) {
	t.Helper()
	repo := newFakeStreakRepo()
	svc := NewStreakService(nil, testLogger(t), repo)
	store := &types.Store{
		ID:       uuid.New(),
		Name:     "Downtown",
		Timezone: "UTC",
	}
	return svc, repo, store
}

func completionDay(t *testing.T, day string) time.Time {
	t.Helper()
	at, err := time.Parse("2006-01-02", day)
	if err != nil {
		t.Fatalf("parse day %s: %v", day, err)
	}
	return at.Add(15 * time.Hour)
}

func applyOn(t *testing.T, svc StreakService, store *types.Store, userID *uuid.UUID, day string) *types.Run {
	t.Helper()
	run := &types.Run{ID: uuid.New(), StoreID: store.ID}
	if err := svc.ApplyCompletion(context.Background(), nil, run, store, userID, completionDay(t, day)); err != nil {
		t.Fatalf("apply completion on %s: %v", day, err)
	}
	return run
}

func storeCounter(t *testing.T, repo *fakeStreakRepo, store *types.Store) *types.StreakCounter {
	t.Helper()
	c, ok := repo.counters[streakKey(types.StreakSubjectStore, store.ID, store.ID)]
	if !ok {
		t.Fatalf("expected store counter to exist")
	}
	return c
}

func TestStreakConsecutiveDays(t *testing.T) {
	svc, repo, store := streakFixture(t)

	applyOn(t, svc, store, nil, "2026-03-01")
	applyOn(t, svc, store, nil, "2026-03-02")
	applyOn(t, svc, store, nil, "2026-03-03")

	c := storeCounter(t, repo, store)
	if c.CurrentStreak != 3 || c.LongestStreak != 3 || c.TotalCompletions != 3 {
		t.Fatalf("expected 3/3/3 after three consecutive days, got %d/%d/%d", c.CurrentStreak, c.LongestStreak, c.TotalCompletions)
	}
}

func TestStreakGapResetsButLongestStays(t *testing.T) {
	svc, repo, store := streakFixture(t)

	applyOn(t, svc, store, nil, "2026-03-01")
	applyOn(t, svc, store, nil, "2026-03-02")
	applyOn(t, svc, store, nil, "2026-03-03")
	applyOn(t, svc, store, nil, "2026-03-08")

	c := storeCounter(t, repo, store)
	if c.CurrentStreak != 1 {
		t.Fatalf("expected streak reset to 1 after gap, got %d", c.CurrentStreak)
	}
	if c.LongestStreak != 3 {
		t.Fatalf("expected longest streak to stay 3, got %d", c.LongestStreak)
	}
	if c.TotalCompletions != 4 {
		t.Fatalf("expected 4 total completions, got %d", c.TotalCompletions)
	}
}

func TestStreakSameDayLeavesChainAlone(t *testing.T) {
	svc, repo, store := streakFixture(t)

	applyOn(t, svc, store, nil, "2026-03-01")
	applyOn(t, svc, store, nil, "2026-03-02")
	applyOn(t, svc, store, nil, "2026-03-02")

	c := storeCounter(t, repo, store)
	if c.CurrentStreak != 2 {
		t.Fatalf("expected second same-day completion to leave streak at 2, got %d", c.CurrentStreak)
	}
	if c.TotalCompletions != 3 {
		t.Fatalf("expected total completions to still count, got %d", c.TotalCompletions)
	}
}

func TestStreakReplayIsNoop(t *testing.T) {
	svc, repo, store := streakFixture(t)

	run := applyOn(t, svc, store, nil, "2026-03-01")
	before := *storeCounter(t, repo, store)

	if err := svc.ApplyCompletion(context.Background(), nil, run, store, nil, completionDay(t, "2026-03-01")); err != nil {
		t.Fatalf("replay: %v", err)
	}
	after := storeCounter(t, repo, store)
	if after.CurrentStreak != before.CurrentStreak || after.TotalCompletions != before.TotalCompletions {
		t.Fatalf("expected replay to change nothing, got %d/%d want %d/%d",
			after.CurrentStreak, after.TotalCompletions, before.CurrentStreak, before.TotalCompletions)
	}
}

func TestStreakTracksUserCounterIndependently(t *testing.T) {
	svc, repo, store := streakFixture(t)
	alice := uuid.New()
	bob := uuid.New()

	applyOn(t, svc, store, &alice, "2026-03-01")
	applyOn(t, svc, store, &bob, "2026-03-02")
	applyOn(t, svc, store, &alice, "2026-03-02")

	if c := storeCounter(t, repo, store); c.CurrentStreak != 2 {
		t.Fatalf("expected store streak 2, got %d", c.CurrentStreak)
	}
	aliceCounter, ok := repo.counters[streakKey(types.StreakSubjectUser, alice, store.ID)]
	if !ok {
		t.Fatalf("expected a counter for the first user")
	}
	if aliceCounter.CurrentStreak != 2 {
		t.Fatalf("expected first user streak 2 across consecutive days, got %d", aliceCounter.CurrentStreak)
	}
	bobCounter := repo.counters[streakKey(types.StreakSubjectUser, bob, store.ID)]
	if bobCounter == nil || bobCounter.CurrentStreak != 1 {
		t.Fatalf("expected second user streak 1, got %+v", bobCounter)
	}
}
