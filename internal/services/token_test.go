package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/apierr"
	"github.com/anicol/peokops-sub001/internal/types"
)

func TestRunTokenRoundTrip(t *testing.T) {
	svc := NewRunTokenService(testLogger(t), "test-secret", time.Hour)
	run := &types.Run{ID: uuid.New(), StoreID: uuid.New()}

	token, err := svc.Mint(run)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.RunID != run.ID || claims.StoreID != run.StoreID {
		t.Fatalf("expected claims %s/%s, got %s/%s", run.ID, run.StoreID, claims.RunID, claims.StoreID)
	}
}

func TestRunTokenRejectsWrongSecret(t *testing.T) {
	minter := NewRunTokenService(testLogger(t), "secret-a", time.Hour)
	validator := NewRunTokenService(testLogger(t), "secret-b", time.Hour)
	run := &types.Run{ID: uuid.New(), StoreID: uuid.New()}

	token, err := minter.Mint(run)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := validator.Validate(token); !errors.Is(err, apierr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized across secrets, got %v", err)
	}
}

func TestRunTokenRejectsGarbage(t *testing.T) {
	svc := NewRunTokenService(testLogger(t), "test-secret", time.Hour)
	for _, tok := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := svc.Validate(tok); !errors.Is(err, apierr.ErrUnauthorized) {
			t.Fatalf("expected unauthorized for %q, got %v", tok, err)
		}
	}
}

func TestRunTokenOutlivesRunDeadline(t *testing.T) {
	svc := NewRunTokenService(testLogger(t), "test-secret", time.Minute)
	deadline := time.Now().Add(20 * time.Hour)
	run := &types.Run{ID: uuid.New(), StoreID: uuid.New(), ExpiresAt: &deadline}

	token, err := svc.Mint(run)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	// The deadline is far beyond the ttl, the token must still validate so
	// late responders get a proper expired-run rejection.
	if _, err := svc.Validate(token); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
