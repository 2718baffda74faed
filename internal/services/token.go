package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/apierr"
	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
)

// RunClaims is the decoded identity carried by a run access token. The
// bearer may be anonymous; the token only proves access to one run.
type RunClaims struct {
	RunID   uuid.UUID
	StoreID uuid.UUID
}

// RunTokenService mints and validates the opaque access token handed to
// the delivery layer with each materialized run.
type RunTokenService interface {
	Mint(run *types.Run) (string, error)
	Validate(tokenString string) (*RunClaims, error)
}

type runTokenService struct {
	log       *logger.Logger
	secretKey string
	ttl       time.Duration
}

func NewRunTokenService(log *logger.Logger, secretKey string, ttl time.Duration) RunTokenService {
	serviceLog := log.With("service", "RunTokenService")
	return &runTokenService{log: serviceLog, secretKey: secretKey, ttl: ttl}
}

func (s *runTokenService) Mint(run *types.Run) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run required")
	}
	expiresAt := time.Now().Add(s.ttl)
	if run.ExpiresAt != nil && run.ExpiresAt.After(expiresAt) {
		// The token must outlive the run's own deadline so late responders
		// still get the proper expired-run rejection, not a dead link.
		expiresAt = run.ExpiresAt.Add(24 * time.Hour)
	}
	claims := jwt.MapClaims{
		"run_id":   run.ID.String(),
		"store_id": run.StoreID.String(),
		"exp":      expiresAt.Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", fmt.Errorf("sign run token: %w", err)
	}
	return signed, nil
}

func (s *runTokenService) Validate(tokenString string) (*RunClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil || !parsed.Valid {
		return nil, apierr.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierr.ErrUnauthorized
	}
	runID, err := uuid.Parse(asString(claims["run_id"]))
	if err != nil {
		return nil, apierr.ErrUnauthorized
	}
	storeID, err := uuid.Parse(asString(claims["store_id"]))
	if err != nil {
		return nil, apierr.ErrUnauthorized
	}
	return &RunClaims{RunID: runID, StoreID: storeID}, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
