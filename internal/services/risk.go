package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
	"github.com/anicol/peokops-sub001/internal/utils"
)

// RiskProvider exposes the optional externally computed failure-probability
// estimate per (store, lineage). Absence is a normal answer; errors and
// timeouts are swallowed into absence so selection never stalls or fails on
// the optional signal.
type RiskProvider interface {
	GetRiskScore(ctx context.Context, storeID, lineageID uuid.UUID) (*types.RiskSignal, error)
}

// NoopRiskProvider reports every score as absent. Used when redis is not
// configured.
type NoopRiskProvider struct{}

func (NoopRiskProvider) GetRiskScore(ctx context.Context, storeID, lineageID uuid.UUID) (*types.RiskSignal, error) {
	return nil, nil
}

const riskMinSamples = 100

type redisRiskProvider struct {
	log     *logger.Logger
	rdb     *goredis.Client
	timeout time.Duration
}

// NewRedisRiskProvider reads scores the out-of-band refresher writes into
// redis: hash `risk:{storeID}` keyed by lineage id, plus a global
// `risk:samples` counter. Scores are not trusted until the system has seen
// at least 100 historical samples.
func NewRedisRiskProvider(log *logger.Logger) (RiskProvider, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	timeoutMs := utils.GetEnvAsInt("RISK_LOOKUP_TIMEOUT_MS", 250, log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisRiskProvider{
		log:     log.With("service", "RedisRiskProvider"),
		rdb:     rdb,
		timeout: time.Duration(timeoutMs) * time.Millisecond,
	}, nil
}

func (p *redisRiskProvider) GetRiskScore(ctx context.Context, storeID, lineageID uuid.UUID) (*types.RiskSignal, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	samplesRaw, err := p.rdb.Get(lookupCtx, "risk:samples").Result()
	if err != nil {
		if err != goredis.Nil {
			p.log.Debug("risk sample count lookup failed, treating score as absent", "error", err)
		}
		return nil, nil
	}
	samples, err := strconv.Atoi(samplesRaw)
	if err != nil || samples < riskMinSamples {
		return nil, nil
	}

	raw, err := p.rdb.HGet(lookupCtx, "risk:"+storeID.String(), lineageID.String()).Result()
	if err != nil {
		if err != goredis.Nil {
			p.log.Debug("risk score lookup failed, treating score as absent", "error", err)
		}
		return nil, nil
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil || score < 0 || score > 1 {
		p.log.Warn("malformed risk score, treating as absent", "store_id", storeID, "lineage_id", lineageID, "raw", raw)
		return nil, nil
	}
	return &types.RiskSignal{Score: score, RefreshedAt: time.Now()}, nil
}
