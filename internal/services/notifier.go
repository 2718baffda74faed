package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
	"github.com/anicol/peokops-sub001/internal/utils"
)

// RunCreatedEvent is what the delivery layer consumes to send the
// magic-link notification. Delivery itself is external.
type RunCreatedEvent struct {
	RunID       string `json:"run_id"`
	StoreID     string `json:"store_id"`
	LocalDate   string `json:"local_date"`
	Trigger     string `json:"trigger"`
	ItemCount   int    `json:"item_count"`
	AccessToken string `json:"access_token"`
}

// RunNotifier emits the run-created event. Emission is best-effort: a
// failed publish never fails or rolls back run materialization.
type RunNotifier interface {
	RunCreated(ctx context.Context, run *types.Run, itemCount int, accessToken string)
}

// NoopRunNotifier is used when redis is not configured.
type NoopRunNotifier struct{}

func (NoopRunNotifier) RunCreated(ctx context.Context, run *types.Run, itemCount int, accessToken string) {
}

type redisRunNotifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisRunNotifier(log *logger.Logger) (RunNotifier, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := utils.GetEnv("RUN_EVENTS_CHANNEL", "run.created", log)

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

	return &redisRunNotifier{
		log:     log.With("service", "RedisRunNotifier"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (n *redisRunNotifier) RunCreated(ctx context.Context, run *types.Run, itemCount int, accessToken string) {
	if run == nil {
		return
	}
	event := RunCreatedEvent{
		RunID:       run.ID.String(),
		StoreID:     run.StoreID.String(),
		LocalDate:   run.LocalDate,
		Trigger:     string(run.Trigger),
		ItemCount:   itemCount,
		AccessToken: accessToken,
	}
	raw, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("failed to encode run created event", "run_id", run.ID, "error", err)
		return
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		n.log.Warn("failed to publish run created event", "run_id", run.ID, "error", err)
	}
}
