// Package queue implements the Redis-backed mission queue and per-mission
// result channel described in §6 of the specification, grounded on
// itsneelabh-gomind's orchestration/redis_task_queue.go LPUSH/BRPOP task
// queue pattern.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/linkpellow/chimera-core/internal/domain"
)

const (
	missionsKey    = "chimera:missions"
	resultKeyPrefix = "chimera:results:"
)

// MissionEnvelope is the JSON document pushed onto the mission queue.
type MissionEnvelope struct {
	MissionID      string            `json:"mission_id"`
	Instruction    string            `json:"instruction,omitempty"`
	Lead           domain.Lead       `json:"lead"`
	TargetProvider string            `json:"target_provider,omitempty"`
	Blueprint      *domain.Blueprint `json:"blueprint,omitempty"`
	Carrier        string            `json:"carrier,omitempty"`
}

// ResultEnvelope is the JSON document a worker pushes to a mission's result
// list on completion.
type ResultEnvelope struct {
	Status          domain.MissionStatus `json:"status"`
	VisionConfidence float64             `json:"vision_confidence"`
	CaptchaSolved   bool                 `json:"captcha_solved"`
	DurationSeconds float64              `json:"duration_s"`
	Provider        string               `json:"provider"`
	Extracted       map[string]string    `json:"extracted,omitempty"`
	TraumaSignals   []string             `json:"trauma_signals,omitempty"`
}

// Config configures the MissionQueue's queue key and blocking-pop wait.
// New fills RetryAttempts and RetryDelay with defaults, but no queue
// operation retries.
type Config struct {
	QueueKey       string
	ResultPopWait  time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

// DefaultConfig returns sane defaults, matching the ≥10s blocking pop
// requirement in spec.md §4.2.
func DefaultConfig() Config {
	return Config{
		QueueKey:      missionsKey,
		ResultPopWait: 15 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// MissionQueue wraps a redis.Client with the mission FIFO and result-channel
// operations. Enqueue goes through a circuit breaker like the teacher's
// RedisTaskQueue; the other operations call Redis directly.
type MissionQueue struct {
	client  *redis.Client
	cfg     Config
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
}

// New constructs a MissionQueue, filling unset config fields with defaults
// exactly as RedisTaskQueueConfig does.
func New(client *redis.Client, cfg Config, logger *zap.Logger) *MissionQueue {
	if cfg.QueueKey == "" {
		cfg.QueueKey = missionsKey
	}
	if cfg.ResultPopWait <= 0 {
		cfg.ResultPopWait = 15 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mission-queue-redis",
		Timeout: 30 * time.Second,
	})
	return &MissionQueue{client: client, cfg: cfg, logger: logger, breaker: breaker}
}

// Enqueue pushes a mission onto the left of the queue; pop is non-blocking
// per the producer side and blocking (BRPOP) on the worker side.
func (q *MissionQueue) Enqueue(ctx context.Context, env MissionEnvelope) error {
	if env.MissionID == "" {
		return fmt.Errorf("mission id is required")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal mission: %w", err)
	}
	_, err = q.breaker.Execute(func() (any, error) {
		return nil, q.client.LPush(ctx, q.cfg.QueueKey, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("enqueue mission %s: %w", env.MissionID, err)
	}
	return nil
}

// Dequeue blocks up to the configured wait for a mission, returning
// (nil, nil) on timeout so callers can loop and check for shutdown.
func (q *MissionQueue) Dequeue(ctx context.Context) (*MissionEnvelope, error) {
	res, err := q.client.BRPop(ctx, q.cfg.ResultPopWait, q.cfg.QueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue mission: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply shape: %v", res)
	}
	var env MissionEnvelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("unmarshal mission: %w", err)
	}
	return &env, nil
}

// PublishResult pushes exactly one result document to the mission's result
// list, satisfying invariant 4 in spec.md §8.
func (q *MissionQueue) PublishResult(ctx context.Context, missionID string, result ResultEnvelope) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	key := resultKeyPrefix + missionID
	return q.client.LPush(ctx, key, payload).Err()
}

// AwaitResult blocks up to timeout for a result on the mission's result
// list.
func (q *MissionQueue) AwaitResult(ctx context.Context, missionID string, timeout time.Duration) (*ResultEnvelope, error) {
	key := resultKeyPrefix + missionID
	res, err := q.client.BRPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("result for mission %s: %w", missionID, context.DeadlineExceeded)
	}
	if err != nil {
		return nil, fmt.Errorf("await result %s: %w", missionID, err)
	}
	var result ResultEnvelope
	if err := json.Unmarshal([]byte(res[1]), &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}
