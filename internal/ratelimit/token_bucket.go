package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dunamismax/mediaflow/internal/domain"
)

const defaultKeyPrefix = "mediaflow:ratelimit"

// conversionBucketScript keeps one bucket per client as "millitokens:ms" in
// a single string key. Tokens are stored in thousandths so the refill stays
// integral. ARGV: capacity (tokens), refill millitokens per ms, now ms,
// cost (tokens). Returns {allowed, remaining tokens, retry ms, full ms}.
var conversionBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1]) * 1000
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4]) * 1000

local level = capacity
local stored = redis.call("GET", KEYS[1])
if stored then
  local sep = string.find(stored, ":", 1, true)
  local prev_level = tonumber(string.sub(stored, 1, sep - 1))
  local prev_at = tonumber(string.sub(stored, sep + 1))
  level = math.min(capacity, prev_level + math.max(0, now - prev_at) * refill)
end

local allowed = 0
local retry_ms = 0
if level >= cost then
  level = level - cost
  allowed = 1
else
  retry_ms = math.ceil((cost - level) / refill)
end

local full_ms = math.ceil((capacity - level) / refill)
redis.call("SET", KEYS[1], string.format("%d:%d", level, now), "PX", full_ms + 1000)

return {allowed, math.floor(level / 1000), retry_ms, full_ms}
`)

// Costs is what one conversion of each pipeline takes from a client's
// bucket. Images decode and re-encode whole rasters, so they cost more.
type Costs struct {
	Image    int
	Subtitle int
}

// For returns the cost of one conversion in pipeline.
func (c Costs) For(pipeline string) (int, error) {
	switch pipeline {
	case domain.PipelineImage:
		return c.Image, nil
	case domain.PipelineSubtitle:
		return c.Subtitle, nil
	default:
		return 0, fmt.Errorf("no rate limit cost for pipeline %q", pipeline)
	}
}

type Config struct {
	Capacity  int
	Window    time.Duration
	Costs     Costs
	KeyPrefix string
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Cost      int
	// RetryAfter is zero when the conversion was allowed.
	RetryAfter time.Duration
	// ResetAfter is how long until the bucket is full again.
	ResetAfter time.Duration
}

// ConversionLimiter charges every conversion a client starts against a
// single Redis token bucket shared by both pipelines.
type ConversionLimiter struct {
	client    redis.UniversalClient
	capacity  int
	refill    float64
	costs     Costs
	keyPrefix string
	now       func() time.Time
}

func NewConversionLimiter(client redis.UniversalClient, cfg Config) (*ConversionLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	for pipeline, cost := range map[string]int{domain.PipelineImage: cfg.Costs.Image, domain.PipelineSubtitle: cfg.Costs.Subtitle} {
		if cost < 1 || cost > cfg.Capacity {
			return nil, fmt.Errorf("%s cost must be between 1 and capacity %d, got %d", pipeline, cfg.Capacity, cost)
		}
	}

	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	windowMS := max(cfg.Window.Milliseconds(), 1)
	return &ConversionLimiter{
		client:    client,
		capacity:  cfg.Capacity,
		refill:    float64(cfg.Capacity) * 1000 / float64(windowMS),
		costs:     cfg.Costs,
		keyPrefix: prefix,
		now:       time.Now,
	}, nil
}

func (l *ConversionLimiter) key(clientID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "anonymous"
	}
	return l.keyPrefix + ":client:" + clientID
}

// Allow charges one conversion in pipeline to clientID's bucket.
func (l *ConversionLimiter) Allow(ctx context.Context, clientID, pipeline string) (Decision, error) {
	cost, err := l.costs.For(pipeline)
	if err != nil {
		return Decision{}, err
	}

	raw, err := conversionBucketScript.Run(
		ctx,
		l.client,
		[]string{l.key(clientID)},
		l.capacity,
		l.refill,
		l.now().UTC().UnixMilli(),
		cost,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run conversion bucket script: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 4 {
		return Decision{}, fmt.Errorf("unexpected conversion bucket reply %v", raw)
	}
	var parsed [4]int64
	for i, v := range values {
		if parsed[i], err = toInt64(v); err != nil {
			return Decision{}, fmt.Errorf("conversion bucket reply field %d: %w", i, err)
		}
	}

	return Decision{
		Allowed:    parsed[0] == 1,
		Limit:      int64(l.capacity),
		Remaining:  parsed[1],
		Cost:       cost,
		RetryAfter: time.Duration(parsed[2]) * time.Millisecond,
		ResetAfter: time.Duration(parsed[3]) * time.Millisecond,
	}, nil
}

// NewRedisClient opens the client used by the limiter and checks the
// connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
