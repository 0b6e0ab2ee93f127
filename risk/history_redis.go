package risk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/sigil/core"
)

const (
	ipSetPrefix      = "sigil:risk:ips:"
	attemptZPrefix   = "sigil:risk:att:"
	attemptRetention = time.Hour
)

// RedisHistory is the distributed History. Known IPs and attempt
// timestamps live in sorted sets scored by unix nanos, pruned on write.
type RedisHistory struct {
	client *redis.Client
}

// NewRedisHistory creates a history on an existing client.
func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client}
}

func histErr(op string, err error) error {
	return fmt.Errorf("risk history %s: %v: %w", op, err, core.ErrStoreUnavailable)
}

func (h *RedisHistory) Observe(ctx context.Context, subject, ip string, at time.Time) error {
	score := float64(at.UnixNano())
	pipe := h.client.TxPipeline()
	if ip != "" {
		ipKey := ipSetPrefix + subject
		pipe.ZAdd(ctx, ipKey, redis.Z{Score: score, Member: ip})
		pipe.ZRemRangeByScore(ctx, ipKey, "-inf", formatNanos(at.Add(-ipRetention)))
		pipe.Expire(ctx, ipKey, ipRetention)
	}
	attKey := attemptZPrefix + subject
	pipe.ZAdd(ctx, attKey, redis.Z{Score: score, Member: strconv.FormatInt(at.UnixNano(), 10)})
	pipe.ZRemRangeByScore(ctx, attKey, "-inf", formatNanos(at.Add(-attemptRetention)))
	pipe.Expire(ctx, attKey, attemptRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return histErr("observe", err)
	}
	return nil
}

func (h *RedisHistory) KnownIP(ctx context.Context, subject, ip string) (bool, error) {
	_, err := h.client.ZScore(ctx, ipSetPrefix+subject, ip).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, histErr("known ip", err)
	}
	return true, nil
}

func (h *RedisHistory) AttemptsSince(ctx context.Context, subject string, since time.Time) (int, error) {
	n, err := h.client.ZCount(ctx, attemptZPrefix+subject, "("+formatNanos(since), "+inf").Result()
	if err != nil {
		return 0, histErr("attempts", err)
	}
	return int(n), nil
}

func formatNanos(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

var _ History = (*RedisHistory)(nil)
