package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

// Redis caches conflict-filtered slot grids per client and local date. Each
// client has an index set of its cached keys so a settings change can drop
// them all without SCAN, and a generation counter that every invalidation
// bumps before deleting.
type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ booking.SlotCache = (*Redis)(nil)

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bookwell"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *Redis) key(clientID, date string) string {
	return c.prefix + ":slots:" + clientID + ":" + date
}

func (c *Redis) indexKey(clientID string) string {
	return c.prefix + ":slots:" + clientID + ":index"
}

func (c *Redis) genKey(clientID string) string {
	return c.prefix + ":slots:" + clientID + ":gen"
}

// genTTL outlives any grid computed against the generation it guards.
func (c *Redis) genTTL() time.Duration {
	if d := 4 * c.ttl; d > 24*time.Hour {
		return d
	}
	return 24 * time.Hour
}

// KEYS: gen, slot key, index. ARGV: expected gen, payload, ttl ms, index ttl ms.
var conditionalSetScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1]) or "0"
if cur ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("SADD", KEYS[3], KEYS[2])
redis.call("PEXPIRE", KEYS[3], ARGV[4])
return 1
`)

func (c *Redis) Generation(ctx context.Context, clientID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey(clientID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Redis) Get(ctx context.Context, clientID, date string) ([]model.Slot, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(clientID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var slots []model.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, err
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	return slots, true, nil
}

// Set is a no-op when the client was invalidated after gen was read.
func (c *Redis) Set(ctx context.Context, clientID, date string, gen int64, slots []model.Slot) error {
	if slots == nil {
		slots = []model.Slot{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	keys := []string{c.genKey(clientID), c.key(clientID, date), c.indexKey(clientID)}
	return conditionalSetScript.Run(ctx, c.rdb, keys,
		strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds(), (2 * c.ttl).Milliseconds()).Err()
}

func (c *Redis) bump(ctx context.Context, clientID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, c.genKey(clientID))
		p.PExpire(ctx, c.genKey(clientID), c.genTTL())
		return nil
	})
	return err
}

func (c *Redis) Invalidate(ctx context.Context, clientID string, dates ...string) error {
	if len(dates) == 0 {
		return nil
	}
	if err := c.bump(ctx, clientID); err != nil {
		return err
	}
	keys := make([]string, 0, len(dates))
	members := make([]any, 0, len(dates))
	for _, d := range dates {
		k := c.key(clientID, d)
		keys = append(keys, k)
		members = append(members, k)
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.SRem(ctx, c.indexKey(clientID), members...)
		return nil
	})
	return err
}

func (c *Redis) InvalidateClient(ctx context.Context, clientID string) error {
	if err := c.bump(ctx, clientID); err != nil {
		return err
	}
	idx := c.indexKey(clientID)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	return c.rdb.Del(ctx, append(keys, idx)...).Err()
}
