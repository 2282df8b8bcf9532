package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kanbanServer/backend/internal/model"
)

// expired members are dropped from both keys before a read
var cleanupScript = redis.NewScript(`
-- KEYS[1] = room zset, KEYS[2] = entries hash, ARGV[1] = now (unix seconds)
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

// RedisPresence mirrors board presence into Redis so every process can list a
// board's online users. Entries carry a logical TTL (ZSet score = expireAt).
type RedisPresence struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisPresence(rdb redis.UniversalClient) *RedisPresence {
	return &RedisPresence{rdb: rdb, now: time.Now}
}

// Join adds or refreshes an entry. Calling it again extends the TTL.
func (p *RedisPresence) Join(ctx context.Context, entry model.Presence, ttl time.Duration) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	expireAt := p.now().Add(ttl).Unix()
	tx := p.rdb.TxPipeline()
	tx.ZAdd(ctx, roomKey(entry.BoardID), redis.Z{Score: float64(expireAt), Member: entry.SessionID})
	tx.HSet(ctx, entriesKey(entry.BoardID), entry.SessionID, b)
	_, err = tx.Exec(ctx)
	return err
}

func (p *RedisPresence) Leave(ctx context.Context, boardID, sessionID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(boardID), sessionID)
	tx.HDel(ctx, entriesKey(boardID), sessionID)
	_, err := tx.Exec(ctx)
	return err
}

// Online returns the live entries on boardID ordered by join time.
func (p *RedisPresence) Online(ctx context.Context, boardID string) ([]model.Presence, error) {
	now := p.now().Unix()
	err := cleanupScript.Run(ctx, p.rdb, []string{roomKey(boardID), entriesKey(boardID)}, now).Err()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	alive, err := p.rdb.ZRangeByScore(ctx, roomKey(boardID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(alive) == 0 {
		return []model.Presence{}, nil
	}

	raw, err := p.rdb.HMGet(ctx, entriesKey(boardID), alive...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]model.Presence, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var entry model.Presence
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}
