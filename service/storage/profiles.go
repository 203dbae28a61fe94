package storage

import (
	"context"
	"encoding/json"
	"time"

	"PPDirect/logger"
	usermodel "PPDirect/module/user/model"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ProfileSource resolves user projections from the system of record.
type ProfileSource interface {
	Projections(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]usermodel.Projection, error)
}

func profileKey(id primitive.ObjectID) string { return "ppd:profile:" + id.Hex() }

// ProfileCache is a read-through Redis cache in front of a ProfileSource.
// A Redis failure degrades to the source; it is never returned.
type ProfileCache struct {
	rdb    *redis.Client
	source ProfileSource
	ttl    time.Duration
}

func NewProfileCache(rdb *redis.Client, source ProfileSource, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{rdb: rdb, source: source, ttl: ttl}
}

func (c *ProfileCache) Projections(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]usermodel.Projection, error) {
	ids = lo.Uniq(ids)
	out := make(map[primitive.ObjectID]usermodel.Projection, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	vals, err := c.rdb.MGet(ctx, lo.Map(ids, func(id primitive.ObjectID, _ int) string { return profileKey(id) })...).Result()
	if err != nil {
		logger.Warn("profile cache read", zap.Error(err))
		vals = make([]any, len(ids))
	}

	var misses []primitive.ObjectID
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var p usermodel.Projection
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			misses = append(misses, ids[i])
			continue
		}
		out[ids[i]] = p
	}
	if len(misses) == 0 {
		return out, nil
	}

	found, err := c.source.Projections(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := c.rdb.Pipeline()
	for id, p := range found {
		out[id] = p
		if b, err := json.Marshal(p); err == nil {
			pipe.Set(ctx, profileKey(id), b, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("profile cache write", zap.Error(err))
	}
	return out, nil
}

// Invalidate drops cached projections, for example after a profile edit.
func (c *ProfileCache) Invalidate(ctx context.Context, ids ...primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, lo.Map(ids, func(id primitive.ObjectID, _ int) string { return profileKey(id) })...).Err()
}
