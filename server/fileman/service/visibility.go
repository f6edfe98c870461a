package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	commonlog "reno_server/server/common/log"
	"reno_server/server/fileman/domain"
)

type documentOwnershipStore interface {
	OwnedDocumentIDs(ctx context.Context, userID string) ([]string, error)
}

// VisibilityResolver produces the access predicate for a caller. The
// caller's owned document ids are fetched once and shared by the list
// query and every per-record check, so the two paths cannot drift.
type VisibilityResolver struct {
	store documentOwnershipStore
	redis *redis.Client
	ttl   time.Duration
}

func NewVisibilityResolver(store documentOwnershipStore, redisClient *redis.Client, ttl time.Duration) *VisibilityResolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &VisibilityResolver{store: store, redis: redisClient, ttl: ttl}
}

func (r *VisibilityResolver) Resolve(ctx context.Context, caller domain.Caller) (domain.Visibility, error) {
	if caller.IsAdmin() {
		return domain.Visibility{Admin: true, UserID: caller.ID}, nil
	}
	docIDs, err := r.ownedDocumentIDs(ctx, caller.ID)
	if err != nil {
		return domain.Visibility{}, err
	}
	return domain.Visibility{UserID: caller.ID, DocumentIDs: docIDs}, nil
}

func (r *VisibilityResolver) ownedDocumentIDs(ctx context.Context, userID string) ([]string, error) {
	key := "fileman:docids:" + userID
	if r.redis != nil {
		raw, err := r.redis.Get(ctx, key).Result()
		if err == nil {
			var ids []string
			if jsonErr := json.Unmarshal([]byte(raw), &ids); jsonErr == nil {
				return ids, nil
			}
		}
	}

	ids, err := r.store.OwnedDocumentIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}

	if r.redis != nil {
		if raw, err := json.Marshal(ids); err == nil {
			if err := r.redis.Set(ctx, key, raw, r.ttl).Err(); err != nil {
				commonlog.Warnf("cache owned document ids for %s: %v", userID, err)
			}
		}
	}
	return ids, nil
}
