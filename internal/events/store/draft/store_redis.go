package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crvs/internal/events/models"
	id "crvs/pkg/domain"
	"crvs/pkg/platform/sentinel"
)

const (
	draftKeyPrefix = "draft:"
	indexKeyPrefix = "drafts:"
)

// RedisStore keeps each draft under draft:{user}:{event} with a TTL and
// indexes a user's drafts in the set drafts:{user}. Index members whose draft
// expired are pruned on list.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func draftKey(userID id.UserID, eventID id.EventID) string {
	return draftKeyPrefix + userID.String() + ":" + eventID.String()
}

func indexKey(userID id.UserID) string {
	return indexKeyPrefix + userID.String()
}

func (s *RedisStore) Save(ctx context.Context, d *models.Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, draftKey(d.CreatedBy, d.EventID), raw, s.ttl)
	pipe.SAdd(ctx, indexKey(d.CreatedBy), d.EventID.String())
	if s.ttl > 0 {
		pipe.Expire(ctx, indexKey(d.CreatedBy), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Draft, error) {
	raw, err := s.client.Get(ctx, draftKey(userID, eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	var d models.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Draft, error) {
	members, err := s.client.SMembers(ctx, indexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list draft index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = draftKeyPrefix + userID.String() + ":" + member
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}

	var (
		out   []*models.Draft
		stale []any
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		var d models.Draft
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode draft: %w", err)
		}
		out = append(out, &d)
	}
	if len(stale) > 0 {
		// best effort; a failed prune is retried on the next list
		_ = s.client.SRem(ctx, indexKey(userID), stale...).Err()
	}
	sortDrafts(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID id.UserID, eventID id.EventID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, draftKey(userID, eventID))
	pipe.SRem(ctx, indexKey(userID), eventID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
