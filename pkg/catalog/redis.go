package catalog

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/observability"
)

const (
	redisKeyPrefix = "corral:definition:"
	redisIndexKey  = "corral:definitions"
)

// RedisStore is a [Store] backed by Redis, for catalogs shared between
// editor sessions. Definitions are stored as JSON values with a set index
// for listing.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put implements [Store].
func (s *RedisStore) Put(ctx context.Context, def *Definition) error {
	if def == nil || def.ID == "" {
		return errors.New(errors.ErrCodeInvalidDocument, "definition must have an id")
	}
	data, err := json.Marshal(def)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "encode definition %q", def.ID)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+def.ID, data, 0)
	pipe.SAdd(ctx, redisIndexKey, def.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "store definition %q", def.ID)
	}
	observability.Catalog().OnPut(ctx, def.ID)
	return nil
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, id string) (*Definition, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		observability.Catalog().OnGet(ctx, id, false)
		return nil, errors.New(errors.ErrCodeDefinitionNotFound, "definition %q not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "load definition %q", id)
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "decode definition %q", id)
	}
	observability.Catalog().OnGet(ctx, id, true)
	return &def, nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+id)
	pipe.SRem(ctx, redisIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "delete definition %q", id)
	}
	observability.Catalog().OnDelete(ctx, id)
	return nil
}

// List implements [Store].
func (s *RedisStore) List(ctx context.Context) ([]*Definition, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "list definitions")
	}
	out := make([]*Definition, 0, len(ids))
	for _, id := range ids {
		def, err := s.Get(ctx, id)
		if err != nil {
			if errors.GetCode(err) == errors.ErrCodeDefinitionNotFound {
				// Index drift: the set outlived the value. Heal silently.
				_ = s.client.SRem(ctx, redisIndexKey, id).Err()
				continue
			}
			return nil, err
		}
		out = append(out, def)
	}
	sortDefinitions(out)
	observability.Catalog().OnList(ctx, len(out))
	return out, nil
}
