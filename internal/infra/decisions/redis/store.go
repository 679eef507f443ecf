// Package redis stores conflict decisions in a Redis hash so several importer
// processes share one decision cache.
package redis

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"interactiondb/pkg/domain"
)

// DefaultHashKey is the Redis hash holding all decisions.
const DefaultHashKey = "interactiondb:decisions:v1"

var _ domain.DecisionStore = (*Store)(nil)

// hashClient is the subset of *redis.Client the store relies on.
type hashClient interface {
	HSetNX(ctx context.Context, key, field string, value interface{}) *redis.BoolCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Store implements domain.DecisionStore on a Redis hash keyed by resolution
// key. HSETNX gives first-writer-wins semantics.
type Store struct {
	redis hashClient
	key   string
}

// NewStore wraps a client. An empty hashKey selects DefaultHashKey.
func NewStore(client hashClient, hashKey string) *Store {
	if hashKey == "" {
		hashKey = DefaultHashKey
	}
	return &Store{redis: client, key: hashKey}
}

// Open parses a redis:// URL and returns a store with its client. The caller
// closes the client.
func Open(ctx context.Context, url string) (*Store, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "ping redis")
	}
	return NewStore(client, ""), client, nil
}

type decisionModel struct {
	Verdict   string `json:"verdict"`
	Automatic bool   `json:"automatic"`
}

func (s *Store) PutDecision(ctx context.Context, d domain.Decision) error {
	payload, err := json.Marshal(decisionModel{Verdict: string(d.Verdict), Automatic: d.Automatic})
	if err != nil {
		return err
	}
	created, err := s.redis.HSetNX(ctx, s.key, d.Key, payload).Result()
	if err != nil {
		return errors.Wrap(err, "store decision")
	}
	if !created {
		return errors.Wrap(domain.ErrDuplicate, "decision "+d.Key)
	}
	return nil
}

func (s *Store) Decision(ctx context.Context, key string) (domain.Decision, bool, error) {
	raw, err := s.redis.HGet(ctx, s.key, key).Result()
	if err != nil {
		if err == redis.Nil {
			return domain.Decision{}, false, nil
		}
		return domain.Decision{}, false, errors.Wrap(err, "load decision")
	}
	d, err := decode(key, raw)
	if err != nil {
		return domain.Decision{}, false, err
	}
	return d, true, nil
}

func (s *Store) Decisions(ctx context.Context) ([]domain.Decision, error) {
	all, err := s.redis.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list decisions")
	}
	out := make([]domain.Decision, 0, len(all))
	for key, raw := range all {
		d, err := decode(key, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func decode(key, raw string) (domain.Decision, error) {
	var model decisionModel
	if err := json.Unmarshal([]byte(raw), &model); err != nil {
		return domain.Decision{}, errors.Wrapf(err, "decode decision %q", key)
	}
	return domain.Decision{Key: key, Verdict: domain.Verdict(model.Verdict), Automatic: model.Automatic}, nil
}
