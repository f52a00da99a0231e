package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bananya-ml/arxiv-feed/internal/helpers"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

// Cache stores vectors by key. A miss is reported with ok == false.
type Cache interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Cached wraps an Embedder and consults a Cache first. Cache failures are
// logged and fall through to the wrapped embedder.
type Cached struct {
	next  Embedder
	cache Cache
	log   *logging.Logger
}

func NewCached(next Embedder, cache Cache, log *logging.Logger) *Cached {
	if log == nil {
		log = logging.Nop()
	}
	return &Cached{next: next, cache: cache, log: log}
}

func (c *Cached) Name() string   { return c.next.Name() }
func (c *Cached) Dimension() int { return c.next.Dimension() }

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		vec, ok, err := c.cache.Get(ctx, c.key(text))
		if err != nil {
			c.log.Warn("embedding cache read failed", "error", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	vecs, err := c.next.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", c.next.Name(), len(vecs), len(batch))
	}
	for j, i := range missing {
		out[i] = vecs[j]
		if err := c.cache.Set(ctx, c.key(texts[i]), vecs[j]); err != nil {
			c.log.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

// Keys carry the dimension so embedders that share a name but project to
// different sizes never read each other's vectors.
func (c *Cached) key(text string) string {
	return fmt.Sprintf("emb:%s:%d:%s", c.next.Name(), c.next.Dimension(), helpers.Sha256Hex(text))
}

// RedisCache keeps vectors as little-endian float32 blobs with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false, fmt.Errorf("corrupt cached vector for %s", key)
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return r.client.Set(ctx, key, buf, r.ttl).Err()
}
