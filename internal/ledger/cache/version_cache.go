// Package cache memoizes derived asset versions in Redis. The cache is never
// authoritative: any miss or Redis failure falls back to deriving the version
// from the approved history.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/mod/semver"

	"custodian/internal/ledger/versioning"
	"custodian/pkg/domain"
)

const (
	keyPrefix        = "custodian:asset-version:"
	generationPrefix = "custodian:asset-version-gen:"
	DefaultTTL       = 10 * time.Minute
	// generationTTL outlives any in-flight derivation, so an expired
	// generation cannot come back to a value a reader already holds.
	generationTTL = 24 * time.Hour
)

// putIfCurrent stores ARGV[2] only while the generation still equals ARGV[1].
var putIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if gen == false then gen = "0" end
if gen ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// bumpGeneration drops the cached version and advances the generation in one
// step, which fails every Put computed against the previous generation.
var bumpGeneration = redis.NewScript(`
redis.call("DEL", KEYS[1])
local gen = redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
return gen
`)

// VersionCache stores rendered version strings keyed by asset id. Each asset
// also carries a generation counter that Invalidate advances; fills are
// accepted only against the generation the reader saw before deriving.
type VersionCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New creates a cache. A non-positive ttl uses DefaultTTL.
func New(client redis.Cmdable, ttl time.Duration) *VersionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &VersionCache{client: client, ttl: ttl}
}

func key(id domain.AssetID) string {
	return keyPrefix + id.String()
}

func generationKey(id domain.AssetID) string {
	return generationPrefix + id.String()
}

// Get returns the cached version and the current generation. ok is false on
// a miss or when the stored value is neither a valid semantic version nor
// the unversioned marker; the generation is still reported so the caller
// can fill the entry with Put.
func (c *VersionCache) Get(ctx context.Context, id domain.AssetID) (string, int64, bool, error) {
	vals, err := c.client.MGet(ctx, key(id), generationKey(id)).Result()
	if err != nil {
		return "", 0, false, fmt.Errorf("get cached version: %w", err)
	}
	gen, err := parseGeneration(vals[1])
	if err != nil {
		return "", 0, false, err
	}
	v, isString := vals[0].(string)
	if !isString || (v != versioning.Unversioned && !semver.IsValid(v)) {
		return "", gen, false, nil
	}
	return v, gen, true, nil
}

// Put stores version for id if generation is still current. stored is false
// when an invalidation happened since the caller's Get.
func (c *VersionCache) Put(ctx context.Context, id domain.AssetID, generation int64, version string) (bool, error) {
	if version != versioning.Unversioned && !semver.IsValid(version) {
		return false, fmt.Errorf("refusing to cache invalid version %q", version)
	}
	n, err := putIfCurrent.Run(ctx, c.client,
		[]string{key(id), generationKey(id)},
		strconv.FormatInt(generation, 10), version, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache version: %w", err)
	}
	return n == 1, nil
}

// Invalidate drops the cached version for id and advances its generation.
func (c *VersionCache) Invalidate(ctx context.Context, id domain.AssetID) error {
	err := bumpGeneration.Run(ctx, c.client,
		[]string{key(id), generationKey(id)},
		generationTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("invalidate cached version: %w", err)
	}
	return nil
}

func parseGeneration(v any) (int64, error) {
	raw, ok := v.(string)
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cache generation %q: %w", raw, err)
	}
	return gen, nil
}
