// Package cache adds a Redis read-through cache in front of a
// costing.Source. Scheme documents, the material master and strata growth
// are cached; sales windows always go to the underlying source.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

const cacheVersionKey = "costing:version"

// Connect creates a Redis client and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return client, nil
}

// Source wraps a costing.Source with versioned cache entries. Redis is
// best-effort: a failing cache is logged and reads go to the wrapped source.
type Source struct {
	next   costing.Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger for cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSource wraps next. A nil client disables caching.
func NewSource(next costing.Source, client *redis.Client, ttl time.Duration, opts ...Option) *Source {
	s := &Source{next: next, client: client, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version returns the current cache version, initialising when missing.
func (s *Source) Version(ctx context.Context) (int64, error) {
	if s.client == nil {
		return 0, nil
	}
	ver, err := s.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := s.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every entry by moving to a new version.
func (s *Source) Bump(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, cacheVersionKey).Err()
}

func (s *Source) buildKey(ctx context.Context, parts ...string) (string, error) {
	ver, err := s.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(append([]string{"costing"}, parts...), ":"), ver), nil
}

// fetchJSON loads a cached value or populates it using the loader. Redis
// errors fall back to the loader; loader errors are returned.
func (s *Source) fetchJSON(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	if s.client == nil {
		return load(ctx, dest, loader)
	}
	key, err := s.buildKey(ctx, parts...)
	if err != nil {
		s.warn(ctx, "cache: version lookup failed", parts, err)
		return load(ctx, dest, loader)
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(payload, dest); err == nil {
			return nil
		}
		s.warn(ctx, "cache: discarding undecodable entry", parts, err)
	} else if !errors.Is(err, redis.Nil) {
		s.warn(ctx, "cache: get failed", parts, err)
		return load(ctx, dest, loader)
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.warn(ctx, "cache: set failed", parts, err)
	}
	return json.Unmarshal(raw, dest)
}

func (s *Source) warn(ctx context.Context, msg string, parts []string, err error) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Warn(msg,
		slog.String("key", strings.Join(parts, ":")),
		slog.Any("error", err))
}

func load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Scheme returns the definition document, cached as raw JSON.
func (s *Source) Scheme(ctx context.Context, schemeID string) ([]byte, error) {
	var doc json.RawMessage
	err := s.fetchJSON(ctx, &doc, func(ctx context.Context) (any, error) {
		raw, err := s.next.Scheme(ctx, schemeID)
		if err != nil {
			return nil, err
		}
		if !json.Valid(raw) {
			// Not cacheable as JSON; the factory reports it.
			return nil, &passthrough{raw: raw}
		}
		return json.RawMessage(raw), nil
	}, "scheme", schemeID)
	var pt *passthrough
	if errors.As(err, &pt) {
		return pt.raw, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Sales is never cached.
func (s *Source) Sales(ctx context.Context, window scheme.Period) ([]sales.Row, error) {
	return s.next.Sales(ctx, window)
}

func (s *Source) MaterialMaster(ctx context.Context) (sales.MaterialMaster, error) {
	var master sales.MaterialMaster
	err := s.fetchJSON(ctx, &master, func(ctx context.Context) (any, error) {
		return s.next.MaterialMaster(ctx)
	}, "materials")
	return master, err
}

func (s *Source) StrataGrowth(ctx context.Context, schemeID string) (map[string]float64, error) {
	var growth map[string]float64
	err := s.fetchJSON(ctx, &growth, func(ctx context.Context) (any, error) {
		return s.next.StrataGrowth(ctx, schemeID)
	}, "strata", schemeID)
	return growth, err
}

// passthrough carries an invalid document past the cache.
type passthrough struct{ raw []byte }

func (p *passthrough) Error() string { return "cache: scheme document is not valid JSON" }
