package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	listVersionKey = "board:list:version"
	listKeyPrefix  = "board:list"
)

// ListCache caches raw post pages in Redis under a version number that every
// mutation bumps. Lock flags are computed per request and never cached.
type ListCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// cachedPage is the stored form of one page.
type cachedPage struct {
	Posts []Post `json:"posts"`
	Total int    `json:"total"`
}

// NewListCache returns a cache. A nil client yields a pass-through cache.
func NewListCache(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *ListCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListCache{client: client, ttl: ttl, logger: logger}
}

// Version returns the current list version, initialising when missing.
func (c *ListCache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, listVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, listVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, listVersionKey).Int64()
	}
	return ver, err
}

func (c *ListCache) key(ver int64, q ListQuery) string {
	return strings.Join([]string{
		listKeyPrefix,
		strconv.FormatInt(ver, 10),
		strconv.Itoa(q.Page),
		strconv.Itoa(q.PerPage),
		strings.ToLower(strings.TrimSpace(q.Search)),
	}, ":")
}

// Fetch returns the cached page for q or fills it with load. Concurrent
// misses for the same key share one load, which runs detached from the
// cancellation of any single caller. Redis failures degrade to a direct load.
func (c *ListCache) Fetch(ctx context.Context, q ListQuery, load func(context.Context) ([]Post, int, error)) ([]Post, int, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		c.logger.Warn("board list cache unavailable", slog.Any("error", err))
		return load(ctx)
	}
	key := c.key(ver, q)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var page cachedPage
		if err := json.Unmarshal(raw, &page); err == nil {
			return page.Posts, page.Total, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("board list cache read", slog.Any("error", err))
		return load(ctx)
	}

	fillCtx := context.WithoutCancel(ctx)
	result := c.group.DoChan(key, func() (any, error) {
		posts, total, err := load(fillCtx)
		if err != nil {
			return nil, err
		}
		page := cachedPage{Posts: posts, Total: total}
		if raw, err := json.Marshal(page); err == nil {
			if err := c.client.Set(fillCtx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("board list cache write", slog.Any("error", err))
			}
		}
		return page, nil
	})
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, 0, res.Err
		}
		page := res.Val.(cachedPage)
		return page.Posts, page.Total, nil
	}
}

// Bump invalidates every cached page.
func (c *ListCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, listVersionKey).Err(); err != nil {
		return fmt.Errorf("board: bump list cache: %w", err)
	}
	return nil
}
