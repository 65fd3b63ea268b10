package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-gin-flight-booking/internal/model"

	"github.com/redis/go-redis/v9"
)

var ErrQuoteNotCached = errors.New("price quote not cached")

type PriceQuoteCache interface {
	// 取得：尚未快取或已過期時回傳 ErrQuoteNotCached
	Get(ctx context.Context, flightID string) (model.PriceQuote, error)
	// 寫入：報價在 ttl 後過期
	Set(ctx context.Context, flightID string, quote model.PriceQuote, ttl time.Duration) error
	// 失效：座位數變動後清除舊報價
	Invalidate(ctx context.Context, flightID string) error
}

type RedisPriceQuoteCacheImpl struct {
	client *redis.Client
}

func NewRedisPriceQuoteCache(client *redis.Client) PriceQuoteCache {
	return &RedisPriceQuoteCacheImpl{
		client: client,
	}
}

func QuoteKey(flightID string) string {
	return fmt.Sprintf("flight:%s:quote", flightID)
}

func (c *RedisPriceQuoteCacheImpl) Get(ctx context.Context, flightID string) (model.PriceQuote, error) {
	raw, err := c.client.Get(ctx, QuoteKey(flightID)).Result()
	if err == redis.Nil {
		return model.PriceQuote{}, ErrQuoteNotCached
	}
	if err != nil {
		return model.PriceQuote{}, err
	}

	var quote model.PriceQuote
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		return model.PriceQuote{}, fmt.Errorf("invalid cached quote: %w", err)
	}
	return quote, nil
}

func (c *RedisPriceQuoteCacheImpl) Set(ctx context.Context, flightID string, quote model.PriceQuote, ttl time.Duration) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	return c.client.Set(ctx, QuoteKey(flightID), string(data), ttl).Err()
}

func (c *RedisPriceQuoteCacheImpl) Invalidate(ctx context.Context, flightID string) error {
	return c.client.Del(ctx, QuoteKey(flightID)).Err()
}
