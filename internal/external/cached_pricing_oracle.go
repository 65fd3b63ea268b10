package external

import (
	"context"
	"time"

	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/pkg/logger"

	"go.uber.org/zap"
)

// QuoteCache is the subset of the Redis quote cache the oracle needs.
type QuoteCache interface {
	Get(ctx context.Context, flightID string) (model.PriceQuote, error)
	Set(ctx context.Context, flightID string, quote model.PriceQuote, ttl time.Duration) error
}

// CachedPricingOracle serves quotes from the cache and only calls the
// oracle on a miss. Cache failures are logged and otherwise ignored.
type CachedPricingOracle struct {
	inner PricingOracle
	cache QuoteCache
	ttl   time.Duration
}

func NewCachedPricingOracle(inner PricingOracle, cache QuoteCache, ttl time.Duration) *CachedPricingOracle {
	return &CachedPricingOracle{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func (o *CachedPricingOracle) Quote(ctx context.Context, flight *model.Flight) (model.PriceQuote, error) {
	if quote, err := o.cache.Get(ctx, flight.ID); err == nil {
		return quote, nil
	}

	quote, err := o.inner.Quote(ctx, flight)
	if err != nil {
		return model.PriceQuote{}, err
	}

	if err := o.cache.Set(ctx, flight.ID, quote, o.ttl); err != nil {
		logger.WithComponent("pricing").Warn("cache price quote failed",
			zap.String("flight_id", flight.ID),
			zap.Error(err),
		)
	}
	return quote, nil
}
