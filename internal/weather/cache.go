package weather

import (
	"context"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/singletrack/race-control/internal/models"
)

// CachedProvider wraps a Provider with a read-through in-memory cache.
// Keys round coordinates so nearby lookups share an entry; forecast keys
// include the target hour.
type CachedProvider struct {
	provider Provider
	cache    *cache.Cache
	ttl      time.Duration
}

// NewCachedProvider creates a read-through cache around the given provider
func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    cache.New(ttl, ttl*2),
		ttl:      ttl,
	}
}

func currentKey(lat, lon float64) string {
	return fmt.Sprintf("current:%.3f:%.3f", RoundCoord(lat), RoundCoord(lon))
}

func forecastKey(lat, lon float64, target time.Time) string {
	return fmt.Sprintf("forecast:%.3f:%.3f:%s",
		RoundCoord(lat), RoundCoord(lon), target.UTC().Format("2006-01-02T15"))
}

// Current returns cached or freshly fetched current conditions
func (p *CachedProvider) Current(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error) {
	key := currentKey(lat, lon)
	if cached, found := p.cache.Get(key); found {
		if snap, ok := cached.(*models.WeatherSnapshot); ok {
			return snap, nil
		}
	}

	snap, err := p.provider.Current(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	p.cache.Set(key, snap, p.ttl)
	return snap, nil
}

// Forecast returns a cached or freshly fetched forecast
func (p *CachedProvider) Forecast(ctx context.Context, lat, lon float64, target time.Time) (*models.WeatherSnapshot, error) {
	key := forecastKey(lat, lon, target)
	if cached, found := p.cache.Get(key); found {
		if snap, ok := cached.(*models.WeatherSnapshot); ok {
			return snap, nil
		}
	}

	snap, err := p.provider.Forecast(ctx, lat, lon, target)
	if err != nil {
		return nil, err
	}

	p.cache.Set(key, snap, p.ttl)
	return snap, nil
}

// Flush drops all cached entries
func (p *CachedProvider) Flush() {
	p.cache.Flush()
}
