package service

import (
	"fmt"
	"math/big"
	"time"

	cache "github.com/patrickmn/go-cache"

	"x402_gateway/internal/app/port"
	"x402_gateway/internal/pkg/utils"
)

const defaultPriceCacheTTLMinutes = 5

// pricingServiceImpl implements port.PricingService.
type pricingServiceImpl struct {
	logger port.Logger
	prices *cache.Cache
}

// NewPricingService creates a new instance of pricingServiceImpl.
func NewPricingService(l port.Logger, cacheTTLMinutes int) port.PricingService {
	if cacheTTLMinutes <= 0 {
		cacheTTLMinutes = defaultPriceCacheTTLMinutes
	}
	ttl := time.Duration(cacheTTLMinutes) * time.Minute

	s := &pricingServiceImpl{
		logger: l,
		prices: cache.New(ttl, 2*ttl),
	}
	l.Info("PricingService успешно инициализирован.", "cache_ttl_minutes", cacheTTLMinutes)
	return s
}

// AtomicAmount converts a money amount ("$0.01") into atomic units of an
// asset with the given decimals. Conversions are cached.
func (s *pricingServiceImpl) AtomicAmount(money string, decimals uint8) (*big.Int, error) {
	key := fmt.Sprintf("%s|%d", money, decimals)
	if cached, found := s.prices.Get(key); found {
		if amount, ok := cached.(*big.Int); ok {
			return new(big.Int).Set(amount), nil
		}
	}

	amount, err := utils.ParseMoney(money, decimals)
	if err != nil {
		return nil, fmt.Errorf("failed to parse money amount %q: %w", money, err)
	}

	s.prices.Set(key, new(big.Int).Set(amount), cache.DefaultExpiration)
	s.logger.Debug("Cached money conversion", "amount", money, "decimals", decimals, "atomic", amount.String())
	return amount, nil
}
