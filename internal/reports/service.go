package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const cacheTTL = 5 * time.Minute

// QueryPort abstracts the read-only SQL layer.
type QueryPort interface {
	DailySales(ctx context.Context, day time.Time) (DailySummary, error)
	StockValuation(ctx context.Context) ([]ValuationRow, error)
}

// Service serves reporting reads with a Redis cache in front. Singleflight
// collapses concurrent misses for the same key into one query.
type Service struct {
	repo    QueryPort
	cache   *redis.Client
	group   singleflight.Group
	printer *message.Printer
	logger  *slog.Logger
}

// NewService builds Service. cache may be nil, which disables caching.
func NewService(repo QueryPort, cache *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		printer: message.NewPrinter(language.English),
		logger:  logger,
	}
}

// DailySales returns the daily sales summary, cached per day.
func (s *Service) DailySales(ctx context.Context, day time.Time) (DailySummary, error) {
	key := fmt.Sprintf("reports:daily:%s", day.UTC().Format("2006-01-02"))

	if cached, ok := s.cacheGet(ctx, key); ok {
		var summary DailySummary
		if err := json.Unmarshal(cached, &summary); err == nil {
			return summary, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		summary, err := s.repo.DailySales(ctx, day)
		if err != nil {
			return DailySummary{}, err
		}
		summary.GrossFormatted = s.printer.Sprintf("%.2f", summary.GrossTotal)
		summary.GeneratedAt = time.Now().UTC()
		s.cacheSet(ctx, key, summary)
		return summary, nil
	})
	if err != nil {
		return DailySummary{}, err
	}
	return v.(DailySummary), nil
}

// StockValuation returns the stock valuation report, cached.
func (s *Service) StockValuation(ctx context.Context) (Valuation, error) {
	const key = "reports:valuation"

	if cached, ok := s.cacheGet(ctx, key); ok {
		var valuation Valuation
		if err := json.Unmarshal(cached, &valuation); err == nil {
			return valuation, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		rows, err := s.repo.StockValuation(ctx)
		if err != nil {
			return Valuation{}, err
		}
		valuation := Valuation{Rows: rows, GeneratedAt: time.Now().UTC()}
		for _, row := range rows {
			valuation.Total += row.Value
		}
		valuation.TotalFormatted = s.printer.Sprintf("%.2f", valuation.Total)
		s.cacheSet(ctx, key, valuation)
		return valuation, nil
	})
	if err != nil {
		return Valuation{}, err
	}
	return v.(Valuation), nil
}

func (s *Service) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	return data, true
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, cacheTTL).Err(); err != nil {
		s.logger.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
