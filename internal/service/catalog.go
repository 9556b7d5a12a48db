package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rigshop-api/internal/cache"
	"rigshop-api/internal/model"
	"rigshop-api/internal/repository"
)

const configListCacheKey = "configs:all"

// CreateComponentInput is the admin payload for a new component.
type CreateComponentInput struct {
	ID    string
	Name  string
	Stock int
	Price decimal.Decimal
	Specs map[string]string
}

// CreateConfigurationInput is the admin payload for a new configuration.
type CreateConfigurationInput struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Description string
	Components  []model.CompositionEntry
}

// CatalogService serves component and configuration reads and admin writes.
// Configurations and compositions are cached; components never are, since stock changes on every order.
type CatalogService struct {
	repo     repository.CatalogRepository
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(repo repository.CatalogRepository, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		repo:     repo,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger.Named("catalog"),
	}
}

// GetComponent returns a component with its live stock.
func (s *CatalogService) GetComponent(ctx context.Context, componentID string) (*model.Component, error) {
	c, err := s.repo.GetComponent(ctx, componentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrComponentNotFound
	}
	return c, err
}

// ListComponents returns every component.
func (s *CatalogService) ListComponents(ctx context.Context) ([]model.Component, error) {
	return s.repo.ListComponents(ctx)
}

// CreateComponent validates and stores a new component.
func (s *CatalogService) CreateComponent(ctx context.Context, in CreateComponentInput) (*model.Component, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.ID == "":
		return nil, invalid("id is required")
	case in.Name == "":
		return nil, invalid("name is required")
	case in.Stock < 0:
		return nil, invalid("stock must be greater than or equal to 0")
	case in.Price.IsNegative():
		return nil, invalid("price must be greater than or equal to 0")
	}

	if _, err := s.repo.GetComponent(ctx, in.ID); err == nil {
		return nil, fmt.Errorf("component %s: %w", in.ID, ErrAlreadyExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	c := &model.Component{
		ComponentID: in.ID,
		Name:        in.Name,
		Stock:       in.Stock,
		Price:       in.Price,
		Specs:       in.Specs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.PutComponent(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("component created", zap.String("component_id", c.ComponentID), zap.Int("stock", c.Stock))
	return c, nil
}

// SetStock overwrites a component's stock level. Never used by the reservation path.
func (s *CatalogService) SetStock(ctx context.Context, componentID string, stock int) (*model.Component, error) {
	if stock < 0 {
		return nil, invalid("stock must be greater than or equal to 0")
	}

	c, err := s.repo.SetComponentStock(ctx, componentID, stock)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrComponentNotFound
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock set", zap.String("component_id", componentID), zap.Int("stock", stock))
	return c, nil
}

// GetConfiguration returns a configuration through the cache.
func (s *CatalogService) GetConfiguration(ctx context.Context, configID string) (*model.Configuration, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("config", configID), s.cacheTTL, func() (*model.Configuration, error) {
		c, err := s.repo.GetConfiguration(ctx, configID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return c, err
	})
}

// GetComposition returns the configuration's entries, ordered by component id, through the cache.
func (s *CatalogService) GetComposition(ctx context.Context, configID string) ([]model.CompositionEntry, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key("composition", configID), s.cacheTTL, func() ([]model.CompositionEntry, error) {
		return s.repo.GetComposition(ctx, configID)
	})
}

// ListConfigurations returns every configuration with its component count.
func (s *CatalogService) ListConfigurations(ctx context.Context) ([]model.ConfigurationSummary, error) {
	return cache.GetOrLoad(ctx, s.cache, configListCacheKey, s.cacheTTL, func() ([]model.ConfigurationSummary, error) {
		return s.repo.ListConfigurations(ctx)
	})
}

// GetConfigurationDetail joins a configuration's composition with its components.
// A composition entry whose component is missing is reported with zero stock.
func (s *CatalogService) GetConfigurationDetail(ctx context.Context, configID string) (*model.ConfigurationDetail, error) {
	cfg, err := s.GetConfiguration(ctx, configID)
	if err != nil {
		return nil, err
	}
	entries, err := s.GetComposition(ctx, configID)
	if err != nil {
		return nil, err
	}

	detail := &model.ConfigurationDetail{
		Configuration: *cfg,
		Components:    make([]model.ConfigurationPart, 0, len(entries)),
	}
	for _, e := range entries {
		part := model.ConfigurationPart{ComponentID: e.ComponentID, QuantityPerUnit: e.QuantityPerUnit}
		c, err := s.repo.GetComponent(ctx, e.ComponentID)
		switch {
		case err == nil:
			part.Name = c.Name
			part.Price = c.Price
			part.Stock = c.Stock
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Warn("composition references missing component",
				zap.String("config_id", configID), zap.String("component_id", e.ComponentID))
		default:
			return nil, err
		}
		detail.Components = append(detail.Components, part)
	}
	return detail, nil
}

// CreateConfiguration validates and stores a configuration with its composition.
func (s *CatalogService) CreateConfiguration(ctx context.Context, in CreateConfigurationInput) (*model.ConfigurationDetail, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.ID == "":
		return nil, invalid("id is required")
	case in.Name == "":
		return nil, invalid("name is required")
	case in.Price.IsNegative():
		return nil, invalid("price must be greater than or equal to 0")
	case len(in.Components) == 0:
		return nil, invalid("at least one component is required")
	}

	seen := make(map[string]bool, len(in.Components))
	for _, e := range in.Components {
		if e.ComponentID == "" {
			return nil, invalid("componentId is required")
		}
		if e.QuantityPerUnit <= 0 {
			return nil, invalid("quantity for %s must be positive", e.ComponentID)
		}
		if seen[e.ComponentID] {
			return nil, invalid("component %s listed twice", e.ComponentID)
		}
		seen[e.ComponentID] = true

		if _, err := s.repo.GetComponent(ctx, e.ComponentID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, e.ComponentID)
			}
			return nil, err
		}
	}

	if _, err := s.repo.GetConfiguration(ctx, in.ID); err == nil {
		return nil, fmt.Errorf("configuration %s: %w", in.ID, ErrAlreadyExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	cfg := &model.Configuration{
		ConfigID:    in.ID,
		Name:        in.Name,
		Price:       in.Price,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.PutConfiguration(ctx, cfg, in.Components); err != nil {
		return nil, err
	}

	s.invalidate(ctx, in.ID)
	s.logger.Info("configuration created", zap.String("config_id", cfg.ConfigID), zap.Int("components", len(in.Components)))
	return s.GetConfigurationDetail(ctx, in.ID)
}

func (s *CatalogService) invalidate(ctx context.Context, configID string) {
	keys := []string{cache.Key("config", configID), cache.Key("composition", configID), configListCacheKey}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.String("config_id", configID), zap.Error(err))
	}
}
