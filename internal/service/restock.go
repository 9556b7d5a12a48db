package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"rigshop-api/internal/repository"
)

// RestockScheduler periodically re-applies compensating restocks whose first attempt failed.
// A restock is claimed before it is applied and deleted afterwards; a failed apply releases the claim.
type RestockScheduler struct {
	pending   repository.RestockRepository
	stock     repository.CatalogRepository
	interval  time.Duration
	logger    *zap.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	runMu     sync.Mutex
}

// NewRestockScheduler creates a new restock scheduler.
func NewRestockScheduler(pending repository.RestockRepository, stock repository.CatalogRepository, interval time.Duration, logger *zap.Logger) *RestockScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RestockScheduler{
		pending:  pending,
		stock:    stock,
		interval: interval,
		logger:   logger.Named("restock"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the retry loop.
func (s *RestockScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.interval)
	s.mu.Unlock()

	s.logger.Info("restock scheduler started", zap.Duration("interval", s.interval))
	go s.run()
}

// run is the main retry loop.
func (s *RestockScheduler) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.ticker.C:
			if _, err := s.RunNow(); err != nil {
				s.logger.Error("restock run failed", zap.Error(err))
			}
		case <-s.stopCh:
			s.logger.Info("restock scheduler stopped")
			return
		}
	}
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *RestockScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()

		if running {
			<-s.doneCh
		}
	})
}

// RunNow applies every pending restock once and returns how many were applied.
// Each restock is claimed before it is applied, so schedulers sharing a table never apply it twice.
func (s *RestockScheduler) RunNow() (int, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pending, err := s.pending.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, p := range pending {
		if p.Claimed {
			continue
		}
		logger := s.logger.With(zap.String("order_id", p.AttemptID), zap.String("component_id", p.ComponentID), zap.Int("qty", p.Quantity))

		claimed, err := s.pending.ClaimPending(ctx, p.AttemptID, p.ComponentID)
		if err != nil {
			logger.Warn("failed to claim pending restock", zap.Error(err))
			continue
		}
		if !claimed {
			logger.Debug("pending restock claimed elsewhere")
			continue
		}

		_, err = s.stock.RestockComponent(ctx, p.ComponentID, p.Quantity)
		switch {
		case err == nil:
			applied++
			logger.Info("pending restock applied")
		case errors.Is(err, repository.ErrNotFound):
			logger.Warn("dropping pending restock for missing component")
		default:
			logger.Warn("pending restock still failing", zap.Error(err))
			if err := s.pending.ReleasePending(ctx, p.AttemptID, p.ComponentID); err != nil {
				logger.Error("failed to release pending restock", zap.Error(err))
			}
			continue
		}

		// A failed delete leaves the item claimed, so it is never applied again.
		if err := s.pending.DeletePending(ctx, p.AttemptID, p.ComponentID); err != nil {
			logger.Error("failed to delete applied restock", zap.Error(err))
		}
	}
	return applied, nil
}
