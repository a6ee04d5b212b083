// Package expiry cancels approval requests that stayed pending too long.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-erp/internal/config"
	"go-erp/internal/features/approval"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepTimeout = time.Minute

type PendingLister interface {
	PendingBefore(ctx context.Context, before time.Time) ([]approval.ApprovalRequest, error)
}

type Canceller interface {
	Cancel(ctx context.Context, requestID, actorID, reason string) (*approval.ApprovalRequest, error)
}

type ExpiryService struct {
	lister    PendingLister
	canceller Canceller
	ttl       time.Duration
	schedule  string
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	scheduler *cron.Cron
}

func NewExpiryService(lister PendingLister, canceller Canceller, cfg *config.Config, logger *zap.Logger) *ExpiryService {
	return &ExpiryService{
		lister:    lister,
		canceller: canceller,
		ttl:       cfg.ApprovalTTL,
		schedule:  cfg.ExpirySchedule,
		logger:    logger.Named("expiry"),
		now:       time.Now,
	}
}

// NewLifecycleExpiryService runs the sweep on the configured schedule between
// app start and stop.
func NewLifecycleExpiryService(lc fx.Lifecycle, lister PendingLister, canceller Canceller, cfg *config.Config, logger *zap.Logger) *ExpiryService {
	s := NewExpiryService(lister, canceller, cfg, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			s.Stop(ctx)
			return nil
		},
	})
	return s
}

// Sweep cancels every request pending since before now-ttl and returns how
// many it cancelled. Requests resolved meanwhile are skipped.
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl)
	stale, err := s.lister.PendingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale requests: %w", err)
	}

	reason := fmt.Sprintf("expired: pending longer than %s", s.ttl)
	cancelled := 0
	var errs []error
	for _, req := range stale {
		_, err := s.canceller.Cancel(ctx, req.ID, approval.SystemActor, reason)
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, approval.ErrAlreadyResolved):
		default:
			s.logger.Error("cancel stale request", zap.String("request_id", req.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if cancelled > 0 {
		s.logger.Info("stale requests cancelled", zap.Int("count", cancelled), zap.Time("cutoff", cutoff))
	}
	return cancelled, errors.Join(errs...)
}

// Start schedules the sweep. It is a no-op when no TTL is configured.
func (s *ExpiryService) Start() error {
	if s.ttl <= 0 {
		s.logger.Info("approval expiry disabled")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Warn("expiry sweep incomplete", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", s.schedule, err)
	}

	s.mu.Lock()
	s.scheduler = c
	s.mu.Unlock()
	c.Start()
	s.logger.Info("approval expiry scheduled", zap.String("schedule", s.schedule), zap.Duration("ttl", s.ttl))
	return nil
}

// Stop halts scheduling and waits for a running sweep or ctx.
func (s *ExpiryService) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
