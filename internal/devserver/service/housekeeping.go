package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// HousekeepingService prunes expired refresh records on a ticker so the
// in-memory table stays bounded.
type HousekeepingService struct {
	Tokens   *TokenService
	Logger   *slog.Logger
	Interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(tokens *TokenService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Tokens:   tokens,
		Logger:   slogx.OrDefault(logger).With("component", "housekeeping"),
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the worker once; later calls do nothing.
func (s *HousekeepingService) Start() {
	s.startOnce.Do(func() {
		go s.run()
		s.Logger.Info("housekeeping started", "interval", s.Interval)
	})
}

// Stop ends the worker and waits for an in-progress sweep. Safe to call
// more than once, and before Start.
func (s *HousekeepingService) Stop() {
	s.startOnce.Do(func() { close(s.doneCh) })
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		s.sweep()

		select {
		case <-ticker.C:
		case <-s.stopCh:
			s.Logger.Info("housekeeping stopped")
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	if n := s.Tokens.DeleteExpired(context.Background()); n > 0 {
		s.Logger.Info("pruned expired refresh tokens", "count", n)
	}
}
