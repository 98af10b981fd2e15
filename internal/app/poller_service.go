package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubspaced/internal/config"
)

// PollerService schedules the periodic state polls. Each tick enqueues one
// Update per device on that device's worker, so polls never overlap commands
// on the same device. The skip-next-poll optimization lives inside the
// device model; the poller just keeps ticking.
type PollerService struct {
	cfg *config.Config
	hub *HubspaceService
}

// NewPollerService creates the poller.
func NewPollerService(cfg *config.Config, hub *HubspaceService) *PollerService {
	return &PollerService{cfg: cfg, hub: hub}
}

// Start begins the polling loop.
func (s *PollerService) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *PollerService) run(ctx context.Context) {
	interval := s.cfg.Poll.Interval.Duration()
	log.Info().Dur("interval", interval).Msg("Starting device poller")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, worker := range s.hub.Workers() {
				w := worker
				w.Enqueue("poll", func(ctx context.Context) error {
					return w.adapter.Update(ctx)
				})
			}
		}
	}
}
