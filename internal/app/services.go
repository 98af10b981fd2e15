package app

import (
	"context"

	"github.com/dokzlo13/hubspaced/internal/bridge"
	"github.com/dokzlo13/hubspaced/internal/config"
	"github.com/dokzlo13/hubspaced/internal/control"
	"github.com/dokzlo13/hubspaced/internal/db"
	"github.com/dokzlo13/hubspaced/internal/script"
	"github.com/dokzlo13/hubspaced/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB    *db.DB
	Creds *storage.CredentialStore

	// High-level services
	Hub    *HubspaceService
	Poller *PollerService
	Bridge *bridge.Bridge
	Script *script.Runtime
	Health *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database and credential store
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Creds = storage.NewCredentialStore(database.DB)

	// Initialize the vendor cloud service
	s.Hub, err = NewHubspaceService(cfg, s.Creds)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize the poller
	s.Poller = NewPollerService(cfg, s.Hub)

	// Optional MQTT bridge
	if cfg.MQTT.Enabled {
		s.Bridge = bridge.New(cfg.MQTT, s.Hub)
	}

	// Optional Lua automation runtime
	if cfg.Script != "" {
		s.Script = script.NewRuntime(s.Hub)
	}

	// Initialize health service
	s.Health = NewHealthService(cfg, s.Hub)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Bootstrap the device workers from the account's metadevice list
	if err := s.Hub.Start(ctx); err != nil {
		return err
	}

	// Connect the MQTT bridge and publish the bootstrap snapshots
	if s.Bridge != nil {
		if err := s.Bridge.Connect(ctx); err != nil {
			return err
		}
	}

	// Load Lua script before starting its worker
	if s.Script != nil {
		if err := s.Script.LoadScript(config.ExpandEnvString(s.cfg.Script)); err != nil {
			return err
		}
	}

	// Wire update listeners before the workers start processing
	for _, worker := range s.Hub.Workers() {
		if s.Bridge != nil {
			worker.OnUpdate(s.Bridge.PublishState)
		}
		if s.Script != nil {
			worker.OnUpdate(func(snap control.Snapshot) {
				s.Script.NotifyUpdate(ctx, snap)
			})
		}
	}

	if s.Bridge != nil {
		for _, snap := range s.Hub.Snapshots() {
			s.Bridge.PublishState(snap)
		}
	}

	// Start all background services
	if s.Script != nil {
		go s.Script.Run(ctx)
	}
	s.Hub.StartBackground(ctx)
	s.Poller.Start(ctx)
	s.Health.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Script != nil {
		s.Script.Close()
	}
	if s.Bridge != nil {
		s.Bridge.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
