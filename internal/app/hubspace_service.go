package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubspaced/internal/auth"
	"github.com/dokzlo13/hubspaced/internal/config"
	"github.com/dokzlo13/hubspaced/internal/control"
	"github.com/dokzlo13/hubspaced/internal/hubspace"
	"github.com/dokzlo13/hubspaced/internal/storage"
)

// HubspaceService owns the vendor API client and the per-device workers.
// It bootstraps the device set from the account's metadevice list and
// implements control.Dispatcher for the local consumers.
type HubspaceService struct {
	cfg *config.Config

	Client *hubspace.Client
	Tokens *auth.TokenProvider
	creds  *storage.CredentialStore

	workers map[string]*DeviceWorker
	order   []string
}

// NewHubspaceService resolves credentials and creates the vendor client.
// The refresh token comes from the config (which wins) or from the
// credential store populated by `hubspaced --login`.
func NewHubspaceService(cfg *config.Config, creds *storage.CredentialStore) (*HubspaceService, error) {
	refreshToken := cfg.Hubspace.RefreshToken
	if refreshToken == "" {
		stored, err := creds.RefreshToken()
		if err != nil {
			return nil, err
		}
		refreshToken = stored
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token configured, run `hubspaced --login` first")
	}

	tokens := auth.NewTokenProvider(refreshToken, cfg.Hubspace.Timeout.Duration())
	client := hubspace.NewClient(tokens, cfg.Hubspace.Timeout.Duration(), cfg.Hubspace.RateLimitRPS)

	return &HubspaceService{
		cfg:     cfg,
		Client:  client,
		Tokens:  tokens,
		creds:   creds,
		workers: make(map[string]*DeviceWorker),
	}, nil
}

// Start resolves the account and builds one adapter plus worker per
// supported metadevice. Devices with an unsupported semantic key are skipped.
func (s *HubspaceService) Start(ctx context.Context) error {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return err
	}

	devices, err := s.Client.Metadevices(ctx, accountID)
	if err != nil {
		return fmt.Errorf("bootstrap metadevices: %w", err)
	}

	for i := range devices {
		meta := &devices[i]

		var (
			adapter Adapter
			kind    string
		)
		switch meta.SemanticDescriptionKey {
		case control.KindLight:
			adapter = hubspace.NewLight(meta, accountID, s.Client, log.Logger)
			kind = control.KindLight
		case control.KindFan:
			adapter = hubspace.NewFan(meta, accountID, s.Client, log.Logger)
			kind = control.KindFan
		default:
			log.Debug().
				Str("device", meta.ID).
				Str("semantic_key", meta.SemanticDescriptionKey).
				Msg("Skipping unsupported metadevice")
			continue
		}

		worker := NewDeviceWorker(adapter, kind, s.cfg.Poll.GetQueueSize())
		s.workers[meta.ID] = worker
		s.order = append(s.order, meta.ID)

		log.Info().
			Str("device", meta.ID).
			Str("name", meta.FriendlyName).
			Str("kind", kind).
			Msg("Registered device")
	}

	if len(s.workers) == 0 {
		log.Warn().Msg("Account has no supported devices")
	}
	return nil
}

// accountID returns the cached account id or resolves and persists it.
func (s *HubspaceService) accountID(ctx context.Context) (string, error) {
	cached, err := s.creds.AccountID()
	if err != nil {
		return "", err
	}
	if cached != "" {
		return cached, nil
	}

	accountID, err := s.Client.AccountID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve account id: %w", err)
	}
	if err := s.creds.SetAccountID(accountID); err != nil {
		log.Warn().Err(err).Msg("Failed to cache account id")
	}
	log.Info().Str("account", accountID).Msg("Resolved account")
	return accountID, nil
}

// StartBackground launches one worker goroutine per device.
func (s *HubspaceService) StartBackground(ctx context.Context) {
	for _, worker := range s.workers {
		go worker.Run(ctx)
	}
}

// Workers returns the device workers in registration order.
func (s *HubspaceService) Workers() []*DeviceWorker {
	out := make([]*DeviceWorker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.workers[id])
	}
	return out
}

// Snapshots implements control.Dispatcher.
func (s *HubspaceService) Snapshots() []control.Snapshot {
	out := make([]control.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.workers[id].Snapshot())
	}
	return out
}

// Snapshot implements control.Dispatcher.
func (s *HubspaceService) Snapshot(deviceID string) (control.Snapshot, bool) {
	worker, ok := s.workers[deviceID]
	if !ok {
		return control.Snapshot{}, false
	}
	return worker.Snapshot(), true
}

// Dispatch implements control.Dispatcher: the command is enqueued on the
// device's worker and executes asynchronously.
func (s *HubspaceService) Dispatch(_ context.Context, deviceID string, cmd control.Command) error {
	worker, ok := s.workers[deviceID]
	if !ok {
		return fmt.Errorf("unknown device %s", deviceID)
	}
	if !worker.Enqueue("command", func(ctx context.Context) error {
		return applyCommand(ctx, worker.adapter, cmd)
	}) {
		return fmt.Errorf("device %s queue full", deviceID)
	}
	return nil
}
