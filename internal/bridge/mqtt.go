// Package bridge publishes device state to a local MQTT broker and relays
// command topics back to the device workers. This is the surface a
// home-automation platform consumes.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubspaced/internal/config"
	"github.com/dokzlo13/hubspaced/internal/control"
)

// Topic layout under the configured prefix:
//
//	<prefix>/<device-id>/state   retained state snapshot JSON (published)
//	<prefix>/<device-id>/set     command JSON (subscribed)
const (
	stateSuffix = "state"
	setSuffix   = "set"
)

// Bridge connects the device workers to an MQTT broker.
type Bridge struct {
	cfg        config.MQTTConfig
	dispatcher control.Dispatcher
	client     mqtt.Client
	ctx        context.Context
}

// New creates a bridge. Connect must be called before publishing.
func New(cfg config.MQTTConfig, dispatcher control.Dispatcher) *Bridge {
	return &Bridge{cfg: cfg, dispatcher: dispatcher}
}

// Connect establishes the broker connection and subscribes to the command
// topics. Subscriptions are re-established automatically on reconnect.
func (b *Bridge) Connect(ctx context.Context) error {
	b.ctx = ctx

	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID("hubspaced-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectTimeout(b.cfg.Timeout.Duration()).
		SetOrderMatters(false)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		b.subscribe(client)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(b.cfg.Timeout.Duration()) {
		return fmt.Errorf("mqtt connect: timeout after %s", b.cfg.Timeout.Duration())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	log.Info().Str("broker", b.cfg.Broker).Msg("Connected to MQTT broker")
	return nil
}

// subscribe attaches the command handler for every device under the prefix.
func (b *Bridge) subscribe(client mqtt.Client) {
	topic := fmt.Sprintf("%s/+/%s", b.cfg.TopicPrefix, setSuffix)
	token := client.Subscribe(topic, byte(b.cfg.QoS), b.handleCommand)
	if token.WaitTimeout(b.cfg.Timeout.Duration()) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", topic).Msg("MQTT subscribe failed")
		return
	}
	log.Debug().Str("topic", topic).Msg("Subscribed to command topic")
}

// handleCommand parses a command payload and hands it to the dispatcher.
// Runs on a paho goroutine; Dispatch only enqueues, so this never blocks on
// the vendor API.
func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := b.deviceFromTopic(msg.Topic())
	if !ok {
		log.Warn().Str("topic", msg.Topic()).Msg("Ignoring command on malformed topic")
		return
	}

	var cmd control.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Warn().Err(err).Str("device", deviceID).Msg("Ignoring malformed command payload")
		return
	}

	if err := b.dispatcher.Dispatch(b.ctx, deviceID, cmd); err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("Command dispatch failed")
	}
}

// deviceFromTopic extracts the device id from <prefix>/<id>/set.
func (b *Bridge) deviceFromTopic(topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !found {
		return "", false
	}
	deviceID, found := strings.CutSuffix(rest, "/"+setSuffix)
	if !found || deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	return deviceID, true
}

// PublishState publishes a retained state snapshot for one device. Wired as
// a worker OnUpdate listener.
func (b *Bridge) PublishState(snap control.Snapshot) {
	if b.client == nil || !b.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("device", snap.ID).Msg("Failed to encode state snapshot")
		return
	}

	topic := fmt.Sprintf("%s/%s/%s", b.cfg.TopicPrefix, snap.ID, stateSuffix)
	b.client.Publish(topic, byte(b.cfg.QoS), true, payload)
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}
