// Package events publishes run-lifecycle notifications to an MQTT
// broker. Entirely optional: with no broker configured the runtime
// publishes nothing.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/clawinfra/taskclaw/internal/config"
	"github.com/clawinfra/taskclaw/internal/types"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher emits run lifecycle events to one MQTT topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher connects to the configured broker. Returns (nil, nil)
// when publishing is disabled.
func NewPublisher(cfg config.MQTTConfig, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled || cfg.BrokerURL == "" {
		return nil, nil
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "taskclaw"
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "taskclaw/runs"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout (%s)", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "events"),
	}, nil
}

// RunStarted announces a new run.
func (p *Publisher) RunStarted(runID types.RunID, specialistID, model string) {
	p.publish(map[string]any{
		"event":         "run_started",
		"run_id":        runID.String(),
		"specialist_id": specialistID,
		"model":         model,
		"ts":            time.Now().UTC().Format(time.RFC3339),
	})
}

// RunFinished announces a terminal run state.
func (p *Publisher) RunFinished(result *types.RunResult) {
	terminatedBy, _ := result.Payload[types.TerminatedByKey].(string)
	p.publish(map[string]any{
		"event":         "run_finished",
		"run_id":        result.RunID.String(),
		"specialist_id": result.SpecialistID,
		"model":         result.ModelName,
		"terminated_by": terminatedBy,
		"steps":         result.Steps,
		"elapsed_ms":    result.ElapsedMs,
		"ts":            time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("marshal event", "error", err)
		return
	}
	token := p.client.Publish(p.topic, 0, false, data)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("mqtt publish timeout", "topic", p.topic)
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", p.topic, "error", err)
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
