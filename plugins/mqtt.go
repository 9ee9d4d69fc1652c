package plugins

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/linht/eos/radio"
)

// SettingsPublisher is notified after every committed register change
type SettingsPublisher interface {
	PublishSettings(regs radio.Registers, changed []radio.Register)
	Close()
}

// MQTTConfig holds broker settings for settings-change events
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// SettingsMessage is the JSON body published on <prefix>/settings
type SettingsMessage struct {
	Timestamp int64            `json:"timestamp"`
	Settings  radio.Settings   `json:"settings"`
	Changed   []string         `json:"changed"`
	Registers map[string]uint8 `json:"registers,omitempty"`
}

// NewSettingsMessage builds the event payload for a change
func NewSettingsMessage(regs radio.Registers, changed []radio.Register, now time.Time) SettingsMessage {
	names := make([]string, len(changed))
	values := make(map[string]uint8, len(changed))
	for i, reg := range changed {
		names[i] = reg.String()
		values[reg.String()] = regs.Get(reg)
	}
	return SettingsMessage{
		Timestamp: now.Unix(),
		Settings:  radio.DecodeSettings(regs),
		Changed:   names,
		Registers: values,
	}
}

// MQTTPublisher publishes settings changes to an MQTT broker
type MQTTPublisher struct {
	client mqtt.Client
	config MQTTConfig
}

func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "eos_" + uuid.NewString()
	}
	return "eos_" + hex.EncodeToString(b)
}

// NewMQTTPublisher connects to the broker
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "eos"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = generateClientID()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		slog.Info("MQTT connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(15*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{client: client, config: cfg}, nil
}

// Topic returns the topic settings events are published on
func (m *MQTTPublisher) Topic() string {
	return m.config.TopicPrefix + "/settings"
}

// PublishSettings sends one event without blocking the caller
func (m *MQTTPublisher) PublishSettings(regs radio.Registers, changed []radio.Register) {
	payload, err := json.Marshal(NewSettingsMessage(regs, changed, time.Now()))
	if err != nil {
		slog.Error("Failed to encode settings event", "error", err)
		return
	}

	token := m.client.Publish(m.Topic(), m.config.QoS, m.config.Retain, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			slog.Warn("MQTT publish failed", "topic", m.Topic(), "error", token.Error())
		}
	}()
}

// Close disconnects from the broker
func (m *MQTTPublisher) Close() {
	m.client.Disconnect(250)
}
