package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/boardscout/boardscout/pkg/metric"
)

// Compile-time interface guard.
var _ metric.Publisher = (*MQTTPublisher)(nil)

// MQTTConfig configures the MQTT adapter.
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MQTTPublisher publishes each reading as a JSON payload on
// <prefix>/<reading name with dots as slashes>.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTT connects to the broker and returns the adapter. The client
// reconnects automatically; publishes during a disconnect fail and are
// reported by the fanout rather than queued.
func NewMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: no broker configured")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "boardscout"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetOrderMatters(false)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt: connect to %q timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %q: %w", cfg.Broker, err)
	}

	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
	}, nil
}

// Publish sends the reading, retained so late subscribers see the latest
// value per topic.
func (p *MQTTPublisher) Publish(ctx context.Context, r metric.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("mqtt: marshal reading %q: %w", r.Name, err)
	}

	topic := p.prefix + "/" + strings.ReplaceAll(r.Name, ".", "/")
	token := p.client.Publish(topic, p.qos, true, payload)

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("mqtt: publish to %q timed out", topic)
	}
}

// Close disconnects from the broker, allowing in-flight messages a short
// drain window.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
