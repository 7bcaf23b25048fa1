package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tcolgate/ratnav/internal/alert"
	"github.com/tcolgate/ratnav/internal/logger"
)

const (
	connectTimeout      = 5 * time.Second
	publishTimeout      = 2 * time.Second
	disconnectQuiesceMS = 250
)

var (
	// ErrNotConnected is returned when publishing without a broker connection.
	ErrNotConnected = errors.New("mqtt not connected")
	// errConnectTimeout is returned when the broker does not answer in time.
	errConnectTimeout = errors.New("mqtt connection timeout")
)

// MQTTOptions configures the MQTT sink.
type MQTTOptions struct {
	// Broker is host:port or a full URL such as tcp://host:1883.
	Broker string
	// Topic is the prefix alerts are published under.
	Topic string
	// ClientID identifies the pipeline at the broker.
	ClientID string
	// QoS is the MQTT quality of service, 0 to 2.
	QoS byte
}

// Event is the JSON payload published for every alert.
type Event struct {
	Alert    alert.ID  `json:"alert"`
	Pipeline string    `json:"pipeline"`
	Time     time.Time `json:"time"`
}

// MQTT publishes alerts to <topic>/<alert>.
type MQTT struct {
	opts   MQTTOptions
	client mqtt.Client
	now    func() time.Time
}

// DialMQTT connects to the broker and returns the sink.
func DialMQTT(ctx context.Context, opts MQTTOptions) (*MQTT, error) {
	broker := opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		logger.InfoKV(ctx, "MQTT connection established", "broker", broker, "client_id", opts.ClientID)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost, will reconnect", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(co)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%s: %w", broker, errConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, err)
	}

	return &MQTT{opts: opts, client: client, now: time.Now}, nil
}

// Topic returns the topic alerts of kind id are published to.
func (m *MQTT) Topic(id alert.ID) string {
	return topicFor(m.opts.Topic, id)
}

// Play publishes an Event for id. Delivery is confirmed in the background.
func (m *MQTT) Play(ctx context.Context, id alert.ID) error {
	if !m.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := encodeEvent(id, m.opts.ClientID, m.now())
	if err != nil {
		return err
	}

	topic := m.Topic(id)
	token := m.client.Publish(topic, m.opts.QoS, false, payload)

	go func() {
		if !token.WaitTimeout(publishTimeout) {
			logger.WarnKV(ctx, "MQTT publish timeout", "topic", topic)
			return
		}

		if err := token.Error(); err != nil {
			logger.WarnKV(ctx, "MQTT publish failed", "topic", topic, "error", err)
		}
	}()

	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(disconnectQuiesceMS)
	}

	return nil
}

func topicFor(prefix string, id alert.ID) string {
	return strings.TrimSuffix(prefix, "/") + "/" + strings.ToLower(string(id))
}

func encodeEvent(id alert.ID, pipeline string, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(Event{Alert: id, Pipeline: pipeline, Time: at.UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	return payload, nil
}
