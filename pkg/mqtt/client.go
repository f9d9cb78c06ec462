package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/viljami/ruuvi-home/pkg/config"
)

// Reconnect backoff bounds. Paho handles the retry loop; attempts are
// unbounded and the delay grows from the initial interval up to the cap.
// This package adds no jitter of its own.
const (
	reconnectInitialInterval = 1 * time.Second
	reconnectMaxInterval     = 60 * time.Second
)

// mqttClient implements the Client interface using the Paho MQTT client
type mqttClient struct {
	client  pahomqtt.Client
	cfg     *config.Config
	logger  *slog.Logger
	onState func(connected bool)
}

// NewClient creates a new MQTT client with the given configuration.
// onState, if non-nil, is invoked on every connect and connection-loss
// event (the mqtt_connected gauge hangs off it).
func NewClient(cfg *config.Config, logger *slog.Logger, onState func(connected bool)) Client {
	m := &mqttClient{
		cfg:     cfg,
		logger:  logger,
		onState: onState,
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBrokerURL)
	opts.SetClientID(cfg.MQTTClientID)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	// A persistent session keeps QoS-1 messages and the session's
	// subscriptions at the broker while this client is away. SUBSCRIBE is
	// not re-sent on reconnect; ResumeSubs only replays subscribe packets
	// still pending from a previous connection.
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)
	opts.SetKeepAlive(cfg.MQTTKeepAlive)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInitialInterval)
	opts.SetMaxReconnectInterval(reconnectMaxInterval)

	opts.OnConnect = func(c pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", "broker", cfg.MQTTBrokerURL)
		m.notify(true)
	}

	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
		m.notify(false)
	}

	opts.OnReconnecting = func(c pahomqtt.Client, opts *pahomqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	}

	m.client = pahomqtt.NewClient(opts)
	return m
}

func (m *mqttClient) notify(connected bool) {
	if m.onState != nil {
		m.onState(connected)
	}
}

// Connect establishes a connection to the MQTT broker
func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Info("Connecting to MQTT broker", "broker", m.cfg.MQTTBrokerURL)

	token := m.client.Connect()

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Disconnect closes the connection to the MQTT broker
func (m *mqttClient) Disconnect() {
	m.logger.Info("Disconnecting from MQTT broker")
	m.client.Disconnect(250) // 250ms grace period
	m.notify(false)
}

// Subscribe subscribes to a topic filter with the given QoS and handler.
// The handler runs on paho's dispatch goroutine; a blocking handler holds
// further QoS-1 deliveries at the broker, which is the intended throttle.
func (m *mqttClient) Subscribe(filter string, qos byte, handler MessageHandler) error {
	m.logger.Info("Subscribing to MQTT topic", "filter", filter, "qos", qos)

	pahoHandler := func(client pahomqtt.Client, msg pahomqtt.Message) {
		handler(&mqttMessage{msg: msg})
	}

	token := m.client.Subscribe(filter, qos, pahoHandler)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to filter %s: %w", filter, token.Error())
	}

	m.logger.Info("Successfully subscribed", "filter", filter)
	return nil
}

// Unsubscribe removes subscriptions for the given filters
func (m *mqttClient) Unsubscribe(filters ...string) error {
	token := m.client.Unsubscribe(filters...)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// IsConnected returns whether the client is currently connected
func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}

// mqttMessage wraps a Paho MQTT message to implement our Message interface
type mqttMessage struct {
	msg pahomqtt.Message
}

func (m *mqttMessage) Topic() string {
	return m.msg.Topic()
}

func (m *mqttMessage) Payload() []byte {
	return m.msg.Payload()
}

func (m *mqttMessage) Ack() {
	m.msg.Ack()
}
