// Package mqtt wraps the paho MQTT client with JSON publishing and the topic
// and envelope conventions used by the coordinators.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Bus is the subset of the client used by coordinators.
type Bus interface {
	PublishJSON(topic string, retained bool, payload interface{}) error
	Subscribe(topic string, handler MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Client wraps the paho client.
type Client struct {
	client paho.Client
	logger *zap.Logger
	config *Config
}

// Config holds MQTT client configuration.
type Config struct {
	// BrokerURL is the MQTT broker URL (e.g., "tcp://localhost:1883")
	BrokerURL string
	// ClientID is the unique identifier for this client
	ClientID string
	// Username for MQTT authentication (optional)
	Username string
	// Password for MQTT authentication (optional)
	Password string
	// QoS used for every publish and subscription
	QoS byte
	// KeepAlive interval
	KeepAlive time.Duration
	// ConnectTimeout bounds Connect and every publish/subscribe wait
	ConnectTimeout time.Duration
	// AutoReconnect enables automatic reconnection
	AutoReconnect bool
	// MaxReconnectInterval is the maximum time between reconnection attempts
	MaxReconnectInterval time.Duration
}

// DefaultConfig returns settings suitable for a coordinator on a local broker.
func DefaultConfig(brokerURL, clientID string) *Config {
	return &Config{
		BrokerURL:            brokerURL,
		ClientID:             clientID,
		QoS:                  1,
		KeepAlive:            30 * time.Second,
		ConnectTimeout:       10 * time.Second,
		AutoReconnect:        true,
		MaxReconnectInterval: time.Minute,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("broker URL is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("invalid QoS %d", c.QoS)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

// MessageHandler is a callback for received messages.
type MessageHandler func(topic string, payload []byte) error

// NewClient creates a client. It does not connect; call Connect.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid MQTT configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mqtt"), zap.String("client_id", config.ClientID))

	opts := paho.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetKeepAlive(config.KeepAlive)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetAutoReconnect(config.AutoReconnect)
	opts.SetMaxReconnectInterval(config.MaxReconnectInterval)
	// Subscriptions survive reconnects only if the broker keeps the session
	opts.SetCleanSession(false)

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("MQTT connected", zap.String("broker", config.BrokerURL))
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Info("MQTT reconnecting")
	})

	return &Client{
		client: paho.NewClient(opts),
		logger: logger,
		config: config,
	}, nil
}

// Connect establishes the broker connection.
func (c *Client) Connect() error {
	c.logger.Info("Connecting to MQTT broker", zap.String("broker", c.config.BrokerURL))

	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout after %v", c.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect closes the connection after a short grace period.
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")
	c.client.Disconnect(250)
}

// IsConnected returns true if the client is connected to the broker.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) wait(token paho.Token, what string) error {
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("%s timed out after %v", what, c.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return nil
}

// Publish sends raw bytes to topic.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("client not connected")
	}

	if err := c.wait(c.client.Publish(topic, c.config.QoS, retained, payload), "publish"); err != nil {
		c.logger.Error("Failed to publish message", zap.String("topic", topic), zap.Error(err))
		return err
	}

	c.logger.Debug("Message published",
		zap.String("topic", topic),
		zap.Int("size", len(payload)))
	return nil
}

// PublishJSON serializes payload to JSON and publishes it.
func (c *Client) PublishJSON(topic string, retained bool, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return c.Publish(topic, retained, data)
}

// Subscribe registers handler for topic. Handler errors are logged, not
// returned to the broker.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if !c.IsConnected() {
		return fmt.Errorf("client not connected")
	}

	callback := func(_ paho.Client, msg paho.Message) {
		c.logger.Debug("Message received",
			zap.String("topic", msg.Topic()),
			zap.Int("size", len(msg.Payload())))

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("Handler error",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
		}
	}

	if err := c.wait(c.client.Subscribe(topic, c.config.QoS, callback), "subscribe"); err != nil {
		c.logger.Error("Failed to subscribe", zap.String("topic", topic), zap.Error(err))
		return err
	}

	c.logger.Info("Subscribed to topic", zap.String("topic", topic))
	return nil
}

// Unsubscribe removes the subscription for topic.
func (c *Client) Unsubscribe(topic string) error {
	if !c.IsConnected() {
		return fmt.Errorf("client not connected")
	}

	if err := c.wait(c.client.Unsubscribe(topic), "unsubscribe"); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.String("topic", topic), zap.Error(err))
		return err
	}

	c.logger.Info("Unsubscribed from topic", zap.String("topic", topic))
	return nil
}
