// Package mqtt wraps the Eclipse Paho client behind a small interface:
// connect with backoff cooldown, subscribe with automatic
// re-subscription after a broker reconnect, and QoS 1 publishing.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/hklweb/alarmd/internal/conf"
	"github.com/hklweb/alarmd/internal/logger"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds, paho's own unit
	reconnectMaxWait  = 30 * time.Second
	connectCooldown   = 5 * time.Second

	// qosAtLeastOnce matches the delivery contract of the telemetry
	// feed: duplicates are tolerable, silent loss is not.
	qosAtLeastOnce = 1
)

// ErrConnectCooldown is returned when Connect is called again before
// the cooldown after a failed attempt has elapsed.
var ErrConnectCooldown = errors.New("connect attempted too soon after failure")

// MessageHandler receives the raw payload of an inbound message.
type MessageHandler func(ctx context.Context, payload []byte)

// Client is the broker surface the engine uses.
type Client interface {
	Connect(ctx context.Context) error
	Subscribe(topic string, handler MessageHandler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

type client struct {
	mqtt paho.Client
	log  logger.Logger

	mu            sync.Mutex
	subscriptions map[string]MessageHandler
	lastFailure   time.Time
}

// NewClient builds a client from the broker settings. It does not
// connect; call Connect.
func NewClient(settings *conf.Settings, log logger.Logger) (Client, error) {
	if settings.MQTT.Broker == "" {
		return nil, errors.New("mqtt broker address is empty")
	}

	c := &client{
		log:           log,
		subscriptions: make(map[string]MessageHandler),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(settings.MQTT.Broker)
	opts.SetClientID(settings.MQTT.ClientID)
	if settings.MQTT.Username != "" {
		opts.SetUsername(settings.MQTT.Username)
		opts.SetPassword(settings.MQTT.Password)
	}
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	maxWait := reconnectMaxWait
	if settings.MQTT.Reconnect.Std() > 0 {
		maxWait = settings.MQTT.Reconnect.Std()
	}
	opts.SetMaxReconnectInterval(maxWait)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.mqtt = paho.NewClient(opts)
	return c, nil
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if !c.lastFailure.IsZero() && time.Since(c.lastFailure) < connectCooldown {
		c.mu.Unlock()
		return ErrConnectCooldown
	}
	c.mu.Unlock()

	token := c.mqtt.Connect()
	if err := c.waitToken(ctx, token); err != nil {
		c.mu.Lock()
		c.lastFailure = time.Now()
		c.mu.Unlock()
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	c.mu.Lock()
	c.lastFailure = time.Time{}
	c.mu.Unlock()
	return nil
}

// Subscribe registers a handler for a topic. The subscription is kept
// across reconnects; subscribing before Connect is allowed.
func (c *client) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return errors.New("subscribe topic is empty")
	}

	c.mu.Lock()
	c.subscriptions[topic] = handler
	c.mu.Unlock()

	if !c.mqtt.IsConnected() {
		return nil
	}
	return c.subscribeNow(topic, handler)
}

func (c *client) subscribeNow(topic string, handler MessageHandler) error {
	token := c.mqtt.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		handler(context.Background(), msg.Payload())
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out subscribing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.mqtt.IsConnected() {
		return fmt.Errorf("cannot publish to %s: not connected", topic)
	}
	token := c.mqtt.Publish(topic, qosAtLeastOnce, false, payload)
	if err := c.waitToken(ctx, token); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (c *client) IsConnected() bool {
	return c.mqtt.IsConnected()
}

func (c *client) Disconnect() {
	c.mqtt.Disconnect(disconnectQuiesce)
}

// onConnect re-establishes all registered subscriptions. Runs on first
// connect and on every automatic reconnect.
func (c *client) onConnect(_ paho.Client) {
	c.mu.Lock()
	subs := make(map[string]MessageHandler, len(c.subscriptions))
	for topic, handler := range c.subscriptions {
		subs[topic] = handler
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		if err := c.subscribeNow(topic, handler); err != nil {
			c.log.Error("failed to restore subscription", logger.String("topic", topic), logger.Error(err))
			continue
		}
		c.log.Info("subscribed", logger.String("topic", topic))
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("broker connection lost", logger.Error(err))
}

// waitToken waits for a paho token bounded by both the context and the
// publish timeout.
func (c *client) waitToken(ctx context.Context, token paho.Token) error {
	deadline := publishTimeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}
	if !token.WaitTimeout(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("operation timed out")
	}
	return token.Error()
}
