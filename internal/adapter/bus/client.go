package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"arcade-core/config"
	"arcade-core/internal/core/ports"
	"arcade-core/pkg/apperror"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// QoS 1: at least once, order preserved per publisher.
const qosAtLeastOnce = 1

const publishTimeout = 5 * time.Second

// StatusTopic returns the presence topic for a device or the core
// itself. The broker publishes the retained last-will on it when a
// client drops uncleanly, so peers detect crashes without heartbeats.
func StatusTopic(clientID string) string {
	return fmt.Sprintf("dev/%s/status", clientID)
}

// Client wraps a paho MQTT session. It keeps exactly one handler per
// literal pattern string (last registration wins) and dispatches each
// inbound message to at most one handler: an exact topic match first,
// then wildcard patterns in registration order.
type Client struct {
	cli         mqtt.Client
	log         zerolog.Logger
	timeout     time.Duration
	statusTopic string

	mu       sync.RWMutex
	handlers map[string]ports.Handler
	order    []string
}

// NewClient builds an unconnected client. The last-will (retained
// "offline" on the status topic) is registered with the session options
// so the broker announces an unclean disconnect on our behalf.
func NewClient(cfg config.MQTTConfig, log zerolog.Logger) *Client {
	c := &Client{
		log:         log,
		timeout:     cfg.ConnectTimeout,
		statusTopic: StatusTopic(cfg.ClientID),
		handlers:    make(map[string]ports.Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetWill(c.statusTopic, "offline", qosAtLeastOnce, true).
		SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
			c.dispatch(m.Topic(), m.Payload())
		})

	c.cli = mqtt.NewClient(opts)
	return c
}

// Connect establishes the session, blocking until the broker confirms
// readiness or the configured timeout elapses. A timeout is fatal to
// startup per the error taxonomy.
func (c *Client) Connect() error {
	token := c.cli.Connect()
	if !token.WaitTimeout(c.timeout) {
		return apperror.ErrBusConnect(fmt.Errorf("broker not ready within %s", c.timeout))
	}
	if err := token.Error(); err != nil {
		return apperror.ErrBusConnect(err)
	}
	c.log.Info().Str("status_topic", c.statusTopic).Msg("message bus connected")
	return nil
}

// AnnounceOnline publishes the retained "online" presence marker,
// pairing with the broker-side "offline" last-will.
func (c *Client) AnnounceOnline() error {
	token := c.cli.Publish(c.statusTopic, qosAtLeastOnce, true, "online")
	if !token.WaitTimeout(publishTimeout) {
		return apperror.ErrBusPublish(fmt.Errorf("publish %s timed out", c.statusTopic))
	}
	if err := token.Error(); err != nil {
		return apperror.ErrBusPublish(err)
	}
	return nil
}

// Subscribe registers h for the given pattern and subscribes at the
// broker with QoS 1. Registering the same literal pattern again
// replaces the previous handler; there is no multi-handler fan-out.
func (c *Client) Subscribe(pattern string, h ports.Handler) error {
	c.register(pattern, h)

	token := c.cli.Subscribe(pattern, qosAtLeastOnce, nil)
	if !token.WaitTimeout(c.timeout) {
		return apperror.ErrBusConnect(fmt.Errorf("subscribe %s timed out", pattern))
	}
	if err := token.Error(); err != nil {
		return apperror.ErrBusConnect(err)
	}
	return nil
}

// Publish serializes payload as JSON and sends it at QoS 1.
func (c *Client) Publish(topic string, payload map[string]interface{}) error {
	return c.publish(topic, payload, false)
}

// PublishRetained is Publish with the broker retain flag set, so
// late-joining subscribers receive the last value immediately.
func (c *Client) PublishRetained(topic string, payload map[string]interface{}) error {
	return c.publish(topic, payload, true)
}

func (c *Client) publish(topic string, payload map[string]interface{}, retain bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperror.ErrBusPublish(fmt.Errorf("marshal payload for %s: %w", topic, err))
	}

	token := c.cli.Publish(topic, qosAtLeastOnce, retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return apperror.ErrBusPublish(fmt.Errorf("publish %s timed out", topic))
	}
	if err := token.Error(); err != nil {
		return apperror.ErrBusPublish(err)
	}
	return nil
}

// Close disconnects cleanly. The broker discards the last-will on a
// clean disconnect, so Close publishes "offline" explicitly first.
func (c *Client) Close() {
	token := c.cli.Publish(c.statusTopic, qosAtLeastOnce, true, "offline")
	token.WaitTimeout(publishTimeout)
	c.cli.Disconnect(250)
}

// dispatch decodes the payload and routes the message to at most one
// handler. Undecodable or empty payloads become an empty object; a
// handler panic is recovered and logged so the receive loop survives.
func (c *Client) dispatch(topic string, payload []byte) {
	var msg map[string]interface{}
	if len(payload) == 0 || json.Unmarshal(payload, &msg) != nil || msg == nil {
		msg = map[string]interface{}{}
	}

	h := c.lookup(topic)
	if h == nil {
		c.log.Debug().Str("topic", topic).Msg("no handler for topic")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("topic", topic).Msg("handler panic recovered")
		}
	}()
	h(topic, msg)
}

func (c *Client) register(pattern string, h ports.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.handlers[pattern]; !seen {
		c.order = append(c.order, pattern)
	}
	c.handlers[pattern] = h
}

func (c *Client) lookup(topic string) ports.Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if h, ok := c.handlers[topic]; ok {
		return h
	}
	for _, pattern := range c.order {
		if matchTopic(pattern, topic) {
			return c.handlers[pattern]
		}
	}
	return nil
}
