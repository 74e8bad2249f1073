package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"heliotrack-server/internal/config"
	"heliotrack-server/internal/control"
)

// StateSink receives validated field-telemetry snapshots; the relay hub
// fans them out to every connected panel.
type StateSink interface {
	IngestState(raw json.RawMessage)
}

// Bridge subscribes to the field-telemetry topic and feeds each valid
// snapshot into the sink. It is optional: the relay works without a broker.
type Bridge struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	sink      StateSink
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewBridge(cfg config.Config, logger *slog.Logger, sink StateSink) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		b.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	b.client = mqtt.NewClient(opts)
	return b
}

// Connect establishes the broker connection and subscribes to the
// telemetry topic.
func (b *Bridge) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-b.stopCh:
		return fmt.Errorf("bridge stopped")
	default:
	}

	if b.IsConnected() {
		return nil
	}

	token := b.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			break
		}

		select {
		case <-ctx.Done():
			b.client.Disconnect(0)
			return ctx.Err()
		case <-b.stopCh:
			b.client.Disconnect(0)
			return fmt.Errorf("bridge stopped")
		default:
		}
	}

	if err := b.subscribe(); err != nil {
		b.client.Disconnect(0)
		return fmt.Errorf("subscribe: %w", err)
	}

	return nil
}

func (b *Bridge) subscribe() error {
	if !b.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := b.cfg.MQTTTopic
	qos := byte(1) // At least once delivery

	token := b.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		b.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	b.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

// handleMessage validates one payload and forwards it verbatim to the sink.
// Invalid snapshots are logged and dropped; the bridge never fails on them.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	b.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var st control.State
	if err := json.Unmarshal(payload, &st); err != nil {
		b.logger.Warn("failed to parse telemetry snapshot",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if err := validateState(st); err != nil {
		b.logger.Warn("invalid telemetry snapshot",
			"topic", topic,
			"timestamp", st.Timestamp,
			"error", err,
		)
		return
	}

	b.sink.IngestState(json.RawMessage(payload))
}

func validateState(st control.State) error {
	if st.Timestamp == 0 {
		return fmt.Errorf("timestamp is required")
	}

	// At least one reading should be present; an empty snapshot carries no
	// information worth relaying.
	if st.MotorOrientation == nil && st.PlatformOrientation == nil &&
		st.SolarPanelOrientation == nil && st.SunOrientation == nil &&
		st.SolarPanelVoltage == nil {
		return fmt.Errorf("snapshot carries no readings")
	}

	return nil
}

// IsConnected returns whether the client is connected.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	connected := b.connected
	b.mu.RUnlock()
	return connected && b.client.IsConnected()
}

// Disconnect stops the bridge and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (b *Bridge) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	b.stopOnce.Do(func() { close(b.stopCh) })

	if b.client != nil && b.IsConnected() {
		token := b.client.Unsubscribe(b.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	if b.client != nil {
		b.client.Disconnect(250)
	}

	b.setConnected(false)
	b.logger.Info("mqtt bridge disconnected")
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}
