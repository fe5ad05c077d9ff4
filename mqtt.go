package goetherlink

import (
	"errors"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTConfig configures the MQTT bridge transport.
type MQTTConfig struct {
	BrokerURL string // e.g. "tcp://broker.local:1883"
	ClientID  string
	RxTopic   string // frames received from the device
	TxTopic   string // frames sent to the device
}

// MQTTTransport carries frames over a pair of MQTT topics, for devices
// reachable through a wireless bridge instead of a local serial port. It
// owns its Link, reports the bridge connection state, and resets the link
// whenever the connection is (re-)established so a stale half-parsed frame
// cannot merge with bytes from a new session.
type MQTTTransport struct {
	cfg MQTTConfig
	log zerolog.Logger

	// OnConnect and OnDisconnect, when set before Start, are invoked on
	// bridge connection state changes.
	OnConnect    func()
	OnDisconnect func()

	// RawRx, when set before Start, receives every incoming chunk in
	// addition to the parser (transparent bridge mode).
	RawRx func(data []byte)

	mu     sync.Mutex
	link   *Link
	client mqtt.Client
}

// NewMQTTTransport creates an MQTT bridge transport and its protocol link.
func NewMQTTTransport(cfg MQTTConfig, onMessage MessageHandler, log zerolog.Logger) (*MQTTTransport, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("goetherlink: broker URL is required")
	}
	if cfg.RxTopic == "" || cfg.TxTopic == "" {
		return nil, errors.New("goetherlink: rx and tx topics are required")
	}
	t := &MQTTTransport{
		cfg: cfg,
		log: log.With().Str("transport", "mqtt").Logger(),
	}
	link, err := NewLink(onMessage, t.writeBytes)
	if err != nil {
		return nil, err
	}
	t.link = link
	return t, nil
}

// Start connects to the broker. The rx topic subscription happens in the
// connect handler so it survives broker reconnects.
func (t *MQTTTransport) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(t.cfg.BrokerURL).
		SetClientID(t.cfg.ClientID).
		SetOnConnectHandler(t.handleConnect).
		SetConnectionLostHandler(t.handleConnectionLost)

	client := mqtt.NewClient(opts)
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect %s: %w", t.cfg.BrokerURL, token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (t *MQTTTransport) Stop() {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}

// IsConnected reports whether the bridge connection is up.
func (t *MQTTTransport) IsConnected() bool {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	return client != nil && client.IsConnected()
}

// Send encodes and transmits one frame over the bridge.
func (t *MQTTTransport) Send(msgID byte, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link.Send(msgID, payload)
}

// Stats returns a snapshot of the link's frame counters.
func (t *MQTTTransport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link.Stats()
}

// Reset discards any in-progress parse on the link.
func (t *MQTTTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.link.Reset()
}

func (t *MQTTTransport) handleConnect(client mqtt.Client) {
	t.mu.Lock()
	t.link.Reset()
	t.mu.Unlock()

	if token := client.Subscribe(t.cfg.RxTopic, 0, t.handleMessage); token.Wait() && token.Error() != nil {
		t.log.Error().Err(token.Error()).Str("topic", t.cfg.RxTopic).Msg("subscribe failed")
		return
	}
	t.log.Info().Str("broker", t.cfg.BrokerURL).Str("topic", t.cfg.RxTopic).Msg("bridge connected")
	if t.OnConnect != nil {
		t.OnConnect()
	}
}

func (t *MQTTTransport) handleConnectionLost(_ mqtt.Client, err error) {
	t.log.Warn().Err(err).Msg("bridge connection lost")
	if t.OnDisconnect != nil {
		t.OnDisconnect()
	}
}

func (t *MQTTTransport) handleMessage(_ mqtt.Client, m mqtt.Message) {
	t.ingest(m.Payload())
}

// ingest feeds one received chunk to the raw hook and the parser.
func (t *MQTTTransport) ingest(data []byte) {
	if t.RawRx != nil {
		t.RawRx(data)
	}
	t.mu.Lock()
	t.link.ProcessBytes(data)
	t.mu.Unlock()
}

// writeBytes is the link's byte sink: one publish per frame. Publish
// failures are logged, never surfaced through the encoder. Called with
// t.mu held via Send.
func (t *MQTTTransport) writeBytes(data []byte) {
	if t.client == nil {
		t.log.Warn().Msg("send dropped: bridge not started")
		return
	}
	token := t.client.Publish(t.cfg.TxTopic, 0, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		t.log.Warn().Err(err).Str("topic", t.cfg.TxTopic).Msg("publish failed")
	}
}
