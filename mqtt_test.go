package goetherlink

import (
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Error() error                   { return nil }

type publishedMsg struct {
	topic   string
	payload []byte
}

type fakeMQTTClient struct {
	connected bool
	published []publishedMsg
}

func (c *fakeMQTTClient) IsConnected() bool      { return c.connected }
func (c *fakeMQTTClient) IsConnectionOpen() bool { return c.connected }
func (c *fakeMQTTClient) Connect() mqtt.Token    { return fakeToken{} }
func (c *fakeMQTTClient) Disconnect(uint)        { c.connected = false }

func (c *fakeMQTTClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, publishedMsg{topic: topic, payload: payload.([]byte)})
	return fakeToken{}
}

func (c *fakeMQTTClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}

func (c *fakeMQTTClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}

func (c *fakeMQTTClient) Unsubscribe(...string) mqtt.Token     { return fakeToken{} }
func (c *fakeMQTTClient) AddRoute(string, mqtt.MessageHandler) {}
func (c *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func testMQTTConfig() MQTTConfig {
	return MQTTConfig{
		BrokerURL: "tcp://broker.local:1883",
		ClientID:  "elcli-test",
		RxTopic:   "device/tx",
		TxTopic:   "device/rx",
	}
}

func TestNewMQTTTransportValidation(t *testing.T) {
	_, err := NewMQTTTransport(MQTTConfig{RxTopic: "a", TxTopic: "b"}, noopHandler, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewMQTTTransport(MQTTConfig{BrokerURL: "tcp://x:1883"}, noopHandler, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewMQTTTransport(testMQTTConfig(), nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestMQTTSendPublishesOneFrame(t *testing.T) {
	tr, err := NewMQTTTransport(testMQTTConfig(), noopHandler, zerolog.Nop())
	require.NoError(t, err)
	client := &fakeMQTTClient{connected: true}
	tr.client = client

	require.NoError(t, tr.Send(0x10, []byte{0x01, 0x02, 0x03}))
	require.Len(t, client.published, 1)
	assert.Equal(t, "device/rx", client.published[0].topic)
	assert.Equal(t, []byte{0xA5, 0x10, 0x03, 0x01, 0x02, 0x03, 0x40}, client.published[0].payload)
	assert.Equal(t, Stats{TxFrames: 1}, tr.Stats())
}

func TestMQTTSendBeforeStartStillCounts(t *testing.T) {
	tr, err := NewMQTTTransport(testMQTTConfig(), noopHandler, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.Send(0x10, nil))
	assert.Equal(t, Stats{TxFrames: 1}, tr.Stats())
}

func TestMQTTIngestFeedsParserAndRawHook(t *testing.T) {
	var msgs []recordedMsg
	tr, err := NewMQTTTransport(testMQTTConfig(), func(msgID byte, payload []byte) {
		p := make([]byte, len(payload))
		copy(p, payload)
		msgs = append(msgs, recordedMsg{id: msgID, payload: p})
	}, zerolog.Nop())
	require.NoError(t, err)

	var raw [][]byte
	tr.RawRx = func(data []byte) { raw = append(raw, data) }

	frame := []byte{0xA5, 0x10, 0x03, 0x01, 0x02, 0x03, 0x40}
	tr.ingest(frame[:4])
	tr.ingest(frame[4:])

	require.Len(t, msgs, 1)
	assert.Equal(t, byte(0x10), msgs[0].id)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, msgs[0].payload)
	assert.Len(t, raw, 2, "raw hook sees every chunk")
	assert.Equal(t, Stats{RxFrames: 1}, tr.Stats())
}

func TestMQTTIsConnected(t *testing.T) {
	tr, err := NewMQTTTransport(testMQTTConfig(), noopHandler, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, tr.IsConnected())

	client := &fakeMQTTClient{connected: true}
	tr.client = client
	assert.True(t, tr.IsConnected())

	tr.Stop()
	assert.False(t, tr.IsConnected())
	assert.False(t, client.connected)
}

func TestMQTTConnectHandlerResetsLink(t *testing.T) {
	tr, err := NewMQTTTransport(testMQTTConfig(), noopHandler, zerolog.Nop())
	require.NoError(t, err)
	client := &fakeMQTTClient{connected: true}
	tr.client = client

	hooked := false
	tr.OnConnect = func() { hooked = true }

	// Leave the parser mid-frame, as after a dropped bridge session.
	tr.ingest([]byte{0xA5, 0x10, 0x03, 0x01})
	tr.handleConnect(client)
	assert.True(t, hooked)

	// The stale parse was discarded: a fresh frame parses cleanly.
	tr.ingest([]byte{0xA5, 0x10, 0x00, 0x57})
	assert.Equal(t, Stats{RxFrames: 1}, tr.Stats())
}
