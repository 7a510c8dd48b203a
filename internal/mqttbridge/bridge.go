// Package mqttbridge connects the node to an MQTT broker. Frames arriving
// on the input topic are decoded and handed to the stream entry point, and
// segmentation results are published on the output topic. Both directions
// use the binary cloud codec.
package mqttbridge

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/config"
	"github.com/banshee-data/cloudseg/internal/monitoring"
)

var logf = monitoring.Component("MQTT")

// FrameSink receives decoded stream frames. SubmitStreamFrame must not
// block.
type FrameSink interface {
	SubmitStreamFrame(c cloud.Cloud) bool
}

// Options configures the bridge.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string

	InputTopic  string
	OutputTopic string

	// QoS for both subscription and publication.
	QoS byte

	// PublishTimeout bounds how long a publish acknowledgement is awaited
	// in the background before it is counted as failed.
	PublishTimeout time.Duration
}

// OptionsFromConfig resolves bridge options. Environment variables
// MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME and MQTT_PASSWORD take
// precedence over brokerFlag, which takes precedence over the config file.
func OptionsFromConfig(cfg *config.SegmentationConfig, brokerFlag string) Options {
	file := cfg.GetMQTT()
	opts := Options{
		Broker:         firstNonEmpty(os.Getenv("MQTT_BROKER"), brokerFlag, file.Broker),
		ClientID:       firstNonEmpty(os.Getenv("MQTT_CLIENT_ID"), file.ClientID, config.DefaultMQTTClientID),
		Username:       firstNonEmpty(os.Getenv("MQTT_USERNAME"), file.Username),
		Password:       firstNonEmpty(os.Getenv("MQTT_PASSWORD"), file.Password),
		InputTopic:     cfg.GetPointcloudTopic(),
		OutputTopic:    cfg.GetSegmentedTopic(),
		QoS:            0,
		PublishTimeout: 2 * time.Second,
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Stats contains bridge counters.
type Stats struct {
	Connected     bool   `json:"connected"`
	Received      uint64 `json:"received"`
	DecodeErrors  uint64 `json:"decode_errors"`
	Dropped       uint64 `json:"dropped"`
	Published     uint64 `json:"published"`
	PublishErrors uint64 `json:"publish_errors"`
}

// Bridge owns an MQTT client for stream input and result output.
type Bridge struct {
	client mqtt.Client
	opts   Options
	sink   FrameSink

	mu        sync.RWMutex
	connected bool
	closed    bool

	received      atomic.Uint64
	decodeErrors  atomic.Uint64
	dropped       atomic.Uint64
	published     atomic.Uint64
	publishErrors atomic.Uint64

	pending sync.WaitGroup
}

// Dial creates a bridge backed by a paho client. The client reconnects on
// its own and resubscribes after every connect. Call Connect to start.
func Dial(opts Options, sink FrameSink) (*Bridge, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not set")
	}
	b := &Bridge{opts: opts, sink: sink}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetCleanSession(true)
	co.SetOrderMatters(false)

	co.SetOnConnectHandler(b.onConnect)
	co.SetConnectionLostHandler(b.onConnectionLost)
	co.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		logf("reconnecting to %s...", opts.Broker)
	})

	b.client = mqtt.NewClient(co)
	return b, nil
}

// SetSink replaces the frame sink. Frames that arrive while no sink is set
// are counted as dropped.
func (b *Bridge) SetSink(sink FrameSink) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

// NewWithClient creates a bridge around an existing client. The caller is
// responsible for routing the client's connect callback to OnConnect.
func NewWithClient(client mqtt.Client, opts Options, sink FrameSink) *Bridge {
	return &Bridge{client: client, opts: opts, sink: sink}
}

// Connect starts the connection and waits up to timeout for the first
// attempt. With connect-retry enabled the client keeps trying in the
// background after a timeout.
func (b *Bridge) Connect(timeout time.Duration) error {
	logf("Connecting to %s as %s...", b.opts.Broker, b.opts.ClientID)
	token := b.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect to %s: timed out after %v", b.opts.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", b.opts.Broker, err)
	}
	return nil
}

// OnConnect subscribes to the input topic. paho calls it after every
// (re)connect.
func (b *Bridge) OnConnect(client mqtt.Client) {
	b.onConnect(client)
}

func (b *Bridge) onConnect(client mqtt.Client) {
	b.setConnected(true)
	logf("Connected, subscribing to %s", b.opts.InputTopic)

	token := client.Subscribe(b.opts.InputTopic, b.opts.QoS, b.handleFrame)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		logf("Error subscribing to %s: %v", b.opts.InputTopic, token.Error())
		return
	}
	logf("Subscribed to %s", b.opts.InputTopic)
}

func (b *Bridge) onConnectionLost(_ mqtt.Client, err error) {
	logf("Connection lost (%v), auto-reconnect will retry", err)
	b.setConnected(false)
}

// handleFrame decodes one input message and submits it for segmentation.
func (b *Bridge) handleFrame(_ mqtt.Client, msg mqtt.Message) {
	b.received.Add(1)
	c, err := cloud.Decode(msg.Payload())
	if err != nil {
		b.decodeErrors.Add(1)
		logf("Error decoding frame on %s (%d bytes): %v", msg.Topic(), len(msg.Payload()), err)
		return
	}
	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink == nil || !sink.SubmitStreamFrame(c) {
		b.dropped.Add(1)
	}
}

// Publish encodes c and publishes it on the output topic. It never waits
// for the broker; acknowledgement is checked in the background. Publishing
// after Disconnect counts as an error.
func (b *Bridge) Publish(c cloud.Cloud) {
	if !b.begin() {
		b.publishErrors.Add(1)
		return
	}
	if !b.client.IsConnected() {
		b.pending.Done()
		b.publishErrors.Add(1)
		return
	}
	payload, err := c.MarshalBinary()
	if err != nil {
		b.pending.Done()
		b.publishErrors.Add(1)
		logf("Error encoding result seq=%d: %v", c.Header.Seq, err)
		return
	}

	token := b.client.Publish(b.opts.OutputTopic, b.opts.QoS, false, payload)
	go func() {
		defer b.pending.Done()
		if !token.WaitTimeout(b.opts.PublishTimeout) {
			b.publishErrors.Add(1)
			logf("Publish to %s timed out", b.opts.OutputTopic)
			return
		}
		if err := token.Error(); err != nil {
			b.publishErrors.Add(1)
			logf("Error publishing to %s: %v", b.opts.OutputTopic, err)
			return
		}
		b.published.Add(1)
	}()
}

// begin registers one publish unless the bridge is closed.
func (b *Bridge) begin() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	b.pending.Add(1)
	return true
}

// Disconnect stops input and further publishes, waits for outstanding
// publishes and closes the connection.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if b.client.IsConnected() {
		if token := b.client.Unsubscribe(b.opts.InputTopic); token.WaitTimeout(time.Second) && token.Error() != nil {
			logf("Error unsubscribing from %s: %v", b.opts.InputTopic, token.Error())
		}
	}
	b.pending.Wait()
	if b.client.IsConnected() {
		logf("Disconnecting from %s", b.opts.Broker)
		b.client.Disconnect(250)
	}
	b.setConnected(false)
}

// IsConnected reports whether the last connect succeeded and has not been
// lost since.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

// Stats returns bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Connected:     b.IsConnected(),
		Received:      b.received.Load(),
		DecodeErrors:  b.decodeErrors.Load(),
		Dropped:       b.dropped.Load(),
		Published:     b.published.Load(),
		PublishErrors: b.publishErrors.Load(),
	}
}
