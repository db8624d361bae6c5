package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/abreis/heater-control/internal/command"
	"github.com/abreis/heater-control/internal/memlog"
	"github.com/abreis/heater-control/internal/state"
)

const (
	// How long NewClient waits for a non-retryable setup failure to surface
	// before handing back a still-connecting client.
	connectErrWait = 2 * time.Second

	publishTimeout = 5 * time.Second

	// Payloads buffered while the broker link is down.
	offlineBufferSize = 64
)

// Client is a Publisher backed by a real MQTT broker connection. Commands
// arriving on the set topics are validated and applied to the store; the
// link status is reflected into the store on every connect and disconnect.
type Client struct {
	client paho.Client
	topics Topics
	store  *state.Store
	log    *memlog.Log

	mu      sync.Mutex
	pending *stateBuffer
}

// NewClient builds the broker client and starts connecting. The connection
// carries a retained "offline" last will on the status topic; "online" is
// published on every successful (re)connect. An unreachable broker is not an
// error: with connect retry enabled the client keeps dialing in the
// background, and the returned adapter buffers state until the broker rises.
// Only non-retryable setup failures are reported, and those stop the client
// before returning so no handlers stay armed on an abandoned connection.
func NewClient(broker, clientID string, topics Topics, store *state.Store, log *memlog.Log) (*Client, error) {
	c := &Client{
		topics:  topics,
		store:   store,
		log:     log,
		pending: newStateBuffer(offlineBufferSize),
	}
	store.SetLink("mqtt", false)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(topics.Status(), "offline", 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if token.WaitTimeout(connectErrWait) {
		if err := token.Error(); err != nil {
			c.client.Disconnect(0)
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	} else {
		log.Warnf("mqtt: broker %s not reachable yet, retrying in background", broker)
	}

	return c, nil
}

func (c *Client) onConnect(client paho.Client) {
	c.log.Infof("mqtt: connected")
	c.store.SetLink("mqtt", true)
	c.store.ClearFault("mqtt", state.FaultNetworkDisconnected)

	client.Publish(c.topics.Status(), 1, true, "online")
	client.Subscribe(c.topics.Set(), 1, c.handleSet)
	client.Subscribe(c.topics.ManualSet(), 1, c.handleManualSet)

	// Replay state payloads buffered while disconnected, oldest first.
	c.mu.Lock()
	buffered := c.pending.drain()
	c.mu.Unlock()
	for _, payload := range buffered {
		client.Publish(c.topics.State(), 0, false, payload)
	}
	if n := len(buffered); n > 0 {
		c.log.Infof("mqtt: replayed %d buffered state payloads", n)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warnf("mqtt: connection lost: %v", err)
	c.store.SetLink("mqtt", false)
	c.store.RecordFault("mqtt", state.FaultNetworkDisconnected)
}

func (c *Client) handleSet(_ paho.Client, msg paho.Message) {
	req, err := command.DecodeSetpoint(msg.Payload())
	if err != nil {
		c.log.Warnf("mqtt: set rejected: %v", err)
		return
	}
	if err := req.Apply(c.store); err != nil {
		c.log.Warnf("mqtt: set rejected: %v", err)
		return
	}
	c.log.Infof("mqtt: setpoint accepted: target %.2f mode %s", req.Target, req.Mode)
}

func (c *Client) handleManualSet(_ paho.Client, msg paho.Message) {
	arg := string(msg.Payload())
	if err := command.ApplyManual(c.store, arg); err != nil {
		c.log.Warnf("mqtt: manual rejected: %v", err)
		return
	}
	c.log.Infof("mqtt: manual command accepted: %s", arg)
}

// PublishState sends a state snapshot to the state topic. While disconnected
// the payload is buffered and replayed on reconnect. IsConnectionOpen is the
// right gate here: paho's IsConnected also reports true while a (re)connect
// attempt is still in flight, and publishing into that window blocks.
func (c *Client) PublishState(payload []byte) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.pending.push(payload)
		c.mu.Unlock()
		return nil
	}

	// QoS 0, not retained: snapshots supersede each other.
	token := c.client.Publish(c.topics.State(), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is open right now,
// not merely being dialed.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close publishes a retained "offline" presence and disconnects. A clean
// disconnect does not fire the last will, so presence is written explicitly.
func (c *Client) Close() error {
	if c.client.IsConnectionOpen() {
		token := c.client.Publish(c.topics.Status(), 1, true, "offline")
		token.WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(1000)
	c.store.SetLink("mqtt", false)
	return nil
}
