// Package mqtt connects the controller to an MQTT broker: it publishes
// state snapshots, accepts setpoint and manual commands, and maintains an
// online/offline presence topic through the broker's last-will mechanism.
package mqtt

import (
	"context"
	"log"
	"time"

	"github.com/abreis/heater-control/internal/state"
	"github.com/abreis/heater-control/internal/status"
)

// DefaultTopicRoot is the topic prefix shared by all heater devices.
const DefaultTopicRoot = "devices/heater"

// Topics builds the per-device topic names.
type Topics struct {
	Root   string
	Device string
}

// NewTopics creates Topics for the given device name. An empty root selects
// DefaultTopicRoot.
func NewTopics(root, device string) Topics {
	if root == "" {
		root = DefaultTopicRoot
	}
	return Topics{Root: root, Device: device}
}

func (t Topics) join(tail string) string {
	return t.Root + "/" + t.Device + "/" + tail
}

// State is the topic carrying JSON state snapshots.
func (t Topics) State() string { return t.join("state") }

// Set is the topic accepting JSON setpoint commands.
func (t Topics) Set() string { return t.join("set") }

// ManualSet is the topic accepting manual commands: "on", "off", or a duty
// percentage.
func (t Topics) ManualSet() string { return t.join("manual/set") }

// Status is the presence topic: "online" retained while connected, "offline"
// via the broker's last will after an unclean disconnect.
func (t Topics) Status() string { return t.join("status") }

// Publisher publishes state snapshots to the broker.
type Publisher interface {
	// PublishState sends a state snapshot. Implementations may buffer the
	// payload while disconnected; an error never crashes the caller.
	PublishState(payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Pump publishes a state snapshot whenever the store changes, and
// periodically as a heartbeat so late subscribers converge.
type Pump struct {
	store *state.Store
	pub   Publisher
}

// NewPump creates a Pump reading from the store and writing to pub.
func NewPump(store *state.Store, pub Publisher) *Pump {
	return &Pump{store: store, pub: pub}
}

// Run blocks until ctx is cancelled. heartbeat is injectable for tests; pass
// time.Tick for production use. checkin, if non-nil, is called once per
// iteration to report liveness.
func (p *Pump) Run(ctx context.Context, heartbeat <-chan time.Time, checkin func()) {
	changes := p.store.Subscribe()
	p.publish()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			p.publish()
		case <-heartbeat:
			p.publish()
		}
		if checkin != nil {
			checkin()
		}
	}
}

func (p *Pump) publish() {
	if err := p.pub.PublishState(status.FormatEvent(p.store.Snapshot())); err != nil {
		log.Printf("mqtt: publish state: %v", err)
	}
}
