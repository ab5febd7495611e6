// Package emitter mirrors binding events to an MQTT broker and accepts
// control commands from it.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/command"
	"github.com/coreman2200/rivesched/internal/events"
)

var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

type Config struct {
	// Broker is host:port.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId,omitempty"`
	// Topic prefixes every topic: <topic>/events/<kind>, <topic>/diag,
	// <topic>/control and <topic>/control/reply.
	Topic string `yaml:"topic,omitempty"`
	QoS   byte   `yaml:"qos,omitempty"`
	// Codec is msgpack unless set to json.
	Codec string `yaml:"codec,omitempty"`
}

type Emitter struct {
	cfg    Config
	codec  events.Codec
	ctl    command.Applier
	log    zerolog.Logger
	client mqtt.Client
	onLost func(err error)

	mu         sync.RWMutex
	published  map[string]uint64
	errors     uint64
	commands   uint64
	connected  bool
	subscribed bool
}

type Option func(*Emitter)

func WithLogger(l zerolog.Logger) Option { return func(e *Emitter) { e.log = l } }

// OnLost is called every time the broker connection drops.
func OnLost(fn func(err error)) Option { return func(e *Emitter) { e.onLost = fn } }

// WithClient replaces the paho client built by Connect.
func WithClient(c mqtt.Client) Option { return func(e *Emitter) { e.client = c } }

// New validates cfg. ctl may be nil, in which case no control topic is
// subscribed.
func New(cfg Config, ctl command.Applier, opts ...Option) (*Emitter, error) {
	if cfg.Broker == "" {
		return nil, errors.New("emitter: no broker")
	}
	if cfg.Topic == "" {
		cfg.Topic = "rivesched"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "rivesched-" + uuid.NewString()
	}
	codec := events.MsgPack
	if cfg.Codec != "" {
		c, err := events.ParseCodec(cfg.Codec)
		if err != nil {
			return nil, fmt.Errorf("emitter: %w", err)
		}
		codec = c
	}
	e := &Emitter{
		cfg:       cfg,
		codec:     codec,
		ctl:       ctl,
		log:       log.Logger.With().Str("component", "emitter").Str("broker", cfg.Broker).Logger(),
		published: map[string]uint64{},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Connect dials the broker with automatic reconnection. The control topic
// is (re)subscribed on every connection.
func (e *Emitter) Connect(ctx context.Context) error {
	if e.client == nil {
		opts := mqtt.NewClientOptions()
		opts.AddBroker("tcp://" + e.cfg.Broker)
		opts.SetClientID(e.cfg.ClientID)
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectRetryInterval(2 * time.Second)
		opts.SetMaxReconnectInterval(30 * time.Second)
		opts.OnConnect = func(c mqtt.Client) {
			e.setConnected(true)
			e.log.Info().Str("client_id", e.cfg.ClientID).Msg("mqtt connection established")
			e.subscribe()
		}
		opts.OnConnectionLost = func(c mqtt.Client, err error) {
			e.mu.Lock()
			e.connected = false
			e.subscribed = false
			e.mu.Unlock()
			e.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
			if e.onLost != nil {
				e.onLost(err)
			}
		}
		e.client = mqtt.NewClient(opts)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.log.Info().Msg("connecting to mqtt broker")
	token := e.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	e.subscribe()
	return nil
}

func (e *Emitter) subscribe() {
	e.mu.Lock()
	if e.ctl == nil || e.subscribed {
		e.mu.Unlock()
		return
	}
	e.subscribed = true
	e.mu.Unlock()

	topic := e.cfg.Topic + "/control"
	token := e.client.Subscribe(topic, e.cfg.QoS, e.onControl)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		e.mu.Lock()
		e.subscribed = false
		e.errors++
		e.mu.Unlock()
		e.log.Warn().Err(token.Error()).Str("topic", topic).Msg("subscribe control")
		return
	}
	e.log.Debug().Str("topic", topic).Msg("control subscribed")
}

// onControl applies one JSON command and publishes the reply.
func (e *Emitter) onControl(_ mqtt.Client, m mqtt.Message) {
	c, err := command.Decode(m.Payload())
	if err == nil {
		err = e.ctl.Apply(c)
	}
	e.mu.Lock()
	e.commands++
	e.mu.Unlock()
	if err != nil {
		e.log.Warn().Err(err).Str("topic", m.Topic()).Msg("control")
	}
	payload, _ := json.Marshal(command.ReplyTo(err))
	if err := e.publish(e.cfg.Topic+"/control/reply", payload); err != nil {
		e.log.Debug().Err(err).Msg("control reply")
	}
}

func (e *Emitter) topic(ev events.Event) string {
	if ev.Kind == events.Diagnostic {
		return e.cfg.Topic + "/diag"
	}
	return fmt.Sprintf("%s/events/%s", e.cfg.Topic, ev.Kind)
}

// Publish sends one event, waiting for the broker's acknowledgement.
func (e *Emitter) Publish(ev events.Event) error {
	payload, err := e.codec.Marshal(ev)
	if err != nil {
		e.fail()
		return fmt.Errorf("encode event: %w", err)
	}
	return e.publish(e.topic(ev), payload)
}

func (e *Emitter) publish(topic string, payload []byte) error {
	if !e.isConnected() {
		e.fail()
		return ErrNotConnected
	}
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.fail()
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.fail()
		return fmt.Errorf("publish failed: %w", err)
	}
	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	e.log.Debug().Str("topic", topic).Int("size", len(payload)).Msg("published")
	return nil
}

// Run publishes events from sub until ctx ends or sub is closed.
func (e *Emitter) Run(ctx context.Context, sub *events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := e.Publish(ev); err != nil {
				e.log.Debug().Err(err).Stringer("event", ev).Msg("publish event")
			}
		}
	}
}

func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info().Msg("mqtt disconnected")
	}
	e.setConnected(false)
}

type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
	Commands  uint64            `json:"commands"`
}

func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors, Commands: e.commands}
}

func (e *Emitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) fail() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
