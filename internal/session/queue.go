package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
)

// TimestampKey is added to every outbound payload that lacks it.
const TimestampKey = "timestamp"

// SendJSONMessage queues payload for publishing on the prefixed topic.
//
// The payload gets a "timestamp" (RFC 3339, local offset) unless it already
// has one. The call never blocks and never reports delivery; messages queued
// while disconnected are published in order once the session is connected.
// A payload that cannot be serialized is logged and dropped.
func (m *Manager) SendJSONMessage(topic Topic, payload map[string]any, opts ...PublishOption) {
	msg, err := m.encode(topic, payload, opts)
	if err != nil {
		m.logger.Error("MQTT message dropped", "topic", topic.String(), "error", err)
		return
	}
	m.post(publishRequest{msg: msg})
}

func (m *Manager) encode(topic Topic, payload map[string]any, opts []PublishOption) (mqtt.Message, error) {
	if topic.String() == "" {
		return mqtt.Message{}, ErrInvalidTopic
	}

	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.qos > 2 {
		return mqtt.Message{}, fmt.Errorf("%w: %d", mqtt.ErrInvalidQoS, o.qos)
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if _, ok := body[TimestampKey]; !ok {
		body[TimestampKey] = m.now().Format(time.RFC3339)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return mqtt.Message{}, fmt.Errorf("encoding payload: %w", err)
	}

	return mqtt.Message{
		Topic:    mqtt.JoinTopic(m.cfg.Prefix, topic...),
		Payload:  data,
		QoS:      o.qos,
		Retained: o.retained,
	}, nil
}

// flushOutbound hands the whole queue to the transport once the link is up.
// Messages queued while flushing wait for the next evaluation.
func (m *Manager) flushOutbound() {
	if len(m.outbound) == 0 || m.status != StatusConnected || m.transport == nil || !m.transport.IsLinkActive() {
		return
	}

	batch := m.outbound
	m.outbound = nil
	for _, msg := range batch {
		m.transport.Publish(msg)
		m.observer.MessagePublished(msg.Topic)
		if m.cfg.Debug {
			m.logger.Debug("MQTT publish", "topic", msg.Topic, "qos", msg.QoS, "retained", msg.Retained, "payload", string(msg.Payload))
		}
	}

	for _, ch := range m.flushWaiters {
		m.release(ch)
	}
	m.flushWaiters = nil
}

func (m *Manager) onMessageArrived(e messageArrived) {
	if e.gen != m.gen {
		m.logger.Debug("message from stale link dropped", "topic", e.topic, "generation", e.gen, "current", m.gen)
		return
	}
	m.inbound = append(m.inbound, e)
}

// drainInbound applies every queued message in arrival order.
func (m *Manager) drainInbound() {
	if len(m.inbound) == 0 {
		return
	}
	batch := m.inbound
	m.inbound = nil
	for _, e := range batch {
		m.deliver(e.topic, e.payload)
	}
}

func (m *Manager) deliver(topic string, raw []byte) {
	m.observer.MessageReceived(topic)
	if m.cfg.Debug {
		m.logger.Debug("MQTT message", "topic", topic, "payload", string(raw))
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.logger.Warn("MQTT message skipped, payload is not JSON", "topic", topic, "error", err)
		return
	}
	if m.cfg.MessageAction == nil {
		return
	}

	dispatch := func(action Action) error {
		err := m.apply(action)
		if err != nil {
			m.logger.Error("reducer rejected action", "topic", topic, "action", actionType(action), "error", err)
		}
		return err
	}

	msg := InboundMessage{Topic: topic, Payload: payload, Raw: json.RawMessage(raw)}
	if err := m.cfg.MessageAction(dispatch, msg); err != nil {
		m.logger.Error("message action failed", "topic", topic, "error", err)
	}
}
