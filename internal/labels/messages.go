package labels

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
	"github.com/nerrad567/labeldash/internal/session"
)

// Logger is the logging interface used by the labels package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewMessageAction returns the session message action for the dashboard.
//
// Topics are matched after stripping prefix, if present:
//   - status/{printer}/alive   → PrinterStatus
//   - delivery_details/...     → DeliveryDetails
//
// Other topics are logged at debug level and ignored.
func NewMessageAction(prefix []string, logger Logger) session.MessageAction {
	if logger == nil {
		logger = noopLogger{}
	}
	t := mqtt.Topics{}
	stripped := mqtt.JoinTopic(prefix) + mqtt.TopicSeparator
	deliveryFilter := mqtt.TopicRootDelivery + "/#"

	return func(dispatch session.DispatchFunc, msg session.InboundMessage) error {
		topic := msg.Topic
		if len(prefix) > 0 {
			topic = strings.TrimPrefix(topic, stripped)
		}

		switch {
		case mqtt.MatchTopic(t.AllPrinterAlive(), topic):
			printerID := strings.Split(topic, mqtt.TopicSeparator)[1]
			return dispatch(printerStatusFrom(printerID, msg.Payload))

		case mqtt.MatchTopic(deliveryFilter, topic):
			obj := msg.Object()
			if obj == nil {
				return fmt.Errorf("delivery details on %s: payload is not an object", msg.Topic)
			}
			return dispatch(DeliveryDetails{
				Product:  stringField(obj, KeyProduct),
				Expires:  obj[KeyExpires],
				Batch:    stringField(obj, KeyBatch),
				Quantity: stringField(obj, KeyQuantity),
			})

		default:
			logger.Debug("message ignored", "topic", msg.Topic)
			return nil
		}
	}
}

// printerStatusFrom reads a liveness payload. Any message counts as alive
// unless it says otherwise through "alive": false or "status": "offline".
func printerStatusFrom(printerID string, payload any) PrinterStatus {
	status := PrinterStatus{PrinterID: printerID, Alive: true, SeenAt: time.Now().UTC()}

	switch p := payload.(type) {
	case bool:
		status.Alive = p
	case map[string]any:
		if alive, ok := p["alive"].(bool); ok {
			status.Alive = alive
		} else if s, ok := p["status"].(string); ok {
			status.Alive = s != "offline"
		}
		if ts, ok := p[session.TimestampKey].(string); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				status.SeenAt = parsed.UTC()
			}
		}
	}
	return status
}

// stringField returns obj[key] as a string. Numbers are formatted, other
// types yield "".
func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}
