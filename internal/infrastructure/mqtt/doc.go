// Package mqtt provides the broker transport for labeldash.
//
// This package manages:
//   - Building one paho client per connection attempt (Dialer.Dial)
//   - Fire-and-forget connect, subscribe, unsubscribe and publish with
//     outcomes reported through callbacks
//   - Last Will and Testament (LWT) for dashboard offline detection
//   - Topic construction and wildcard matching for the print and status trees
//
// # Architecture
//
// A Handle never reconnects on its own. When the link drops it reports the
// loss once and is then discarded; the session package dials a fresh Handle
// with the same client identity and re-establishes every subscription.
//
//	session.Manager → Dialer.Dial(id) → Handle → paho → Broker
//
// # Security Considerations
//
//   - TLS should be enabled for any broker outside the local host (cfg.Broker.TLS=true)
//   - Credentials come from config or LABELDASH_MQTT_* environment variables
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	dialer := mqtt.NewDialer(cfg.MQTT, mqtt.Topics{}.DashboardStatus(id), logger)
//	h := dialer.Dial("labeldash-" + id)
//	h.SetOnMessageArrived(func(topic string, payload []byte) {
//	    log.Printf("Received: %s = %s", topic, payload)
//	})
//	h.Connect(mqtt.ConnectCallbacks{
//	    OnSuccess: func() { log.Print("connected") },
//	    OnFailure: func(err error) { log.Print(err) },
//	})
package mqtt
