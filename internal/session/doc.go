// Package session owns the single broker session of a labeldash process.
//
// A Manager keeps one logical MQTT session alive, tracks the desired
// subscription set independently of the link, queues outbound messages while
// the link is down, and applies every inbound message to application state
// through an injected reducer, exactly once and in arrival order.
//
// # Architecture
//
// All session state is owned by one goroutine (Manager.Run). Public calls,
// transport callbacks and retry timer fires are posted to an unbounded
// mailbox and handled one at a time; after each event the loop re-evaluates:
//
//	ensureConnected → reconcile subscriptions → flush outbound → drain inbound
//
// Every transport handle is tagged with a generation number. Callbacks carry
// the generation of the handle that produced them, and the loop drops any
// event whose generation is no longer current, so acknowledgments or messages
// from a superseded link can never touch the live subscription set.
//
// Per-topic subscription state:
//
//	unsubscribed ──subscribe──▶ pending ──ack ok──▶ subscribed
//	     ▲                         │
//	     └────────ack failed───────┘      (any state ──link lost──▶ unsubscribed)
//
// # Thread Safety
//
// All exported methods are safe for concurrent use and never block on the
// broker. Reads (Connected, State, Subscriptions, Snapshot) are served from an
// immutable snapshot published by the loop after every event.
//
// # Usage
//
//	mgr, err := session.New(session.Config{
//	    Dial:          func(id string) session.Transport { return dialer.Dial(id) },
//	    Prefix:        []string{"lift", "lobby"},
//	    Subscriptions: []string{"status/line-3/alive"},
//	    Reducer:       labels.Reducer,
//	    MessageAction: labels.MessageAction,
//	})
//	go mgr.Run(ctx)
//	mgr.SendJSONMessage(session.Path("print/"), payload, session.QoS(1), session.Retained(true))
package session
