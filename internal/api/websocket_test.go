package api

import (
	"encoding/json"
	"testing"

	"github.com/nerrad567/labeldash/internal/infrastructure/config"
	"github.com/nerrad567/labeldash/internal/infrastructure/logging"
)

func newTestHub() *Hub {
	return NewHub(config.WebSocketConfig{PingInterval: 30, PongTimeout: 10}, logging.Discard())
}

func decodeFrame(t *testing.T, data []byte) WSMessage {
	t.Helper()
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	return msg
}

func TestHub_BroadcastByChannel(t *testing.T) {
	h := newTestHub()
	a := newWSClient(h, nil, ChannelSession)
	b := newWSClient(h, nil, "other")
	h.add(a)
	h.add(b)

	h.Broadcast(ChannelSession, map[string]any{"connected": true})

	if len(a.send) != 1 {
		t.Fatalf("subscribed client queued %d frames, want 1", len(a.send))
	}
	if len(b.send) != 0 {
		t.Errorf("unsubscribed client queued %d frames, want 0", len(b.send))
	}
	msg := decodeFrame(t, <-a.send)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelSession {
		t.Errorf("frame = %+v", msg)
	}
	if h.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", h.ClientCount())
	}
}

func TestHub_SubscribeReplaysRetained(t *testing.T) {
	h := newTestHub()
	h.Broadcast(ChannelSession, map[string]any{"connected": false})

	c := newWSClient(h, nil)
	h.add(c)
	c.subscribe("s1", []string{ChannelSession, "never.sent"})

	if len(c.send) != 2 {
		t.Fatalf("queued %d frames, want response and retained event", len(c.send))
	}
	if resp := decodeFrame(t, <-c.send); resp.Type != WSTypeResponse || resp.ID != "s1" {
		t.Errorf("first frame = %+v, want response s1", resp)
	}
	if ev := decodeFrame(t, <-c.send); ev.EventType != ChannelSession {
		t.Errorf("second frame = %+v, want retained session event", ev)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := newTestHub()
	c := newWSClient(h, nil, ChannelSession)
	h.add(c)

	c.unsubscribe("u1", []string{ChannelSession})
	<-c.send // response

	h.Broadcast(ChannelSession, nil)
	if len(c.send) != 0 {
		t.Errorf("unsubscribed client still receives events")
	}
}

func TestHub_Shutdown(t *testing.T) {
	h := newTestHub()
	c := newWSClient(h, nil, ChannelSession)
	h.add(c)

	h.shutdown()

	if _, ok := <-c.send; ok {
		t.Error("send queue still open after shutdown")
	}
	c.enqueue([]byte("late")) // must not panic
	h.remove(c)               // must not double close
	if h.add(newWSClient(h, nil)) {
		t.Error("add() succeeded after shutdown")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after shutdown", h.ClientCount())
	}
}

func TestWSClient_QueueFullDrops(t *testing.T) {
	h := newTestHub()
	c := newWSClient(h, nil)

	for i := 0; i < wsSendBufferSize+5; i++ {
		c.enqueue([]byte("x"))
	}
	if len(c.send) != wsSendBufferSize {
		t.Errorf("queued %d, want %d", len(c.send), wsSendBufferSize)
	}
}

func TestWSClient_HandleErrors(t *testing.T) {
	h := newTestHub()
	c := newWSClient(h, nil)

	c.handle([]byte("not json"))
	c.handle([]byte(`{"type":"bogus","id":"b1"}`))
	c.handle([]byte(`{"type":"subscribe","id":"s1","payload":"nope"}`))

	for _, wantID := range []string{"", "b1", "s1"} {
		msg := decodeFrame(t, <-c.send)
		if msg.Type != WSTypeError || msg.ID != wantID {
			t.Errorf("frame = %+v, want error with id %q", msg, wantID)
		}
	}
}
