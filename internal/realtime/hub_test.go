package realtime

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

type publishedEvent struct {
	Origin  string
	Room    string
	Event   string
	Payload []byte
}

// fakeBridge records publishes and lets tests inject relayed events.
type fakeBridge struct {
	published []publishedEvent
	handlers  map[string]func(origin, event string, payload []byte)
	cancelled map[string]bool
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		handlers:  make(map[string]func(origin, event string, payload []byte)),
		cancelled: make(map[string]bool),
	}
}

func (b *fakeBridge) PublishRoomEvent(origin, room, event string, payload []byte) error {
	b.published = append(b.published, publishedEvent{Origin: origin, Room: room, Event: event, Payload: payload})
	return nil
}

func (b *fakeBridge) SubscribeRoom(room string, handler func(origin, event string, payload []byte)) (func(), error) {
	b.handlers[room] = handler
	return func() { b.cancelled[room] = true }, nil
}

func newTestClient(id string) *Client {
	return &Client{ID: id, send: make(chan WSMessage, 8)}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHubBroadcastToRoom(t *testing.T) {
	bridge := newFakeBridge()
	hub := NewHub(zap.NewNop(), bridge, bridge)

	a := newTestClient("a")
	b := newTestClient("b")
	outsider := newTestClient("c")
	hub.Join("room-1", a)
	hub.Join("room-1", b)
	hub.Join("room-2", outsider)

	hub.BroadcastToRoom("room-1", "results-update", map[string]int{"o1": 2})

	for _, c := range []*Client{a, b} {
		msgs := drain(c)
		if len(msgs) != 1 || msgs[0].Event != "results-update" {
			t.Fatalf("client %s: got %+v, want one results-update", c.ID, msgs)
		}
	}
	if msgs := drain(outsider); len(msgs) != 0 {
		t.Errorf("outsider received room-1 traffic: %+v", msgs)
	}

	if len(bridge.published) != 1 || bridge.published[0].Room != "room-1" {
		t.Errorf("published: got %+v, want one room-1 event", bridge.published)
	}
	if bridge.published[0].Origin != hub.originID {
		t.Errorf("published origin: got %s, want hub origin", bridge.published[0].Origin)
	}
}

func TestHubRelaySkipsOwnOrigin(t *testing.T) {
	bridge := newFakeBridge()
	hub := NewHub(zap.NewNop(), bridge, bridge)

	a := newTestClient("a")
	hub.Join("room-1", a)

	handler := bridge.handlers["room-1"]
	if handler == nil {
		t.Fatal("no subscription registered on first join")
	}

	payload, _ := json.Marshal(map[string]string{"message": "hi"})
	handler("other-instance", "chat-receive", payload)
	handler(hub.originID, "chat-receive", payload)

	msgs := drain(a)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (own-origin relay skipped)", len(msgs))
	}
	if msgs[0].Event != "chat-receive" {
		t.Errorf("event: got %s", msgs[0].Event)
	}
}

func TestHubJoinSecondRoomDetachesFromFirst(t *testing.T) {
	bridge := newFakeBridge()
	hub := NewHub(zap.NewNop(), bridge, bridge)

	a := newTestClient("a")
	hub.Join("room-a", a)
	hub.Join("room-b", a)

	hub.BroadcastToRoom("room-a", "results-update", map[string]int{"o1": 1})
	if msgs := drain(a); len(msgs) != 0 {
		t.Fatalf("client received old room's traffic after switching: %+v", msgs)
	}
	hub.BroadcastToRoom("room-b", "results-update", map[string]int{"o1": 1})
	if msgs := drain(a); len(msgs) != 1 {
		t.Fatalf("client missing new room's traffic: got %d messages, want 1", len(msgs))
	}

	if n := hub.RoomSize("room-a"); n != 0 {
		t.Errorf("old room still holds %d clients", n)
	}
	if !bridge.cancelled["room-a"] {
		t.Error("old room's subscription not cancelled after its only client switched")
	}

	hub.Leave(a)
	if n := hub.RoomSize("room-b"); n != 0 {
		t.Errorf("new room still holds %d clients after leave", n)
	}
	if !bridge.cancelled["room-b"] {
		t.Error("new room's subscription not cancelled after last leave")
	}

	// Rejoining the same room twice is a no-op for membership.
	b := newTestClient("b")
	hub.Join("room-c", b)
	hub.Join("room-c", b)
	if n := hub.RoomSize("room-c"); n != 1 {
		t.Errorf("room size after repeated join: got %d, want 1", n)
	}
}

func TestHubLeaveCleansUpRoom(t *testing.T) {
	bridge := newFakeBridge()
	hub := NewHub(zap.NewNop(), bridge, bridge)

	a := newTestClient("a")
	b := newTestClient("b")
	hub.Join("room-1", a)
	hub.Join("room-1", b)

	hub.Leave(a)
	if n := hub.RoomSize("room-1"); n != 1 {
		t.Fatalf("room size after first leave: got %d, want 1", n)
	}
	if bridge.cancelled["room-1"] {
		t.Fatal("subscription cancelled while room still occupied")
	}

	hub.Leave(b)
	if n := hub.RoomSize("room-1"); n != 0 {
		t.Fatalf("room size after last leave: got %d, want 0", n)
	}
	if !bridge.cancelled["room-1"] {
		t.Fatal("subscription not cancelled after last leave")
	}
}

func TestHubSendToClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)

	a := newTestClient("a")
	b := newTestClient("b")
	hub.Join("room-1", a)
	hub.Join("room-1", b)

	hub.SendToClient("room-1", "a", "kicked", map[string]string{"reason": "removed"})

	if msgs := drain(a); len(msgs) != 1 || msgs[0].Event != "kicked" {
		t.Fatalf("target: got %+v, want one kicked event", msgs)
	}
	if msgs := drain(b); len(msgs) != 0 {
		t.Errorf("bystander received direct message: %+v", msgs)
	}

	// Unknown targets are ignored.
	hub.SendToClient("room-1", "nope", "kicked", nil)
	hub.SendToClient("no-room", "a", "kicked", nil)
}
